package worker_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/kaiyote/envoycfgd/internal/config"
	"github.com/kaiyote/envoycfgd/internal/identity"
	"github.com/kaiyote/envoycfgd/internal/requests"
	"github.com/kaiyote/envoycfgd/internal/store"
	"github.com/kaiyote/envoycfgd/internal/worker"
)

func writeEmptyDoc(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(`{"version_info":"0","resources":[]}`), 0o644))
}

func newTestEnv(t *testing.T) (*config.Config, *store.Store) {
	t.Helper()
	dir := t.TempDir()

	cfg := &config.Config{
		LDSPath: filepath.Join(dir, "lds.json"),
		CDSPath: filepath.Join(dir, "cds.json"),
		EDSPath: filepath.Join(dir, "eds.json"),
	}
	writeEmptyDoc(t, cfg.LDSPath)
	writeEmptyDoc(t, cfg.CDSPath)
	writeEmptyDoc(t, cfg.EDSPath)

	mr := miniredis.RunT(t)
	client := func(db int) redis.Cmdable {
		return redis.NewClient(&redis.Options{Addr: mr.Addr(), DB: db})
	}
	st := &store.Store{Queue: client(0), Snapshot: client(1), EPIndex: client(2), SVIndex: client(3)}
	return cfg, st
}

func TestWorkerBootstrapSeedsSnapshotAndIndexes(t *testing.T) {
	cfg, st := newTestEnv(t)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	_, err := worker.New(cfg, st, log)
	require.NoError(t, err)

	_, err = st.LoadSnapshot(context.Background())
	require.NoError(t, err)
}

func TestWorkerAppliesEnqueuedRequestAndWritesFiles(t *testing.T) {
	cfg, st := newTestEnv(t)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	w, err := worker.New(cfg, st, log)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	endpointUUID := identity.Endpoint("18080", "/")
	env, err := requests.NewEndpoint(requests.ModeAdd, "18080", "/", "www.example.com", endpointUUID)
	require.NoError(t, err)
	require.NoError(t, st.Enqueue(context.Background(), env))

	// The index is rebuilt before the files are written, so wait for both.
	require.Eventually(t, func() bool {
		r, rt, err := st.GetEndpointIndex(context.Background(), endpointUUID)
		if err != nil || r != 0 || rt != 0 {
			return false
		}
		var onDisk struct {
			VersionInfo string `json:"version_info"`
		}
		b, err := os.ReadFile(cfg.LDSPath)
		return err == nil && json.Unmarshal(b, &onDisk) == nil && onDisk.VersionInfo == "1"
	}, time.Second, 10*time.Millisecond)

	ldsOnDisk, err := os.ReadFile(cfg.LDSPath)
	require.NoError(t, err)
	var doc struct {
		VersionInfo string `json:"version_info"`
	}
	require.NoError(t, json.Unmarshal(ldsOnDisk, &doc))
	require.Equal(t, "1", doc.VersionInfo)
}
