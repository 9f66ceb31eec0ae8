// Package worker implements the single consumer of the request queue: the
// only writer of the authoritative Config, the indexes, the snapshot, and
// the three on-disk xDS files (§4.4).
package worker

import (
	"context"
	"errors"
	"log/slog"

	"github.com/kaiyote/envoycfgd/internal/apierr"
	"github.com/kaiyote/envoycfgd/internal/config"
	"github.com/kaiyote/envoycfgd/internal/confio"
	"github.com/kaiyote/envoycfgd/internal/entity/conf"
	"github.com/kaiyote/envoycfgd/internal/entity/validate"
	"github.com/kaiyote/envoycfgd/internal/requests"
	"github.com/kaiyote/envoycfgd/internal/store"
)

// Worker owns the authoritative Config. Nothing outside this package ever
// mutates it (§5: "the Config object is worker-exclusive").
type Worker struct {
	cfg    *config.Config
	store  *store.Store
	log    *slog.Logger
	config *conf.Config
}

// New bootstraps the worker: load the three files, flush the store, and
// rebuild the snapshot and both indexes from the loaded config (§4.4).
func New(cfg *config.Config, st *store.Store, log *slog.Logger) (*Worker, error) {
	ldsJSON, cdsJSON, edsJSON, err := confio.ReadAll(cfg)
	if err != nil {
		return nil, err
	}

	c := conf.New()
	if err := c.LoadFromFiles(ldsJSON, cdsJSON, edsJSON); err != nil {
		return nil, err
	}

	w := &Worker{cfg: cfg, store: st, log: log, config: c}

	ctx := context.Background()
	if err := st.FlushAll(ctx); err != nil {
		return nil, err
	}
	if err := w.persist(ctx); err != nil {
		return nil, err
	}
	return w, nil
}

// Run consumes the queue forever, applying each request to the
// authoritative config and, if anything changed, persisting the new
// state. A StoreUnavailable error from Dequeue is retried on the next
// iteration. An error while applying or persisting an entry, a
// StoreUnavailable one included, is logged and the entry is still acked,
// so it is not retried.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		id, env, err := w.store.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, apierr.ErrStoreUnavailable) {
				w.log.Error("dequeue failed, retrying", "error", err)
				continue
			}
			w.log.Error("dequeue failed, dropping malformed entry", "error", err)
			continue
		}

		if err := w.apply(ctx, env); err != nil {
			w.log.Error("applying request failed", "endpoint_uuid", env.EndpointUUID, "mode", env.Mode, "error", err)
		}

		if err := w.store.Ack(ctx, id); err != nil {
			w.log.Error("ack failed", "id", id, "error", err)
		}
	}
}

// apply mutates the config in place per the pseudocode in §4.4, persisting
// the new state only if something actually changed.
func (w *Worker) apply(ctx context.Context, env *requests.Envelope) error {
	before := w.config.Snapshot()

	switch env.Mode {
	case requests.ModeAdd:
		if err := w.config.ApplyRequest(env); err != nil {
			return err
		}
	case requests.ModeRemove:
		if err := w.config.RemoveRequest(env); err != nil {
			return err
		}
	default:
		w.log.Warn("request with unrecognised mode, ignoring", "mode", env.Mode)
		return nil
	}

	if string(before) == string(w.config.Snapshot()) {
		return nil
	}
	return w.persist(ctx)
}

// persist rebuilds both indexes, saves the snapshot, and rewrites the
// three on-disk files, in that order (§5: index rebuild precedes snapshot
// write, so readers never see an index pointing at a non-existent entity).
func (w *Worker) persist(ctx context.Context) error {
	if err := validate.LDS(w.config.Lds.Emit()); err != nil {
		w.log.Warn("lds document failed schema validation", "error", err)
	}
	if err := validate.CDS(w.config.Cds.Emit()); err != nil {
		w.log.Warn("cds document failed schema validation", "error", err)
	}
	if err := validate.EDS(w.config.Eds.Emit()); err != nil {
		w.log.Warn("eds document failed schema validation", "error", err)
	}

	if err := w.store.RebuildEndpointIndex(ctx, w.config.Lds); err != nil {
		return err
	}
	if err := w.store.RebuildServerIndex(ctx, w.config.Eds); err != nil {
		return err
	}
	if err := w.store.SaveSnapshot(ctx, w.config.Snapshot()); err != nil {
		return err
	}
	if err := confio.WriteAll(w.cfg, w.config); err != nil {
		w.log.Error("writing config files failed", "error", err)
		return err
	}
	return nil
}
