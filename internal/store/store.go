// Package store implements the four external-store keyspaces the worker
// and API share: the request queue, the config snapshot, and the two
// O(1) lookup indexes (§4.2). All four live in the same Redis instance,
// one per DB index, so an operator pointing at a fresh Redis only needs
// REDIS_SERVER/REDIS_PORT set.
package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/kaiyote/envoycfgd/internal/apierr"
	"github.com/kaiyote/envoycfgd/internal/config"
	"github.com/kaiyote/envoycfgd/internal/entity/eds"
	"github.com/kaiyote/envoycfgd/internal/entity/lds"
	"github.com/kaiyote/envoycfgd/internal/identity"
	"github.com/kaiyote/envoycfgd/internal/requests"
)

const (
	streamKey    = "requests"
	requestField = "request"
	snapshotKey  = "envoy_conf"
)

// Store is a thin wrapper over four redis.Cmdable handles, one per logical
// namespace. Tests substitute miniredis for all four rather than mocking
// the interface, so the real client code path is always exercised.
type Store struct {
	Queue    redis.Cmdable
	Snapshot redis.Cmdable
	EPIndex  redis.Cmdable
	SVIndex  redis.Cmdable
}

// New dials four *redis.Client against the same address, one per DB index
// (§4.2's four logical namespaces).
func New(cfg *config.Config) *Store {
	opt := func(db int) *redis.Options {
		return &redis.Options{Addr: cfg.RedisAddr(), DB: db}
	}
	return &Store{
		Queue:    redis.NewClient(opt(config.RedisQueueDB)),
		Snapshot: redis.NewClient(opt(config.RedisSnapshotDB)),
		EPIndex:  redis.NewClient(opt(config.RedisEPIndexDB)),
		SVIndex:  redis.NewClient(opt(config.RedisSVIndexDB)),
	}
}

// FlushAll clears every namespace, used at worker bootstrap before the
// indexes and snapshot are rebuilt from the freshly loaded config files.
func (s *Store) FlushAll(ctx context.Context) error {
	for _, c := range []redis.Cmdable{s.Queue, s.Snapshot, s.EPIndex, s.SVIndex} {
		if err := c.FlushDB(ctx).Err(); err != nil {
			return fmt.Errorf("%w: flushdb: %v", apierr.ErrStoreUnavailable, err)
		}
	}
	return nil
}

// Enqueue appends a validated request envelope to the FIFO stream.
func (s *Store) Enqueue(ctx context.Context, env *requests.Envelope) error {
	body, err := env.JSON()
	if err != nil {
		return fmt.Errorf("store: marshalling envelope: %w", err)
	}
	err = s.Queue.XAdd(ctx, &redis.XAddArgs{
		Stream: streamKey,
		Values: map[string]any{requestField: body},
	}).Err()
	if err != nil {
		return fmt.Errorf("%w: enqueue: %v", apierr.ErrStoreUnavailable, err)
	}
	return nil
}

// Dequeue blocks until the oldest queued entry is available, then returns
// it without deleting it. Callers must call Ack once the entry has been
// fully applied — entries are only removed after they are durably
// processed, giving at-least-once delivery to the single worker consumer
// (§4.2). An entry that cannot be decoded is deleted here and reported as
// an error, since it can never be applied.
func (s *Store) Dequeue(ctx context.Context) (id string, env *requests.Envelope, err error) {
	res, err := s.Queue.XRead(ctx, &redis.XReadArgs{
		Streams: []string{streamKey, "0"},
		Count:   1,
		Block:   0,
	}).Result()
	if err != nil {
		return "", nil, fmt.Errorf("%w: dequeue: %v", apierr.ErrStoreUnavailable, err)
	}
	if len(res) == 0 || len(res[0].Messages) == 0 {
		return "", nil, fmt.Errorf("%w: dequeue: empty read result", apierr.ErrStoreUnavailable)
	}

	msg := res[0].Messages[0]
	raw, ok := msg.Values[requestField].(string)
	if !ok {
		_ = s.Queue.XDel(ctx, streamKey, msg.ID).Err() //nolint:errcheck
		return "", nil, fmt.Errorf("store: queue entry %s missing %q field", msg.ID, requestField)
	}
	env, err = requests.ParseEnvelope([]byte(raw))
	if err != nil {
		_ = s.Queue.XDel(ctx, streamKey, msg.ID).Err() //nolint:errcheck
		return "", nil, fmt.Errorf("store: decoding queue entry %s: %w", msg.ID, err)
	}
	return msg.ID, env, nil
}

// Ack deletes a queue entry by stream id, making it invisible to future
// Dequeue calls. Called only after the worker has finished applying it.
func (s *Store) Ack(ctx context.Context, id string) error {
	if err := s.Queue.XDel(ctx, streamKey, id).Err(); err != nil {
		return fmt.Errorf("%w: ack %s: %v", apierr.ErrStoreUnavailable, id, err)
	}
	return nil
}

// SaveSnapshot persists the serialised config tree.
func (s *Store) SaveSnapshot(ctx context.Context, data []byte) error {
	if err := s.Snapshot.Set(ctx, snapshotKey, data, 0).Err(); err != nil {
		return fmt.Errorf("%w: save snapshot: %v", apierr.ErrStoreUnavailable, err)
	}
	return nil
}

// LoadSnapshot reads back the serialised config tree. Returns
// apierr.ErrNotFound if no snapshot has ever been saved.
func (s *Store) LoadSnapshot(ctx context.Context) ([]byte, error) {
	data, err := s.Snapshot.Get(ctx, snapshotKey).Bytes()
	if err == redis.Nil {
		return nil, apierr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: load snapshot: %v", apierr.ErrStoreUnavailable, err)
	}
	return data, nil
}

// indexValue encodes a (resource index, child index) pair the way §3.3
// specifies: "r_t" / "r_e" — two decimal integers joined by an underscore.
func indexValue(resourceIdx, childIdx int) string {
	return fmt.Sprintf("%d_%d", resourceIdx, childIdx)
}

func parseIndexValue(v string) (resourceIdx, childIdx int, err error) {
	parts := strings.SplitN(v, "_", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("store: malformed index value %q", v)
	}
	resourceIdx, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("store: malformed index value %q: %w", v, err)
	}
	childIdx, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("store: malformed index value %q: %w", v, err)
	}
	return resourceIdx, childIdx, nil
}

// GetEndpointIndex looks up endpoint_uuid's (listener-resource index, route
// index). Returns apierr.ErrNotFound if absent.
func (s *Store) GetEndpointIndex(ctx context.Context, endpointUUID string) (resourceIdx, routeIdx int, err error) {
	v, err := s.EPIndex.Get(ctx, endpointUUID).Result()
	if err == redis.Nil {
		return 0, 0, apierr.ErrNotFound
	}
	if err != nil {
		return 0, 0, fmt.Errorf("%w: ep-index get: %v", apierr.ErrStoreUnavailable, err)
	}
	return parseIndexValue(v)
}

// DeleteEndpointIndex drops endpoint_uuid's entry.
func (s *Store) DeleteEndpointIndex(ctx context.Context, endpointUUID string) error {
	if err := s.EPIndex.Del(ctx, endpointUUID).Err(); err != nil {
		return fmt.Errorf("%w: ep-index del: %v", apierr.ErrStoreUnavailable, err)
	}
	return nil
}

// GetServerIndex looks up server_uuid's (endpoint-resource index,
// lb-endpoint index). Returns apierr.ErrNotFound if absent.
func (s *Store) GetServerIndex(ctx context.Context, serverUUID string) (resourceIdx, endpointIdx int, err error) {
	v, err := s.SVIndex.Get(ctx, serverUUID).Result()
	if err == redis.Nil {
		return 0, 0, apierr.ErrNotFound
	}
	if err != nil {
		return 0, 0, fmt.Errorf("%w: sv-index get: %v", apierr.ErrStoreUnavailable, err)
	}
	return parseIndexValue(v)
}

// DeleteServerIndex drops server_uuid's entry.
func (s *Store) DeleteServerIndex(ctx context.Context, serverUUID string) error {
	if err := s.SVIndex.Del(ctx, serverUUID).Err(); err != nil {
		return fmt.Errorf("%w: sv-index del: %v", apierr.ErrStoreUnavailable, err)
	}
	return nil
}

// RebuildEndpointIndex flushes and repopulates the EP-index from scratch
// (§5: "writers must treat index rebuild as flush + repopulate so stale
// entries cannot survive a mutation"). Keyed by each route's cluster name,
// which is always its owning endpoint_uuid.
func (s *Store) RebuildEndpointIndex(ctx context.Context, doc *lds.Lds) error {
	if err := s.EPIndex.FlushDB(ctx).Err(); err != nil {
		return fmt.Errorf("%w: ep-index flush: %v", apierr.ErrStoreUnavailable, err)
	}
	pipe := s.EPIndex.Pipeline()
	for r, res := range doc.Resources() {
		for t, rt := range res.Routes {
			pipe.Set(ctx, rt.ClusterName, indexValue(r, t), 0)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: ep-index rebuild: %v", apierr.ErrStoreUnavailable, err)
	}
	return nil
}

// RebuildServerIndex flushes and repopulates the SV-index from scratch,
// keyed by server_uuid derived from each lb-endpoint's (address, port).
func (s *Store) RebuildServerIndex(ctx context.Context, doc *eds.Eds) error {
	if err := s.SVIndex.FlushDB(ctx).Err(); err != nil {
		return fmt.Errorf("%w: sv-index flush: %v", apierr.ErrStoreUnavailable, err)
	}
	pipe := s.SVIndex.Pipeline()
	for r, res := range doc.Resources() {
		for e, ep := range res.Endpoints {
			uuid := identity.Server(ep.Address, ep.Port)
			pipe.Set(ctx, uuid, indexValue(r, e), 0)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: sv-index rebuild: %v", apierr.ErrStoreUnavailable, err)
	}
	return nil
}
