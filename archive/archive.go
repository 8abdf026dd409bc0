// Package archive takes point-in-time snapshots of the job-state
// document and restores from them.
//
// A snapshot is every job state encoded into one object and written to
// a Backend under a timestamped key. Backends are deliberately dumb
// byte stores; the local filesystem, Amazon S3 and Google Cloud Storage
// implementations live in subpackages.
package archive

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/xraph/steward"
	"github.com/xraph/steward/codec"
	"github.com/xraph/steward/id"
	"github.com/xraph/steward/jobstate"
)

// Backend stores snapshot objects by key.
//
// Get and Delete return steward.ErrSnapshotNotFound (possibly wrapped)
// when the key does not exist. List returns keys in lexicographic
// order; snapshot keys embed an RFC 3339 timestamp, so that order is
// also chronological.
type Backend interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, key string) error
}

// Emitter receives snapshot lifecycle events. hook.Registry satisfies
// this interface; keeping it local avoids an import cycle.
type Emitter interface {
	EmitSnapshotTaken(ctx context.Context, key string, states int)
}

// snapshot is the wire form of one archived state set.
type snapshot struct {
	TakenAt time.Time            `json:"taken_at" msgpack:"taken_at"`
	States  []*jobstate.JobState `json:"states" msgpack:"states"`
}

// Snapshotter writes and restores snapshots of a job-state store.
type Snapshotter struct {
	states  *jobstate.Store
	backend Backend
	codec   codec.Codec
	prefix  string
	emitter Emitter
	logger  *slog.Logger
}

// Option configures a Snapshotter.
type Option func(*Snapshotter)

// WithCodec sets the serialization format for snapshot objects.
func WithCodec(c codec.Codec) Option {
	return func(s *Snapshotter) { s.codec = c }
}

// WithPrefix sets the key prefix snapshots are written under.
func WithPrefix(prefix string) Option {
	return func(s *Snapshotter) { s.prefix = prefix }
}

// WithEmitter sets the lifecycle event emitter.
func WithEmitter(e Emitter) Option {
	return func(s *Snapshotter) { s.emitter = e }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Snapshotter) { s.logger = l }
}

// NewSnapshotter creates a snapshotter over the given state store and
// backend. Defaults: JSON codec, keys under "snapshots/".
func NewSnapshotter(states *jobstate.Store, backend Backend, opts ...Option) *Snapshotter {
	s := &Snapshotter{
		states:  states,
		backend: backend,
		codec:   &codec.JSON{},
		prefix:  "snapshots/",
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Snapshot reads every job state, encodes them into one object and
// writes it to the backend. It returns the key the snapshot was stored
// under. An empty store still produces a snapshot; restoring it is a
// no-op.
func (s *Snapshotter) Snapshot(ctx context.Context) (string, error) {
	states, err := s.states.List(ctx)
	if err != nil {
		return "", fmt.Errorf("archive: listing states: %w", err)
	}

	snap := snapshot{TakenAt: time.Now().UTC(), States: states}
	data, err := s.codec.Encode(snap)
	if err != nil {
		return "", fmt.Errorf("archive: encoding snapshot: %w", err)
	}

	key := s.key(snap.TakenAt)
	if err := s.backend.Put(ctx, key, data); err != nil {
		return "", fmt.Errorf("archive: writing snapshot %q: %w", key, err)
	}

	s.logger.Info("snapshot taken",
		slog.String("key", key),
		slog.Int("states", len(states)))
	if s.emitter != nil {
		s.emitter.EmitSnapshotTaken(ctx, key, len(states))
	}
	return key, nil
}

// Restore reads the snapshot stored under key and saves every state it
// contains back into the store. States already present are overwritten;
// states not in the snapshot are left alone.
func (s *Snapshotter) Restore(ctx context.Context, key string) error {
	data, err := s.backend.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("archive: reading snapshot %q: %w", key, err)
	}

	var snap snapshot
	if err := s.codec.Decode(data, &snap); err != nil {
		return fmt.Errorf("archive: %w: decoding snapshot %q: %v",
			steward.ErrStateCorrupt, key, err)
	}

	for _, st := range snap.States {
		if err := s.states.Save(ctx, st); err != nil {
			return fmt.Errorf("archive: restoring job %q: %w", st.JobID, err)
		}
	}

	s.logger.Info("snapshot restored",
		slog.String("key", key),
		slog.Int("states", len(snap.States)))
	return nil
}

// List returns the keys of all snapshots under the configured prefix,
// oldest first.
func (s *Snapshotter) List(ctx context.Context) ([]string, error) {
	keys, err := s.backend.List(ctx, s.prefix)
	if err != nil {
		return nil, fmt.Errorf("archive: listing snapshots: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}

// Prune deletes all but the keep newest snapshots. keep < 1 is treated
// as 1 so the latest snapshot always survives.
func (s *Snapshotter) Prune(ctx context.Context, keep int) error {
	if keep < 1 {
		keep = 1
	}
	keys, err := s.List(ctx)
	if err != nil {
		return err
	}
	if len(keys) <= keep {
		return nil
	}
	for _, key := range keys[:len(keys)-keep] {
		if err := s.backend.Delete(ctx, key); err != nil {
			return fmt.Errorf("archive: pruning snapshot %q: %w", key, err)
		}
		s.logger.Debug("snapshot pruned", slog.String("key", key))
	}
	return nil
}

// key builds a chronologically sortable object key: prefix, a
// fixed-width UTC timestamp, a short random suffix to break collisions
// across processes, and the codec name as extension.
func (s *Snapshotter) key(takenAt time.Time) string {
	return fmt.Sprintf("%s%s-%s.%s",
		s.prefix,
		takenAt.Format("2006-01-02T15-04-05.000000000Z"),
		id.NewSnapshotID().Suffix(),
		s.codec.Name())
}
