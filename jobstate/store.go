package jobstate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/xraph/steward"
	"github.com/xraph/steward/codec"
	"github.com/xraph/steward/docstore"
)

// Emitter receives state lifecycle events. hook.Registry satisfies this
// interface; keeping it local avoids an import cycle.
type Emitter interface {
	EmitStateSaved(ctx context.Context, st *JobState)
	EmitStateDeleted(ctx context.Context, jobID string)
}

// Store persists job states in one named, namespaced document.
//
// Every mutating operation runs fetch → mutate → write-back as one
// mutex-guarded unit, so concurrent in-process writers never lose
// updates. The mutex is process-local: two processes sharing the same
// document can still clobber each other (last write wins, the backend's
// version token is not checked on Replace). Run a single writer per
// document, or gate writers behind cluster leadership.
type Store struct {
	mu      sync.Mutex
	docs    docstore.Store
	codec   codec.Codec
	name    string
	ns      string
	logger  *slog.Logger
	emitter Emitter
}

// Option configures a Store.
type Option func(*Store)

// WithDocument sets the name and namespace of the backing document.
func WithDocument(name, namespace string) Option {
	return func(s *Store) {
		s.name = name
		s.ns = namespace
	}
}

// WithCodec sets the serialization format for stored states.
func WithCodec(c codec.Codec) Option {
	return func(s *Store) { s.codec = c }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithEmitter sets the lifecycle event emitter.
func WithEmitter(e Emitter) Option {
	return func(s *Store) { s.emitter = e }
}

// New creates a job-state store over the given document store. The
// defaults match steward.DefaultConfig: document "job-states" in
// namespace "default", JSON codec.
func New(docs docstore.Store, opts ...Option) *Store {
	s := &Store{
		docs:   docs,
		codec:  &codec.JSON{},
		name:   "job-states",
		ns:     "default",
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Initialize creates the backing document if it does not exist yet.
// Call it once at process startup, before any other operation. It is
// idempotent: when the document already exists nothing is written.
//
// Any read failure other than not-found is returned as is; it means the
// backend or its credentials are broken, not that data is absent.
func (s *Store) Initialize(ctx context.Context) error {
	_, err := s.docs.Read(ctx, s.name, s.ns)
	if err == nil {
		return nil
	}
	if !errors.Is(err, steward.ErrDocumentNotFound) {
		return fmt.Errorf("jobstate: initialize: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.docs.Create(ctx, docstore.New(s.name, s.ns))
	if err != nil {
		// Another replica created it between our read and create.
		if errors.Is(err, steward.ErrDocumentExists) {
			return nil
		}
		return fmt.Errorf("jobstate: initialize: %w", err)
	}
	s.logger.Info("created job-state document",
		slog.String("document", s.name),
		slog.String("namespace", s.ns))
	return nil
}

// Save stores the state under its JobID, overwriting any previous value.
// The document is re-read before the write so the mutation applies to
// the freshest view, then written back in full.
func (s *Store) Save(ctx context.Context, st *JobState) error {
	if st == nil || st.JobID == "" {
		return fmt.Errorf("jobstate: save: %w", steward.ErrJobNotFound)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.docs.Read(ctx, s.name, s.ns)
	if err != nil {
		return fmt.Errorf("jobstate: save %s: %w", st.JobID, err)
	}

	raw, err := s.codec.Encode(st)
	if err != nil {
		return fmt.Errorf("jobstate: encode %s: %w", st.JobID, err)
	}
	doc.Data[st.JobID] = string(raw)

	if _, err := s.docs.Replace(ctx, doc); err != nil {
		return fmt.Errorf("jobstate: save %s: %w", st.JobID, err)
	}

	if s.emitter != nil {
		s.emitter.EmitStateSaved(ctx, st)
	}
	return nil
}

// Get returns the state stored under jobID. The second return value is
// false when no state exists for the key; that is not an error. A value
// that exists but cannot be decoded returns an error wrapping
// steward.ErrStateCorrupt, which is distinct from absence.
func (s *Store) Get(ctx context.Context, jobID string) (*JobState, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.docs.Read(ctx, s.name, s.ns)
	if err != nil {
		return nil, false, fmt.Errorf("jobstate: get %s: %w", jobID, err)
	}
	return s.decode(doc, jobID)
}

// Delete removes the state stored under jobID and writes the document
// back. When the key is absent no write happens at all, so deleting
// twice is a cheap no-op.
func (s *Store) Delete(ctx context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.docs.Read(ctx, s.name, s.ns)
	if err != nil {
		return fmt.Errorf("jobstate: delete %s: %w", jobID, err)
	}

	if _, ok := doc.Data[jobID]; !ok {
		return nil
	}
	delete(doc.Data, jobID)

	if _, err := s.docs.Replace(ctx, doc); err != nil {
		return fmt.Errorf("jobstate: delete %s: %w", jobID, err)
	}

	if s.emitter != nil {
		s.emitter.EmitStateDeleted(ctx, jobID)
	}
	return nil
}

// List returns every stored state, in sorted key order. The document is
// read exactly once. One undecodable entry fails the whole listing with
// an error wrapping steward.ErrStateCorrupt; a corrupt value is a bug to
// surface, not a state to skip past.
func (s *Store) List(ctx context.Context) ([]*JobState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.docs.Read(ctx, s.name, s.ns)
	if err != nil {
		return nil, fmt.Errorf("jobstate: list: %w", err)
	}

	keys := make([]string, 0, len(doc.Data))
	for k := range doc.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	states := make([]*JobState, 0, len(keys))
	for _, k := range keys {
		st, _, decErr := s.decode(doc, k)
		if decErr != nil {
			return nil, decErr
		}
		states = append(states, st)
	}
	return states, nil
}

// Document returns the identity of the backing document.
func (s *Store) Document() (name, namespace string) {
	return s.name, s.ns
}

// Close closes the underlying document store.
func (s *Store) Close() error {
	return s.docs.Close()
}

// decode extracts and deserializes one entry from an already-read
// document. Callers hold the mutex.
func (s *Store) decode(doc *docstore.Document, jobID string) (*JobState, bool, error) {
	raw, ok := doc.Data[jobID]
	if !ok {
		return nil, false, nil
	}

	var st JobState
	if err := s.codec.Decode([]byte(raw), &st); err != nil {
		return nil, false, fmt.Errorf("jobstate: decode %s: %w: %w", jobID, steward.ErrStateCorrupt, err)
	}
	return &st, true, nil
}
