// Package studio runs the clip generation and reference capture pipelines for owner scopes
// and keeps each scope's in-memory library consistent with the ledgers and the blob store.
package studio

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/book-expert/logger"
	"github.com/book-expert/voice-studio/internal/audio"
	"github.com/book-expert/voice-studio/internal/core"
	"github.com/book-expert/voice-studio/internal/ledger"
	"github.com/book-expert/voice-studio/internal/library"
	"github.com/book-expert/voice-studio/internal/metrics"
	"github.com/book-expert/voice-studio/internal/text"
)

// DefaultScope is used when a caller has no authenticated identity.
const DefaultScope = "local_user"

var (
	// ErrScopeRequired is returned for calls without an owner scope.
	ErrScopeRequired = errors.New("owner scope is required")
	// ErrMissingDependency is returned by New when a required collaborator is nil.
	ErrMissingDependency = errors.New("missing studio dependency")
)

// Limits bound user input and background work.
type Limits struct {
	MaxTextLength     int
	DisplayTextLength int
	HydrationWorkers  int
}

// Dependencies are the collaborators of a Studio. Generator and Analyzer may be nil for a
// studio that only browses and manages existing artifacts.
type Dependencies struct {
	Blobs     core.BlobStore
	Snapshots ledger.SnapshotStore
	Generator core.SpeechGenerator
	Analyzer  core.VoiceAnalyzer
	Logger    *logger.Logger
	Metrics   *metrics.Metrics
	Format    audio.Format
	Limits    Limits
	Clock     *core.Clock
}

// Studio owns the live libraries of every active owner scope.
type Studio struct {
	blobs      core.BlobStore
	generator  core.SpeechGenerator
	analyzer   core.VoiceAnalyzer
	log        *logger.Logger
	metrics    *metrics.Metrics
	format     audio.Format
	limits     Limits
	clock      *core.Clock
	normalizer *text.Normalizer

	registry *library.Registry
	clips    *library.Hydrator[core.GeneratedClip]
	voices   *library.Hydrator[core.ReferenceVoice]

	mu       sync.Mutex
	sessions map[string]*session
}

// session is the hydrated library of one owner scope. mu serializes every mutation so each
// ledger save carries the full current collection. ready is closed once hydration ends; err
// is its outcome and is written before ready closes.
type session struct {
	mu     sync.Mutex
	clips  []library.Entry[core.GeneratedClip]
	voices []library.Entry[core.ReferenceVoice]
	closed bool

	ready chan struct{}
	err   error
}

// New builds a Studio from explicit dependencies.
func New(deps Dependencies) (*Studio, error) {
	if deps.Blobs == nil || deps.Snapshots == nil || deps.Logger == nil {
		return nil, fmt.Errorf("%w: blobs, snapshots and logger are required", ErrMissingDependency)
	}

	format := deps.Format
	if format == (audio.Format{}) {
		format = audio.DefaultFormat()
	}

	err := format.Validate()
	if err != nil {
		return nil, fmt.Errorf("failed to configure studio: %w", err)
	}

	limits := deps.Limits
	if limits.MaxTextLength <= 0 {
		limits.MaxTextLength = text.DefaultMaxLength
	}

	if limits.DisplayTextLength <= 0 {
		limits.DisplayTextLength = text.DefaultDisplayLength
	}

	clock := deps.Clock
	if clock == nil {
		clock = core.NewClock(nil)
	}

	registry := library.NewRegistry(deps.Metrics.HandlesChanged)
	options := library.Options{
		Workers: limits.HydrationWorkers,
		OnHydrated: func(kind core.Kind, state library.State) {
			deps.Metrics.RecordHydrated(string(kind), string(state))
		},
	}

	return &Studio{
		blobs:      deps.Blobs,
		generator:  deps.Generator,
		analyzer:   deps.Analyzer,
		log:        deps.Logger,
		metrics:    deps.Metrics,
		format:     format,
		limits:     limits,
		clock:      clock,
		normalizer: text.NewNormalizer(),
		registry:   registry,
		clips: library.NewHydrator(
			ledger.New[core.GeneratedClip](deps.Snapshots, deps.Logger), deps.Blobs, registry, deps.Logger, options),
		voices: library.NewHydrator(
			ledger.New[core.ReferenceVoice](deps.Snapshots, deps.Logger), deps.Blobs, registry, deps.Logger, options),
		sessions: make(map[string]*session),
	}, nil
}

// Activate loads and hydrates both collections of scope. An already active scope is torn
// down first so every record gets a fresh handle.
func (s *Studio) Activate(ctx context.Context, scope string) error {
	err := checkScope(scope)
	if err != nil {
		return err
	}

	s.Logout(scope)

	sess, err := s.lock(ctx, scope)
	if err != nil {
		return err
	}

	sess.mu.Unlock()

	return nil
}

// Clips returns the generated clips of scope, newest first.
func (s *Studio) Clips(ctx context.Context, scope string) ([]library.Entry[core.GeneratedClip], error) {
	sess, err := s.lock(ctx, scope)
	if err != nil {
		return nil, err
	}
	defer sess.mu.Unlock()

	return slices.Clone(sess.clips), nil
}

// Voices returns the reference voices of scope in insertion order.
func (s *Studio) Voices(ctx context.Context, scope string) ([]library.Entry[core.ReferenceVoice], error) {
	sess, err := s.lock(ctx, scope)
	if err != nil {
		return nil, err
	}
	defer sess.mu.Unlock()

	return slices.Clone(sess.voices), nil
}

// Logout releases the handles of scope's current library and forgets it. Persisted data is
// untouched. An in-flight mutation of the scope finishes first, and a library hydrated after
// the teardown keeps its handles. It returns the number of handles released.
func (s *Studio) Logout(scope string) int {
	s.mu.Lock()
	sess, ok := s.sessions[scope]
	s.mu.Unlock()

	if !ok {
		return 0
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.closed {
		return 0
	}

	// Unpublished only under sess.mu, so no new library of the scope hydrates while this one
	// can still write its ledger.
	s.mu.Lock()
	if s.sessions[scope] == sess {
		delete(s.sessions, scope)
	}
	s.mu.Unlock()

	released := s.teardown(sess)

	s.log.Info("Scope %s torn down, %d handles released", scope, released)

	return released
}

// Close tears down every active scope, then sweeps any handle still registered for them.
func (s *Studio) Close() {
	s.mu.Lock()
	scopes := make([]string, 0, len(s.sessions))

	for scope := range s.sessions {
		scopes = append(scopes, scope)
	}
	s.mu.Unlock()

	for _, scope := range scopes {
		s.Logout(scope)

		stray := s.registry.ReleaseAll(scope)
		if stray > 0 {
			s.log.Warn("Released %d stray handles of scope %s", stray, scope)
		}
	}
}

// teardown releases the handles of the session's own entries. Caller holds sess.mu.
func (s *Studio) teardown(sess *session) int {
	released := s.clips.ReleaseEntries(sess.clips) + s.voices.ReleaseEntries(sess.voices)

	sess.clips = nil
	sess.voices = nil
	sess.closed = true

	return released
}

// session returns the library of scope, hydrating it on first use. s.mu only guards the
// map: hydration runs outside it, so one scope's cold start never delays another scope.
// Concurrent callers for the same scope wait for the first caller's hydration. The returned
// session may have been closed meanwhile; lock handles that.
func (s *Studio) session(ctx context.Context, scope string) (*session, error) {
	err := checkScope(scope)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	sess, ok := s.sessions[scope]

	if !ok {
		sess = &session{ready: make(chan struct{})}
		s.sessions[scope] = sess
	}
	s.mu.Unlock()

	if !ok {
		s.hydrate(ctx, scope, sess)

		if sess.err != nil {
			return nil, sess.err
		}

		return sess, nil
	}

	select {
	case <-sess.ready:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if sess.err != nil {
		// The hydrating caller failed, possibly on its own context. Retry on ours.
		return s.session(ctx, scope)
	}

	return sess, nil
}

// hydrate resolves both collections of scope into sess and closes sess.ready. A failed
// session is removed from the map so the next caller starts over.
func (s *Studio) hydrate(ctx context.Context, scope string, sess *session) {
	defer close(sess.ready)

	clips, err := s.clips.Hydrate(ctx, scope)
	if err != nil {
		s.abandon(scope, sess, fmt.Errorf("failed to hydrate clips for scope %s: %w", scope, err))

		return
	}

	voices, err := s.voices.Hydrate(ctx, scope)
	if err != nil {
		s.clips.ReleaseEntries(clips)
		s.abandon(scope, sess, fmt.Errorf("failed to hydrate voices for scope %s: %w", scope, err))

		return
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.closed {
		s.clips.ReleaseEntries(clips)
		s.voices.ReleaseEntries(voices)
		s.log.Info("Scope %s logged out during hydration, handles released", scope)

		return
	}

	sess.clips = clips
	sess.voices = voices

	s.log.Info("Scope %s activated: %d clips (%d orphaned), %d voices (%d orphaned)",
		scope, len(clips), countOrphans(clips), len(voices), countOrphans(voices))
}

func (s *Studio) abandon(scope string, sess *session, err error) {
	sess.err = err

	s.mu.Lock()
	if s.sessions[scope] == sess {
		delete(s.sessions, scope)
	}
	s.mu.Unlock()
}

// lock acquires the live session of scope for reading or mutation.
func (s *Studio) lock(ctx context.Context, scope string) (*session, error) {
	sess, err := s.session(ctx, scope)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()

	if sess.closed {
		sess.mu.Unlock()

		return s.lock(ctx, scope)
	}

	return sess, nil
}

func checkScope(scope string) error {
	if scope == "" {
		return ErrScopeRequired
	}

	return core.ValidateScope(scope)
}

func countOrphans[R core.Record](entries []library.Entry[R]) int {
	count := 0

	for _, entry := range entries {
		if entry.Orphaned() {
			count++
		}
	}

	return count
}

func indexOf[R core.Record](entries []library.Entry[R], id string) int {
	return slices.IndexFunc(entries, func(entry library.Entry[R]) bool {
		return entry.Record.RecordID() == id
	})
}
