package studio_test

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/voice-studio/internal/audio"
	"github.com/book-expert/voice-studio/internal/capture"
	"github.com/book-expert/voice-studio/internal/core"
	"github.com/book-expert/voice-studio/internal/ledger"
	"github.com/book-expert/voice-studio/internal/library"
	"github.com/book-expert/voice-studio/internal/objectstore"
	"github.com/book-expert/voice-studio/internal/studio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testScope = "alice"

var (
	errMockBackend = errors.New("mock backend error")
	errMockStorage = errors.New("mock storage error")
)

// mockGenerator returns a fixed payload, or fails when shouldFail is set. When gate is set,
// each call signals started and then waits for gate to close.
type mockGenerator struct {
	mu         sync.Mutex
	payload    string
	shouldFail bool
	requests   []core.SpeechRequest

	started chan struct{}
	gate    chan struct{}
}

func (m *mockGenerator) GenerateSpeech(_ context.Context, req core.SpeechRequest) (string, error) {
	if m.gate != nil {
		m.started <- struct{}{}
		<-m.gate
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, req)

	if m.shouldFail {
		return "", errMockBackend
	}

	return m.payload, nil
}

func (m *mockGenerator) lastRequest() core.SpeechRequest {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.requests[len(m.requests)-1]
}

// mockAnalyzer returns a fixed analysis, or fails when shouldFail is set.
type mockAnalyzer struct {
	analysis   core.VoiceAnalysis
	shouldFail bool
	calls      int
}

func (m *mockAnalyzer) AnalyzeVoice(context.Context, []byte, string) (core.VoiceAnalysis, error) {
	m.calls++

	if m.shouldFail {
		return core.VoiceAnalysis{}, errMockBackend
	}

	return m.analysis, nil
}

// switchableSnapshots wraps a snapshot store and fails writes when failWrites is set.
type switchableSnapshots struct {
	ledger.SnapshotStore

	mu         sync.Mutex
	failWrites bool
	failKind   core.Kind
}

func (s *switchableSnapshots) WriteSnapshot(ctx context.Context, scope string, kind core.Kind, data []byte) error {
	s.mu.Lock()
	fail := s.failWrites || kind == s.failKind
	s.mu.Unlock()

	if fail {
		return errMockStorage
	}

	return s.SnapshotStore.WriteSnapshot(ctx, scope, kind, data)
}

func (s *switchableSnapshots) setFailWrites(fail bool) {
	s.mu.Lock()
	s.failWrites = fail
	s.mu.Unlock()
}

func (s *switchableSnapshots) setFailKind(kind core.Kind) {
	s.mu.Lock()
	s.failKind = kind
	s.mu.Unlock()
}

// gatedBlobs blocks Get for keys under prefix until gate closes, signalling entered once.
type gatedBlobs struct {
	core.BlobStore

	prefix  string
	entered chan struct{}
	gate    chan struct{}
}

func (g *gatedBlobs) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if strings.HasPrefix(key, g.prefix) {
		select {
		case g.entered <- struct{}{}:
		default:
		}

		<-g.gate
	}

	return g.BlobStore.Get(ctx, key)
}

type fixture struct {
	studio    *studio.Studio
	blobs     *objectstore.FileStore
	snapshots *switchableSnapshots
	generator *mockGenerator
	analyzer  *mockAnalyzer
	log       *logger.Logger
}

func createTestLogger(t *testing.T) *logger.Logger {
	t.Helper()

	log, err := logger.New(t.TempDir(), "studio-test.log")
	require.NoError(t, err)
	t.Cleanup(func() { _ = log.Close() })

	return log
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	root := t.TempDir()
	log := createTestLogger(t)

	blobs, err := objectstore.NewFileStore(filepath.Join(root, "blobs"))
	require.NoError(t, err)

	sqliteStore, err := ledger.OpenSQLite(filepath.Join(root, "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqliteStore.Close() })

	fx := &fixture{
		blobs:     blobs,
		snapshots: &switchableSnapshots{SnapshotStore: sqliteStore},
		generator: &mockGenerator{payload: audio.EncodePCM(make([]byte, 48000))},
		analyzer:  &mockAnalyzer{analysis: core.VoiceAnalysis{Description: "low, calm", Gender: core.GenderMale}},
		log:       log,
	}

	fx.studio = fx.newStudio(t)

	return fx
}

// newStudio builds a second studio over the same stores, as a restarted process would.
func (fx *fixture) newStudio(t *testing.T) *studio.Studio {
	t.Helper()

	return fx.newStudioWith(t, fx.blobs)
}

func (fx *fixture) newStudioWith(t *testing.T, blobs core.BlobStore) *studio.Studio {
	t.Helper()

	s, err := studio.New(studio.Dependencies{
		Blobs:     blobs,
		Snapshots: fx.snapshots,
		Generator: fx.generator,
		Analyzer:  fx.analyzer,
		Logger:    fx.log,
	})
	require.NoError(t, err)
	t.Cleanup(s.Close)

	return s
}

func (fx *fixture) savedClips(t *testing.T) []core.GeneratedClip {
	t.Helper()

	clips, err := ledger.New[core.GeneratedClip](fx.snapshots, fx.log).Load(context.Background(), testScope)
	require.NoError(t, err)

	return clips
}

func (fx *fixture) savedVoices(t *testing.T) []core.ReferenceVoice {
	t.Helper()

	voices, err := ledger.New[core.ReferenceVoice](fx.snapshots, fx.log).Load(context.Background(), testScope)
	require.NoError(t, err)

	return voices
}

func recordingChunks(total, chunkSize int) <-chan []byte {
	chunks := make(chan []byte, total/chunkSize+1)

	for sent := 0; sent < total; sent += chunkSize {
		chunks <- make([]byte, min(chunkSize, total-sent))
	}

	close(chunks)

	return chunks
}

func TestNew_RequiresDependencies(t *testing.T) {
	t.Parallel()

	_, err := studio.New(studio.Dependencies{})
	require.ErrorIs(t, err, studio.ErrMissingDependency)
}

func TestScenarioA_GenerateStoresWavAndPrependsClip(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	ctx := context.Background()

	first, err := fx.studio.Generate(ctx, testScope, studio.GenerateRequest{Text: "First", Voice: "Zephyr"})
	require.NoError(t, err)

	entry, err := fx.studio.Generate(ctx, testScope, studio.GenerateRequest{Text: "Hello", Voice: "Zephyr"})
	require.NoError(t, err)
	assert.Equal(t, "Hello", entry.Record.Text)
	assert.Equal(t, "Zephyr", entry.Record.VoiceName)
	assert.Equal(t, testScope, entry.Record.OwnerScope)
	assert.True(t, strings.HasPrefix(entry.Record.ID, core.ClipIDPrefix+"-"))
	assert.Greater(t, entry.Record.CreatedAt, first.Record.CreatedAt)
	assert.Equal(t, core.VoiceZephyr, fx.generator.lastRequest().Voice)

	clips, err := fx.studio.Clips(ctx, testScope)
	require.NoError(t, err)
	require.Len(t, clips, 2)
	assert.Equal(t, entry.Record.ID, clips[0].Record.ID, "newest clip is at the head")

	stored, found, err := fx.blobs.Get(ctx, core.BlobKey(testScope, entry.Record.ID))
	require.NoError(t, err)
	require.True(t, found)
	assert.Len(t, stored, 48000+audio.HeaderSize)

	file, err := fx.studio.Download(ctx, testScope, core.KindGeneratedClip, entry.Record.ID)
	require.NoError(t, err)
	assert.Equal(t, "voxgemini-"+entry.Record.ID+".wav", file.FileName)
	assert.Equal(t, "audio/wav", file.ContentType)

	header, err := audio.ParseHeader(file.Data)
	require.NoError(t, err)
	assert.Equal(t, uint32(24000), header.SampleRate)
	assert.Equal(t, uint16(1), header.NumChannels)
	assert.Equal(t, uint16(16), header.BitsPerSample)

	assert.Equal(t, library.DehydrateAll(clips), fx.savedClips(t))
}

func TestScenarioB_RecordReferenceAppendsVoice(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	ctx := context.Background()

	existing, err := fx.studio.AddReference(ctx, testScope, studio.Upload{Name: "Upload", MIMEType: "audio/wav", Data: []byte("RIFF")})
	require.NoError(t, err)

	// Three seconds of 16 kHz 16-bit mono audio, streamed in 100 ms chunks.
	chunks := recordingChunks(3*16000*2, 3200)

	entry, err := fx.studio.RecordReference(ctx, testScope, capture.Recorder{}, chunks)
	require.NoError(t, err)
	assert.Equal(t, "low, calm", entry.Record.Description)
	assert.Equal(t, core.GenderMale, entry.Record.Gender)
	assert.True(t, strings.HasPrefix(entry.Record.Name, "Recording_"))
	assert.Equal(t, "audio/webm", entry.Record.MIMEType)
	assert.Equal(t, library.StateLive, entry.State())
	assert.Equal(t, 3*16000*2, entry.Handle.Size())

	voices, err := fx.studio.Voices(ctx, testScope)
	require.NoError(t, err)
	require.Len(t, voices, 2)
	assert.Equal(t, existing.Record.ID, voices[0].Record.ID)
	assert.Equal(t, entry.Record.ID, voices[1].Record.ID, "new voice is appended at the tail")

	assert.Equal(t, library.DehydrateAll(voices), fx.savedVoices(t))
}

func TestScenarioC_DeleteClipRemovesBlobAndRecord(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	ctx := context.Background()

	keep, err := fx.studio.Generate(ctx, testScope, studio.GenerateRequest{Text: "Keep"})
	require.NoError(t, err)

	doomed, err := fx.studio.Generate(ctx, testScope, studio.GenerateRequest{Text: "Delete me"})
	require.NoError(t, err)

	require.NoError(t, fx.studio.DeleteClip(ctx, testScope, doomed.Record.ID))

	_, found, err := fx.blobs.Get(ctx, core.BlobKey(testScope, doomed.Record.ID))
	require.NoError(t, err)
	assert.False(t, found)

	assert.False(t, doomed.Handle.Valid(), "handle is released on delete")

	saved := fx.savedClips(t)
	require.Len(t, saved, 1)
	assert.Equal(t, keep.Record.ID, saved[0].ID)

	err = fx.studio.DeleteClip(ctx, testScope, doomed.Record.ID)
	require.ErrorIs(t, err, core.ErrRecordNotFound)
}

func TestScenarioD_MissingBlobHydratesAsOrphan(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	ctx := context.Background()

	live, err := fx.studio.Generate(ctx, testScope, studio.GenerateRequest{Text: "Live"})
	require.NoError(t, err)

	orphan := core.GeneratedClip{ID: "clip-1-deadbeef", OwnerScope: testScope, CreatedAt: 1, Text: "Gone", VoiceName: "Puck"}
	clipLedger := ledger.New[core.GeneratedClip](fx.snapshots, fx.log)
	require.NoError(t, clipLedger.Save(ctx, testScope, []core.GeneratedClip{live.Record, orphan}))

	restarted := fx.newStudio(t)
	require.NoError(t, restarted.Activate(ctx, testScope))

	clips, err := restarted.Clips(ctx, testScope)
	require.NoError(t, err)
	require.Len(t, clips, 2)
	assert.Equal(t, library.StateLive, clips[0].State())
	assert.Equal(t, library.StateOrphaned, clips[1].State())
	assert.Equal(t, orphan, clips[1].Record)

	_, err = restarted.Download(ctx, testScope, core.KindGeneratedClip, orphan.ID)
	require.ErrorIs(t, err, core.ErrOrphaned)
}

func TestGenerate_TextValidation(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	ctx := context.Background()

	_, err := fx.studio.Generate(ctx, testScope, studio.GenerateRequest{Text: "  \n "})
	require.ErrorIs(t, err, studio.ErrTextEmpty)

	_, err = fx.studio.Generate(ctx, testScope, studio.GenerateRequest{Text: strings.Repeat("a", 5001)})
	require.ErrorIs(t, err, studio.ErrTextTooLong)

	_, err = fx.studio.Generate(ctx, testScope, studio.GenerateRequest{Text: "Hi", Voice: "Nobody"})
	require.ErrorIs(t, err, studio.ErrUnknownVoice)

	assert.Empty(t, fx.generator.requests)
}

func TestGenerate_DisplayTextIsTruncated(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	long := strings.Repeat("word ", 20)

	entry, err := fx.studio.Generate(context.Background(), testScope, studio.GenerateRequest{Text: long})
	require.NoError(t, err)
	assert.Equal(t, strings.TrimSpace(long)[:50]+"...", entry.Record.Text)
	assert.Equal(t, strings.TrimSpace(long), fx.generator.lastRequest().Text)
}

func TestGenerate_BackendFailurePersistsNothing(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	fx.generator.shouldFail = true

	_, err := fx.studio.Generate(context.Background(), testScope, studio.GenerateRequest{Text: "Hello"})
	require.ErrorIs(t, err, core.ErrBackendFailure)
	require.ErrorIs(t, err, errMockBackend)

	clips, err := fx.studio.Clips(context.Background(), testScope)
	require.NoError(t, err)
	assert.Empty(t, clips)
	assert.Empty(t, fx.savedClips(t))
}

func TestGenerate_MalformedPayloadPersistsNothing(t *testing.T) {
	t.Parallel()

	for _, payload := range []string{"not base64!", audio.EncodePCM([]byte{1, 2, 3})} {
		fx := newFixture(t)
		fx.generator.payload = payload

		_, err := fx.studio.Generate(context.Background(), testScope, studio.GenerateRequest{Text: "Hello"})
		require.ErrorIs(t, err, audio.ErrMalformedPayload)

		keys, err := fx.blobs.List(context.Background(), core.ScopePrefix(testScope))
		require.NoError(t, err)
		assert.Empty(t, keys)
	}
}

func TestGenerate_EmptyPayloadIsBackendFailure(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	fx.generator.payload = ""

	_, err := fx.studio.Generate(context.Background(), testScope, studio.GenerateRequest{Text: "Hello"})
	require.ErrorIs(t, err, core.ErrBackendFailure)
}

func TestGenerate_LedgerFailureDiscardsBlob(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	ctx := context.Background()

	require.NoError(t, fx.studio.Activate(ctx, testScope))
	fx.snapshots.setFailWrites(true)

	_, err := fx.studio.Generate(ctx, testScope, studio.GenerateRequest{Text: "Hello"})
	require.ErrorIs(t, err, core.ErrStorageFailure)

	keys, err := fx.blobs.List(ctx, core.ScopePrefix(testScope))
	require.NoError(t, err)
	assert.Empty(t, keys)

	clips, err := fx.studio.Clips(ctx, testScope)
	require.NoError(t, err)
	assert.Empty(t, clips)
}

func TestGenerate_WithReferenceVoice(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	ctx := context.Background()

	voice, err := fx.studio.AddReference(ctx, testScope, studio.Upload{Name: "Dad", MIMEType: "audio/webm", Data: []byte("webm")})
	require.NoError(t, err)

	entry, err := fx.studio.Generate(ctx, testScope, studio.GenerateRequest{
		Text:             "Bedtime story",
		Voice:            "Puck",
		ReferenceVoiceID: voice.Record.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, "Personal (Dad)", entry.Record.VoiceName)

	request := fx.generator.lastRequest()
	assert.Equal(t, core.VoiceFenrir, request.Voice)
	assert.Equal(t, "low, calm", request.Style)

	_, err = fx.studio.Generate(ctx, testScope, studio.GenerateRequest{Text: "Hi", ReferenceVoiceID: "voice-missing"})
	require.ErrorIs(t, err, core.ErrRecordNotFound)
}

func TestAddReference_AnalysisFailureDiscardsCapture(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	fx.analyzer.shouldFail = true

	_, err := fx.studio.AddReference(context.Background(), testScope, studio.Upload{Name: "x", Data: []byte("audio")})
	require.ErrorIs(t, err, core.ErrBackendFailure)

	keys, err := fx.blobs.List(context.Background(), core.ScopePrefix(testScope))
	require.NoError(t, err)
	assert.Empty(t, keys)
	assert.Empty(t, fx.savedVoices(t))

	_, err = fx.studio.AddReference(context.Background(), testScope, studio.Upload{Name: "x"})
	require.ErrorIs(t, err, studio.ErrEmptyReference)
}

func TestRecordReference_CancelSkipsPipeline(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := fx.studio.RecordReference(ctx, testScope, capture.Recorder{}, make(chan []byte))
	require.ErrorIs(t, err, capture.ErrCancelled)
	assert.Zero(t, fx.analyzer.calls)
	assert.Empty(t, studio.Notification(err))
}

func TestEditVoice(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	ctx := context.Background()

	voice, err := fx.studio.AddReference(ctx, testScope, studio.Upload{Name: "take.webm", MIMEType: "audio/webm", Data: []byte("webm")})
	require.NoError(t, err)

	edited, err := fx.studio.EditVoice(ctx, testScope, voice.Record.ID, "  Narrator ", "Warm and slow")
	require.NoError(t, err)
	assert.Equal(t, "Narrator", edited.Record.Name)
	assert.Equal(t, "Warm and slow", edited.Record.Description)
	assert.Equal(t, voice.Record.CreatedAt, edited.Record.CreatedAt)
	assert.Same(t, voice.Handle, edited.Handle)

	saved := fx.savedVoices(t)
	require.Len(t, saved, 1)
	assert.Equal(t, edited.Record, saved[0])

	_, err = fx.studio.EditVoice(ctx, testScope, voice.Record.ID, " ", "")
	require.ErrorIs(t, err, studio.ErrNameRequired)

	_, err = fx.studio.EditVoice(ctx, testScope, "voice-missing", "Name", "")
	require.ErrorIs(t, err, core.ErrRecordNotFound)

	file, err := fx.studio.Download(ctx, testScope, core.KindReferenceVoice, voice.Record.ID)
	require.NoError(t, err)
	assert.Equal(t, "Narrator.webm", file.FileName)
	assert.Equal(t, "audio/webm", file.ContentType)
	assert.Equal(t, []byte("webm"), file.Data)
}

func TestDeleteVoice(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	ctx := context.Background()

	voice, err := fx.studio.AddReference(ctx, testScope, studio.Upload{Name: "x", Data: []byte("audio")})
	require.NoError(t, err)

	require.NoError(t, fx.studio.DeleteVoice(ctx, testScope, voice.Record.ID))
	assert.False(t, voice.Handle.Valid())
	assert.Empty(t, fx.savedVoices(t))

	_, found, err := fx.blobs.Get(ctx, core.BlobKey(testScope, voice.Record.ID))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestDelete_LedgerFailureKeepsEverything(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	ctx := context.Background()

	entry, err := fx.studio.Generate(ctx, testScope, studio.GenerateRequest{Text: "Hello"})
	require.NoError(t, err)

	fx.snapshots.setFailWrites(true)

	err = fx.studio.DeleteClip(ctx, testScope, entry.Record.ID)
	require.ErrorIs(t, err, core.ErrStorageFailure)

	assert.True(t, entry.Handle.Valid())

	_, found, err := fx.blobs.Get(ctx, core.BlobKey(testScope, entry.Record.ID))
	require.NoError(t, err)
	assert.True(t, found)
}

func TestLogout_ReleasesHandlesAndRehydrates(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	ctx := context.Background()

	clip, err := fx.studio.Generate(ctx, testScope, studio.GenerateRequest{Text: "Hello"})
	require.NoError(t, err)

	voice, err := fx.studio.AddReference(ctx, testScope, studio.Upload{Name: "x", Data: []byte("audio")})
	require.NoError(t, err)

	assert.Equal(t, 2, fx.studio.Logout(testScope))
	assert.False(t, clip.Handle.Valid())
	assert.False(t, voice.Handle.Valid())
	assert.Zero(t, fx.studio.Logout(testScope))

	clips, err := fx.studio.Clips(ctx, testScope)
	require.NoError(t, err)
	require.Len(t, clips, 1)
	assert.Equal(t, clip.Record, clips[0].Record)
	assert.True(t, clips[0].Handle.Valid())
	assert.NotEqual(t, clip.Handle.URL(), clips[0].Handle.URL())
}

func TestScopesAreIsolated(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	ctx := context.Background()

	_, err := fx.studio.Generate(ctx, testScope, studio.GenerateRequest{Text: "Alice"})
	require.NoError(t, err)

	bobClips, err := fx.studio.Clips(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, bobClips)

	_, err = fx.studio.Clips(ctx, "")
	require.ErrorIs(t, err, studio.ErrScopeRequired)

	_, err = fx.studio.Generate(ctx, "alice/team", studio.GenerateRequest{Text: "Nested"})
	require.ErrorIs(t, err, core.ErrInvalidScope)
	assert.Len(t, fx.generator.requests, 1, "nothing reaches the backend for an invalid scope")

	_, err = fx.studio.AddReference(ctx, "alice/team", studio.Upload{Name: "Nested", Data: []byte("audio")})
	require.ErrorIs(t, err, core.ErrInvalidScope)
	assert.Zero(t, fx.analyzer.calls)
}

func TestLogout_DuringGenerateKeepsLaterLibrary(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	ctx := context.Background()

	first, err := fx.studio.Generate(ctx, testScope, studio.GenerateRequest{Text: "First"})
	require.NoError(t, err)

	fx.generator.started = make(chan struct{}, 1)
	fx.generator.gate = make(chan struct{})

	generated := make(chan error, 1)

	go func() {
		_, generateErr := fx.studio.Generate(ctx, testScope, studio.GenerateRequest{Text: "Second"})
		generated <- generateErr
	}()

	<-fx.generator.started

	loggedOut := make(chan int, 1)

	go func() { loggedOut <- fx.studio.Logout(testScope) }()

	listed := make(chan error, 1)

	go func() {
		_, listErr := fx.studio.Clips(ctx, testScope)
		listed <- listErr
	}()

	time.Sleep(20 * time.Millisecond)
	close(fx.generator.gate)

	require.NoError(t, <-generated)
	require.NoError(t, <-listed)
	assert.Positive(t, <-loggedOut)

	clips, err := fx.studio.Clips(ctx, testScope)
	require.NoError(t, err)
	require.Len(t, clips, 2, "the clip stored during logout is in the next library")
	assert.Equal(t, first.Record.ID, clips[1].Record.ID)

	for _, entry := range clips {
		assert.Equal(t, library.StateLive, entry.State())

		_, downloadErr := fx.studio.Download(ctx, testScope, core.KindGeneratedClip, entry.Record.ID)
		require.NoError(t, downloadErr)
	}

	assert.Len(t, fx.savedClips(t), 2)
}

func TestHydration_DoesNotBlockOtherScopes(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	ctx := context.Background()

	_, err := fx.studio.Generate(ctx, "slow", studio.GenerateRequest{Text: "Cold start"})
	require.NoError(t, err)

	blobs := &gatedBlobs{
		BlobStore: fx.blobs,
		prefix:    core.ScopePrefix("slow"),
		entered:   make(chan struct{}, 1),
		gate:      make(chan struct{}),
	}
	restarted := fx.newStudioWith(t, blobs)

	slow := make(chan []library.Entry[core.GeneratedClip], 1)

	go func() {
		clips, clipsErr := restarted.Clips(ctx, "slow")
		assert.NoError(t, clipsErr)
		slow <- clips
	}()

	<-blobs.entered

	fast := make(chan error, 1)

	go func() {
		_, clipsErr := restarted.Clips(ctx, "fast")
		fast <- clipsErr
	}()

	select {
	case fastErr := <-fast:
		require.NoError(t, fastErr)
	case <-time.After(2 * time.Second):
		close(blobs.gate)
		t.Fatal("another scope waited for a hydration in progress")
	}

	waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()

	_, err = restarted.Clips(waitCtx, "slow")
	require.ErrorIs(t, err, context.DeadlineExceeded, "callers of the same scope wait for its hydration")

	close(blobs.gate)

	clips := <-slow
	require.Len(t, clips, 1)
	assert.Equal(t, library.StateLive, clips[0].State())
}

func TestReconcile(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	ctx := context.Background()

	live, err := fx.studio.Generate(ctx, testScope, studio.GenerateRequest{Text: "Live"})
	require.NoError(t, err)

	orphan, err := fx.studio.Generate(ctx, testScope, studio.GenerateRequest{Text: "Orphan"})
	require.NoError(t, err)

	require.NoError(t, fx.blobs.Delete(ctx, core.BlobKey(testScope, orphan.Record.ID)))
	require.NoError(t, fx.blobs.Put(ctx, core.BlobKey(testScope, "clip-9-leaked00"), []byte("leak")))
	require.NoError(t, fx.blobs.Put(ctx, core.BlobKey("bob", "clip-9-bobs0000"), []byte("bob")))

	report, err := fx.studio.Reconcile(ctx, testScope, false)
	require.NoError(t, err)
	assert.Equal(t, []string{orphan.Record.ID}, report.Orphans)
	assert.Equal(t, []string{"clip-9-leaked00"}, report.LeakedRemoved)
	assert.Empty(t, report.PrunedOrphans)

	_, found, err := fx.blobs.Get(ctx, core.BlobKey("bob", "clip-9-bobs0000"))
	require.NoError(t, err)
	assert.True(t, found, "other scopes are untouched")

	report, err = fx.studio.Reconcile(ctx, testScope, true)
	require.NoError(t, err)
	assert.Equal(t, []string{orphan.Record.ID}, report.PrunedOrphans)
	assert.Empty(t, report.LeakedRemoved)

	saved := fx.savedClips(t)
	require.Len(t, saved, 1)
	assert.Equal(t, live.Record.ID, saved[0].ID)
}

func TestReconcile_KeepsBlobsOfNestedKeys(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	ctx := context.Background()

	live, err := fx.studio.Generate(ctx, testScope, studio.GenerateRequest{Text: "Live"})
	require.NoError(t, err)

	nestedKey := testScope + "/team/clip-7-nested00"
	require.NoError(t, fx.blobs.Put(ctx, nestedKey, []byte("team audio")))

	report, err := fx.studio.Reconcile(ctx, testScope, false)
	require.NoError(t, err)
	assert.Empty(t, report.LeakedRemoved)
	assert.Empty(t, report.LeakedFailed)
	assert.Empty(t, report.Orphans)

	_, found, err := fx.blobs.Get(ctx, nestedKey)
	require.NoError(t, err)
	assert.True(t, found, "a key below the scope prefix but outside the scope is not a leak")

	_, found, err = fx.blobs.Get(ctx, core.BlobKey(testScope, live.Record.ID))
	require.NoError(t, err)
	assert.True(t, found)

	_, err = fx.studio.Reconcile(ctx, "alice/team", false)
	require.ErrorIs(t, err, core.ErrInvalidScope)
}

func TestReconcile_PruneReportsOnlySavedKinds(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	ctx := context.Background()

	clip, err := fx.studio.Generate(ctx, testScope, studio.GenerateRequest{Text: "Orphan clip"})
	require.NoError(t, err)

	voice, err := fx.studio.AddReference(ctx, testScope, studio.Upload{Name: "Orphan voice", Data: []byte("audio")})
	require.NoError(t, err)

	require.NoError(t, fx.blobs.Delete(ctx, core.BlobKey(testScope, clip.Record.ID)))
	require.NoError(t, fx.blobs.Delete(ctx, core.BlobKey(testScope, voice.Record.ID)))
	fx.snapshots.setFailKind(core.KindReferenceVoice)

	report, err := fx.studio.Reconcile(ctx, testScope, true)
	require.Error(t, err)
	assert.ElementsMatch(t, []string{clip.Record.ID, voice.Record.ID}, report.Orphans)
	assert.Equal(t, []string{clip.Record.ID}, report.PrunedOrphans)

	assert.Empty(t, fx.savedClips(t))
	require.Len(t, fx.savedVoices(t), 1)

	voices, err := fx.studio.Voices(ctx, testScope)
	require.NoError(t, err)
	require.Len(t, voices, 1, "the in-memory library matches the ledger")
}

func TestDownload_VoiceFileNames(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		mimeType string
		fileName string
		content  string
	}{
		{name: "Take: one", mimeType: "audio/ogg", fileName: "Take_ one.ogg", content: "audio/ogg"},
		{name: "clip.ogg", mimeType: "audio/ogg;codecs=opus", fileName: "clip.ogg", content: "audio/ogg;codecs=opus"},
		{name: "Raw <1>", mimeType: "audio/x-unknown", fileName: "Raw _1_", content: "audio/x-unknown"},
		{name: "Default", mimeType: "", fileName: "Default.webm", content: "audio/webm"},
	}

	for _, testCase := range tests {
		voice, err := fx.studio.AddReference(ctx, testScope, studio.Upload{
			Name: testCase.name, MIMEType: testCase.mimeType, Data: []byte("audio"),
		})
		require.NoError(t, err)

		file, err := fx.studio.Download(ctx, testScope, core.KindReferenceVoice, voice.Record.ID)
		require.NoError(t, err)
		assert.Equal(t, testCase.fileName, file.FileName, testCase.name)
		assert.Equal(t, testCase.content, file.ContentType, testCase.name)
	}
}

func TestNotification(t *testing.T) {
	t.Parallel()

	assert.Empty(t, studio.Notification(nil))
	assert.Empty(t, studio.Notification(context.Canceled))
	assert.Equal(t, "Enter some text to generate speech.", studio.Notification(studio.ErrTextEmpty))
	assert.Equal(t, "Speech service error. Ensure your API key is valid.",
		studio.Notification(errors.Join(core.ErrBackendFailure, errMockBackend)))
	assert.Equal(t, "The audio for this item is no longer available.", studio.Notification(core.ErrOrphaned))
	assert.Equal(t, "Something went wrong. Try again.", studio.Notification(errMockStorage))
}
