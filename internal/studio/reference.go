package studio

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/book-expert/voice-studio/internal/capture"
	"github.com/book-expert/voice-studio/internal/core"
	"github.com/book-expert/voice-studio/internal/library"
	"github.com/book-expert/voice-studio/internal/metrics"
)

var (
	// ErrAnalyzerUnavailable is returned when the studio was built without an analyzer.
	ErrAnalyzerUnavailable = errors.New("voice analysis is not configured")
	// ErrEmptyReference is returned for an upload without audio bytes.
	ErrEmptyReference = errors.New("reference audio is empty")
	// ErrNameRequired is returned when a voice edit clears the name.
	ErrNameRequired = errors.New("voice name is required")
)

// Upload is a captured or uploaded reference clip.
type Upload struct {
	Name     string
	MIMEType string
	Data     []byte
}

// AddReference analyses an uploaded clip and appends it to the scope's reference voices. An
// analysis failure discards the capture and persists nothing.
func (s *Studio) AddReference(ctx context.Context, scope string, upload Upload) (library.Entry[core.ReferenceVoice], error) {
	var empty library.Entry[core.ReferenceVoice]

	if s.analyzer == nil {
		return empty, ErrAnalyzerUnavailable
	}

	err := checkScope(scope)
	if err != nil {
		return empty, err
	}

	if len(upload.Data) == 0 {
		return empty, ErrEmptyReference
	}

	mimeType := upload.MIMEType
	if mimeType == "" {
		mimeType = capture.DefaultMIMEType
	}

	analysis, err := s.analyzer.AnalyzeVoice(ctx, upload.Data, mimeType)
	if err != nil {
		s.metrics.PipelineFailed(metrics.StageAnalyze)
		s.log.Error("Voice analysis failed for scope %s, discarding capture: %v", scope, err)

		if !errors.Is(err, core.ErrBackendFailure) {
			err = fmt.Errorf("%w: %w", core.ErrBackendFailure, err)
		}

		return empty, fmt.Errorf("failed to analyze reference voice: %w", err)
	}

	sess, err := s.lock(ctx, scope)
	if err != nil {
		return empty, err
	}
	defer sess.mu.Unlock()

	name := strings.TrimSpace(upload.Name)
	if name == "" {
		name = fmt.Sprintf("Voice %d", len(sess.voices)+1)
	}

	createdAt, createdMillis := s.clock.Next()
	record := core.ReferenceVoice{
		ID:          core.NewID(core.VoiceIDPrefix, createdAt),
		OwnerScope:  scope,
		CreatedAt:   createdMillis,
		Name:        name,
		Description: analysis.Description,
		Gender:      analysis.Gender,
		MIMEType:    mimeType,
	}

	key := core.BlobKey(scope, record.ID)

	err = s.blobs.Put(ctx, key, upload.Data)
	if err != nil {
		s.metrics.PipelineFailed(metrics.StageStore)

		return empty, fmt.Errorf("%w: failed to store reference voice %s: %w", core.ErrStorageFailure, record.ID, err)
	}

	entry := s.voices.Attach(scope, record, upload.Data)
	updated := append(append(make([]library.Entry[core.ReferenceVoice], 0, len(sess.voices)+1), sess.voices...), entry)

	err = s.voices.Persist(ctx, scope, updated)
	if err != nil {
		s.metrics.PipelineFailed(metrics.StageLedger)
		s.voices.Release(entry)
		s.discardBlob(ctx, key)

		return empty, fmt.Errorf("failed to record reference voice %s: %w", record.ID, err)
	}

	sess.voices = updated

	s.metrics.ArtifactCreated(string(core.KindReferenceVoice))
	s.log.Info("Added reference voice %s '%s' for scope %s (%s, %s)",
		record.ID, record.Name, scope, record.Gender, record.Description)

	return entry, nil
}

// RecordReference captures chunks with recorder and runs the upload pipeline on the result.
// A cancelled recording returns capture.ErrCancelled and skips the pipeline entirely.
func (s *Studio) RecordReference(
	ctx context.Context,
	scope string,
	recorder capture.Recorder,
	chunks <-chan []byte,
) (library.Entry[core.ReferenceVoice], error) {
	clip, err := recorder.Record(ctx, chunks)
	if err != nil {
		return library.Entry[core.ReferenceVoice]{}, fmt.Errorf("failed to capture reference voice: %w", err)
	}

	if clip.Truncated {
		s.log.Warn("Recording for scope %s stopped at the duration limit after %s", scope, clip.Duration)
	}

	return s.AddReference(ctx, scope, Upload{Name: clip.Name, MIMEType: clip.MIMEType, Data: clip.Data})
}
