package studio

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/book-expert/voice-studio/internal/audio"
	"github.com/book-expert/voice-studio/internal/core"
	"github.com/book-expert/voice-studio/internal/library"
	"github.com/book-expert/voice-studio/internal/metrics"
	"github.com/book-expert/voice-studio/internal/text"
)

const personalVoiceLabelFormat = "Personal (%s)"

var (
	// ErrTextEmpty is returned when the text is empty after normalization.
	ErrTextEmpty = errors.New("text is empty")
	// ErrTextTooLong is returned when the text exceeds the configured maximum length.
	ErrTextTooLong = errors.New("text is too long")
	// ErrUnknownVoice is returned for a preset name that does not exist.
	ErrUnknownVoice = errors.New("unknown voice")
	// ErrGeneratorUnavailable is returned when the studio was built without a generator.
	ErrGeneratorUnavailable = errors.New("speech generation is not configured")
)

// GenerateRequest asks for one clip. ReferenceVoiceID, when set, takes precedence over Voice.
type GenerateRequest struct {
	Text             string
	Voice            string
	ReferenceVoiceID string
}

// resolvedVoice is the backend voice plus the label stored on the clip.
type resolvedVoice struct {
	voice core.VoiceName
	style string
	label string
}

// Generate synthesizes text, stores the WAV container and prepends the new clip to the
// scope's library. On any failure nothing is added to the library.
func (s *Studio) Generate(ctx context.Context, scope string, req GenerateRequest) (library.Entry[core.GeneratedClip], error) {
	var empty library.Entry[core.GeneratedClip]

	if s.generator == nil {
		return empty, ErrGeneratorUnavailable
	}

	input, err := s.validateText(req.Text)
	if err != nil {
		return empty, err
	}

	sess, err := s.lock(ctx, scope)
	if err != nil {
		return empty, err
	}
	defer sess.mu.Unlock()

	voice, err := s.resolveVoice(sess, req)
	if err != nil {
		return empty, err
	}

	started := time.Now()

	payload, err := s.generator.GenerateSpeech(ctx, core.SpeechRequest{Text: input, Voice: voice.voice, Style: voice.style})
	s.metrics.ObserveGeneration(time.Since(started))

	if err != nil {
		s.metrics.PipelineFailed(metrics.StageGenerate)
		s.log.Error("Speech generation failed for scope %s: %v", scope, err)

		if !errors.Is(err, core.ErrBackendFailure) {
			err = fmt.Errorf("%w: %w", core.ErrBackendFailure, err)
		}

		return empty, fmt.Errorf("failed to generate speech: %w", err)
	}

	pcm, err := audio.DecodePCM(payload, s.format)
	if err != nil {
		s.metrics.PipelineFailed(metrics.StageDecode)
		s.log.Error("Discarding generation payload for scope %s: %v", scope, err)

		return empty, fmt.Errorf("failed to decode generated audio: %w", err)
	}

	if len(pcm) == 0 {
		s.metrics.PipelineFailed(metrics.StageDecode)

		return empty, fmt.Errorf("%w: backend returned empty audio", core.ErrBackendFailure)
	}

	container, err := s.format.Encode(pcm)
	if err != nil {
		s.metrics.PipelineFailed(metrics.StageEncode)

		return empty, fmt.Errorf("failed to encode audio container: %w", err)
	}

	createdAt, createdMillis := s.clock.Next()
	record := core.GeneratedClip{
		ID:         core.NewID(core.ClipIDPrefix, createdAt),
		OwnerScope: scope,
		CreatedAt:  createdMillis,
		Text:       s.normalizer.Display(input, s.limits.DisplayTextLength),
		VoiceName:  voice.label,
	}

	entry, err := s.storeClip(ctx, sess, record, container)
	if err != nil {
		return empty, err
	}

	s.metrics.ArtifactCreated(string(core.KindGeneratedClip))
	s.log.Info("Generated clip %s for scope %s with voice %s (%d bytes, %s)",
		record.ID, scope, voice.label, len(container), s.format.Duration(len(pcm)))

	return entry, nil
}

// storeClip writes the blob, then the ledger, then publishes the entry at the head of the
// collection. Caller holds sess.mu.
func (s *Studio) storeClip(
	ctx context.Context,
	sess *session,
	record core.GeneratedClip,
	container []byte,
) (library.Entry[core.GeneratedClip], error) {
	key := core.BlobKey(record.OwnerScope, record.ID)

	err := s.blobs.Put(ctx, key, container)
	if err != nil {
		s.metrics.PipelineFailed(metrics.StageStore)

		return library.Entry[core.GeneratedClip]{}, fmt.Errorf("%w: failed to store clip %s: %w",
			core.ErrStorageFailure, record.ID, err)
	}

	entry := s.clips.Attach(record.OwnerScope, record, container)
	updated := append([]library.Entry[core.GeneratedClip]{entry}, sess.clips...)

	err = s.clips.Persist(ctx, record.OwnerScope, updated)
	if err != nil {
		s.metrics.PipelineFailed(metrics.StageLedger)
		s.clips.Release(entry)
		s.discardBlob(ctx, key)

		return library.Entry[core.GeneratedClip]{}, fmt.Errorf("failed to record clip %s: %w", record.ID, err)
	}

	sess.clips = updated

	return entry, nil
}

func (s *Studio) validateText(raw string) (string, error) {
	input := s.normalizer.Normalize(raw)

	if input == "" {
		return "", ErrTextEmpty
	}

	length := text.Length(input)
	if length > s.limits.MaxTextLength {
		return "", fmt.Errorf("%w: %d characters, maximum is %d", ErrTextTooLong, length, s.limits.MaxTextLength)
	}

	return input, nil
}

// resolveVoice prefers a selected reference voice over the preset. Caller holds sess.mu.
func (s *Studio) resolveVoice(sess *session, req GenerateRequest) (resolvedVoice, error) {
	if req.ReferenceVoiceID != "" {
		index := indexOf(sess.voices, req.ReferenceVoiceID)
		if index < 0 {
			return resolvedVoice{}, fmt.Errorf("%w: reference voice %s", core.ErrRecordNotFound, req.ReferenceVoiceID)
		}

		reference := sess.voices[index].Record

		return resolvedVoice{
			voice: core.BaseVoiceFor(reference.Gender),
			style: reference.Description,
			label: fmt.Sprintf(personalVoiceLabelFormat, reference.Name),
		}, nil
	}

	preset := core.DefaultPreset()

	if req.Voice != "" {
		found, ok := core.PresetByName(req.Voice)
		if !ok {
			return resolvedVoice{}, fmt.Errorf("%w: %s", ErrUnknownVoice, req.Voice)
		}

		preset = found
	}

	return resolvedVoice{voice: preset.Voice, label: preset.Name}, nil
}

// discardBlob removes a blob whose ledger write failed. A failure leaves a leak for Reconcile.
func (s *Studio) discardBlob(ctx context.Context, key string) {
	err := s.blobs.Delete(ctx, key)
	if err != nil {
		s.log.Warn("Leaked blob '%s' after failed ledger write: %v", key, err)
	}
}
