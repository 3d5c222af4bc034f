package studio

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/book-expert/voice-studio/internal/audio"
	"github.com/book-expert/voice-studio/internal/core"
	"github.com/book-expert/voice-studio/internal/fileutil"
	"github.com/book-expert/voice-studio/internal/library"
	"github.com/book-expert/voice-studio/internal/metrics"
)

const (
	clipDownloadFormat  = "voxgemini-%s" + audio.FileExtension
	fallbackContentType = "application/octet-stream"
)

// ErrUnknownKind is returned for a record kind the studio does not manage.
var ErrUnknownKind = errors.New("unknown record kind")

// Download is a file ready to be handed to the user.
type Download struct {
	FileName    string
	ContentType string
	Data        []byte
}

// EditVoice renames a reference voice and replaces its description. It is the only mutation
// of an existing record.
func (s *Studio) EditVoice(
	ctx context.Context,
	scope, id, name, description string,
) (library.Entry[core.ReferenceVoice], error) {
	var empty library.Entry[core.ReferenceVoice]

	name = strings.TrimSpace(name)
	if name == "" {
		return empty, ErrNameRequired
	}

	sess, err := s.lock(ctx, scope)
	if err != nil {
		return empty, err
	}
	defer sess.mu.Unlock()

	index := indexOf(sess.voices, id)
	if index < 0 {
		return empty, fmt.Errorf("%w: reference voice %s", core.ErrRecordNotFound, id)
	}

	updated := slices.Clone(sess.voices)
	updated[index].Record.Name = name
	updated[index].Record.Description = strings.TrimSpace(description)

	err = s.voices.Persist(ctx, scope, updated)
	if err != nil {
		s.metrics.PipelineFailed(metrics.StageLedger)

		return empty, fmt.Errorf("failed to edit reference voice %s: %w", id, err)
	}

	sess.voices = updated

	return updated[index], nil
}

// DeleteClip removes a generated clip from the ledger, the blob store and memory.
func (s *Studio) DeleteClip(ctx context.Context, scope, id string) error {
	sess, err := s.lock(ctx, scope)
	if err != nil {
		return err
	}
	defer sess.mu.Unlock()

	remaining, removed, err := deleteEntry(ctx, s, s.clips, sess.clips, scope, id)
	if err != nil {
		return err
	}

	sess.clips = remaining
	s.clips.Release(removed)

	return nil
}

// DeleteVoice removes a reference voice from the ledger, the blob store and memory.
func (s *Studio) DeleteVoice(ctx context.Context, scope, id string) error {
	sess, err := s.lock(ctx, scope)
	if err != nil {
		return err
	}
	defer sess.mu.Unlock()

	remaining, removed, err := deleteEntry(ctx, s, s.voices, sess.voices, scope, id)
	if err != nil {
		return err
	}

	sess.voices = remaining
	s.voices.Release(removed)

	return nil
}

// deleteEntry saves the collection without id, then deletes the blob. A failed blob delete
// leaves a leak that Reconcile removes; the ledger never points at deleted audio.
func deleteEntry[R core.Record](
	ctx context.Context,
	s *Studio,
	hydrator *library.Hydrator[R],
	entries []library.Entry[R],
	scope, id string,
) ([]library.Entry[R], library.Entry[R], error) {
	index := indexOf(entries, id)
	if index < 0 {
		return nil, library.Entry[R]{}, fmt.Errorf("%w: %s %s", core.ErrRecordNotFound, hydrator.Kind(), id)
	}

	removed := entries[index]
	remaining := slices.Delete(slices.Clone(entries), index, index+1)

	err := hydrator.Persist(ctx, scope, remaining)
	if err != nil {
		s.metrics.PipelineFailed(metrics.StageLedger)

		return nil, library.Entry[R]{}, fmt.Errorf("failed to delete %s %s: %w", hydrator.Kind(), id, err)
	}

	key := core.BlobKey(scope, id)

	err = s.blobs.Delete(ctx, key)
	if err != nil {
		s.metrics.PipelineFailed(metrics.StageStore)
		s.log.Warn("Leaked blob '%s' after deleting %s %s: %v", key, hydrator.Kind(), id, err)
	}

	s.metrics.ArtifactDeleted(string(hydrator.Kind()))
	s.log.Info("Deleted %s %s from scope %s", hydrator.Kind(), id, scope)

	return remaining, removed, nil
}

// Download returns the audio of a record. Orphaned records fail with core.ErrOrphaned.
func (s *Studio) Download(ctx context.Context, scope string, kind core.Kind, id string) (Download, error) {
	sess, err := s.lock(ctx, scope)
	if err != nil {
		return Download{}, err
	}
	defer sess.mu.Unlock()

	switch kind {
	case core.KindGeneratedClip:
		index := indexOf(sess.clips, id)
		if index < 0 {
			return Download{}, fmt.Errorf("%w: %s %s", core.ErrRecordNotFound, kind, id)
		}

		return download(sess.clips[index], fmt.Sprintf(clipDownloadFormat, id), audio.ContentTypeWAV)
	case core.KindReferenceVoice:
		index := indexOf(sess.voices, id)
		if index < 0 {
			return Download{}, fmt.Errorf("%w: %s %s", core.ErrRecordNotFound, kind, id)
		}

		voice := sess.voices[index].Record

		contentType := voice.MIMEType
		if contentType == "" {
			contentType = fallbackContentType
		}

		fileName := fileutil.SanitizeFilename(voice.Name)
		if extension := fileutil.ExtensionForMIME(voice.MIMEType); extension != "" {
			fileName = fileutil.WithExtension(fileName, extension)
		}

		return download(sess.voices[index], fileName, contentType)
	default:
		return Download{}, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
}

func download[R core.Record](entry library.Entry[R], fileName, contentType string) (Download, error) {
	data, err := entry.Handle.Bytes()
	if err != nil {
		return Download{}, fmt.Errorf("%w: %s %s", core.ErrOrphaned, entry.Record.RecordKind(), entry.Record.RecordID())
	}

	return Download{FileName: fileName, ContentType: contentType, Data: data}, nil
}
