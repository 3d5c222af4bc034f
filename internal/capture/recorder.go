// Package capture accumulates a streamed microphone recording into one reference clip.
package capture

import (
	"bytes"
	"context"
	"errors"
	"time"

	"github.com/book-expert/voice-studio/internal/fileutil"
)

// DefaultMIMEType is the container produced by browser media recorders.
const DefaultMIMEType = "audio/webm"

// DefaultMaxDuration stops a recording that was never stopped explicitly.
const DefaultMaxDuration = 2 * time.Minute

var (
	// ErrCancelled is returned when the caller cancels a recording. All input is discarded.
	ErrCancelled = errors.New("recording cancelled")
	// ErrEmptyCapture is returned when a recording stops before any audio arrived.
	ErrEmptyCapture = errors.New("recording captured no audio")
)

// Clip is a finished recording.
type Clip struct {
	Name      string
	MIMEType  string
	Data      []byte
	StartedAt time.Time
	Duration  time.Duration
	// Truncated reports that MaxDuration stopped the recording.
	Truncated bool
}

// Recorder turns a chunk stream into a Clip.
type Recorder struct {
	MaxDuration time.Duration
	MIMEType    string
	Now         func() time.Time
}

// Record accumulates chunks until the channel is closed (stop), MaxDuration elapses or ctx is
// cancelled. Cancellation returns ErrCancelled and no clip.
func (r Recorder) Record(ctx context.Context, chunks <-chan []byte) (Clip, error) {
	now := r.Now
	if now == nil {
		now = time.Now
	}

	maxDuration := r.MaxDuration
	if maxDuration <= 0 {
		maxDuration = DefaultMaxDuration
	}

	mimeType := r.MIMEType
	if mimeType == "" {
		mimeType = DefaultMIMEType
	}

	startedAt := now()

	timer := time.NewTimer(maxDuration)
	defer timer.Stop()

	var (
		buffer    bytes.Buffer
		truncated bool
	)

collect:
	for {
		select {
		case <-ctx.Done():
			return Clip{}, ErrCancelled
		case <-timer.C:
			truncated = true

			break collect
		case chunk, ok := <-chunks:
			if !ok {
				break collect
			}

			buffer.Write(chunk)
		}
	}

	if buffer.Len() == 0 {
		return Clip{}, ErrEmptyCapture
	}

	return Clip{
		Name:      fileutil.RecordingName(startedAt, mimeType),
		MIMEType:  mimeType,
		Data:      buffer.Bytes(),
		StartedAt: startedAt,
		Duration:  now().Sub(startedAt),
		Truncated: truncated,
	}, nil
}
