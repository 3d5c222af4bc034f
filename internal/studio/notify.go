package studio

import (
	"context"
	"errors"

	"github.com/book-expert/voice-studio/internal/audio"
	"github.com/book-expert/voice-studio/internal/capture"
	"github.com/book-expert/voice-studio/internal/core"
)

// Notification maps a pipeline error onto a message for the user. Cancellation yields an
// empty string: nothing is shown.
func Notification(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, capture.ErrCancelled), errors.Is(err, context.Canceled):
		return ""
	case errors.Is(err, ErrTextEmpty):
		return "Enter some text to generate speech."
	case errors.Is(err, ErrTextTooLong):
		return "The text is too long. Shorten it and try again."
	case errors.Is(err, ErrUnknownVoice):
		return "Select one of the available voices."
	case errors.Is(err, capture.ErrEmptyCapture), errors.Is(err, ErrEmptyReference):
		return "No audio was captured."
	case errors.Is(err, audio.ErrMalformedPayload):
		return "The generated audio could not be read. Try again."
	case errors.Is(err, core.ErrOrphaned):
		return "The audio for this item is no longer available."
	case errors.Is(err, core.ErrRecordNotFound):
		return "This item no longer exists."
	case errors.Is(err, core.ErrBackendFailure):
		return "Speech service error. Ensure your API key is valid."
	case errors.Is(err, core.ErrStorageFailure):
		return "Could not save to local storage."
	default:
		return "Something went wrong. Try again."
	}
}
