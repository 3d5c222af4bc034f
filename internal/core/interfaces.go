// Package core defines the domain records and the interfaces shared by the voice studio
// pipeline components.
package core

import (
	"context"
	"errors"
)

// Pipeline error taxonomy. Components wrap these so the studio boundary can classify a
// failure with errors.Is.
var (
	// ErrBackendFailure indicates that a generation or analysis call failed or returned no
	// usable payload.
	ErrBackendFailure = errors.New("backend failure")
	// ErrStorageFailure indicates that a blob store or ledger write failed.
	ErrStorageFailure = errors.New("storage failure")
	// ErrOrphaned indicates that a ledger record has no stored blob behind it.
	ErrOrphaned = errors.New("record has no stored audio")
	// ErrRecordNotFound indicates that no record with the requested id exists in the scope.
	ErrRecordNotFound = errors.New("record not found")
	// ErrInvalidScope indicates an owner scope that cannot partition blob keys.
	ErrInvalidScope = errors.New("invalid owner scope")
)

// BlobStore defines the interface for a content-keyed binary store.
// Get reports a missing key with found == false and a nil error.
// Delete of a missing key is a no-op.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) (data []byte, found bool, err error)
	Delete(ctx context.Context, key string) error
}

// BlobLister is implemented by blob stores that can enumerate the keys under a prefix.
type BlobLister interface {
	List(ctx context.Context, prefix string) ([]string, error)
}

// SpeechRequest holds the parameters for a single generation call.
type SpeechRequest struct {
	Text  string
	Voice VoiceName
	// Style is an optional free-text delivery description.
	Style string
}

// SpeechGenerator returns a base64 encoded raw PCM payload for the request.
type SpeechGenerator interface {
	GenerateSpeech(ctx context.Context, req SpeechRequest) (string, error)
}

// VoiceAnalysis is the result of analysing a captured reference clip.
type VoiceAnalysis struct {
	Description string `json:"description"`
	Gender      Gender `json:"gender"`
}

// VoiceAnalyzer describes a captured audio clip.
type VoiceAnalyzer interface {
	AnalyzeVoice(ctx context.Context, audio []byte, mimeType string) (VoiceAnalysis, error)
}
