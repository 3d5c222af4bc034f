package core

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind identifies a record collection. Every ledger snapshot holds records of one kind.
type Kind string

const (
	KindGeneratedClip  Kind = "generated_clip"
	KindReferenceVoice Kind = "reference_voice"
)

// Id prefixes per kind.
const (
	ClipIDPrefix  = "clip"
	VoiceIDPrefix = "voice"
)

const blobKeySeparator = "/"

// Record is implemented by every persisted artifact record.
type Record interface {
	RecordID() string
	Owner() string
	RecordKind() Kind
}

// GeneratedClip describes one synthesized clip. Text may be truncated for display.
//
// Zero values:
//   - ID: "" (invalid, must be minted with NewID)
//   - OwnerScope: "" (invalid, required)
//   - CreatedAt: 0 (Unix milliseconds, assigned on creation)
type GeneratedClip struct {
	ID         string `json:"id"`
	OwnerScope string `json:"ownerScope"`
	CreatedAt  int64  `json:"createdAt"`
	Text       string `json:"text"`
	VoiceName  string `json:"voiceName"`
}

// RecordID returns the clip id.
func (c GeneratedClip) RecordID() string { return c.ID }

// Owner returns the owning scope.
func (c GeneratedClip) Owner() string { return c.OwnerScope }

// RecordKind returns KindGeneratedClip.
func (c GeneratedClip) RecordKind() Kind { return KindGeneratedClip }

// ReferenceVoice describes a recorded or uploaded reference clip.
// Description, Gender and MIMEType are optional.
type ReferenceVoice struct {
	ID          string `json:"id"`
	OwnerScope  string `json:"ownerScope"`
	CreatedAt   int64  `json:"createdAt"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Gender      Gender `json:"gender,omitempty"`
	// MIMEType is the container type of the stored capture.
	MIMEType string `json:"mimeType,omitempty"`
}

// RecordID returns the voice id.
func (v ReferenceVoice) RecordID() string { return v.ID }

// Owner returns the owning scope.
func (v ReferenceVoice) Owner() string { return v.OwnerScope }

// RecordKind returns KindReferenceVoice.
func (v ReferenceVoice) RecordKind() Kind { return KindReferenceVoice }

// NewID mints an artifact id from a prefix, a millisecond timestamp and a random suffix.
func NewID(prefix string, now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]

	return fmt.Sprintf("%s-%d-%s", prefix, now.UnixMilli(), suffix)
}

// ValidateScope reports ErrInvalidScope for a scope that would not own a disjoint key
// prefix: blank, padded with whitespace, or containing the key separator.
func ValidateScope(ownerScope string) error {
	if strings.TrimSpace(ownerScope) == "" || strings.TrimSpace(ownerScope) != ownerScope ||
		strings.Contains(ownerScope, blobKeySeparator) {
		return fmt.Errorf("%w: %q", ErrInvalidScope, ownerScope)
	}

	return nil
}

// BlobKey returns the blob store key of a record id inside an owner scope.
func BlobKey(ownerScope, id string) string {
	return ownerScope + blobKeySeparator + id
}

// ScopePrefix returns the blob key prefix shared by every record of an owner scope.
func ScopePrefix(ownerScope string) string {
	return ownerScope + blobKeySeparator
}

// IDFromBlobKey returns the record id of a key stored directly under ownerScope. Keys of
// another scope, including a nested one, report false.
func IDFromBlobKey(ownerScope, key string) (string, bool) {
	id, ok := strings.CutPrefix(key, ScopePrefix(ownerScope))
	if !ok || id == "" || strings.Contains(id, blobKeySeparator) {
		return "", false
	}

	return id, true
}

// Clock hands out strictly increasing millisecond timestamps.
type Clock struct {
	now  func() time.Time
	mu   sync.Mutex
	last int64
}

// NewClock returns a Clock reading from now. A nil now uses time.Now.
func NewClock(now func() time.Time) *Clock {
	if now == nil {
		now = time.Now
	}

	return &Clock{now: now}
}

// Next returns the current time in Unix milliseconds, bumped past the previous value when
// the wall clock has not advanced.
func (c *Clock) Next() (time.Time, int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	current := c.now()

	millis := current.UnixMilli()
	if millis <= c.last {
		millis = c.last + 1
	}

	c.last = millis

	return current, millis
}
