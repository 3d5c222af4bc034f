// Package library reconciles ledger records with their stored audio: hydration attaches a
// fresh process-local handle to every record, dehydration strips it again.
package library

import (
	"bytes"
	"errors"
	"io"
	"sync"

	"github.com/google/uuid"
)

const handleScheme = "blob:"

// ErrHandleReleased is returned when reading through a released or empty handle.
var ErrHandleReleased = errors.New("audio handle released")

// Handle is a process-local reference to audio bytes, usable for playback and download until
// it is released. A nil *Handle is the empty handle of an orphaned record.
type Handle struct {
	url   string
	scope string

	mu       sync.RWMutex
	data     []byte
	released bool
}

// URL identifies the handle within this process.
func (h *Handle) URL() string {
	if h == nil {
		return ""
	}

	return h.url
}

// Valid reports whether the handle can still be read.
func (h *Handle) Valid() bool {
	if h == nil {
		return false
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	return !h.released
}

// Size returns the number of bytes behind the handle, or zero once released.
func (h *Handle) Size() int {
	if h == nil {
		return 0
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.data)
}

// Bytes returns a copy of the audio bytes.
func (h *Handle) Bytes() ([]byte, error) {
	if h == nil {
		return nil, ErrHandleReleased
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.released {
		return nil, ErrHandleReleased
	}

	return bytes.Clone(h.data), nil
}

// Open returns a reader over the audio bytes.
func (h *Handle) Open() (io.Reader, error) {
	data, err := h.Bytes()
	if err != nil {
		return nil, err
	}

	return bytes.NewReader(data), nil
}

// release drops the bytes. It reports whether the handle was live.
func (h *Handle) release() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.released {
		return false
	}

	h.released = true
	h.data = nil

	return true
}

// Registry owns every live handle of the process, grouped by owner scope.
type Registry struct {
	mu      sync.Mutex
	handles map[string]map[string]*Handle
	onCount func(delta int)
}

// NewRegistry creates an empty registry. onCount, when set, observes every change in the
// number of live handles.
func NewRegistry(onCount func(delta int)) *Registry {
	return &Registry{
		handles: make(map[string]map[string]*Handle),
		onCount: onCount,
	}
}

// Create registers a new handle over a private copy of data.
func (r *Registry) Create(scope string, data []byte) *Handle {
	handle := &Handle{
		url:   handleScheme + scope + "/" + uuid.NewString(),
		scope: scope,
		data:  bytes.Clone(data),
	}

	r.mu.Lock()

	byURL, ok := r.handles[scope]
	if !ok {
		byURL = make(map[string]*Handle)
		r.handles[scope] = byURL
	}

	byURL[handle.url] = handle
	r.mu.Unlock()

	r.count(1)

	return handle
}

// Resolve looks up a live handle by URL.
func (r *Registry) Resolve(url string) (*Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, byURL := range r.handles {
		if handle, ok := byURL[url]; ok {
			return handle, true
		}
	}

	return nil, false
}

// Release invalidates a handle and reports whether it was live. Releasing nil or an already
// released handle is a no-op.
func (r *Registry) Release(handle *Handle) bool {
	if handle == nil {
		return false
	}

	r.mu.Lock()

	if byURL, ok := r.handles[handle.scope]; ok {
		delete(byURL, handle.url)

		if len(byURL) == 0 {
			delete(r.handles, handle.scope)
		}
	}
	r.mu.Unlock()

	if !handle.release() {
		return false
	}

	r.count(-1)

	return true
}

// ReleaseAll invalidates every outstanding handle of scope and returns how many were live.
func (r *Registry) ReleaseAll(scope string) int {
	r.mu.Lock()
	byURL := r.handles[scope]
	delete(r.handles, scope)
	r.mu.Unlock()

	released := 0

	for _, handle := range byURL {
		if handle.release() {
			released++
		}
	}

	if released > 0 {
		r.count(-released)
	}

	return released
}

// Outstanding returns the number of live handles of scope.
func (r *Registry) Outstanding(scope string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.handles[scope])
}

func (r *Registry) count(delta int) {
	if r.onCount != nil {
		r.onCount(delta)
	}
}
