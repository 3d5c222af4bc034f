package fileutil_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/book-expert/voice-studio/internal/fileutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultDataDir_WithOverride(t *testing.T) {
	t.Setenv("VOICE_STUDIO_DATA_DIR", "/custom/data")

	assert.Equal(t, "/custom/data", fileutil.DefaultDataDir())
}

func TestEnsureDir(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "a", "b")

	require.NoError(t, fileutil.EnsureDir(path))
	require.NoError(t, fileutil.EnsureDir(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestFormatDuration(t *testing.T) {
	t.Parallel()

	tests := []struct {
		duration time.Duration
		expected string
	}{
		{duration: 45200 * time.Millisecond, expected: "45.2s"},
		{duration: 5*time.Minute + 30500*time.Millisecond, expected: "5m 30.5s"},
		{duration: time.Hour + 15*time.Minute, expected: "1h 15m"},
		{duration: 0, expected: "0.0s"},
	}

	for _, testCase := range tests {
		assert.Equal(t, testCase.expected, fileutil.FormatDuration(testCase.duration))
	}
}

func TestFormatFileSize(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "512 B", fileutil.FormatFileSize(512))
	assert.Equal(t, "1.5 KB", fileutil.FormatFileSize(1536))
	assert.Equal(t, "2.0 MB", fileutil.FormatFileSize(2*1024*1024))
	assert.Equal(t, "1.0 GB", fileutil.FormatFileSize(1024*1024*1024))
}

func TestSanitizeFilename(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "my_voice_ take_1", fileutil.SanitizeFilename("my/voice: take?1"))
	assert.Equal(t, "audio", fileutil.SanitizeFilename("   "))
	assert.Equal(t, "audio", fileutil.SanitizeFilename(".."))
}

func TestExtensionForMIME(t *testing.T) {
	t.Parallel()

	assert.Equal(t, ".webm", fileutil.ExtensionForMIME("audio/webm;codecs=opus"))
	assert.Equal(t, ".wav", fileutil.ExtensionForMIME("Audio/WAV"))
	assert.Empty(t, fileutil.ExtensionForMIME("video/mp4"))
}

func TestRecordingName(t *testing.T) {
	t.Parallel()

	startedAt := time.Date(2026, 3, 1, 14, 5, 9, 0, time.UTC)

	assert.Equal(t, "Recording_14-05-09.webm", fileutil.RecordingName(startedAt, "audio/webm"))
	assert.Equal(t, "Recording_14-05-09.ogg", fileutil.RecordingName(startedAt, "audio/ogg"))
	assert.Equal(t, "Recording_14-05-09.webm", fileutil.RecordingName(startedAt, ""))
}

func TestWithExtension(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Narrator.wav", fileutil.WithExtension("Narrator", ".wav"))
	assert.Equal(t, "take.WAV", fileutil.WithExtension("take.WAV", ".wav"))
}

func TestMIMEForFile(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "audio/webm", fileutil.MIMEForFile("take.WEBM"))
	assert.Equal(t, "audio/wav", fileutil.MIMEForFile("/tmp/voice.wav"))
	assert.Equal(t, "audio/mpeg", fileutil.MIMEForFile("song.mp3"))
	assert.Equal(t, "application/octet-stream", fileutil.MIMEForFile("notes.txt"))
	assert.Equal(t, "application/octet-stream", fileutil.MIMEForFile("noextension"))
}
