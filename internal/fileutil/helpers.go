// Package fileutil provides file naming, directory and display helpers for the studio binaries.
package fileutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Common application directory and path constants.
const (
	appName                = "voice-studio"
	dataDirName            = "data"
	envDataDir             = "VOICE_STUDIO_DATA_DIR"
	dotLocalShare          = ".local/share"
	tmpDir                 = "/tmp"
	defaultDirPermissions  = 0o750
	invalidCharReplacement = "_"
	fallbackFilename       = "audio"
	recordingTimeLayout    = "15-04-05"
)

// Data size constants.
const (
	byteUnit = 1
	kilobyte = byteUnit * 1024
	megabyte = kilobyte * 1024
	gigabyte = megabyte * 1024
)

// Time and size formatting constants.
const (
	secondsInMinute = 60
	secondsInHour   = 3600
	formatSeconds   = "%.1fs"
	formatMinutes   = "%dm %.1fs"
	formatHours     = "%dh %dm"
	formatGB        = "%.1f GB"
	formatMB        = "%.1f MB"
	formatKB        = "%.1f KB"
	formatBytes     = "%d B"
)

// Extensions by audio MIME type, for naming captured reference clips.
var extensionsByMIME = map[string]string{
	"audio/webm": ".webm",
	"audio/ogg":  ".ogg",
	"audio/wav":  ".wav",
	"audio/wave": ".wav",
	"audio/mpeg": ".mp3",
	"audio/mp4":  ".m4a",
	"audio/flac": ".flac",
	"audio/aac":  ".aac",
}

const errFmtFailedToCreateDir = "failed to create directory %s: %w"

// DefaultDataDir returns the directory used by the offline CLI, honoring the
// VOICE_STUDIO_DATA_DIR override.
func DefaultDataDir() string {
	if dataDir := os.Getenv(envDataDir); dataDir != "" {
		return dataDir
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(tmpDir, appName, dataDirName)
	}

	return filepath.Join(homeDir, dotLocalShare, appName)
}

// EnsureDir ensures a directory exists at the given path, creating it if it doesn't.
func EnsureDir(path string) error {
	_, statErr := os.Stat(path)
	if os.IsNotExist(statErr) {
		mkdirErr := os.MkdirAll(path, defaultDirPermissions)
		if mkdirErr != nil {
			return fmt.Errorf(errFmtFailedToCreateDir, path, mkdirErr)
		}
	}

	return nil
}

// FormatDuration formats a duration in a human-readable string (e.g., "1h 15m", "5m
// 30.5s", "45.2s").
func FormatDuration(duration time.Duration) string {
	seconds := duration.Seconds()

	if seconds < secondsInMinute {
		return fmt.Sprintf(formatSeconds, seconds)
	}

	if seconds < secondsInHour {
		minutes := int(seconds / secondsInMinute)
		remainingSeconds := seconds - float64(minutes*secondsInMinute)

		return fmt.Sprintf(formatMinutes, minutes, remainingSeconds)
	}

	hours := int(seconds / secondsInHour)
	remainingSeconds := seconds - float64(hours*secondsInHour)
	remainingMinutes := int(remainingSeconds / secondsInMinute)

	return fmt.Sprintf(formatHours, hours, remainingMinutes)
}

// FormatFileSize formats a file size in a human-readable string (e.g., "1.2 GB", "500.5
// MB").
func FormatFileSize(bytes int64) string {
	switch {
	case bytes >= gigabyte:
		return fmt.Sprintf(formatGB, float64(bytes)/gigabyte)
	case bytes >= megabyte:
		return fmt.Sprintf(formatMB, float64(bytes)/megabyte)
	case bytes >= kilobyte:
		return fmt.Sprintf(formatKB, float64(bytes)/kilobyte)
	default:
		return fmt.Sprintf(formatBytes, bytes)
	}
}

// SanitizeFilename replaces characters that are invalid in most filesystems. A name that is
// empty after trimming becomes "audio".
func SanitizeFilename(filename string) string {
	replacer := strings.NewReplacer(
		"<", invalidCharReplacement,
		">", invalidCharReplacement,
		":", invalidCharReplacement,
		"\"", invalidCharReplacement,
		"/", invalidCharReplacement,
		"\\", invalidCharReplacement,
		"|", invalidCharReplacement,
		"?", invalidCharReplacement,
		"*", invalidCharReplacement,
	)

	sanitized := strings.TrimSpace(replacer.Replace(filename))
	if sanitized == "" || strings.Trim(sanitized, ".") == "" {
		return fallbackFilename
	}

	return sanitized
}

// ExtensionForMIME returns the file extension for an audio MIME type, ignoring parameters
// such as codecs. Unknown types yield an empty string.
func ExtensionForMIME(mimeType string) string {
	base, _, _ := strings.Cut(mimeType, ";")

	return extensionsByMIME[strings.ToLower(strings.TrimSpace(base))]
}

// RecordingName returns the default name of a microphone capture started at t.
func RecordingName(startedAt time.Time, mimeType string) string {
	extension := ExtensionForMIME(mimeType)
	if extension == "" {
		extension = ".webm"
	}

	return "Recording_" + startedAt.Format(recordingTimeLayout) + extension
}

// WithExtension sets the extension of a sanitized file name unless it already has it.
func WithExtension(name, extension string) string {
	sanitized := SanitizeFilename(name)
	if strings.EqualFold(filepath.Ext(sanitized), extension) {
		return sanitized
	}

	return sanitized + extension
}

// MIMEForFile guesses the audio MIME type of a file from its extension. Unknown extensions
// yield application/octet-stream.
func MIMEForFile(name string) string {
	extension := strings.ToLower(filepath.Ext(name))

	for mimeType, candidate := range extensionsByMIME {
		if candidate == extension && mimeType != "audio/wave" {
			return mimeType
		}
	}

	return "application/octet-stream"
}
