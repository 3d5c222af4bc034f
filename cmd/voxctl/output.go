package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/book-expert/voice-studio/internal/audio"
	"github.com/book-expert/voice-studio/internal/core"
	"github.com/book-expert/voice-studio/internal/fileutil"
	"github.com/book-expert/voice-studio/internal/library"
	"gopkg.in/yaml.v3"
)

const (
	outputText = "text"
	outputJSON = "json"
	outputYAML = "yaml"
)

var errUnknownOutput = errors.New("unknown output format")

// Formatter abstracts output formatting.
type Formatter interface {
	Write(w io.Writer, payload any) error
}

// JSONFormatter writes indented JSON output.
type JSONFormatter struct{}

// Write writes JSON payload to a writer.
func (f JSONFormatter) Write(w io.Writer, payload any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(payload)
}

// YAMLFormatter writes YAML output.
type YAMLFormatter struct{}

// Write writes YAML payload to a writer.
func (f YAMLFormatter) Write(w io.Writer, payload any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)

	err := enc.Encode(payload)
	if err != nil {
		return err
	}

	return enc.Close()
}

// formatterFor returns nil for plain text output.
func formatterFor(name string) (Formatter, error) {
	switch name {
	case outputText, "":
		return nil, nil
	case outputJSON:
		return JSONFormatter{}, nil
	case outputYAML:
		return YAMLFormatter{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownOutput, name)
	}
}

type clipView struct {
	ID        string `json:"id" yaml:"id"`
	CreatedAt string `json:"createdAt" yaml:"createdAt"`
	Voice     string `json:"voice" yaml:"voice"`
	Text      string `json:"text" yaml:"text"`
	State     string `json:"state" yaml:"state"`
	Size      int    `json:"sizeBytes" yaml:"sizeBytes"`
	Duration  string `json:"duration,omitempty" yaml:"duration,omitempty"`
}

type voiceView struct {
	ID          string `json:"id" yaml:"id"`
	CreatedAt   string `json:"createdAt" yaml:"createdAt"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Gender      string `json:"gender,omitempty" yaml:"gender,omitempty"`
	State       string `json:"state" yaml:"state"`
	Size        int    `json:"sizeBytes" yaml:"sizeBytes"`
}

// clipViews converts clip entries, estimating play time from the stored WAV size.
func clipViews(entries []library.Entry[core.GeneratedClip], format audio.Format) []clipView {
	views := make([]clipView, 0, len(entries))

	for _, entry := range entries {
		view := clipView{
			ID:        entry.Record.ID,
			CreatedAt: formatMillis(entry.Record.CreatedAt),
			Voice:     entry.Record.VoiceName,
			Text:      entry.Record.Text,
			State:     string(entry.State()),
			Size:      entry.Handle.Size(),
		}

		if view.Size > audio.HeaderSize {
			view.Duration = fileutil.FormatDuration(format.Duration(view.Size - audio.HeaderSize))
		}

		views = append(views, view)
	}

	return views
}

func voiceViews(entries []library.Entry[core.ReferenceVoice]) []voiceView {
	views := make([]voiceView, 0, len(entries))

	for _, entry := range entries {
		views = append(views, voiceView{
			ID:          entry.Record.ID,
			CreatedAt:   formatMillis(entry.Record.CreatedAt),
			Name:        entry.Record.Name,
			Description: entry.Record.Description,
			Gender:      string(entry.Record.Gender),
			State:       string(entry.State()),
			Size:        entry.Handle.Size(),
		})
	}

	return views
}

func writeClipTable(w io.Writer, views []clipView) error {
	table := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(table, "ID\tVOICE\tSTATE\tSIZE\tDURATION\tTEXT")

	for _, view := range views {
		fmt.Fprintf(table, "%s\t%s\t%s\t%s\t%s\t%s\n",
			view.ID, view.Voice, view.State, fileutil.FormatFileSize(int64(view.Size)), dash(view.Duration), view.Text)
	}

	return table.Flush()
}

func writeVoiceTable(w io.Writer, views []voiceView) error {
	table := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(table, "ID\tNAME\tGENDER\tSTATE\tSIZE\tDESCRIPTION")

	for _, view := range views {
		fmt.Fprintf(table, "%s\t%s\t%s\t%s\t%s\t%s\n",
			view.ID, view.Name, dash(view.Gender), view.State, fileutil.FormatFileSize(int64(view.Size)), dash(view.Description))
	}

	return table.Flush()
}

// emit writes payload through the formatter, or runs plain for text output.
func (e *env) emit(payload any, plain func(io.Writer) error) error {
	if e.formatter != nil {
		return e.formatter.Write(e.out, payload)
	}

	return plain(e.out)
}

func writePlain(format string, args ...any) func(io.Writer) error {
	return func(w io.Writer) error {
		_, err := fmt.Fprintf(w, format, args...)

		return err
	}
}

func formatMillis(millis int64) string {
	return time.UnixMilli(millis).UTC().Format(time.RFC3339)
}

func dash(value string) string {
	if value == "" {
		return "-"
	}

	return value
}
