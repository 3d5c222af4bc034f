package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/book-expert/voice-studio/internal/core"
	"github.com/book-expert/voice-studio/internal/fileutil"
	"github.com/book-expert/voice-studio/internal/library"
	"github.com/book-expert/voice-studio/internal/studio"
	"github.com/spf13/cobra"
)

func newVoicesCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "voices",
		Short: "Manage reference voices",
	}

	cmd.AddCommand(
		newVoicesAddCmd(opts),
		newVoicesListCmd(opts),
		newVoicesEditCmd(opts),
		newDownloadCmd(opts, core.KindReferenceVoice),
		newDeleteCmd(opts, core.KindReferenceVoice),
	)

	return cmd
}

func newVoicesAddCmd(opts *options) *cobra.Command {
	var (
		name     string
		mimeType string
	)

	cmd := &cobra.Command{
		Use:   "add <audio-file>",
		Short: "Analyze an audio file and store it as a reference voice",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[0], err)
			}

			if mimeType == "" {
				mimeType = fileutil.MIMEForFile(args[0])
			}

			if name == "" {
				base := filepath.Base(args[0])
				name = strings.TrimSuffix(base, filepath.Ext(base))
			}

			return withStudio(cmd, opts, func(e *env) error {
				entry, err := e.studio.AddReference(cmd.Context(), e.scope, studio.Upload{
					Name:     name,
					MIMEType: mimeType,
					Data:     data,
				})
				if err != nil {
					return err
				}

				return writeVoices(e, []library.Entry[core.ReferenceVoice]{entry}, true)
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "display name (defaults to the file name)")
	cmd.Flags().StringVar(&mimeType, "mime-type", "", "audio MIME type (guessed from the extension)")

	return cmd
}

func newVoicesListCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List reference voices, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStudio(cmd, opts, func(e *env) error {
				entries, err := e.studio.Voices(cmd.Context(), e.scope)
				if err != nil {
					return err
				}

				return writeVoices(e, entries, false)
			})
		},
	}
}

func newVoicesEditCmd(opts *options) *cobra.Command {
	var (
		name        string
		description string
	)

	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Rename a reference voice or replace its description",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStudio(cmd, opts, func(e *env) error {
				entries, err := e.studio.Voices(cmd.Context(), e.scope)
				if err != nil {
					return err
				}

				current, ok := findVoice(entries, args[0])
				if !ok {
					return fmt.Errorf("%w: %s", core.ErrRecordNotFound, args[0])
				}

				if !cmd.Flags().Changed("name") {
					name = current.Record.Name
				}

				if !cmd.Flags().Changed("description") {
					description = current.Record.Description
				}

				entry, err := e.studio.EditVoice(cmd.Context(), e.scope, args[0], name, description)
				if err != nil {
					return err
				}

				return writeVoices(e, []library.Entry[core.ReferenceVoice]{entry}, true)
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "new display name")
	cmd.Flags().StringVar(&description, "description", "", "new style description")

	return cmd
}

// writeVoices emits a single object when single is set, a list otherwise.
func writeVoices(e *env, entries []library.Entry[core.ReferenceVoice], single bool) error {
	views := voiceViews(entries)

	var payload any = views
	if single && len(views) == 1 {
		payload = views[0]
	}

	return e.emit(payload, func(w io.Writer) error {
		return writeVoiceTable(w, views)
	})
}

func findVoice(entries []library.Entry[core.ReferenceVoice], id string) (library.Entry[core.ReferenceVoice], bool) {
	for _, entry := range entries {
		if entry.Record.ID == id {
			return entry, true
		}
	}

	return library.Entry[core.ReferenceVoice]{}, false
}
