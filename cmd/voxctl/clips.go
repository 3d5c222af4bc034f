package main

import (
	"io"

	"github.com/book-expert/voice-studio/internal/core"
	"github.com/spf13/cobra"
)

func newClipsCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clips",
		Short: "List, download and delete generated clips",
	}

	cmd.AddCommand(
		newClipsListCmd(opts),
		newDownloadCmd(opts, core.KindGeneratedClip),
		newDeleteCmd(opts, core.KindGeneratedClip),
	)

	return cmd
}

func newClipsListCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List generated clips, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStudio(cmd, opts, func(e *env) error {
				entries, err := e.studio.Clips(cmd.Context(), e.scope)
				if err != nil {
					return err
				}

				views := clipViews(entries, e.cfg.Audio)

				return e.emit(views, func(w io.Writer) error {
					return writeClipTable(w, views)
				})
			})
		},
	}
}

func newDownloadCmd(opts *options, kind core.Kind) *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "download <id>",
		Short: "Write the stored audio to a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStudio(cmd, opts, func(e *env) error {
				download, err := e.studio.Download(cmd.Context(), e.scope, kind, args[0])
				if err != nil {
					return err
				}

				written, err := writeFile(download, path)
				if err != nil {
					return err
				}

				payload := map[string]any{"id": args[0], "path": written, "contentType": download.ContentType}

				return e.emit(payload, writePlain("%s\n", written))
			})
		},
	}

	cmd.Flags().StringVar(&path, "out", "", "destination path (defaults to the suggested file name)")

	return cmd
}

func newDeleteCmd(opts *options, kind core.Kind) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a record and its stored audio",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStudio(cmd, opts, func(e *env) error {
				var err error
				if kind == core.KindReferenceVoice {
					err = e.studio.DeleteVoice(cmd.Context(), e.scope, args[0])
				} else {
					err = e.studio.DeleteClip(cmd.Context(), e.scope, args[0])
				}

				if err != nil {
					return err
				}

				payload := map[string]any{"id": args[0], "deleted": true}

				return e.emit(payload, writePlain("deleted %s\n", args[0]))
			})
		},
	}
}
