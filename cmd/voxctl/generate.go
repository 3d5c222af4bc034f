package main

import (
	"io"
	"strings"

	"github.com/book-expert/voice-studio/internal/core"
	"github.com/book-expert/voice-studio/internal/library"
	"github.com/book-expert/voice-studio/internal/studio"
	"github.com/spf13/cobra"
)

func newGenerateCmd(opts *options) *cobra.Command {
	var (
		voice     string
		reference string
		save      string
	)

	cmd := &cobra.Command{
		Use:   "generate <text>",
		Short: "Synthesize speech and add the clip to the library",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStudio(cmd, opts, func(e *env) error {
				entry, err := e.studio.Generate(cmd.Context(), e.scope, studio.GenerateRequest{
					Text:             strings.Join(args, " "),
					Voice:            voice,
					ReferenceVoiceID: reference,
				})
				if err != nil {
					return err
				}

				if save != "" {
					download, err := e.studio.Download(cmd.Context(), e.scope, core.KindGeneratedClip, entry.Record.ID)
					if err != nil {
						return err
					}

					_, err = writeFile(download, save)
					if err != nil {
						return err
					}
				}

				view := clipViews([]library.Entry[core.GeneratedClip]{entry}, e.cfg.Audio)[0]

				return e.emit(view, func(w io.Writer) error {
					return writeClipTable(w, []clipView{view})
				})
			})
		},
	}

	cmd.Flags().StringVar(&voice, "voice", "", "preset voice name or id (default Zephyr)")
	cmd.Flags().StringVar(&reference, "reference", "", "reference voice id to imitate")
	cmd.Flags().StringVar(&save, "save", "", "also write the clip to this path")

	return cmd
}
