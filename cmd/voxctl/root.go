package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/voice-studio/internal/config"
	"github.com/book-expert/voice-studio/internal/core"
	"github.com/book-expert/voice-studio/internal/fileutil"
	"github.com/book-expert/voice-studio/internal/ledger"
	"github.com/book-expert/voice-studio/internal/objectstore"
	"github.com/book-expert/voice-studio/internal/studio"
	"github.com/book-expert/voice-studio/internal/tts"
	"github.com/spf13/cobra"
)

// options are the persistent flags shared by every command.
type options struct {
	configPath string
	scope      string
	output     string
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:           "voxctl",
		Short:         "voxctl generates speech and manages the local clip and voice library",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.Version = "0.1.0"
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to a TOML configuration file")
	cmd.PersistentFlags().StringVar(&opts.scope, "scope", "", "owner scope (defaults to library.default_scope)")
	cmd.PersistentFlags().StringVarP(&opts.output, "output", "o", outputText, "output format: text, json or yaml")

	cmd.AddCommand(
		newGenerateCmd(opts),
		newClipsCmd(opts),
		newVoicesCmd(opts),
		newReconcileCmd(opts),
	)

	return cmd
}

// env is an opened local studio.
type env struct {
	cfg       *config.Config
	studio    *studio.Studio
	scope     string
	formatter Formatter
	out       io.Writer
}

// withStudio opens the local library, runs fn and closes everything again.
func withStudio(cmd *cobra.Command, opts *options, fn func(*env) error) error {
	formatter, err := formatterFor(opts.output)
	if err != nil {
		return err
	}

	cfg, err := config.LoadFile(opts.configPath)
	if err != nil {
		return err
	}

	scope := opts.scope
	if scope == "" {
		scope = cfg.Library.DefaultScope
	}

	err = core.ValidateScope(scope)
	if err != nil {
		return err
	}

	dataDir := cfg.Storage.DataDir
	if dataDir == "" {
		dataDir = fileutil.DefaultDataDir()
	}

	err = fileutil.EnsureDir(dataDir)
	if err != nil {
		return err
	}

	err = fileutil.EnsureDir(cfg.Paths.BaseLogsDir)
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.Paths.BaseLogsDir, "voxctl.log")
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	defer func() { _ = log.Close() }()

	blobs, err := objectstore.NewFileStore(filepath.Join(dataDir, config.DefaultBlobDirName))
	if err != nil {
		return err
	}

	snapshots, err := ledger.OpenSQLite(filepath.Join(dataDir, config.DefaultLedgerFileName))
	if err != nil {
		return err
	}

	defer func() { _ = snapshots.Close() }()

	deps := studio.Dependencies{
		Blobs:     blobs,
		Snapshots: snapshots,
		Logger:    log,
		Format:    cfg.Audio,
		Limits: studio.Limits{
			MaxTextLength:     cfg.Library.MaxTextLength,
			DisplayTextLength: cfg.Library.DisplayTextLength,
			HydrationWorkers:  cfg.Library.HydrationWorkers,
		},
	}

	client, err := tts.NewGeminiClient(tts.ClientOptions{
		APIKey:            cfg.Generation.APIKey,
		BaseURL:           cfg.Generation.BaseURL,
		SpeechModel:       cfg.Generation.SpeechModel,
		AnalysisModel:     cfg.Generation.AnalysisModel,
		Timeout:           time.Duration(cfg.Generation.TimeoutSeconds) * time.Second,
		RequestsPerMinute: cfg.Generation.RequestsPerMinute,
	})

	switch {
	case err == nil:
		deps.Generator = client
		deps.Analyzer = client
	case errors.Is(err, tts.ErrAPIKeyRequired):
		log.Warn("No API key in %s; generation and analysis are disabled", cfg.Generation.APIKeyEnv)
	default:
		return err
	}

	voiceStudio, err := studio.New(deps)
	if err != nil {
		return err
	}
	defer voiceStudio.Close()

	return fn(&env{cfg: cfg, studio: voiceStudio, scope: scope, formatter: formatter, out: cmd.OutOrStdout()})
}

// writeFile writes a download next to the working directory unless a path is given.
func writeFile(download studio.Download, path string) (string, error) {
	if path == "" {
		path = download.FileName
	}

	err := os.WriteFile(path, download.Data, 0o600)
	if err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}

	return path, nil
}

func formatCLIError(err error) string {
	message := studio.Notification(err)
	if message == "" {
		return "error: " + err.Error()
	}

	return fmt.Sprintf("error: %s (%v)", message, err)
}
