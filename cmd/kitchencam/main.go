package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/keagan/kitchencam/internal/apperr"
	"github.com/keagan/kitchencam/internal/config"
	"github.com/keagan/kitchencam/internal/layout"
	"github.com/keagan/kitchencam/internal/logging"
	"github.com/keagan/kitchencam/internal/metrics"
	"github.com/keagan/kitchencam/internal/pipeline"
	"github.com/keagan/kitchencam/pkg/util"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// app is the state shared by one command invocation.
type app struct {
	cfgFile string
	debug   bool

	cfg     *config.Config
	logger  zerolog.Logger
	closer  io.Closer
	metrics *metrics.Recorder
}

// run executes the CLI and maps the outcome to an exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	// The daily log lives under the configured root, so failures before the
	// config loads are reported on stderr only.
	a := &app{logger: zerolog.Nop(), metrics: metrics.New()}

	rootCmd := a.rootCmd(stderr)
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		a.logger.Error().Err(err).Int("exit_code", apperr.ExitCode(err)).Msg("run failed")
		fmt.Fprintln(stderr, "Error:", err)
	}

	if a.cfg != nil {
		if merr := a.metrics.WriteTextfile(a.cfg.Metrics.Textfile); merr != nil {
			a.logger.Warn().Err(merr).Str("path", a.cfg.Metrics.Textfile).Msg("failed to write metrics textfile")
		}
	}
	if a.closer != nil {
		a.closer.Close()
	}

	return apperr.ExitCode(err)
}

func (a *app) rootCmd(stderr io.Writer) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "kitchencam",
		Short:         "kitchencam - recipe camera rig",
		Long:          "Records cooking sessions as segmented video plus per-second stills, compresses them, and samples stills from compressed video.",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Load config
			cfg, err := config.Load(a.cfgFile)
			if err != nil {
				return err
			}

			// Store config in context
			a.cfg = cfg
			cmd.SetContext(config.WithConfig(cmd.Context(), cfg))

			// Initialize logging
			logger, closer, err := logging.Init(logging.Options{
				Root:    cfg.Root,
				Debug:   a.debug,
				Console: stderr,
			})
			if err != nil {
				return err
			}
			a.logger, a.closer = logger, closer

			return nil
		},
	}
	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return apperr.Configuration("parse flags", err)
	})

	rootCmd.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default: ./kitchencam.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&a.debug, "debug", "d", false, "echo log lines to the console at debug level")

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Config management commands",
	}
	configCmd.AddCommand(a.configShowCmd())
	configCmd.AddCommand(a.configInitCmd())

	rootCmd.AddCommand(a.captureCmd())
	rootCmd.AddCommand(a.stillsCmd())
	rootCmd.AddCommand(a.compressCmd())
	rootCmd.AddCommand(configCmd)

	return rootCmd
}

func (a *app) pipeline(cfg *config.Config) (*pipeline.Pipeline, error) {
	return pipeline.New(a.logger, cfg, a.metrics)
}

func (a *app) captureCmd() *cobra.Command {
	var (
		recipe  string
		minutes int
		format  string
	)

	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Record a recipe as video segments or stills",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromContext(cmd.Context())

			if !cmd.Flags().Changed("recipe") {
				recipe = cfg.DefaultRecipe
			}
			if !cmd.Flags().Changed("minutes") {
				minutes = cfg.Capture.DefaultMinutes
			}
			if !cfg.HasRecipe(recipe) {
				return apperr.Configuration("capture", fmt.Errorf("unknown recipe %q (want one of %v)", recipe, cfg.Recipes))
			}
			if minutes < 0 {
				return apperr.Configuration("capture", fmt.Errorf("minutes must be >= 0, got %d", minutes))
			}
			f, err := layout.ParseFormat(format)
			if err != nil {
				return apperr.Configuration("capture", err)
			}

			rc, err := layout.NewRunContext(time.Now(), recipe, f, minutes*60)
			if err != nil {
				return err
			}

			pipe, err := a.pipeline(cfg)
			if err != nil {
				return err
			}

			res, err := pipe.Capture(cmd.Context(), rc)
			if res != nil && res.Session != nil {
				a.logger.Info().
					Str("recipe", rc.Recipe).
					Str("format", rc.Format.String()).
					Int("start_index", res.Session.StartIndex).
					Int("segments", len(res.Session.Segments)).
					Int("failed", res.Session.Failed()).
					Msg("capture complete")
			}
			return err
		},
	}

	cmd.Flags().StringVarP(&recipe, "recipe", "r", "", "recipe being cooked (default from config)")
	cmd.Flags().IntVarP(&minutes, "minutes", "m", 0, "minutes to record (default from config)")
	cmd.Flags().StringVarP(&format, "format", "f", "v", "v for video segments, s for stills only")

	return cmd
}

func (a *app) stillsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stills",
		Short: "Compress the source directory, then sample stills from compressed videos",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromContext(cmd.Context())

			pipe, err := a.pipeline(cfg)
			if err != nil {
				return err
			}

			res, err := pipe.Extract(cmd.Context())
			if res != nil {
				a.logger.Info().
					Int("directories", len(res.Dirs)).
					Int("stills", res.Written()).
					Msg("stills complete")
			}
			return err
		},
	}
}

func (a *app) compressCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compress [dir]",
		Short: "Transcode raw videos that have no compressed counterpart",
		Long:  "With a directory, compresses it into the sibling compressed_videos directory. Without one, compresses today's raw videos.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromContext(cmd.Context())

			pipe, err := a.pipeline(cfg)
			if err != nil {
				return err
			}

			if len(args) == 1 {
				_, err := pipe.CompressSibling(cmd.Context(), args[0])
				return err
			}

			dirs := layout.DirsFor(cfg.Root, layout.DateStamp(time.Now()))
			if err := dirs.Ensure(); err != nil {
				return err
			}
			_, err = pipe.Compress(cmd.Context(), dirs.RawVideo, dirs.CompressedVideo)
			return err
		},
	}
}

func (a *app) configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := config.FromContext(cmd.Context()).Marshal()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

func (a *app) configInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write the effective configuration to a file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "kitchencam.yaml"
			if len(args) == 1 {
				path = args[0]
			}
			if util.FileExists(path) && !force {
				return apperr.Configuration("config init", fmt.Errorf("%s already exists (use --force to overwrite)", path))
			}

			if err := config.FromContext(cmd.Context()).Save(path); err != nil {
				return apperr.Filesystem("write config", path, err)
			}
			a.logger.Info().Str("path", path).Msg("config written")
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	return cmd
}
