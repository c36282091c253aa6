package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tanq16/tubeq/internal/config"
	"github.com/tanq16/tubeq/internal/engine"
	"github.com/tanq16/tubeq/internal/output"
	"github.com/tanq16/tubeq/utils"
)

var (
	cfgFile   string
	cfg       *config.Config
	logCloser io.Closer
	v         = viper.New()
)

var TubeqVersion = "dev"

var rootCmd = &cobra.Command{
	Use:           "tubeq",
	Short:         "tubeq queues and runs yt-dlp downloads",
	Version:       TubeqVersion,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(v, cfgFile)
		if err != nil {
			return err
		}
		cfg = loaded
		logFile := ""
		if cfg.FileLogging() {
			logFile = cfg.Log.File
		}
		logCloser = utils.InitLogger(utils.LogOptions{
			Level:      cfg.Log.Level,
			Debug:      cfg.Debug,
			File:       logFile,
			MaxSize:    cfg.Log.MaxSize,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAge:     cfg.Log.MaxAge,
		})
		log.Debug().Str("op", "cmd/root").Str("dataDir", cfg.DataDir).Msgf("starting %s", cmd.CommandPath())
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logCloser != nil {
			logCloser.Close()
		}
	},
}

func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		output.PrintError(fmt.Sprintf("Error: %v", err))
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default <data-dir>/config.yaml)")
	rootCmd.PersistentFlags().String("data-dir", config.DefaultDataDir(), "Directory for queue state, settings, tools and logs")
	rootCmd.PersistentFlags().String("bin-dir", "", "Directory for managed tools (default <data-dir>/bin)")
	rootCmd.PersistentFlags().String("log-level", config.DefaultLogLevel, "File log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging on the console")
	v.BindPFlag("data_dir", rootCmd.PersistentFlags().Lookup("data-dir"))
	v.BindPFlag("bin_dir", rootCmd.PersistentFlags().Lookup("bin-dir"))
	v.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	v.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))

	rootCmd.AddCommand(
		newAddCmd(),
		newBatchCmd(),
		newRunCmd(),
		newListCmd(),
		newPauseCmd(),
		newResumeCmd(),
		newCancelCmd(),
		newClearCmd(),
		newDeleteCmd(),
		newSettingsCmd(),
		newDiagnoseCmd(),
		newDepsCmd(),
		newCleanCmd(),
	)
}

func openEngine(ctx context.Context) (*engine.Engine, error) {
	return engine.Open(ctx, engine.Options{
		DataDir: cfg.DataDir,
		BinDir:  cfg.BinDir,
		Deps:    cfg.DepsOptions(),
		Archive: cfg.ArchiveOptions(),
	})
}
