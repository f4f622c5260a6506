// Command alchemist profiles, cleans and converts tabular files without a
// server. Cleaning steps come from a YAML or JSON pipeline file.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/danchege/Alchemist/internal/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var version = "dev"

func newRootCmd() *cobra.Command {
	var cfgFile string
	var logCloser io.Closer

	root := &cobra.Command{
		Use:   "alchemist",
		Short: "Profile, clean and convert tabular data files",
		Long: `alchemist loads CSV, TSV, JSON, Excel and SQLite files and runs the same
cleaning operations as the web app: deduplication, missing-value fill,
outlier removal, type conversion, text cleanup and value clustering.

Large delimited files are staged in SQLite so they never have to fit in memory.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			closer, err := initConfig(cmd, cfgFile)
			logCloser = closer
			return err
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			if logCloser != nil {
				logCloser.Close()
			}
		},
	}

	// Global flags
	flags := root.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default: ./alchemist.yaml or $HOME/.config/alchemist/config.yaml)")
	flags.String("log-level", "warn", "log level (debug, info, warn, error)")
	flags.String("log-format", "text", "log format (text, json)")
	flags.String("data-dir", os.TempDir(), "directory for large-file staging databases")
	flags.Int64("large-file-threshold", 25<<20, "delimited file size in bytes at which SQLite staging is used")
	flags.Int("batch-size", 5000, "rows per insert batch when staging a large file")
	flags.Bool("no-progress", false, "disable the load progress bar")

	root.AddCommand(profileCmd())
	root.AddCommand(cleanCmd())
	root.AddCommand(convertCmd())
	root.AddCommand(clustersCmd())
	return root
}

// initConfig binds flags to viper, reads the optional config file and
// installs the logger.
func initConfig(cmd *cobra.Command, cfgFile string) (io.Closer, error) {
	for key, flag := range map[string]string{
		"logging.level":        "log-level",
		"logging.format":       "log-format",
		"data_dir":             "data-dir",
		"large_file_threshold": "large-file-threshold",
		"batch_size":           "batch-size",
		"no_progress":          "no-progress",
	} {
		if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return nil, fmt.Errorf("bind flag %s: %w", flag, err)
		}
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("alchemist")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(home + "/.config/alchemist")
		}
	}

	viper.SetEnvPrefix("ALCHEMIST")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	closer := logging.Setup(logging.Options{
		Level:  viper.GetString("logging.level"),
		Format: viper.GetString("logging.format"),
		File:   viper.GetString("logging.file"),
		Output: os.Stderr,
	})
	return closer, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
