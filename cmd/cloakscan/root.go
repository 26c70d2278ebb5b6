package cloakscan

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/cloakscan/cloakscan/internal/config"
	"github.com/cloakscan/cloakscan/internal/logger"
)

var (
	flagRules     string
	flagThreads   int
	flagNoColor   bool
	flagLogLevel  string
	flagLogFormat string
	flagLogFile   string

	version = "0.1.0"

	log = zerolog.Nop()
)

// errFindings signals exit code 1: the command ran but reported findings
// at or above the failure threshold.
var errFindings = errors.New("findings at or above the failure threshold")

// rootCmd is the base Cobra command for the cloakscan CLI.
var rootCmd = &cobra.Command{
	Use:               "cloakscan",
	Short:             "Find secrets and insecure code in your source tree",
	Long:              "cloakscan scans a source tree with literal, regex and entropy rules and reports hard-coded secrets, credentials and insecure API use.",
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setupLogger,
}

// Execute runs the cloakscan CLI. It should be called by the main package.
// Exit codes: 0 clean, 1 findings, 2 error.
func Execute() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(ctx)
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errFindings):
		return 1
	default:
		fmt.Fprintln(os.Stderr, "error:", err)
		return 2
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagRules, "rules", "", "custom rule file (YAML or JSON) overlaid on the built-in rules")
	rootCmd.PersistentFlags().IntVar(&flagThreads, "threads", 0, "worker count (0 = GOMAXPROCS)")
	rootCmd.PersistentFlags().BoolVar(&flagNoColor, "no-color", false, "disable colorized output")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level: trace|debug|info|warn|error (default warn)")
	rootCmd.PersistentFlags().StringVar(&flagLogFormat, "log-format", "", "log format on stderr: console|json")
	rootCmd.PersistentFlags().StringVar(&flagLogFile, "log-file", "", "also write JSON logs to this rotating file")
}

// setupLogger builds the process logger from flags and config files. The
// local config is read from the scan root when the command has one.
func setupLogger(cmd *cobra.Command, args []string) error {
	lcfg, gcfg, err := config.Load(configRoot(cmd, args))
	if err != nil {
		return err
	}
	var lvl, format, file *string
	if lcfg.Log != nil {
		lvl, format, file = lcfg.Log.Level, lcfg.Log.Format, lcfg.Log.File
	}
	var glvl, gformat, gfile *string
	if gcfg.Log != nil {
		glvl, gformat, gfile = gcfg.Log.Level, gcfg.Log.Format, gcfg.Log.File
	}
	l, err := logger.New(logger.Config{
		Level:    pickString(flagLogLevel, lvl, glvl),
		Format:   logger.Format(pickString(flagLogFormat, format, gformat)),
		FilePath: pickString(flagLogFile, file, gfile),
		NoColor:  pickBool(flagNoColor, lcfg.NoColor, gcfg.NoColor),
	})
	if err != nil {
		return err
	}
	log = l
	log.Debug().Str("command", cmd.CommandPath()).Msg("starting")
	return nil
}
