package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"termsync/core/deleter"
	"termsync/core/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	projectFlag     string
	databaseFlag    string
	collectionsFlag []string
	yesFlag         bool
	dryRunFlag      bool
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "termsync",
	Short: "Terminology document store sync tool",
	Long: `termsync moves terminology data between a hierarchical document store,
portable snapshots and a relational sink. It also deletes store collections
within a time budget and verifies that nothing is left behind.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Interrupts cancel the command context so
// long deletions stop between documents.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := RootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		code := exitCode(err)
		// Console logger with ISO8601 timestamps for CLI errors.
		cfg := &logger.Config{
			Level:  "debug",
			Format: "console",
		}

		l, logErr := logger.New(cfg)
		switch {
		case logErr != nil:
			fmt.Println(err)
		case code == 0:
			l.Warn("command stopped early, run it again to resume", zap.Error(err))
		default:
			l.Error("command failed", zap.Error(err))
		}
		if l != nil {
			_ = l.Sync()
		}
		os.Exit(code)
	}
}

// exitCode maps a command error to the process exit code. A deletion that
// only ran out of time is resumable and exits 0; everything else, and any
// failed verification, exits 1.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, deleter.ErrVerificationFailed):
		return 1
	case errors.Is(err, deleter.ErrTimedOut):
		return 0
	default:
		return 1
	}
}

func init() {
	pf := RootCmd.PersistentFlags()
	pf.StringVar(&projectFlag, "project", "", "Firestore project id (overrides STORE_FIRESTORE_PROJECT_ID)")
	pf.StringVar(&databaseFlag, "database", "", "Firestore database id (overrides STORE_FIRESTORE_DATABASE)")
	pf.StringSliceVar(&collectionsFlag, "collections", nil, "Root collections to operate on (default: all)")
}
