// Package cli provides the command-line front-end to the backend core. Each
// subcommand maps onto one command-surface operation.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/joshfom/tauri-drive/internal/commands"
	"github.com/joshfom/tauri-drive/internal/events"
	"github.com/joshfom/tauri-drive/internal/logging"
	"github.com/joshfom/tauri-drive/internal/store"
)

var (
	verbose bool

	logger *logging.Logger

	rootContext context.Context
	cancelFunc  context.CancelFunc

	app *commands.App
)

// Version information - set by the main package at startup.
var (
	Version   = "dev"
	BuildTime = ""
)

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "tauri-drive",
		Short: "Sync local files to an S3-compatible object store",
		Long: `tauri-drive is the backend for a desktop sync client targeting
S3-compatible object stores (Cloudflare R2 is the reference endpoint).
It manages bucket credentials, sync folder mappings, resumable multipart
uploads, and encrypted migration backups.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if verbose {
				logging.SetGlobalLevel(zerolog.DebugLevel)
			}
			return initApp(cmd.Context())
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			teardown()
		},
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(
		newConnectCommand(),
		newListCommand(),
		newUploadCommand(),
		newDownloadCommand(),
		newUploadsCommand(),
		newPauseCommand(),
		newResumeCommand(),
		newCancelCommand(),
		newRetryCommand(),
		newRemoveCommand(),
		newCopyCommand(),
		newMkdirCommand(),
		newFoldersCommand(),
		newSettingsCommand(),
		newBackupCommand(),
		newVersionCommand(),
	)

	return rootCmd
}

// Execute runs the CLI with signal-aware cancellation.
func Execute() int {
	logger = logging.NewDefaultLogger()

	rootContext, cancelFunc = context.WithCancel(context.Background())
	defer cancelFunc()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Warnf("interrupted, shutting down")
		cancelFunc()
	}()

	rootCmd := NewRootCommand()
	if err := rootCmd.ExecuteContext(rootContext); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func initApp(ctx context.Context) error {
	st, err := store.Open(ctx)
	if err != nil {
		return fmt.Errorf("failed to open application database: %w", err)
	}
	app = commands.NewApp(st, events.NewBus(0), logger)
	return nil
}

func teardown() {
	if app != nil {
		app.Bus().Close()
		if err := app.Store().Close(); err != nil {
			logger.Errorf("failed to close database: %v", err)
		}
	}
}

// connectForTransfer establishes the client from saved credentials. Commands
// that talk to the object store call this first.
func connectForTransfer(ctx context.Context) error {
	msg, err := app.LoadAndConnect(ctx)
	if err != nil {
		return err
	}
	logger.Debugf("%s", msg)
	return nil
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("tauri-drive %s", Version)
			if BuildTime != "" {
				fmt.Printf(" (built %s)", BuildTime)
			}
			fmt.Println()
		},
	}
}
