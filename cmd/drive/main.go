package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run executes one command line and releases everything the session opened.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	s := &session{}
	root := newRootCmd(s)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	s.close()
	return err
}

func newRootCmd(s *session) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "drive",
		Short: "Terminal client for your drive",
		Long: `drive - browse, search and manage a remote drive from the terminal.

Run without arguments for the interactive browser.

TUI Keybindings:
  j/k         Move down/up
  h/l         Back / open folder or file
  gg/G        Jump to top/bottom
  0-9         Jump to breadcrumb
  tab         Switch between "my drive" and "shared with me"
  /           Search (esc clears)
  a e d s u   New folder, rename, delete, share, upload
  o y r       Open preview, copy id, refresh
  ?           Show help overlay
  q           Quit

Data:
  Config   ~/.config/drive/config.json (DRIVE_* env overrides)
  Local    ~/.local/share/drive/drive.db (when no api.baseUrl is set)`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return s.open(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.runTUI(cmd.Context())
		},
	}

	rootCmd.PersistentFlags().StringVarP(&s.configPath, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&s.localPath, "local", "", "Use the local SQLite database at this path")
	rootCmd.PersistentFlags().StringVar(&s.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")

	rootCmd.AddCommand(newLsCmd(s))
	rootCmd.AddCommand(newFindCmd(s))
	rootCmd.AddCommand(newGetCmd(s))
	rootCmd.AddCommand(newPutCmd(s))
	rootCmd.AddCommand(newMkdirCmd(s))
	rootCmd.AddCommand(newRmCmd(s))
	rootCmd.AddCommand(newMvCmd(s))
	rootCmd.AddCommand(newShareCmd(s))
	rootCmd.AddCommand(newMeCmd(s))

	return rootCmd
}
