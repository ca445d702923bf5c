package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"finance-tracker/internal/config"
	"finance-tracker/internal/logging"
	"finance-tracker/internal/session"
	"finance-tracker/internal/syncer"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Width(16)
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

type options struct {
	assumeYes bool
	timeout   time.Duration
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "tracker",
		Short:         "Manual sync and backup operations for the finance tracker",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().BoolVarP(&opts.assumeYes, "yes", "y", false, "skip confirmation prompts")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 2*time.Minute, "overall timeout")

	root.AddCommand(
		newStatusCmd(opts),
		newSyncCmd(opts),
		newLoadCmd(opts),
		newClearCmd(opts),
		newBackupCmd(opts),
		newExportCmd(opts),
		newRestoreCmd(opts, "restore", "Restore a backup file and push it to the cloud"),
		newRestoreCmd(opts, "import", "Import an exported file and push it to the cloud"),
		newCSVCmd(opts),
		newResetLocalCmd(opts),
	)
	return root
}

// cliNotifier prints orchestrator notifications.
type cliNotifier struct{ w io.Writer }

func (n cliNotifier) Info(msg string)  { fmt.Fprintln(n.w, okStyle.Render("✓ "+msg)) }
func (n cliNotifier) Error(msg string) { fmt.Fprintln(n.w, errStyle.Render("✗ "+msg)) }

// withSession opens a session, optionally loads the cloud copy, runs fn and
// flushes pending changes on the way out.
func withSession(cmd *cobra.Command, opts *options, load bool, fn func(ctx context.Context, cfg *config.Config, s *session.Session) error) (err error) {
	cfg := config.Load()
	logging.Setup(os.Stderr, cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
	defer cancel()

	s, err := session.Open(cfg, cliNotifier{w: cmd.OutOrStdout()})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(ctx); cerr != nil && err == nil {
			err = cerr
		}
	}()

	if load {
		// The error is logged by the session; commands that push check
		// requireCloudLoaded before writing.
		_ = s.Start(ctx)
	}
	return fn(ctx, cfg, s)
}

var errCloudNotLoaded = errors.New("cloud data could not be loaded; refusing to overwrite it (use --force)")

// requireCloudLoaded stops a push that would replace the cloud copy with the
// local fallback after a failed startup load.
func requireCloudLoaded(s *session.Session, force bool) error {
	if force || s.Sync.Status() != syncer.StatusError {
		return nil
	}
	if err := s.Sync.LastError(); err != nil {
		return fmt.Errorf("%w: %v", errCloudNotLoaded, err)
	}
	return errCloudNotLoaded
}

func confirm(opts *options, prompt string) bool {
	if opts.assumeYes {
		return true
	}
	var ok bool
	form := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title(prompt).
			Affirmative("Yes").
			Negative("No").
			Value(&ok),
	))
	if err := form.Run(); err != nil {
		return false
	}
	return ok
}

func row(w io.Writer, label, value string) {
	fmt.Fprintln(w, labelStyle.Render(label)+value)
}
