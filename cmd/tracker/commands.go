package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"finance-tracker/internal/backup"
	"finance-tracker/internal/config"
	"finance-tracker/internal/models"
	"finance-tracker/internal/session"
	"finance-tracker/internal/syncer"
	"finance-tracker/internal/utils"
)

func newStatusCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show local sync and backup state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, opts, false, func(_ context.Context, cfg *config.Config, s *session.Session) error {
				w := cmd.OutOrStdout()
				fmt.Fprintln(w, titleStyle.Render("Finance tracker"))
				row(w, "User", s.Sync.UserID())
				row(w, "Proxy", cfg.APIBaseURL)
				row(w, "Cloud sync", onOff(s.Sync.SyncEnabled()))

				rec, err := s.Local.SyncStatus()
				if err != nil {
					return err
				}
				if rec != nil {
					status := rec.Status
					if rec.Error != "" {
						status += " (" + rec.Error + ")"
					}
					row(w, "Last status", status)
					row(w, "Last sync", orNever(rec.LastSync))
					row(w, "Last load", orNever(rec.LastLoad))
				}

				auto, err := s.Backups.AutoBackupEnabled()
				if err != nil {
					return err
				}
				row(w, "Auto backup", onOff(auto))
				last, err := s.Backups.LastBackupDate()
				if err != nil {
					return err
				}
				row(w, "Last backup", orNever(last))
				row(w, "Backup dir", s.Backups.Dir())

				if until, err := s.Insights.Limiter().CooldownUntil(); err == nil && !until.IsZero() {
					row(w, "AI cooldown", until.Local().Format(time.Kitchen))
				}
				return nil
			})
		},
	}
}

func newSyncCmd(opts *options) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Load the cloud copy and push it back",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, opts, true, func(ctx context.Context, _ *config.Config, s *session.Session) error {
				if err := requireCloudLoaded(s, force); err != nil {
					return err
				}
				return s.Sync.SyncNow(ctx)
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "push even if the cloud copy could not be loaded")
	return cmd
}

func newLoadCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "load",
		Short: "Load the cloud copy and print a summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, opts, true, func(_ context.Context, _ *config.Config, s *session.Session) error {
				if err := s.Sync.LastError(); err != nil && s.Sync.Status() == syncer.StatusError {
					return fmt.Errorf("load failed: %w", err)
				}
				w := cmd.OutOrStdout()
				d := s.State.Snapshot()
				sum := models.Summarize(d, time.Now())
				fmt.Fprintln(w, titleStyle.Render("Cloud data"))
				row(w, "Expenses", strconv.Itoa(len(d.Expenses)))
				row(w, "Investments", strconv.Itoa(len(d.Investments)))
				row(w, "Budgets", strconv.Itoa(len(d.Budgets)))
				row(w, "Goals", strconv.Itoa(len(d.CustomGoals)))
				row(w, "This month", utils.FormatAmount(sum.ThisMonthSpent, d.PrivacySettings.HideExpenses))
				row(w, "Savings rate", sum.SavingsRate+"%")
				row(w, "Last updated", orNever(d.LastUpdated))
				return nil
			})
		},
	}
}

func newClearCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete this user's cloud data",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, opts, false, func(ctx context.Context, _ *config.Config, s *session.Session) error {
				err := s.Sync.ClearRemote(ctx, func(prompt string) bool { return confirm(opts, prompt) })
				if errors.Is(err, syncer.ErrCancelled) {
					fmt.Fprintln(cmd.OutOrStdout(), "Cancelled.")
					return nil
				}
				return err
			})
		},
	}
}

func newBackupCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "backup",
		Short: "Write a snapshot of the cloud data to the backup directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, opts, true, func(_ context.Context, _ *config.Config, s *session.Session) error {
				art, err := s.Backups.CreateSnapshot(false)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render("✓ Backup written to "+art.Path))
				return nil
			})
		},
	}
}

func newExportCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Write a portable export without the API key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, opts, true, func(_ context.Context, _ *config.Config, s *session.Session) error {
				art, err := s.Backups.ExportSnapshot()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render("✓ Export written to "+art.Path))
				return nil
			})
		},
	}
}

func newRestoreCmd(opts *options, use, short string) *cobra.Command {
	var noPush, force bool
	cmd := &cobra.Command{
		Use:   use + " <file>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, true, func(ctx context.Context, _ *config.Config, s *session.Session) error {
				if !noPush {
					if err := requireCloudLoaded(s, force); err != nil {
						return err
					}
				}
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()

				var res *backup.Result
				if use == "restore" {
					res, err = s.Backups.RestoreFromFile(f)
				} else {
					res, err = s.Backups.ImportSnapshot(f)
				}
				if err != nil {
					return err
				}
				if res.NeedsReinitialize {
					s.State.Reinitialize()
				}

				w := cmd.OutOrStdout()
				for _, v := range res.Fields {
					switch v.Outcome {
					case backup.OutcomeValid:
						fmt.Fprintln(w, okStyle.Render("✓ "+string(v.Field)))
					case backup.OutcomeInvalid:
						fmt.Fprintln(w, errStyle.Render("✗ "+string(v.Field)+": "+v.Reason))
					}
				}
				if noPush {
					return nil
				}
				return s.Sync.SyncNow(ctx)
			})
		},
	}
	cmd.Flags().BoolVar(&noPush, "no-push", false, "do not push the result to the cloud")
	cmd.Flags().BoolVar(&force, "force", false, "push even if the cloud copy could not be loaded")
	return cmd
}

func newCSVCmd(opts *options) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "csv",
		Short: "Write the cloud data as a CSV report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, opts, true, func(_ context.Context, cfg *config.Config, s *session.Session) error {
				now := time.Now()
				d := s.State.Snapshot()
				var buf bytes.Buffer
				if err := utils.GenerateDatasetCSV(d, models.Summarize(d, now), &buf); err != nil {
					return err
				}
				path := out
				if path == "" {
					path = filepath.Join(cfg.BackupDir, utils.CSVFilename(now))
				}
				if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
					return err
				}
				if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render("✓ CSV written to "+path))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output path (default: backup directory)")
	return cmd
}

func newResetLocalCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "reset-local",
		Short: "Clear local markers and preferences (the user id is kept)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, opts, false, func(_ context.Context, _ *config.Config, s *session.Session) error {
				if !confirm(opts, "Clear all local data and settings? Cloud data is kept.") {
					fmt.Fprintln(cmd.OutOrStdout(), "Cancelled.")
					return nil
				}
				if err := s.Local.ClearLocal(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render("✓ Local data cleared"))
				return nil
			})
		},
	}
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

func orNever(s string) string {
	if s == "" {
		return "never"
	}
	return s
}
