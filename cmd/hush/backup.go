package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/samber/do/v2"
	cli "github.com/urfave/cli/v3"

	"github.com/hushapp/hush/internal/backup"
	"github.com/hushapp/hush/internal/di/providers"
	"github.com/hushapp/hush/internal/logger"
)

func backupCommand() *cli.Command {
	return &cli.Command{
		Name:            "backup",
		Usage:           "Creates and restores archives of reading progress",
		HideHelpCommand: true,
		Commands: []*cli.Command{
			{
				Name:         "create",
				Usage:        "Writes a backup archive",
				ArgsUsage:    "[DESTINATION]",
				OnUsageError: usageErrorHandler,
				Action: withBackups(func(ctx context.Context, cmd *cli.Command, svc *backup.BackupService) error {
					res, err := svc.Create(ctx, cmd.Args().First())
					if err != nil {
						return err
					}
					fmt.Printf("Backup written to %s\n", res.Path)
					fmt.Printf("  progress:  %d\n  narration: %d\n  size:      %d bytes\n  sha256:    %s\n",
						res.Counts.Progress, res.Counts.Narration, res.Size, res.Checksum)
					return nil
				}),
			},
			{
				Name:         "list",
				Usage:        "Lists archives in the backup directory",
				OnUsageError: usageErrorHandler,
				Action: withBackups(func(ctx context.Context, _ *cli.Command, svc *backup.BackupService) error {
					infos, err := svc.List(ctx)
					if err != nil {
						return err
					}
					if len(infos) == 0 {
						fmt.Println("No backups")
						return nil
					}
					tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
					fmt.Fprintln(tw, "ID\tCREATED\tSIZE")
					for _, info := range infos {
						fmt.Fprintf(tw, "%s\t%s\t%d\n", info.ID, info.CreatedAt.Local().Format(time.DateTime), info.Size)
					}
					return tw.Flush()
				}),
			},
			{
				Name:         "restore",
				Usage:        "Restores progress from an archive",
				ArgsUsage:    "BACKUP",
				OnUsageError: usageErrorHandler,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "mode", Value: string(backup.RestoreModeMerge), Usage: "restore `MODE` (full, merge)"},
					&cli.StringFlag{Name: "strategy", Value: string(backup.MergeNewest), Usage: "merge conflict `STRATEGY` (keep_local, keep_backup, newest)"},
					&cli.BoolFlag{Name: "dry-run", Usage: "report what would be restored without writing"},
				},
				Action: withBackups(func(ctx context.Context, cmd *cli.Command, svc *backup.BackupService) error {
					path, err := backupPath(cmd, svc)
					if err != nil {
						return err
					}
					res, err := svc.Restore(ctx, path, backup.RestoreOptions{
						Mode:          backup.RestoreMode(cmd.String("mode")),
						MergeStrategy: backup.MergeStrategy(cmd.String("strategy")),
						DryRun:        cmd.Bool("dry-run"),
					})
					if err != nil {
						return err
					}
					fmt.Printf("Imported %d progress and %d narration records, skipped %d and %d\n",
						res.Imported.Progress, res.Imported.Narration, res.Skipped.Progress, res.Skipped.Narration)
					for _, e := range res.Errors {
						fmt.Printf("  %s %s: %s\n", e.EntityType, e.EntityID, e.Error)
					}
					return nil
				}),
			},
			{
				Name:         "validate",
				Usage:        "Checks an archive without restoring it",
				ArgsUsage:    "BACKUP",
				OnUsageError: usageErrorHandler,
				Action: withBackups(func(ctx context.Context, cmd *cli.Command, svc *backup.BackupService) error {
					path, err := backupPath(cmd, svc)
					if err != nil {
						return err
					}
					res, err := svc.Validate(ctx, path)
					if err != nil {
						return err
					}
					for _, w := range res.Warnings {
						fmt.Printf("warning: %s\n", w)
					}
					if !res.Valid {
						for _, e := range res.Errors {
							fmt.Printf("error: %s\n", e)
						}
						return errors.New("backup is not valid")
					}
					fmt.Printf("Backup is valid: %d progress, %d narration records\n",
						res.Manifest.Counts.Progress, res.Manifest.Counts.Narration)
					return nil
				}),
			},
		},
	}
}

// withBackups resolves the backup service for a subcommand.
func withBackups(fn func(ctx context.Context, cmd *cli.Command, svc *backup.BackupService) error) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		return withContainer(cmd, providers.RunMode{}, func(injector *do.RootScope, _ *logger.Logger) error {
			svc, err := do.Invoke[*backup.BackupService](injector)
			if err != nil {
				return err
			}
			return fn(ctx, cmd, svc)
		})
	}
}

// backupPath accepts either a path to an archive or the id of one in the
// backup directory.
func backupPath(cmd *cli.Command, svc *backup.BackupService) (string, error) {
	arg := cmd.Args().First()
	if arg == "" {
		return "", errors.New("no backup has been specified")
	}
	if _, err := os.Stat(arg); err == nil {
		return arg, nil
	}
	return svc.GetPath(arg), nil
}
