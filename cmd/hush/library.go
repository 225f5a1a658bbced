package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/samber/do/v2"
	cli "github.com/urfave/cli/v3"

	"github.com/hushapp/hush/internal/di/providers"
	"github.com/hushapp/hush/internal/domain"
	"github.com/hushapp/hush/internal/logger"
	"github.com/hushapp/hush/internal/story"
)

func listCommand() *cli.Command {
	return &cli.Command{
		Name:         "list",
		Usage:        "Lists the stories in the library with reading progress",
		OnUsageError: usageErrorHandler,
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "json", Usage: "print the catalog as JSON"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withContainer(cmd, providers.RunMode{}, func(injector *do.RootScope, _ *logger.Logger) error {
				loader := do.MustInvoke[*story.Loader](injector)
				progress := do.MustInvoke[*providers.StoreHandle](injector)

				entries, err := loader.Catalog(ctx)
				if err != nil {
					return err
				}
				if cmd.Bool("json") {
					enc := json.NewEncoder(os.Stdout)
					enc.SetIndent("", "  ")
					return enc.Encode(entries)
				}
				if len(entries) == 0 {
					fmt.Printf("No stories in %s\n", loader.Dir())
					return nil
				}

				saved, err := progress.ListProgress(ctx)
				if err != nil {
					return err
				}
				positions := make(map[string]*domain.ReadingProgress, len(saved))
				for _, p := range saved {
					positions[p.StoryID] = p
				}

				tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tTITLE\tAUTHOR\tLENGTH\tPROGRESS")
				for _, e := range entries {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", e.ID, e.Title, e.Author, e.ReadingTime, position(positions[e.ID], e.BlockCount))
				}
				return tw.Flush()
			})
		},
	}
}

func position(p *domain.ReadingProgress, total int) string {
	if p == nil {
		return "-"
	}
	return fmt.Sprintf("%d/%d", p.BlockIndex+1, total)
}

func indexCommand() *cli.Command {
	return &cli.Command{
		Name:         "index",
		Usage:        "Writes the story index JSON used by catalog pages",
		OnUsageError: usageErrorHandler,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "write the index to `FILE` (default: index.json in the stories directory)"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withContainer(cmd, providers.RunMode{}, func(injector *do.RootScope, log *logger.Logger) error {
				loader := do.MustInvoke[*story.Loader](injector)

				out := cmd.String("out")
				if out == "" {
					out = filepath.Join(loader.Dir(), "index.json")
				}
				entries, err := loader.WriteIndex(ctx, out)
				if err != nil {
					return err
				}
				log.Info("Story index written", "path", out, "stories", len(entries))
				fmt.Printf("Indexed %d stories into %s\n", len(entries), out)
				return nil
			})
		},
	}
}

func progressCommand() *cli.Command {
	return &cli.Command{
		Name:            "progress",
		Usage:           "Shows or clears saved reading positions",
		HideHelpCommand: true,
		Commands: []*cli.Command{
			{
				Name:         "list",
				Usage:        "Lists saved reading positions",
				OnUsageError: usageErrorHandler,
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return withContainer(cmd, providers.RunMode{}, func(injector *do.RootScope, _ *logger.Logger) error {
						progress := do.MustInvoke[*providers.StoreHandle](injector)

						saved, err := progress.ListProgress(ctx)
						if err != nil {
							return err
						}
						if len(saved) == 0 {
							fmt.Println("No saved progress")
							return nil
						}
						tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
						fmt.Fprintln(tw, "STORY\tBLOCK\tUPDATED")
						for _, p := range saved {
							fmt.Fprintf(tw, "%s\t%d\t%s\n", p.StoryID, p.BlockIndex+1, p.Timestamp.Local().Format(time.DateTime))
						}
						return tw.Flush()
					})
				},
			},
			{
				Name:         "reset",
				Usage:        "Forgets the saved position of a story",
				ArgsUsage:    "STORY",
				OnUsageError: usageErrorHandler,
				Action: func(ctx context.Context, cmd *cli.Command) error {
					storyID := cmd.Args().First()
					if storyID == "" {
						return errors.New("no story has been specified")
					}
					return withContainer(cmd, providers.RunMode{}, func(injector *do.RootScope, _ *logger.Logger) error {
						progress := do.MustInvoke[*providers.StoreHandle](injector)
						if err := progress.DeleteProgress(ctx, storyID); err != nil {
							return err
						}
						fmt.Printf("Progress for %s cleared\n", storyID)
						return nil
					})
				},
			},
		},
	}
}

func resetCommand() *cli.Command {
	return &cli.Command{
		Name:         "reset",
		Usage:        "Forgets every saved reading position",
		OnUsageError: usageErrorHandler,
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "confirm the reset"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if !cmd.Bool("yes") {
				return errors.New("reset removes all saved progress, rerun with --yes to confirm")
			}
			return withContainer(cmd, providers.RunMode{}, func(injector *do.RootScope, log *logger.Logger) error {
				progress := do.MustInvoke[*providers.StoreHandle](injector)

				saved, err := progress.ListProgress(ctx)
				if err != nil {
					return err
				}
				for _, p := range saved {
					if err := progress.DeleteProgress(ctx, p.StoryID); err != nil {
						return fmt.Errorf("clear %s: %w", p.StoryID, err)
					}
				}
				log.Info("Progress reset", "stories", len(saved))
				fmt.Printf("Cleared progress for %d stories\n", len(saved))
				return nil
			})
		},
	}
}
