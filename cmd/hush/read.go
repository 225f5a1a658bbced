package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/samber/do/v2"
	cli "github.com/urfave/cli/v3"

	"github.com/hushapp/hush/internal/config"
	"github.com/hushapp/hush/internal/di/providers"
	"github.com/hushapp/hush/internal/domain"
	"github.com/hushapp/hush/internal/logger"
	"github.com/hushapp/hush/internal/playback"
	"github.com/hushapp/hush/internal/reader"
	"github.com/hushapp/hush/internal/render"
	"github.com/hushapp/hush/internal/terminal"
)

func readCommand() *cli.Command {
	return &cli.Command{
		Name:         "read",
		Usage:        "Opens a story and reads it block by block",
		ArgsUsage:    "STORY",
		OnUsageError: usageErrorHandler,
		Action:       runRead,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "style", Usage: "transition `STYLE` (slide, fade, zoom, flip)"},
			&cli.StringFlag{Name: "transition", Usage: "transition `DURATION` (e.g. 1500ms)"},
			&cli.StringFlag{Name: "autoplay", Usage: "autoplay `MODE` used when autoplay is toggled (slow, normal, fast)"},
			&cli.BoolFlag{Name: "play", Aliases: []string{"p"}, Usage: "start with autoplay running"},
			&cli.StringFlag{Name: "stop-autoplay-on-manual", Usage: "manual navigation stops autoplay (true/false)"},
			&cli.StringFlag{Name: "narration", Aliases: []string{"n"}, Usage: "start with narration `MODE` (typingReveal, speech)"},
			&cli.StringFlag{Name: "narration-endpoint", Usage: "speech synthesis `URL`"},
			&cli.StringFlag{Name: "narration-token", Usage: "speech synthesis API `TOKEN`"},
			&cli.StringFlag{Name: "speak-command", Usage: "local speech `COMMAND` used when the service is unavailable"},
		},
	}
}

func runRead(ctx context.Context, cmd *cli.Command) error {
	storyID := cmd.Args().First()
	if storyID == "" {
		return errors.New("no story has been specified")
	}

	narration, err := domain.ParseNarrationMode(cmd.String("narration"))
	if err != nil {
		return err
	}

	term, err := terminal.Open(os.Stdin, os.Stdout)
	if err != nil {
		return err
	}
	defer term.Close()

	mode := providers.RunMode{Interactive: term.Interactive()}
	return withContainer(cmd, mode, func(injector *do.RootScope, log *logger.Logger) error {
		cfg := do.MustInvoke[*config.Config](injector)
		sessionCfg := do.MustInvoke[playback.SessionConfig](injector)
		bus := do.MustInvoke[*providers.EventBusHandle](injector)

		session, err := playback.Open(ctx, storyID, sessionCfg)
		if err != nil {
			return err
		}
		defer session.Close()

		if narration != domain.NarrationNone {
			if err := session.EnableNarration(narration); err != nil {
				log.Warn("Narration unavailable", "mode", narration, "error", err)
			}
		}
		if cmd.Bool("play") {
			session.StartAutoplay(sessionCfg.DefaultAutoplay)
		}

		r := reader.New(reader.Config{
			Session: session,
			Router: playback.NewRouter(session, playback.RouterConfig{
				SwipeThreshold: cfg.Playback.SwipeThreshold,
				Logger:         log.Logger,
			}),
			Renderers: render.NewTextRegistry(log.Logger, term.Color()),
			Events:    bus.Bus,
			Out:       term.Writer(),
			Width:     term.Width,
			Clear:     term.Clear,
			Color:     term.Color(),
			Logger:    log.Logger,
		})

		if err := r.Run(ctx, terminal.NewDecoder(os.Stdin)); err != nil {
			return err
		}

		state := session.Snapshot()
		term.Clear()
		fmt.Fprintf(term.Writer(), "%s: stopped at block %d of %d\n", session.Story().Title, state.CurrentIndex+1, state.Total)
		return nil
	})
}
