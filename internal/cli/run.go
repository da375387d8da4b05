package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/aretw0/parley"
	"github.com/aretw0/parley/internal/config"
	"github.com/aretw0/parley/internal/presentation/tui"
	"github.com/aretw0/parley/pkg/adapters/console"
	"github.com/aretw0/parley/pkg/adapters/file"
)

// Run starts a conversation with the bot on the terminal. With Watch set, the
// bot is reloaded whenever its file changes and the conversation resumes from
// the store.
func Run(ctx context.Context, opts RunOptions) error {
	cfg, logger, err := Setup(opts)
	if err != nil {
		return err
	}
	p, err := OpenPersistence(cfg.Store)
	if err != nil {
		return err
	}
	defer p.Close()

	in, out := opts.streams()
	sessionID := opts.SessionID
	if sessionID == "" {
		sessionID = console.DefaultSessionID
	}
	if opts.Fresh {
		if err := p.Store.Delete(ctx, sessionID); err != nil {
			return fmt.Errorf("failed to reset session '%s': %w", sessionID, err)
		}
	}

	con := console.New(
		console.WithIO(in, out),
		console.WithSessionID(sessionID),
		console.WithLogger(logger),
	)
	if console.IsTerminal(out) {
		tui.PrintBanner(out, parley.Version)
	}

	if opts.Watch {
		return runWatch(ctx, cfg, logger, p, con, out)
	}

	bot, err := LoadBot(ctx, cfg.Bot)
	if err != nil {
		return err
	}
	rt, err := NewRuntime(bot, cfg, p, logger)
	if err != nil {
		return err
	}
	if err := rt.Start(ctx); err != nil {
		return err
	}
	defer rt.Stop(context.Background())
	return handleExecutionError(con.Run(ctx, rt))
}

func runWatch(ctx context.Context, cfg *config.Config, logger *slog.Logger, p *Persistence, con *console.Console, out io.Writer) error {
	loader := file.NewLoader(cfg.Bot)
	loader.Logger = logger
	logger.Info("Starting watcher", "path", cfg.Bot)
	printSystemMessage(out, "Watching '%s'.", cfg.Bot)

	for {
		iterCtx, cancel := context.WithCancel(ctx)
		changes, err := loader.Watch(iterCtx)
		if err != nil {
			cancel()
			return err
		}

		rt, err := buildWatched(iterCtx, loader, cfg, p, logger)
		if err != nil {
			logger.Error("Bot reload failed", "err", err)
			printSystemMessage(out, "Bot is invalid: %v. Waiting for changes...", err)
			select {
			case <-ctx.Done():
				cancel()
				return nil
			case <-changes:
				cancel()
				continue
			}
		}

		go func() {
			select {
			case <-changes:
				logger.Info("Change detected, reloading", "path", cfg.Bot)
				printSystemMessage(out, "Change detected, reloading...")
				cancel()
			case <-iterCtx.Done():
			}
		}()

		runErr := con.Run(iterCtx, rt)
		if err := rt.Stop(context.Background()); err != nil {
			logger.Warn("Runtime stopped with errors", "err", err)
		}
		reloading := iterCtx.Err() != nil && ctx.Err() == nil
		cancel()
		if !reloading {
			return handleExecutionError(runErr)
		}
	}
}

func buildWatched(ctx context.Context, loader *file.Loader, cfg *config.Config, p *Persistence, logger *slog.Logger) (*parley.Runtime, error) {
	bot, err := loader.Load(ctx)
	if err != nil {
		return nil, err
	}
	rt, err := NewRuntime(bot, cfg, p, logger)
	if err != nil {
		return nil, err
	}
	if err := rt.Start(ctx); err != nil {
		return nil, err
	}
	return rt, nil
}
