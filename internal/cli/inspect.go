package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/aretw0/parley/internal/presentation/graph"
	"github.com/aretw0/parley/internal/validator"
)

// Validate compiles the bot and trains its recognizer, then prints a summary
// followed by structural warnings.
func Validate(ctx context.Context, opts RunOptions) error {
	cfg, logger, err := Setup(opts)
	if err != nil {
		return err
	}
	bot, err := LoadBot(ctx, cfg.Bot)
	if err != nil {
		return err
	}
	rt, err := NewRuntime(bot, cfg, nil, logger)
	if err != nil {
		return err
	}
	defer rt.Stop(ctx)

	_, out := opts.streams()
	fmt.Fprintf(out, "Bot '%s' is valid: %d states, %d intents, %d events, %d entities.\n",
		bot.Name, len(bot.Graph.States), len(bot.Intents), len(bot.Events), len(bot.Entities))
	for _, f := range validator.Check(bot, rt.Registry()) {
		fmt.Fprintf(out, "warning: %s\n", f.Message)
	}
	return nil
}

// Graph prints the Mermaid flowchart of the bot. When SessionID is set, the
// session's current state is highlighted.
func Graph(ctx context.Context, opts RunOptions) error {
	cfg, _, err := Setup(opts)
	if err != nil {
		return err
	}
	bot, err := LoadBot(ctx, cfg.Bot)
	if err != nil {
		return err
	}

	var overlay *graph.Overlay
	if opts.SessionID != "" {
		p, err := OpenPersistence(cfg.Store)
		if err != nil {
			return err
		}
		defer p.Close()
		snap, err := p.Store.Load(ctx, opts.SessionID)
		if err != nil {
			return fmt.Errorf("failed to load session '%s': %w", opts.SessionID, err)
		}
		overlay = &graph.Overlay{Current: snap.StateName}
	}

	_, out := opts.streams()
	fmt.Fprint(out, graph.GenerateMermaid(bot.Graph, overlay))
	return nil
}

// ListSessions prints the IDs of the stored sessions.
func ListSessions(ctx context.Context, opts RunOptions) error {
	return withStore(opts, func(p *Persistence, out io.Writer) error {
		ids, err := p.Store.List(ctx)
		if err != nil {
			return fmt.Errorf("failed to list sessions: %w", err)
		}
		if len(ids) == 0 {
			fmt.Fprintln(out, "No active sessions found.")
			return nil
		}
		fmt.Fprintln(out, "Active Sessions:")
		for _, id := range ids {
			fmt.Fprintln(out, "- "+id)
		}
		return nil
	})
}

// InspectSession prints the stored snapshot of a session as JSON.
func InspectSession(ctx context.Context, opts RunOptions, id string) error {
	return withStore(opts, func(p *Persistence, out io.Writer) error {
		snap, err := p.Store.Load(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to load session '%s': %w", id, err)
		}
		data, err := json.MarshalIndent(snap, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(data))
		return nil
	})
}

// RemoveSessions deletes the given sessions, reporting each one.
func RemoveSessions(ctx context.Context, opts RunOptions, ids []string) error {
	return withStore(opts, func(p *Persistence, out io.Writer) error {
		var failed int
		for _, id := range ids {
			if err := p.Store.Delete(ctx, id); err != nil {
				fmt.Fprintf(out, "Error removing '%s': %v\n", id, err)
				failed++
				continue
			}
			fmt.Fprintf(out, "Removed session '%s'\n", id)
		}
		if failed > 0 {
			return fmt.Errorf("%d session(s) could not be removed", failed)
		}
		return nil
	})
}

func withStore(opts RunOptions, fn func(*Persistence, io.Writer) error) error {
	cfg, _, err := Setup(opts)
	if err != nil {
		return err
	}
	p, err := OpenPersistence(cfg.Store)
	if err != nil {
		return err
	}
	defer p.Close()
	_, out := opts.streams()
	return fn(p, out)
}
