package memory

import (
	"context"
	"fmt"

	"github.com/aretw0/parley/pkg/domain"
)

// Loader implements ports.BotLoader for a bot built in code (see package dsl).
type Loader struct {
	bot *domain.Bot
}

// NewLoader wraps an already-built bot.
func NewLoader(bot *domain.Bot) *Loader {
	return &Loader{bot: bot}
}

// Load returns the wrapped bot.
func (l *Loader) Load(ctx context.Context) (*domain.Bot, error) {
	if l.bot == nil {
		return nil, fmt.Errorf("%w: no bot to load", domain.ErrInvalidArgument)
	}
	return l.bot, nil
}
