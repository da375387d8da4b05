package ports

import (
	"context"

	"github.com/aretw0/parley/pkg/domain"
)

// BotLoader defines how the runtime obtains its bot definition.
// The definition is loaded once before the runtime starts and treated as immutable.
type BotLoader interface {
	Load(ctx context.Context) (*domain.Bot, error)
}

// Watchable defines an interface for loaders that can notify about backend changes.
// Hosts use it to rebuild a runtime when the bot definition is edited.
type Watchable interface {
	// Watch returns a channel that is signaled when the underlying definition changes.
	Watch(ctx context.Context) (<-chan struct{}, error)
}
