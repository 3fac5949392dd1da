package ports

import (
	"context"

	"github.com/aretw0/settle/pkg/domain"
)

// Engine is the interface drivers (HTTP, MCP, Lambda, the polling runner) use to
// feed activations to the debounce core.
type Engine interface {
	// Process classifies one activation and performs its store mutations.
	Process(ctx context.Context, act domain.Activation) (*domain.Outcome, error)

	// Inspect returns the persisted state of a conversation without mutating it.
	Inspect(ctx context.Context, key domain.ConversationKey) (*domain.Snapshot, error)
}

// KeyResolver is implemented by engines that can tell which conversation an
// activation belongs to before processing it, with their defaults applied.
type KeyResolver interface {
	ResolveKey(act domain.Activation) (domain.ConversationKey, error)
}
