package ports

import (
	"context"

	"github.com/aretw0/gamestate/pkg/domain"
)

// Presentation is the external rendering layer.
type Presentation interface {
	// StartState asks the presentation to show a state with the given data.
	StartState(ctx context.Context, name string, data domain.DataBag) error

	// UpdateAsynchronousData pushes values that changed while a state is shown.
	UpdateAsynchronousData(ctx context.Context, name string, data domain.DataBag) error

	// Messages delivers completion and negotiation messages from the presentation.
	Messages() <-chan domain.PresentationMessage
}

// Host is the host platform event source.
type Host interface {
	// Events delivers platform events. A nil channel means the host never sends events.
	Events() <-chan domain.HostEvent
}

// HostEventHandler handles a transactional host event inside its own transaction.
type HostEventHandler func(ctx context.Context, tx Transaction, event domain.HostEvent) error
