// Package winsys wraps the OS-level window primitives the orchestrator
// consumes: enumeration and activation. The core treats both as opaque
// external calls and tolerates either failing.
package winsys

import (
	"context"

	"github.com/sdiallo/browserpilot/pkg/models"
)

// Enumerator lists the windows currently known to the window manager.
type Enumerator interface {
	Windows(ctx context.Context) ([]models.WindowDescriptor, error)
}

// Activator raises and focuses a window by id.
type Activator interface {
	Activate(ctx context.Context, windowID string) error
}

// EnumeratorFunc adapts a function to the Enumerator interface.
type EnumeratorFunc func(ctx context.Context) ([]models.WindowDescriptor, error)

func (f EnumeratorFunc) Windows(ctx context.Context) ([]models.WindowDescriptor, error) {
	return f(ctx)
}

// ActivatorFunc adapts a function to the Activator interface.
type ActivatorFunc func(ctx context.Context, windowID string) error

func (f ActivatorFunc) Activate(ctx context.Context, windowID string) error {
	return f(ctx, windowID)
}
