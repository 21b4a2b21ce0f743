package interfaces

import (
	"context"

	"evalconsole/domain/entities"
)

// StatusRegister is the process-wide key-value status register the console
// writes and the harness polls
type StatusRegister interface {
	// Set sets the key; only the key's designated writer may do so
	Set(ctx context.Context, key entities.StatusKey, writer entities.Writer) error

	// IsSet reports whether the key is set
	IsSet(ctx context.Context, key entities.StatusKey) (bool, error)

	// Reset clears the key
	Reset(ctx context.Context, key entities.StatusKey) error

	// InfeasibleReason returns the free-text reason entered with the infeasible decision
	InfeasibleReason(ctx context.Context) (string, error)
}
