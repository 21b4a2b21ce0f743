package status

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"evalconsole/domain/entities"
	"evalconsole/domain/interfaces"
)

var (
	ErrUnknownKey    = errors.New("unknown status key")
	ErrForeignWriter = errors.New("writer is not the designated writer of the key")
)

// Register is an in-process status register
type Register struct {
	mu     sync.RWMutex
	values map[entities.StatusKey]bool
	reason string
}

// NewRegister - creates an empty register
func NewRegister() *Register {
	return &Register{
		values: make(map[entities.StatusKey]bool),
	}
}

// checkWriter enforces single-writer-per-key
func checkWriter(key entities.StatusKey, writer entities.Writer) error {
	designated, ok := key.DesignatedWriter()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	if designated != writer {
		return fmt.Errorf("%w: %s may not set %s", ErrForeignWriter, writer, key)
	}
	return nil
}

func (r *Register) Set(ctx context.Context, key entities.StatusKey, writer entities.Writer) error {
	if err := checkWriter(key, writer); err != nil {
		return err
	}
	r.mu.Lock()
	r.values[key] = true
	r.mu.Unlock()
	return nil
}

func (r *Register) IsSet(ctx context.Context, key entities.StatusKey) (bool, error) {
	if !key.Known() {
		return false, fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.values[key], nil
}

func (r *Register) Reset(ctx context.Context, key entities.StatusKey) error {
	if !key.Known() {
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	r.mu.Lock()
	delete(r.values, key)
	r.mu.Unlock()
	return nil
}

// SubmitInfeasible - what the console's Submit button does: record the reason, then set the flag
func (r *Register) SubmitInfeasible(ctx context.Context, reason string) error {
	r.mu.Lock()
	r.reason = reason
	r.mu.Unlock()
	return r.Set(ctx, entities.KeyHumanInfeasible, entities.WriterInfeasibleSubmit)
}

func (r *Register) InfeasibleReason(ctx context.Context) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.reason, nil
}

// Snapshot - copy of every set key
func (r *Register) Snapshot() map[entities.StatusKey]bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[entities.StatusKey]bool, len(r.values))
	for k, v := range r.values {
		out[k] = v
	}
	return out
}

var _ interfaces.StatusRegister = (*Register)(nil)
