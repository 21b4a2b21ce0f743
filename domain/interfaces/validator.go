package interfaces

import (
	"context"

	"evalconsole/domain/entities"
)

// Validator decides whether the page state completes the task
type Validator interface {
	Validate(ctx context.Context, task entities.Task, browser Browser) (entities.Verdict, error)
}
