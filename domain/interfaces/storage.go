package interfaces

import "evalconsole/domain/entities"

// ResultStore persists evaluation results
type ResultStore interface {
	// Append appends a result to the log
	Append(result entities.Result) error

	// Load loads every logged result
	Load() ([]entities.Result, error)

	// Reset truncates the log
	Reset() error

	// AlreadyEvaluated reports whether the annotator already has a result for the task
	AlreadyEvaluated(annotator entities.Annotator, task entities.Task) (bool, error)
}
