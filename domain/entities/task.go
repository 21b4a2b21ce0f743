package entities

// Task represents one curriculum entry
type Task struct {
	Name     string `json:"task_name" yaml:"task_name"`
	Seed     int    `json:"task_seed" yaml:"task_seed"`
	StartURL string `json:"start_url,omitempty" yaml:"start_url,omitempty"`

	// SuccessSelector, when set, must match in the page snapshot for the task to validate
	SuccessSelector string `json:"success_selector,omitempty" yaml:"success_selector,omitempty"`
}

// TaskStatus represents the outcome of an evaluated task
type TaskStatus string

const (
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusAbandoned TaskStatus = "abandoned"
)
