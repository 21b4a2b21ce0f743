package entities

// Annotator identifies the human running the evaluation
type Annotator struct {
	Email string `json:"email"`
}

// Metrics holds what was measured for one evaluated task
type Metrics struct {
	Duration   float64  `json:"duration"`
	Success    bool     `json:"success"`
	Infeasible *string  `json:"infeasible"` // reason, nil when never declared
	Abandoned  bool     `json:"abandoned"`
	Messages   []string `json:"messages,omitempty"`
}

// Outcome - completed on success, abandoned when the human gave up, failed otherwise
func (m Metrics) Outcome() TaskStatus {
	switch {
	case m.Success:
		return TaskStatusCompleted
	case m.Abandoned:
		return TaskStatusAbandoned
	default:
		return TaskStatusFailed
	}
}

// Result is one entry of the evaluation log
type Result struct {
	EpisodeID string    `json:"episode_id,omitempty"`
	Annotator Annotator `json:"annotator_info"`
	Task      Task      `json:"task_info"`
	Metrics   Metrics   `json:"metrics"`
}

// Verdict is what a task validator reports for the current page state
type Verdict struct {
	Reward  float64 `json:"reward"`
	Stop    bool    `json:"stop"`
	Message string  `json:"message"`
}

// Succeeded - reports a full reward
func (v Verdict) Succeeded() bool {
	return v.Reward >= 1
}
