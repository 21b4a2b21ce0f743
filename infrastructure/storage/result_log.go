package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"evalconsole/domain/entities"
	"evalconsole/domain/interfaces"
)

const DefaultLogFile = "human_eval_log.json"

type resultLog struct {
	path string
	mu   sync.Mutex
}

// NewResultLog - creates a JSON result log at path
func NewResultLog(path string) (interfaces.ResultStore, error) {
	if path == "" {
		path = DefaultLogFile
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
	}
	return &resultLog{path: path}, nil
}

// Append - appends a result to the log file
func (s *resultLog) Append(result entities.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	results, err := s.load()
	if err != nil {
		return err
	}
	results = append(results, result)
	return s.save(results)
}

// Load - loads every logged result
func (s *resultLog) Load() ([]entities.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Reset - truncates the log to an empty list
func (s *resultLog) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save([]entities.Result{})
}

// AlreadyEvaluated - reports whether the annotator already logged the task
func (s *resultLog) AlreadyEvaluated(annotator entities.Annotator, task entities.Task) (bool, error) {
	results, err := s.Load()
	if err != nil {
		return false, err
	}
	for _, r := range results {
		if r.Annotator == annotator && r.Task.Name == task.Name && r.Task.Seed == task.Seed {
			return true, nil
		}
	}
	return false, nil
}

func (s *resultLog) load() ([]entities.Result, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []entities.Result{}, nil
		}
		return nil, fmt.Errorf("failed to read result log: %w", err)
	}
	if len(data) == 0 {
		return []entities.Result{}, nil
	}

	var results []entities.Result
	if err := json.Unmarshal(data, &results); err != nil {
		return nil, fmt.Errorf("failed to decode result log: %w", err)
	}
	return results, nil
}

// save writes through a temp file so a crash never leaves a truncated log
func (s *resultLog) save(results []entities.Result) error {
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write result log: %w", err)
	}
	return os.Rename(tmp, s.path)
}
