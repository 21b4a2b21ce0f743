package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"evalconsole/domain/entities"
	"evalconsole/infrastructure/scripts"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	BackendPlaywright = "playwright"
	BackendRod        = "rod"
)

type Config struct {
	Backend      string
	Headless     bool
	LogPath      string
	LogLevel     string
	TargetFrame  string
	URLFilter    string
	PollInterval time.Duration
	Linger       time.Duration
	Annotator    string
	RedisURL     string
	RedisPrefix  string
	RemoteURL    string
	Stealth      bool
}

// Load - reads .env (optional) and the EVAL_* environment variables
func Load() (*Config, error) {
	// .env file is optional
	_ = godotenv.Load()

	cfg := &Config{
		Backend:      getEnv("EVAL_BROWSER", BackendPlaywright),
		LogPath:      getEnv("EVAL_LOG_PATH", "human_eval_log.json"),
		LogLevel:     getEnv("EVAL_LOG_LEVEL", "info"),
		TargetFrame:  getEnv("EVAL_TARGET_FRAME", scripts.DefaultTargetFrame),
		URLFilter:    os.Getenv("EVAL_URL_FILTER"),
		Annotator:    os.Getenv("EVAL_ANNOTATOR"),
		RedisURL:     os.Getenv("EVAL_REDIS_URL"),
		RedisPrefix:  getEnv("EVAL_REDIS_PREFIX", "evalconsole"),
		RemoteURL:    os.Getenv("EVAL_CDP_URL"),
		PollInterval: 100 * time.Millisecond,
		Linger:       3 * time.Second,
	}

	if v := os.Getenv("EVAL_HEADLESS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid EVAL_HEADLESS %q: %w", v, err)
		}
		cfg.Headless = b
	}

	if v := os.Getenv("EVAL_STEALTH"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid EVAL_STEALTH %q: %w", v, err)
		}
		cfg.Stealth = b
	}

	if v := os.Getenv("EVAL_POLL_INTERVAL_MS"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil || ms <= 0 {
			return nil, fmt.Errorf("EVAL_POLL_INTERVAL_MS must be a positive integer, got %q", v)
		}
		cfg.PollInterval = time.Duration(ms) * time.Millisecond
	}

	if v := os.Getenv("EVAL_LINGER_MS"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil || ms < 0 {
			return nil, fmt.Errorf("EVAL_LINGER_MS must be a non-negative integer, got %q", v)
		}
		cfg.Linger = time.Duration(ms) * time.Millisecond
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate - checks values that flags may have overridden
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendPlaywright, BackendRod:
	default:
		return fmt.Errorf("unknown browser backend %q (want %s or %s)", c.Backend, BackendPlaywright, BackendRod)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

type curriculumFile struct {
	Tasks []entities.Task `yaml:"tasks"`
}

// LoadCurriculum reads the task list. YAML files hold a "tasks" list; any
// other file has one "task_name, task_seed[, start_url]" entry per line.
func LoadCurriculum(path string) ([]entities.Task, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return loadYAMLCurriculum(path)
	default:
		return loadLineCurriculum(path)
	}
}

func loadYAMLCurriculum(path string) ([]entities.Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read curriculum: %w", err)
	}
	var file curriculumFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to decode curriculum: %w", err)
	}
	for i, t := range file.Tasks {
		if t.Name == "" {
			return nil, fmt.Errorf("curriculum task %d has no task_name", i)
		}
	}
	return file.Tasks, nil
}

func loadLineCurriculum(path string) ([]entities.Task, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open curriculum: %w", err)
	}
	defer f.Close()

	var tasks []entities.Task
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, ",", 3)
		if len(parts) < 2 {
			return nil, fmt.Errorf("curriculum line %d: want \"name, seed\", got %q", lineNo, line)
		}
		seed, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil {
			return nil, fmt.Errorf("curriculum line %d: invalid seed: %w", lineNo, err)
		}
		task := entities.Task{
			Name: strings.TrimSpace(parts[0]),
			Seed: seed,
		}
		if len(parts) == 3 {
			task.StartURL = strings.TrimSpace(parts[2])
		}
		tasks = append(tasks, task)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read curriculum: %w", err)
	}
	return tasks, nil
}
