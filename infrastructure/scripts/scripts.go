// Package scripts renders the JavaScript injected into the application under
// test and builds the small expressions the harness evaluates in its frames.
package scripts

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"regexp"
	"text/template"

	"evalconsole/domain/entities"
	"evalconsole/infrastructure/inputguard"
)

//go:embed assets/*.tmpl
var assets embed.FS

var templates = template.Must(
	template.New("scripts").
		Funcs(template.FuncMap{"json": jsonLiteral}).
		ParseFS(assets, "assets/*.tmpl"),
)

const (
	DefaultPanelID     = "humanEvalConsole"
	DefaultStatusID    = "taskStatusDiv"
	DefaultProgressID  = "progressDiv"
	DefaultReasonID    = "reasonTextBox"
	DefaultTargetFrame = "gsft_main"
	DefaultLogPrefix   = "WorkArena"
)

var identifier = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)

// ConsoleOptions parameterizes the overlay script
type ConsoleOptions struct {
	Title             string
	PanelID           string
	StatusID          string
	ProgressID        string
	ReasonID          string
	ReasonPlaceholder string
	Policy            inputguard.Policy

	ValidateFlag   entities.StatusKey
	AbandonFlag    entities.StatusKey
	InfeasibleFlag entities.StatusKey
}

// DefaultConsoleOptions - the overlay as the harness expects it
func DefaultConsoleOptions() ConsoleOptions {
	return ConsoleOptions{
		Title:             "Human Evaluation Console",
		PanelID:           DefaultPanelID,
		StatusID:          DefaultStatusID,
		ProgressID:        DefaultProgressID,
		ReasonID:          DefaultReasonID,
		ReasonPlaceholder: "Reason: e.g., Field 'Bob' does not exist.",
		Policy:            inputguard.DefaultPolicy(),
		ValidateFlag:      entities.KeyNeedValidation,
		AbandonFlag:       entities.KeyHumanAbandon,
		InfeasibleFlag:    entities.KeyHumanInfeasible,
	}
}

// UtilsOptions parameterizes the helper library
type UtilsOptions struct {
	TargetFrame    string
	LoadFlag       entities.StatusKey
	PollIntervalMs int
	MaxDepth       int
	Prefix         string
}

// DefaultUtilsOptions - defaults of the helper library
func DefaultUtilsOptions() UtilsOptions {
	return UtilsOptions{
		TargetFrame:    DefaultTargetFrame,
		LoadFlag:       entities.KeyLoadComplete,
		PollIntervalMs: 100,
		MaxDepth:       64,
		Prefix:         DefaultLogPrefix,
	}
}

// Console - renders the overlay script
func Console(opts ConsoleOptions) (string, error) {
	for _, flag := range []entities.StatusKey{opts.ValidateFlag, opts.AbandonFlag, opts.InfeasibleFlag} {
		if !identifier.MatchString(string(flag)) {
			return "", fmt.Errorf("invalid flag name %q", flag)
		}
	}
	return render("console.js.tmpl", opts)
}

// Utils - renders the helper library
func Utils(opts UtilsOptions) (string, error) {
	if !identifier.MatchString(string(opts.LoadFlag)) {
		return "", fmt.Errorf("invalid flag name %q", opts.LoadFlag)
	}
	if opts.PollIntervalMs <= 0 {
		return "", fmt.Errorf("poll interval must be positive, got %d", opts.PollIntervalMs)
	}
	if opts.MaxDepth <= 0 {
		return "", fmt.Errorf("max depth must be positive, got %d", opts.MaxDepth)
	}
	if !identifier.MatchString(opts.Prefix) {
		return "", fmt.Errorf("invalid log prefix %q", opts.Prefix)
	}
	return render("utils.js.tmpl", opts)
}

func render(name string, data interface{}) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("failed to render %s: %w", name, err)
	}
	return buf.String(), nil
}

func jsonLiteral(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
