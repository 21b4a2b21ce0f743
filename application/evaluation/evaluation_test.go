package evaluation

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"evalconsole/domain/entities"
	"evalconsole/domain/interfaces"
	"evalconsole/infrastructure/scripts"
	"evalconsole/infrastructure/storage"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var statusTexts = []string{
	StatusValidating, StatusSuccess, StatusStopRequired, StatusKeepGoing,
	StatusInfeasible, StatusAbandoned, StatusCleaning,
}

// fakePage is a single-frame page holding the console's window state
type fakePage struct {
	mu          sync.Mutex
	flags       map[entities.StatusKey]bool
	reads       map[entities.StatusKey]int
	raiseAt     map[entities.StatusKey]int
	reason      string
	statuses    []string
	progress    []string
	initScripts []string
	navigated   []string
	reloads     int
	snapshot    string
	closed      bool
}

func newFakePage() *fakePage {
	return &fakePage{
		flags:   make(map[entities.StatusKey]bool),
		reads:   make(map[entities.StatusKey]int),
		raiseAt: make(map[entities.StatusKey]int),
	}
}

func (p *fakePage) Navigate(ctx context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.navigated = append(p.navigated, url)
	return nil
}

func (p *fakePage) AddInitScript(ctx context.Context, script string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.initScripts = append(p.initScripts, script)
	return nil
}

func (p *fakePage) Reload(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reloads++
	for _, s := range p.initScripts {
		if s == scripts.PresetFlag(entities.KeyNeedValidation) {
			p.flags[entities.KeyNeedValidation] = true
		}
	}
	return nil
}

func (p *fakePage) Frames(ctx context.Context) ([]interfaces.Frame, error) {
	return []interfaces.Frame{&pageFrame{page: p}}, nil
}

func (p *fakePage) Snapshot(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshot, nil
}

func (p *fakePage) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePage) statusLog() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.statuses...)
}

type pageFrame struct {
	page *fakePage
}

func (f *pageFrame) ID() string      { return entities.TopFrameID }
func (f *pageFrame) URL() string     { return "https://dev.example.com/now/nav/ui" }
func (f *pageFrame) PageURL() string { return f.URL() }
func (f *pageFrame) IsTop() bool     { return true }

func (f *pageFrame) Evaluate(ctx context.Context, expr string) (interface{}, error) {
	p := f.page
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, k := range []entities.StatusKey{entities.KeyNeedValidation, entities.KeyHumanAbandon, entities.KeyHumanInfeasible} {
		switch expr {
		case scripts.ReadFlag(k):
			p.reads[k]++
			if n, ok := p.raiseAt[k]; ok && p.reads[k] >= n {
				p.flags[k] = true
				delete(p.raiseAt, k)
			}
			return p.flags[k], nil
		case scripts.WriteFlag(k, true):
			p.flags[k] = true
			return true, nil
		case scripts.WriteFlag(k, false):
			p.flags[k] = false
			return true, nil
		}
	}
	if expr == scripts.ReadValue(scripts.DefaultReasonID) {
		return p.reason, nil
	}
	for _, s := range statusTexts {
		if expr == scripts.SetText(scripts.DefaultStatusID, s) {
			p.statuses = append(p.statuses, s)
			return true, nil
		}
	}
	if strings.Contains(expr, scripts.DefaultProgressID) {
		p.progress = append(p.progress, expr)
		return true, nil
	}
	return nil, errors.New("unexpected expression")
}

type scriptedValidator struct {
	mu       sync.Mutex
	verdicts []entities.Verdict
	failures int
	calls    int
}

func (v *scriptedValidator) Validate(ctx context.Context, task entities.Task, browser interfaces.Browser) (entities.Verdict, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls++
	if v.failures > 0 {
		v.failures--
		return entities.Verdict{}, errors.New("page is navigating")
	}
	if len(v.verdicts) == 0 {
		return entities.Verdict{}, nil
	}
	verdict := v.verdicts[0]
	if len(v.verdicts) > 1 {
		v.verdicts = v.verdicts[1:]
	}
	return verdict, nil
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.PollInterval = 5 * time.Millisecond
	opts.Linger = 0
	opts.RetryAttempts = 1
	opts.RetryBackoff = 0
	return opts
}

func newTestRunner(t *testing.T, page *fakePage, validator interfaces.Validator, opts Options) (*Runner, interfaces.ResultStore) {
	t.Helper()
	store, err := storage.NewResultLog(filepath.Join(t.TempDir(), "eval.json"))
	require.NoError(t, err)
	open := func(ctx context.Context) (interfaces.Browser, error) { return page, nil }
	return NewRunner(open, store, validator, entities.Annotator{Email: "a@example.com"}, opts, quietLogger()), store
}

func TestEvaluate_SuccessOnFirstValidation(t *testing.T) {
	page := newFakePage()
	validator := &scriptedValidator{verdicts: []entities.Verdict{{Reward: 1, Message: "done"}}}
	r, store := newTestRunner(t, page, validator, testOptions())

	task := entities.Task{Name: "CreateIncidentTask", Seed: 3, StartURL: "https://dev.example.com/incident.do"}
	result, err := r.Evaluate(context.Background(), task, 1, 4)
	require.NoError(t, err)

	assert.True(t, result.Metrics.Success)
	assert.False(t, result.Metrics.Abandoned)
	assert.Nil(t, result.Metrics.Infeasible)
	assert.Equal(t, []string{"done"}, result.Metrics.Messages)
	assert.NotEmpty(t, result.EpisodeID)

	assert.Equal(t, []string{StatusValidating, StatusSuccess, StatusCleaning}, page.statusLog())
	assert.Equal(t, []string{task.StartURL}, page.navigated)
	require.Len(t, page.initScripts, 3)
	assert.Equal(t, scripts.PresetFlag(entities.KeyNeedValidation), page.initScripts[0])
	assert.Contains(t, page.initScripts[1], "findElementInShadowDOM")
	assert.Contains(t, page.initScripts[2], scripts.DefaultPanelID)
	assert.Equal(t, 1, page.reloads)
	assert.True(t, page.closed)
	assert.False(t, page.flags[entities.KeyNeedValidation])

	logged, err := store.Load()
	require.NoError(t, err)
	require.Len(t, logged, 1)
	assert.Equal(t, result.EpisodeID, logged[0].EpisodeID)
	assert.Equal(t, task, logged[0].Task)
}

func TestEvaluate_KeepGoingThenAbandon(t *testing.T) {
	page := newFakePage()
	page.raiseAt[entities.KeyHumanAbandon] = 3
	validator := &scriptedValidator{verdicts: []entities.Verdict{{Reward: 0, Message: "not yet"}}}
	r, _ := newTestRunner(t, page, validator, testOptions())

	result, err := r.Evaluate(context.Background(), entities.Task{Name: "SortListTask", Seed: 1}, 2, 2)
	require.NoError(t, err)

	assert.False(t, result.Metrics.Success)
	assert.True(t, result.Metrics.Abandoned)
	assert.Equal(t, []string{StatusValidating, StatusKeepGoing, StatusAbandoned, StatusCleaning}, page.statusLog())
	assert.Equal(t, 1, validator.calls)
	assert.NotEmpty(t, page.progress)
	assert.Empty(t, page.navigated)
}

func TestEvaluate_InfeasibleThenStopRequired(t *testing.T) {
	page := newFakePage()
	page.flags[entities.KeyHumanInfeasible] = true
	page.reason = "Field 'Bob' does not exist."
	validator := &scriptedValidator{verdicts: []entities.Verdict{{Reward: 0, Stop: true}}}
	r, _ := newTestRunner(t, page, validator, testOptions())

	result, err := r.Evaluate(context.Background(), entities.Task{Name: "FilterTask", Seed: 9}, 1, 1)
	require.NoError(t, err)

	require.NotNil(t, result.Metrics.Infeasible)
	assert.Equal(t, "Field 'Bob' does not exist.", *result.Metrics.Infeasible)
	assert.False(t, result.Metrics.Success)
	assert.False(t, result.Metrics.Abandoned)
	assert.Equal(t, []string{StatusInfeasible, StatusValidating, StatusStopRequired, StatusCleaning}, page.statusLog())
}

func TestEvaluate_InfeasibleRecordedOnce(t *testing.T) {
	page := newFakePage()
	page.flags[entities.KeyHumanInfeasible] = true
	page.reason = "first"
	page.raiseAt[entities.KeyHumanAbandon] = 4
	validator := &scriptedValidator{verdicts: []entities.Verdict{{Reward: 0}}}
	r, _ := newTestRunner(t, page, validator, testOptions())

	result, err := r.Evaluate(context.Background(), entities.Task{Name: "FilterTask", Seed: 9}, 1, 1)
	require.NoError(t, err)

	require.NotNil(t, result.Metrics.Infeasible)
	assert.Equal(t, "first", *result.Metrics.Infeasible)

	count := 0
	for _, s := range page.statusLog() {
		if s == StatusInfeasible {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestEvaluate_RetriesValidatorFailures(t *testing.T) {
	page := newFakePage()
	validator := &scriptedValidator{failures: 2, verdicts: []entities.Verdict{{Reward: 1}}}
	opts := testOptions()
	opts.RetryAttempts = 3
	r, _ := newTestRunner(t, page, validator, opts)

	result, err := r.Evaluate(context.Background(), entities.Task{Name: "T"}, 1, 1)
	require.NoError(t, err)
	assert.True(t, result.Metrics.Success)
	assert.Equal(t, 3, validator.calls)
}

func TestEvaluate_ValidatorFailureSurfaces(t *testing.T) {
	page := newFakePage()
	validator := &scriptedValidator{failures: 5}
	r, _ := newTestRunner(t, page, validator, testOptions())

	_, err := r.Evaluate(context.Background(), entities.Task{Name: "T"}, 1, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to validate")
	assert.True(t, page.closed)
}

func TestEvaluate_CanceledWhileWaiting(t *testing.T) {
	page := newFakePage()
	validator := &scriptedValidator{verdicts: []entities.Verdict{{Reward: 0}}}
	r, store := newTestRunner(t, page, validator, testOptions())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := r.Evaluate(ctx, entities.Task{Name: "T"}, 1, 1)
	require.Error(t, err)
	assert.True(t, IsCanceled(err))

	logged, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, logged)
}

func TestRun_SkipsEvaluatedTasks(t *testing.T) {
	page := newFakePage()
	validator := &scriptedValidator{verdicts: []entities.Verdict{{Reward: 1}}}
	r, store := newTestRunner(t, page, validator, testOptions())

	opened := 0
	inner := r.open
	r.open = func(ctx context.Context) (interfaces.Browser, error) {
		opened++
		return inner(ctx)
	}

	done := entities.Task{Name: "DoneTask", Seed: 1}
	require.NoError(t, store.Append(entities.Result{Annotator: entities.Annotator{Email: "a@example.com"}, Task: done}))

	summary, err := r.Run(context.Background(), []entities.Task{done, {Name: "NewTask", Seed: 2}})
	require.NoError(t, err)

	assert.Equal(t, Summary{Total: 2, Skipped: 1, Succeeded: 1}, summary)
	assert.Equal(t, 1, opened)

	logged, err := store.Load()
	require.NoError(t, err)
	assert.Len(t, logged, 2)
}

func TestProgressText(t *testing.T) {
	assert.Equal(t, "Task 2 / 5 --- Elapsed: 1.50 sec.", ProgressText(2, 5, 1500*time.Millisecond))
	assert.Equal(t, "Task 1 / 1 --- Elapsed: 0.00 sec.", ProgressText(1, 1, 0))
}
