package storage

import (
	"os"
	"path/filepath"
	"testing"

	"evalconsole/domain/entities"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResultLog_AppendAndLookup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "eval.json")
	store, err := NewResultLog(path)
	require.NoError(t, err)

	results, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, results)

	ann := entities.Annotator{Email: "a@example.com"}
	task := entities.Task{Name: "FilterIncidentListTask", Seed: 7}
	reason := "field does not exist"

	require.NoError(t, store.Append(entities.Result{
		Annotator: ann,
		Task:      task,
		Metrics:   entities.Metrics{Duration: 12.5, Infeasible: &reason},
	}))

	done, err := store.AlreadyEvaluated(ann, task)
	require.NoError(t, err)
	assert.True(t, done)

	done, err = store.AlreadyEvaluated(entities.Annotator{Email: "b@example.com"}, task)
	require.NoError(t, err)
	assert.False(t, done)

	done, err = store.AlreadyEvaluated(ann, entities.Task{Name: "FilterIncidentListTask", Seed: 8})
	require.NoError(t, err)
	assert.False(t, done)

	results, err = store.Load()
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.NotNil(t, results[0].Metrics.Infeasible)
	assert.Equal(t, reason, *results[0].Metrics.Infeasible)
}

func TestResultLog_Reset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eval.json")
	store, err := NewResultLog(path)
	require.NoError(t, err)

	require.NoError(t, store.Append(entities.Result{Task: entities.Task{Name: "t"}}))
	require.NoError(t, store.Reset())

	results, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestResultLog_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eval.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	store, err := NewResultLog(path)
	require.NoError(t, err)

	_, err = store.Load()
	assert.Error(t, err)
}
