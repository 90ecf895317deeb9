package agent

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/evidence-cli/internal/model"
	"github.com/sells-group/evidence-cli/internal/store"
	"github.com/sells-group/evidence-cli/internal/textgen"
	"github.com/sells-group/evidence-cli/pkg/anthropic"
)

type fakeCompleter struct {
	text string
	err  error
	reqs []textgen.Request
}

func (f *fakeCompleter) Complete(_ context.Context, req textgen.Request) (*textgen.Completion, error) {
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return nil, f.err
	}
	return &textgen.Completion{
		Text:  f.text,
		Model: req.Model,
		Usage: anthropic.TokenUsage{InputTokens: 120, OutputTokens: 40},
	}, nil
}

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "agent.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

const reply = `RECOMMENDATION: Adopt graded activity for subacute low back pain.
CONFIDENCE SCORE: 82
RATIONALE: Two RCTs agree.
IDENTIFIED RISKS:
- small samples`

func TestExecute(t *testing.T) {
	st := newTestStore(t)
	gen := &fakeCompleter{text: reply}
	e := NewExecutor(st, gen)
	ctx := context.Background()

	a, err := e.CreateAgent(ctx, model.Agent{Name: "reviewer", SystemPrompt: "You review evidence.", Temperature: 0.3}, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(DefaultMaxTokens), a.MaxTokens)

	exec, err := e.Execute(ctx, a.ID, "u1", "  Summarize graded activity evidence  ")
	require.NoError(t, err)
	require.NotNil(t, exec)
	assert.True(t, exec.Parsed)
	assert.Equal(t, 82.0, exec.ConfidenceScore)
	assert.Equal(t, []string{"small samples"}, exec.Risks)
	assert.Equal(t, int64(120), exec.InputTokens)
	assert.Equal(t, "Summarize graded activity evidence", exec.Input)

	require.Len(t, gen.reqs, 1)
	assert.Contains(t, gen.reqs[0].System, "You review evidence.")
	assert.Contains(t, gen.reqs[0].System, "CONFIDENCE SCORE")
	require.NotNil(t, gen.reqs[0].Temperature)
	assert.Equal(t, 0.3, *gen.reqs[0].Temperature)
	assert.Equal(t, "agent", gen.reqs[0].Phase)

	history, err := e.History(ctx, a.ID, "u1", 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, exec.ID, history[0].ID)
}

func TestExecute_OwnerMismatchIsNotFound(t *testing.T) {
	st := newTestStore(t)
	e := NewExecutor(st, &fakeCompleter{text: reply})
	ctx := context.Background()

	a, err := e.CreateAgent(ctx, model.Agent{Name: "reviewer", SystemPrompt: "p"}, "u1")
	require.NoError(t, err)

	_, err = e.Execute(ctx, a.ID, "u2", "input")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = e.History(ctx, a.ID, "u2", 10)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = e.Execute(ctx, "missing", "u1", "input")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestExecute_UnparsedReplyStillStored(t *testing.T) {
	st := newTestStore(t)
	e := NewExecutor(st, &fakeCompleter{text: "I cannot answer that in the requested format."})
	ctx := context.Background()

	a, err := e.CreateAgent(ctx, model.Agent{Name: "r", SystemPrompt: "p"}, "u1")
	require.NoError(t, err)

	exec, err := e.Execute(ctx, a.ID, "u1", "input")
	require.NoError(t, err)
	assert.False(t, exec.Parsed)
	assert.Equal(t, "I cannot answer that in the requested format.", exec.Recommendation)
}

func TestExecute_Errors(t *testing.T) {
	st := newTestStore(t)
	gen := &fakeCompleter{err: errors.New("upstream down")}
	e := NewExecutor(st, gen)
	ctx := context.Background()

	a, err := e.CreateAgent(ctx, model.Agent{Name: "r", SystemPrompt: "p"}, "u1")
	require.NoError(t, err)

	exec, err := e.Execute(ctx, a.ID, "u1", " ")
	require.NoError(t, err)
	assert.Nil(t, exec)
	assert.Empty(t, gen.reqs)

	_, err = e.Execute(ctx, a.ID, "u1", "input")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "agent: complete")
}

func TestCreateAgent_Validation(t *testing.T) {
	e := NewExecutor(newTestStore(t), &fakeCompleter{})
	ctx := context.Background()

	_, err := e.CreateAgent(ctx, model.Agent{Name: " ", SystemPrompt: "p"}, "u1")
	assert.Error(t, err)
	_, err = e.CreateAgent(ctx, model.Agent{Name: "n", SystemPrompt: "p", Temperature: 1.5}, "u1")
	assert.Error(t, err)
}
