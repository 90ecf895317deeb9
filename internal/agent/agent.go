// Package agent runs user-defined analysis prompts and records each run with
// its parsed recommendation.
package agent

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/evidence-cli/internal/model"
	"github.com/sells-group/evidence-cli/internal/store"
	"github.com/sells-group/evidence-cli/internal/textgen"
)

// DefaultMaxTokens is the token budget for agents that do not set one.
const DefaultMaxTokens = 1024

// responseFormat is appended to every agent prompt so replies can be parsed.
const responseFormat = `

Structure your reply with these labeled sections:
RECOMMENDATION: one sentence
CONFIDENCE SCORE: 0-100
RATIONALE: a short paragraph
IDENTIFIED RISKS: one risk per line, or "None"`

// Executor creates agents and runs them.
type Executor struct {
	store store.AgentStore
	gen   textgen.Completer
	now   func() time.Time
}

// NewExecutor creates an Executor.
func NewExecutor(st store.AgentStore, gen textgen.Completer) *Executor {
	return &Executor{store: st, gen: gen, now: func() time.Time { return time.Now().UTC() }}
}

// CreateAgent validates and stores an agent owned by ownerID.
func (e *Executor) CreateAgent(ctx context.Context, a model.Agent, ownerID string) (*model.Agent, error) {
	a.Name = strings.TrimSpace(a.Name)
	a.SystemPrompt = strings.TrimSpace(a.SystemPrompt)
	if a.Name == "" || a.SystemPrompt == "" {
		return nil, eris.New("agent: name and system prompt are required")
	}
	if a.Temperature < 0 || a.Temperature > 1 {
		return nil, eris.Errorf("agent: temperature %.2f out of range [0, 1]", a.Temperature)
	}
	if a.MaxTokens <= 0 {
		a.MaxTokens = DefaultMaxTokens
	}
	a.OwnerID = ownerID
	a.CreatedAt = e.now()
	if err := e.store.CreateAgent(ctx, &a); err != nil {
		return nil, eris.Wrap(err, "agent: create")
	}
	return &a, nil
}

// ownedAgent loads an agent and hides agents owned by someone else.
func (e *Executor) ownedAgent(ctx context.Context, agentID, userID string) (*model.Agent, error) {
	a, err := e.store.GetAgent(ctx, agentID)
	if err != nil {
		return nil, eris.Wrap(err, "agent: get")
	}
	if a.OwnerID != userID {
		return nil, eris.Wrapf(store.ErrNotFound, "agent: %s not found for user %s", agentID, userID)
	}
	return a, nil
}

// Execute runs an agent over input and stores the execution. Empty input
// yields nil.
func (e *Executor) Execute(ctx context.Context, agentID, userID, input string) (*model.AgentExecution, error) {
	log := zap.L().With(zap.String("component", "agent"), zap.String("agent_id", agentID))

	a, err := e.ownedAgent(ctx, agentID, userID)
	if err != nil {
		return nil, err
	}
	input = strings.TrimSpace(input)
	if input == "" {
		log.Warn("empty agent input")
		return nil, nil
	}

	temp := a.Temperature
	out, err := e.gen.Complete(ctx, textgen.Request{
		System:      a.SystemPrompt + responseFormat,
		User:        input,
		Model:       a.Model,
		Temperature: &temp,
		MaxTokens:   a.MaxTokens,
		Phase:       "agent",
	})
	if err != nil {
		return nil, eris.Wrap(err, "agent: complete")
	}

	parsed := textgen.ParseStructured(out.Text)
	exec := &model.AgentExecution{
		AgentID:         a.ID,
		UserID:          userID,
		Input:           input,
		RawOutput:       out.Text,
		Recommendation:  parsed.Recommendation,
		ConfidenceScore: parsed.ConfidenceScore,
		Rationale:       parsed.Rationale,
		Risks:           parsed.Risks,
		Parsed:          parsed.Parsed,
		InputTokens:     out.Usage.InputTokens,
		OutputTokens:    out.Usage.OutputTokens,
		CreatedAt:       e.now(),
	}
	if err := e.store.CreateAgentExecution(ctx, exec); err != nil {
		return nil, eris.Wrap(err, "agent: store execution")
	}

	log.Info("agent executed",
		zap.String("execution_id", exec.ID),
		zap.Bool("parsed", exec.Parsed),
		zap.Float64("confidence", exec.ConfidenceScore),
	)
	return exec, nil
}

// History lists an agent's recent executions for its owner.
func (e *Executor) History(ctx context.Context, agentID, userID string, limit int) ([]model.AgentExecution, error) {
	if _, err := e.ownedAgent(ctx, agentID, userID); err != nil {
		return nil, err
	}
	out, err := e.store.ListAgentExecutions(ctx, agentID, limit)
	if err != nil {
		return nil, eris.Wrap(err, "agent: list executions")
	}
	return out, nil
}
