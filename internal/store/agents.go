package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/evidence-cli/internal/model"
)

func (s *sqlStore) CreateAgent(ctx context.Context, a *model.Agent) error {
	if a.ID == "" {
		a.ID = newID()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	_, err := s.q.exec(ctx,
		`INSERT INTO agents (id, owner_id, name, system_prompt, model, temperature, max_tokens, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.OwnerID, a.Name, a.SystemPrompt, a.Model, a.Temperature, a.MaxTokens, a.CreatedAt,
	)
	return eris.Wrapf(err, "store: insert agent %q", a.Name)
}

func (s *sqlStore) GetAgent(ctx context.Context, id string) (*model.Agent, error) {
	var a model.Agent
	err := s.q.queryRow(ctx,
		`SELECT id, owner_id, name, system_prompt, model, temperature, max_tokens, created_at
		FROM agents WHERE id = ?`, id,
	).Scan(&a.ID, &a.OwnerID, &a.Name, &a.SystemPrompt, &a.Model, &a.Temperature, &a.MaxTokens, &a.CreatedAt)
	if isNoRows(err) {
		return nil, notFound("agent", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "store: get agent %s", id)
	}
	return &a, nil
}

func (s *sqlStore) CreateAgentExecution(ctx context.Context, e *model.AgentExecution) error {
	if e.ID == "" {
		e.ID = newID()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	risks, err := toJSON(nonNil(e.Risks))
	if err != nil {
		return err
	}
	_, err = s.q.exec(ctx,
		`INSERT INTO agent_executions (id, agent_id, user_id, input, raw_output, recommendation,
			confidence_score, rationale, risks, parsed, input_tokens, output_tokens, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.AgentID, e.UserID, e.Input, e.RawOutput, e.Recommendation,
		e.ConfidenceScore, e.Rationale, risks, e.Parsed, e.InputTokens, e.OutputTokens, e.CreatedAt,
	)
	return eris.Wrapf(err, "store: insert execution for agent %s", e.AgentID)
}

func (s *sqlStore) ListAgentExecutions(ctx context.Context, agentID string, limit int) ([]model.AgentExecution, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.q.query(ctx,
		`SELECT id, agent_id, user_id, input, raw_output, recommendation, confidence_score, rationale,
			risks, parsed, input_tokens, output_tokens, created_at
		FROM agent_executions WHERE agent_id = ? ORDER BY created_at DESC LIMIT ?`,
		agentID, limit,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "store: list executions for %s", agentID)
	}
	return collect(rows, func(row scannable) (*model.AgentExecution, error) {
		var e model.AgentExecution
		var risks []byte
		err := row.Scan(&e.ID, &e.AgentID, &e.UserID, &e.Input, &e.RawOutput, &e.Recommendation,
			&e.ConfidenceScore, &e.Rationale, &risks, &e.Parsed, &e.InputTokens, &e.OutputTokens, &e.CreatedAt)
		if err != nil {
			return nil, err
		}
		if err := fromJSON(risks, &e.Risks); err != nil {
			return nil, err
		}
		return &e, nil
	})
}
