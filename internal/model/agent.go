package model

import "time"

// Agent is a user-owned analysis prompt configuration.
type Agent struct {
	ID           string    `json:"id"`
	OwnerID      string    `json:"owner_id"`
	Name         string    `json:"name"`
	SystemPrompt string    `json:"system_prompt"`
	Model        string    `json:"model"`
	Temperature  float64   `json:"temperature"`
	MaxTokens    int64     `json:"max_tokens"`
	CreatedAt    time.Time `json:"created_at"`
}

// AgentExecution is one persisted run of an agent.
type AgentExecution struct {
	ID              string    `json:"id"`
	AgentID         string    `json:"agent_id"`
	UserID          string    `json:"user_id"`
	Input           string    `json:"input"`
	RawOutput       string    `json:"raw_output"`
	Recommendation  string    `json:"recommendation"`
	ConfidenceScore float64   `json:"confidence_score"`
	Rationale       string    `json:"rationale,omitempty"`
	Risks           []string  `json:"risks,omitempty"`
	Parsed          bool      `json:"parsed"`
	InputTokens     int64     `json:"input_tokens"`
	OutputTokens    int64     `json:"output_tokens"`
	CreatedAt       time.Time `json:"created_at"`
}
