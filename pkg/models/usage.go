package models

import "time"

// UsageRecord is the token accounting for one AI completion call.
type UsageRecord struct {
	ID               int64     `json:"id"`
	Model            string    `json:"model"`
	Tier             string    `json:"tier"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	TotalTokens      int       `json:"total_tokens"`
	LatencyMs        int64     `json:"latency_ms"`
	CreatedAt        time.Time `json:"created_at"`
}

// UsageSummary aggregates usage per model and tier.
type UsageSummary struct {
	Model           string `json:"model"`
	Tier            string `json:"tier"`
	RequestCount    int64  `json:"request_count"`
	TotalPrompt     int64  `json:"total_prompt"`
	TotalCompletion int64  `json:"total_completion"`
	TotalTokens     int64  `json:"total_tokens"`
}
