package models

import "time"

// Source tells where an opener came from.
type Source string

const (
	SourceAI       Source = "ai"
	SourceTemplate Source = "template"
)

// GenerationAttempt is one produced opener, before or after evaluation.
type GenerationAttempt struct {
	Variant   Variant `json:"variant,omitempty"`
	Text      string  `json:"text"`
	Source    Source  `json:"source"`
	Model     string  `json:"model,omitempty"`
	LatencyMs int64   `json:"latency_ms"`
}

// EvaluationResult is the quality verdict for one AI-generated opener.
// Template openers are never evaluated.
type EvaluationResult struct {
	Score           int      `json:"score"`
	Acceptable      bool     `json:"acceptable"`
	AIIndicators    []string `json:"ai_indicators,omitempty"`
	StyleViolations []string `json:"style_violations,omitempty"`
	OtherIssues     []string `json:"other_issues,omitempty"`
}

// TotalIssues counts every finding across the three categories.
func (e EvaluationResult) TotalIssues() int {
	return len(e.AIIndicators) + len(e.StyleViolations) + len(e.OtherIssues)
}

// Findings returns all findings in report order: AI indicators first, then
// style violations, then everything else.
func (e EvaluationResult) Findings() []string {
	out := make([]string, 0, e.TotalIssues())
	out = append(out, e.AIIndicators...)
	out = append(out, e.StyleViolations...)
	out = append(out, e.OtherIssues...)
	return out
}

// OutcomeKind is the terminal state of one contact.
type OutcomeKind string

const (
	OutcomeAccepted OutcomeKind = "accepted"
	OutcomeFallback OutcomeKind = "fallback"
	OutcomeFailed   OutcomeKind = "failed"
)

// Outcome is the final result for one contact: the email that will be
// written out, or the reason nothing could be produced.
type Outcome struct {
	RowIndex   int                `json:"row_index"`
	Kind       OutcomeKind        `json:"kind"`
	Attempt    *GenerationAttempt `json:"attempt,omitempty"`
	Evaluation *EvaluationResult  `json:"evaluation,omitempty"`
	Subject    string             `json:"subject,omitempty"`
	Body       string             `json:"body,omitempty"`
	FailReason string             `json:"fail_reason,omitempty"`
}

// AIGenerated reports whether the final opener came from the AI provider.
func (o Outcome) AIGenerated() bool {
	return o.Attempt != nil && o.Attempt.Source == SourceAI
}

// Checkpoint records resume state for one input file. LastRowIndex is the
// contiguous boundary: every row at or below it has been written out.
type Checkpoint struct {
	InputFingerprint string    `json:"input_fingerprint"`
	LastRowIndex     int       `json:"last_row_index"`
	TotalRows        int       `json:"total_rows"`
	OutputPath       string    `json:"output_path"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// CacheStats is a point-in-time snapshot of content cache effectiveness.
type CacheStats struct {
	Entries int64 `json:"entries"`
	Expired int64 `json:"expired"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
}

// HitRate returns hits over total lookups, or zero before any lookup.
func (s CacheStats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// RunSummary aggregates one pipeline run for logs and the status command.
type RunSummary struct {
	RunID      string    `json:"run_id"`
	InputPath  string    `json:"input_path"`
	OutputPath string    `json:"output_path"`
	Total      int       `json:"total"`
	Processed  int       `json:"processed"`
	Accepted   int       `json:"accepted"`
	Fallback   int       `json:"fallback"`
	Failed     int       `json:"failed"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// OutcomeRecord is one persisted outcome row in the run log.
type OutcomeRecord struct {
	ID          int64       `json:"id"`
	RunID       string      `json:"run_id"`
	RowIndex    int         `json:"row_index"`
	Email       string      `json:"email"`
	Company     string      `json:"company"`
	SiteKey     string      `json:"site_key"`
	Kind        OutcomeKind `json:"kind"`
	Variant     string      `json:"variant,omitempty"`
	Score       int         `json:"score"`
	Subject     string      `json:"subject,omitempty"`
	Body        string      `json:"body,omitempty"`
	AIGenerated bool        `json:"ai_generated"`
	FailReason  string      `json:"fail_reason,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}
