package http

import (
	"encoding/json"
	"time"
)

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// MindMapResponse is the response body for GET /api/v1/groups/:group/mindmap.
type MindMapResponse struct {
	Group     string          `json:"group"`
	MindMap   json.RawMessage `json:"mindmap"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// SummaryItem is one summary in SummariesResponse.
type SummaryItem struct {
	FileName  string    `json:"file_name"`
	Summary   string    `json:"summary"`
	CreatedAt time.Time `json:"created_at"`
}

// SummariesResponse is the response body for
// GET /api/v1/groups/:group/summaries.
type SummariesResponse struct {
	Group     string        `json:"group"`
	Summaries []SummaryItem `json:"summaries"`
}
