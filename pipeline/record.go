package pipeline

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/smallnest/kgqa/format"
	"github.com/smallnest/kgqa/sparql"
	"github.com/smallnest/kgqa/store"
	"github.com/smallnest/kgqa/synth"
)

// Question is one request to the pipeline. Zero Language and Category mean
// the pipeline defaults.
type Question struct {
	Text     string          `json:"question" validate:"required"`
	Language synth.Language  `json:"language,omitempty"`
	Category format.Category `json:"category,omitempty"`
}

// AnswerRecord is the result bundle of one run. It is produced for every
// question, successful or not.
type AnswerRecord struct {
	ID       string          `json:"id"`
	Success  bool            `json:"success"`
	Question string          `json:"question"`
	Language synth.Language  `json:"language"`
	Category format.Category `json:"category"`

	Query         string   `json:"sparql_query,omitempty"`
	Entities      []string `json:"entities_used"`
	Relations     []string `json:"relations_used"`
	Explanation   string   `json:"explanation,omitempty"`
	Parsed        bool     `json:"parsed"`
	Strategy      string   `json:"strategy,omitempty"`
	AutoCorrected bool     `json:"auto_corrected"`
	Corrections   []string `json:"corrections,omitempty"`

	ResultCount    int             `json:"results_count"`
	RawResults     *sparql.Results `json:"raw_results,omitempty"`
	Context        string          `json:"context,omitempty"`
	Answer         string          `json:"answer,omitempty"`
	AnswerDegraded bool            `json:"answer_degraded,omitempty"`

	Stage       Stage  `json:"stage"`
	FailedStage Stage  `json:"failed_stage,omitempty"`
	Error       string `json:"error,omitempty"`

	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration_ns"`
}

// Envelope wraps the record for a store.RecordStore.
func (r *AnswerRecord) Envelope() (*store.Record, error) {
	payload, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal answer record: %w", err)
	}
	return &store.Record{
		ID:        r.ID,
		Question:  r.Question,
		Success:   r.Success,
		Stage:     r.Stage.String(),
		CreatedAt: r.StartedAt,
		Payload:   payload,
	}, nil
}

// FromEnvelope decodes a stored record.
func FromEnvelope(rec *store.Record) (*AnswerRecord, error) {
	var r AnswerRecord
	if err := json.Unmarshal(rec.Payload, &r); err != nil {
		return nil, fmt.Errorf("failed to unmarshal answer record %s: %w", rec.ID, err)
	}
	return &r, nil
}
