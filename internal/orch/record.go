package orch

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
)

// StepRecord is the audit record written for each orchestrator step.
type StepRecord struct {
	// StepID is the unique identifier for this step.
	StepID string `json:"step_id"`

	// ThreadID is the conversation thread the step belongs to.
	ThreadID string `json:"thread_id"`

	// StartTime is when the step started.
	StartTime time.Time `json:"start_time"`

	// EndTime is when the step completed.
	EndTime time.Time `json:"end_time"`

	// PlannerText is the free text of the planner's message for this step.
	PlannerText string `json:"planner_text,omitempty"`

	// ToolCallsExecuted is the number of tool calls run during the step.
	ToolCallsExecuted int `json:"tool_calls_executed"`

	// Outcome is "continue" for intermediate steps, or the terminal outcome.
	Outcome string `json:"outcome"`
}

// NewStepRecord creates a record for a step starting now.
func NewStepRecord(threadID string) *StepRecord {
	return &StepRecord{
		StepID:    uuid.NewString(),
		ThreadID:  threadID,
		StartTime: time.Now(),
	}
}

// Complete marks the record finished with the given outcome.
func (r *StepRecord) Complete(outcome string) {
	r.EndTime = time.Now()
	r.Outcome = outcome
}

// SaveRecord writes the record as JSON into logsDir and returns the path.
func SaveRecord(logsDir string, record *StepRecord) (string, error) {
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create logs directory: %w", err)
	}

	filename := fmt.Sprintf("%s-%s.json", record.StartTime.Format("20060102-150405"), record.StepID)
	path := filepath.Join(logsDir, filename)

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal step record: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write step record: %w", err)
	}
	return path, nil
}

// LoadAllStepRecords reads every step record in logsDir, ordered by start
// time. A missing directory yields an empty slice.
func LoadAllStepRecords(logsDir string) ([]*StepRecord, error) {
	entries, err := os.ReadDir(logsDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []*StepRecord{}, nil
		}
		return nil, fmt.Errorf("failed to read logs directory: %w", err)
	}

	records := make([]*StepRecord, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(logsDir, entry.Name()))
		if err != nil {
			continue
		}
		var record StepRecord
		if err := json.Unmarshal(data, &record); err != nil {
			continue
		}
		records = append(records, &record)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].StartTime.Before(records[j].StartTime)
	})
	return records, nil
}
