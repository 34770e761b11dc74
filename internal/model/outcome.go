package model

import "time"

// Terminal results of one processing attempt.
const (
	ResultSuccess          = "success"
	ResultTransientFailure = "transient_failure"
	ResultPermanentFailure = "permanent_failure"
)

// Pipeline stages a message moves through. The stage stored on an
// outcome is the one at which processing finished.
const (
	StageQueued       = "queued"
	StageFetchingText = "fetching_text"
	StageExtracting   = "extracting_entities"
	StageClassifying  = "classifying"
	StagePersisting   = "persisting"
)

// ProcessingOutcome is the append-only durable record of one terminal
// processing attempt for one message. Rows are only ever inserted; a
// message has at most one success row across all time.
type ProcessingOutcome struct {
	ID           uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	MessageID    string    `json:"message_id" gorm:"type:varchar(255);not null;index"`
	SessionID    string    `json:"session_id" gorm:"type:varchar(64);not null;index"`
	Stage        string    `json:"stage" gorm:"type:varchar(32);not null"`
	Result       string    `json:"result" gorm:"type:varchar(32);not null;index"`
	AttemptCount int       `json:"attempt_count"`
	ErrorDetail  string    `json:"error_detail" gorm:"type:text"`
	CreatedAt    time.Time `json:"created_at"`
}

// TableName specifies the table name for ProcessingOutcome
func (ProcessingOutcome) TableName() string {
	return "processing_outcomes"
}
