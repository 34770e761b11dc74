package model

import "time"

// Session terminal states. A session that completed with some failed
// messages is still "completed"; "failed" is reserved for session-level
// fatal errors such as the mailbox being unreachable.
const (
	SessionRunning   = "running"
	SessionCompleted = "completed"
	SessionFailed    = "failed"
)

// ProcessingSession tracks one bounded pipeline run over a batch of
// messages. Counters satisfy processed == succeeded + failed and
// processed <= total at all times.
type ProcessingSession struct {
	ID        uint       `json:"id" gorm:"primaryKey;autoIncrement"`
	SessionID string     `json:"session_id" gorm:"type:varchar(64);not null;uniqueIndex"`
	Status    string     `json:"status" gorm:"type:varchar(16);not null;default:running"`
	Total     int        `json:"total"`
	Processed int        `json:"processed"`
	Succeeded int        `json:"succeeded"`
	Failed    int        `json:"failed"`
	Error     string     `json:"error,omitempty" gorm:"type:text"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// TableName specifies the table name for ProcessingSession
func (ProcessingSession) TableName() string {
	return "processing_sessions"
}
