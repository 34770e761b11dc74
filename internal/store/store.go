// Package store is the persistence layer for referrals, processing
// outcomes and sessions. The outcome log is append-only and doubles as
// the durable deduplication record: a message with a success row is
// never reprocessed, across restarts included.
package store

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"referral-triage-go/internal/model"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// HasSucceeded reports whether the message already has a success
// outcome. Only success rows count: transient or permanent failures
// leave the message eligible for reprocessing.
func (s *Store) HasSucceeded(messageID string) (bool, error) {
	var count int64
	result := s.db.Model(&model.ProcessingOutcome{}).
		Where("message_id = ? AND result = ?", messageID, model.ResultSuccess).
		Count(&count)
	if result.Error != nil {
		return false, fmt.Errorf("database error checking processed message: %w", result.Error)
	}
	return count > 0, nil
}

// SaveSuccess upserts the referral and appends its success outcome as
// one atomic unit. Either both land or neither does; a partially
// written referral is never visible as successful.
func (s *Store) SaveSuccess(referral *model.Referral, outcome *model.ProcessingOutcome) error {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "message_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"session_id", "sender", "subject", "patient_id", "patient_name",
				"age", "diagnosis", "specialty", "urgency_phrase", "priority",
				"received_at", "updated_at",
			}),
		}).Create(referral).Error; err != nil {
			return fmt.Errorf("failed to upsert referral: %w", err)
		}
		if err := tx.Create(outcome).Error; err != nil {
			return fmt.Errorf("failed to append outcome: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to persist referral %s: %w", referral.MessageID, err)
	}
	return nil
}

// RecordFailure appends a failure outcome. Failures carry no referral
// row, only the log entry with the error detail preserved.
func (s *Store) RecordFailure(outcome *model.ProcessingOutcome) error {
	if result := s.db.Create(outcome); result.Error != nil {
		return fmt.Errorf("failed to record failure outcome: %w", result.Error)
	}
	return nil
}

// CreateSession persists a new running session row.
func (s *Store) CreateSession(sessionID string, total int) error {
	sess := model.ProcessingSession{
		SessionID: sessionID,
		Status:    model.SessionRunning,
		Total:     total,
		StartedAt: time.Now(),
	}
	if result := s.db.Create(&sess); result.Error != nil {
		return fmt.Errorf("failed to create session: %w", result.Error)
	}
	return nil
}

// UpdateSessionCounters writes the current counter snapshot onto the
// session row.
func (s *Store) UpdateSessionCounters(sessionID string, processed, succeeded, failed int) error {
	result := s.db.Model(&model.ProcessingSession{}).
		Where("session_id = ?", sessionID).
		Updates(map[string]interface{}{
			"processed": processed,
			"succeeded": succeeded,
			"failed":    failed,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update session counters: %w", result.Error)
	}
	return nil
}

// FinalizeSession stores the terminal status and end time. The session
// row is immutable afterwards.
func (s *Store) FinalizeSession(sessionID, status, errDetail string) error {
	now := time.Now()
	result := s.db.Model(&model.ProcessingSession{}).
		Where("session_id = ?", sessionID).
		Updates(map[string]interface{}{
			"status":   status,
			"error":    errDetail,
			"ended_at": &now,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to finalize session: %w", result.Error)
	}
	return nil
}

// GetSession returns one session by its identifier.
func (s *Store) GetSession(sessionID string) (*model.ProcessingSession, error) {
	var sess model.ProcessingSession
	result := s.db.Where("session_id = ?", sessionID).First(&sess)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if result.Error != nil {
		return nil, fmt.Errorf("failed to get session: %w", result.Error)
	}
	return &sess, nil
}

// ListOutcomes returns the outcome log entries of one session, newest
// first.
func (s *Store) ListOutcomes(sessionID string, limit int) ([]model.ProcessingOutcome, error) {
	var outcomes []model.ProcessingOutcome
	query := s.db.Where("session_id = ?", sessionID).Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if result := query.Find(&outcomes); result.Error != nil {
		return nil, fmt.Errorf("failed to list outcomes: %w", result.Error)
	}
	return outcomes, nil
}

// ListRecentReferrals returns the most recently persisted referrals.
func (s *Store) ListRecentReferrals(limit int) ([]model.Referral, error) {
	if limit <= 0 {
		limit = 50
	}
	var referrals []model.Referral
	result := s.db.Order("created_at DESC").Limit(limit).Find(&referrals)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list referrals: %w", result.Error)
	}
	return referrals, nil
}
