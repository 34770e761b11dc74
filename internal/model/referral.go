package model

import (
	"time"

	"gorm.io/gorm"
)

// Priority tiers for a referral, highest urgency first.
const (
	PriorityAlta  = "alta"
	PriorityMedia = "media"
	PriorityBaja  = "baja"
)

// Referral is the structured record extracted from one referral email.
// MessageID carries a unique index so a message can never produce two
// referrals, regardless of how often it is reprocessed.
type Referral struct {
	ID            uint           `json:"id" gorm:"primaryKey;autoIncrement"`
	MessageID     string         `json:"message_id" gorm:"type:varchar(255);not null;uniqueIndex"`
	SessionID     string         `json:"session_id" gorm:"type:varchar(64);not null;index"`
	Sender        string         `json:"sender" gorm:"type:varchar(255)"`
	Subject       string         `json:"subject" gorm:"type:varchar(512)"`
	PatientID     *string        `json:"patient_id,omitempty" gorm:"type:varchar(64)"`
	PatientName   *string        `json:"patient_name,omitempty" gorm:"type:varchar(255)"`
	Age           *int           `json:"age,omitempty"`
	Diagnosis     *string        `json:"diagnosis,omitempty" gorm:"type:text"`
	Specialty     *string        `json:"specialty,omitempty" gorm:"type:varchar(64)"`
	UrgencyPhrase *string        `json:"urgency_phrase,omitempty" gorm:"type:varchar(255)"`
	Priority      string         `json:"priority" gorm:"type:varchar(16);not null;default:media"`
	ReceivedAt    time.Time      `json:"received_at"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

// TableName specifies the table name for Referral
func (Referral) TableName() string {
	return "referrals"
}
