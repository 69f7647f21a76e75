package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Categories a signup may declare.
const (
	CategoryClient  = "client"
	CategoryTrainer = "trainer"
)

// ReferralCodeLength is the fixed length of every issued referral code.
const ReferralCodeLength = 6

// WaitlistEntry is one admitted signup. Rows are append-only: email and
// referral code never change after insertion, only the referral counter moves.
type WaitlistEntry struct {
	ID            string    `gorm:"type:text;primaryKey" json:"id"`
	Email         string    `gorm:"not null;uniqueIndex:idx_waitlist_entries_email" json:"email"`
	ReferralCode  string    `gorm:"type:varchar(6);not null;uniqueIndex:idx_waitlist_entries_referral_code" json:"referral_code"`
	ReferredBy    *string   `gorm:"type:text;index" json:"referred_by,omitempty"`
	ReferralCount int64     `gorm:"not null;default:0" json:"referral_count"`
	Category      *string   `gorm:"type:text" json:"category,omitempty"`
	ABTestVariant *string   `gorm:"type:text" json:"ab_test_variant,omitempty"`
	UserAgent     *string   `gorm:"type:text" json:"user_agent,omitempty"`
	CreatedAt     time.Time `gorm:"not null;index" json:"created_at"`
	UpdatedAt     time.Time `gorm:"not null" json:"updated_at"`
}

func (e *WaitlistEntry) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}

	// Positions compare created_at across rows, so every writer stores the
	// same precision the database keeps.
	if e.CreatedAt.IsZero() {
		e.CreatedAt = Now()
	}
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = e.CreatedAt
	}
	return nil
}

// IsReferred reports whether the entry was attributed to a referrer.
func (e *WaitlistEntry) IsReferred() bool {
	return e.ReferredBy != nil && *e.ReferredBy != ""
}

// Now returns the current UTC time truncated to microseconds.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
