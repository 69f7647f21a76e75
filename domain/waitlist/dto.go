package waitlist

import (
	"github.com/akeren/go-waitlist/internal/models"
	"github.com/akeren/go-waitlist/pkg/constants"
)

// ========================================
// Request DTOs
// ========================================

// AdmitRequest is a signup. Email syntax is checked by the service so that a
// malformed address always yields the same error.
type AdmitRequest struct {
	Email         string `json:"email" binding:"max=320"`
	ReferralCode  string `json:"referral_code" binding:"omitempty,max=32"`
	Category      string `json:"category" binding:"omitempty,max=32"`
	ABTestVariant string `json:"ab_test_variant" binding:"omitempty,max=64"`
	UserAgent     string `json:"user_agent" binding:"omitempty,max=512"`
}

type StatusQuery struct {
	Email string `form:"email" binding:"required,max=320"`
}

// ========================================
// Response DTOs
// ========================================

type AdmitResponse struct {
	ReferralCode string `json:"referral_code"`
	Position     int64  `json:"position"`
}

type AlreadyRegisteredResponse struct {
	ReferralCode string `json:"referral_code"`
}

type StatusResponse struct {
	ReferralCode  string `json:"referral_code"`
	Position      int64  `json:"position"`
	ReferralCount int64  `json:"referral_count"`
	Referred      bool   `json:"referred"`
	JoinedAt      string `json:"joined_at"`
}

type ReferralCodeResponse struct {
	Code  string `json:"code"`
	Valid bool   `json:"valid"`
}

// ========================================
// Mappers
// ========================================

func ToStatusResponse(entry *models.WaitlistEntry, position int64) StatusResponse {
	return StatusResponse{
		ReferralCode:  entry.ReferralCode,
		Position:      position,
		ReferralCount: entry.ReferralCount,
		Referred:      entry.IsReferred(),
		JoinedAt:      entry.CreatedAt.Format(constants.TimestampFormat),
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
