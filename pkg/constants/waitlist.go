package constants

import "time"

const (
	// DefaultMaxCodeAttempts bounds referral code generation retries per admission.
	DefaultMaxCodeAttempts = 5

	// ReferralCodeAlphabet is the character set referral codes are drawn from.
	ReferralCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	// DefaultScanBatchSize is the page size used when streaming every entry.
	DefaultScanBatchSize = 500
)

// Stats summary tuning.
const (
	DiversityBase = 5
	DiversityCap  = 25

	RecentSignupWindow = 24 * time.Hour
)
