package waitlist

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"github.com/akeren/go-waitlist/internal/models"
	"github.com/akeren/go-waitlist/pkg/constants"
)

// CodeGenerator draws a candidate referral code. Uniqueness is checked by the Ledger.
type CodeGenerator func() (string, error)

var alphabetSize = big.NewInt(int64(len(constants.ReferralCodeAlphabet)))

func RandomReferralCode() (string, error) {
	var b strings.Builder
	b.Grow(models.ReferralCodeLength)

	for i := 0; i < models.ReferralCodeLength; i++ {
		n, err := rand.Int(rand.Reader, alphabetSize)
		if err != nil {
			return "", fmt.Errorf("draw referral code: %w", err)
		}
		b.WriteByte(constants.ReferralCodeAlphabet[n.Int64()])
	}

	return b.String(), nil
}

// NormalizeReferralCode trims and upper-cases a code supplied by a client.
func NormalizeReferralCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// IsWellFormedReferralCode reports whether code could have been issued.
func IsWellFormedReferralCode(code string) bool {
	if len(code) != models.ReferralCodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		if strings.IndexByte(constants.ReferralCodeAlphabet, code[i]) < 0 {
			return false
		}
	}
	return true
}
