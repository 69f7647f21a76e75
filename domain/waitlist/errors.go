package waitlist

import (
	"errors"
	"fmt"

	"github.com/akeren/go-waitlist/internal/models"
	apperrors "github.com/akeren/go-waitlist/pkg/errors"
)

// Sentinel errors for the waitlist domain.
var (
	ErrInvalidEmail            = errors.New("invalid email address")
	ErrCategoryUnset           = errors.New("category is required")
	ErrInvalidCategory         = errors.New("unknown category")
	ErrAlreadyRegistered       = errors.New("email already registered")
	ErrDuplicateEmail          = errors.New("duplicate email")
	ErrDuplicateCode           = errors.New("duplicate referral code")
	ErrCodeGenerationExhausted = errors.New("referral code generation exhausted")
	ErrEntryNotFound           = errors.New("waitlist entry not found")
)

func NewInvalidEmailError() error {
	return apperrors.NewInvalidRequestError("A valid email address is required", ErrInvalidEmail)
}

func NewCategoryUnsetError() error {
	return apperrors.NewInvalidRequestError("Category is required", ErrCategoryUnset)
}

func NewInvalidCategoryError(category string) error {
	return apperrors.NewInvalidRequestError(
		fmt.Sprintf("Category must be one of: %s, %s", models.CategoryClient, models.CategoryTrainer),
		fmt.Errorf("%w: %q", ErrInvalidCategory, category),
	)
}

func NewDuplicateEmailError(err error) error {
	return apperrors.NewConflictError("waitlist entry with this email already exists", errors.Join(ErrDuplicateEmail, err))
}

func NewDuplicateCodeError(err error) error {
	return apperrors.NewConflictError("referral code already issued", errors.Join(ErrDuplicateCode, err))
}

func NewCodeGenerationExhaustedError(attempts int) error {
	return apperrors.NewInternalServerError(
		"Unable to complete signup, please try again",
		fmt.Errorf("%w after %d attempts", ErrCodeGenerationExhausted, attempts),
	)
}

func NewEntryNotFoundError() error {
	return apperrors.NewNotFoundError("Waitlist entry not found", ErrEntryNotFound)
}

// AlreadyRegisteredError is returned when the email is already on the list.
// It carries the existing referral code so the client can be told about it.
type AlreadyRegisteredError struct {
	*apperrors.AppError
	ReferralCode string
}

func NewAlreadyRegisteredError(referralCode string) *AlreadyRegisteredError {
	return &AlreadyRegisteredError{
		AppError:     apperrors.NewConflictError("This email is already on the waitlist", ErrAlreadyRegistered),
		ReferralCode: referralCode,
	}
}

// Unwrap exposes the AppError so errors.As(err, **apperrors.AppError) keeps working.
func (e *AlreadyRegisteredError) Unwrap() error {
	return e.AppError
}

// ExistingReferralCode extracts the code carried by an AlreadyRegisteredError.
func ExistingReferralCode(err error) (string, bool) {
	var already *AlreadyRegisteredError
	if errors.As(err, &already) {
		return already.ReferralCode, true
	}
	return "", false
}
