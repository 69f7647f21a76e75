package waitlist

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/akeren/go-waitlist/internal/log"
	"github.com/akeren/go-waitlist/internal/models"
	"github.com/akeren/go-waitlist/pkg/constants"
	apperrors "github.com/akeren/go-waitlist/pkg/errors"
	"github.com/akeren/go-waitlist/pkg/mailinglist"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/cases"
)

const notifyTimeout = 2 * time.Second

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	tracer       = otel.Tracer("github.com/akeren/go-waitlist/domain/waitlist")
)

type AdmissionService interface {
	// Admit records a new signup and returns its referral code and queue position.
	Admit(ctx context.Context, req *AdmitRequest) (*AdmitResponse, error)

	// Status looks up an existing signup by email.
	Status(ctx context.Context, email string) (*StatusResponse, error)

	// CheckReferralCode reports whether code belongs to an existing entry.
	CheckReferralCode(ctx context.Context, code string) (*ReferralCodeResponse, error)
}

//go:generate mockgen -source=service.go -destination=mock_notifier.go -package=waitlist -exclude_interfaces=AdmissionService

// Notifier is the mailing-list hand-off used after a signup commits.
type Notifier interface {
	Notify(ctx context.Context, contact mailinglist.Contact) error
}

type ServiceOptions struct {
	MaxCodeAttempts int
	RequireCategory bool
	GenerateCode    CodeGenerator
	Metrics         *Metrics
}

type admissionService struct {
	logger          *log.Logger
	ledger          Ledger
	notifier        Notifier
	generateCode    CodeGenerator
	maxCodeAttempts int
	requireCategory bool
	metrics         *Metrics
}

func NewAdmissionService(logger *log.Logger, ledger Ledger, notifier Notifier, opts ServiceOptions) AdmissionService {
	if opts.MaxCodeAttempts <= 0 {
		opts.MaxCodeAttempts = constants.DefaultMaxCodeAttempts
	}
	if opts.GenerateCode == nil {
		opts.GenerateCode = RandomReferralCode
	}
	if notifier == nil {
		notifier = mailinglist.NoopNotifier{}
	}

	return &admissionService{
		logger:          logger,
		ledger:          ledger,
		notifier:        notifier,
		generateCode:    opts.GenerateCode,
		maxCodeAttempts: opts.MaxCodeAttempts,
		requireCategory: opts.RequireCategory,
		metrics:         opts.Metrics,
	}
}

func (s *admissionService) Admit(ctx context.Context, req *AdmitRequest) (*AdmitResponse, error) {
	ctx, span := tracer.Start(ctx, "waitlist.Admit")
	defer span.End()

	resp, err := s.admit(ctx, req)

	s.metrics.admission(admissionOutcome(err))
	if err != nil {
		recordError(span, err)
		return nil, err
	}

	span.SetAttributes(attribute.Int64("waitlist.position", resp.Position))
	return resp, nil
}

func (s *admissionService) admit(ctx context.Context, req *AdmitRequest) (*AdmitResponse, error) {
	logger := log.GetLoggerInstanceFromContext(ctx, s.logger)

	if req == nil {
		logger.Error("Admit received nil request")
		return nil, apperrors.NewInvalidRequestError("request cannot be nil", nil)
	}

	email := strings.TrimSpace(req.Email)
	if !emailPattern.MatchString(email) {
		return nil, NewInvalidEmailError()
	}

	category, err := s.normalizeCategory(req.Category)
	if err != nil {
		return nil, err
	}

	existing, err := s.ledger.FindByEmail(ctx, email)
	switch {
	case err == nil:
		logger.Info("Signup for registered email", "email", email)
		return nil, NewAlreadyRegisteredError(existing.ReferralCode)
	case !errors.Is(err, ErrEntryNotFound):
		logger.Error("Failed to check for existing signup", "email", email, "error", err)
		return nil, err
	}

	referrer, err := s.resolveReferrer(ctx, logger, req.ReferralCode)
	if err != nil {
		return nil, err
	}

	entry, err := s.insertWithFreshCode(ctx, logger, email, category, referrer, req)
	if err != nil {
		return nil, err
	}

	position, err := s.ledger.CountCreatedAtOrBefore(ctx, entry.CreatedAt)
	if err != nil {
		logger.Error("Signup stored but position lookup failed", "email", email, "entry_id", entry.ID, "error", err)
		return nil, err
	}

	if referrer != nil {
		s.metrics.attribution()
	}
	s.notify(ctx, logger, entry)

	logger.Info("Signup admitted",
		"entry_id", entry.ID,
		"position", position,
		"referred", referrer != nil,
	)

	return &AdmitResponse{ReferralCode: entry.ReferralCode, Position: position}, nil
}

func (s *admissionService) normalizeCategory(raw string) (*string, error) {
	// Casers are stateful, so each call gets its own.
	category := cases.Fold().String(strings.TrimSpace(raw))

	switch category {
	case "":
		if s.requireCategory {
			return nil, NewCategoryUnsetError()
		}
		return nil, nil
	case models.CategoryClient, models.CategoryTrainer:
		return &category, nil
	default:
		return nil, NewInvalidCategoryError(raw)
	}
}

// resolveReferrer returns nil when no usable code was supplied. Unknown codes
// are not an error; store failures are.
func (s *admissionService) resolveReferrer(ctx context.Context, logger *log.Logger, raw string) (*models.WaitlistEntry, error) {
	code := NormalizeReferralCode(raw)
	if code == "" {
		return nil, nil
	}

	if !IsWellFormedReferralCode(code) {
		logger.Info("Ignoring malformed referral code", "referral_code", code)
		return nil, nil
	}

	referrer, err := s.ledger.FindByReferralCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrEntryNotFound) {
			logger.Info("Referral code not found; admitting without referrer", "referral_code", code)
			return nil, nil
		}
		logger.Error("Failed to resolve referral code", "referral_code", code, "error", err)
		return nil, err
	}

	return referrer, nil
}

func (s *admissionService) insertWithFreshCode(
	ctx context.Context,
	logger *log.Logger,
	email string,
	category *string,
	referrer *models.WaitlistEntry,
	req *AdmitRequest,
) (*models.WaitlistEntry, error) {
	var referredBy *string
	if referrer != nil {
		referredBy = &referrer.ID
	}

	for attempt := 1; attempt <= s.maxCodeAttempts; attempt++ {
		code, err := s.generateCode()
		if err != nil {
			logger.Error("Referral code generator failed", "error", err)
			return nil, apperrors.NewInternalServerError("Unable to complete signup, please try again", err)
		}

		entry := &models.WaitlistEntry{
			Email:         email,
			ReferralCode:  code,
			ReferredBy:    referredBy,
			Category:      category,
			ABTestVariant: optional(strings.TrimSpace(req.ABTestVariant)),
			UserAgent:     optional(strings.TrimSpace(req.UserAgent)),
		}

		err = s.ledger.Transact(ctx, func(tx Ledger) error {
			if err := tx.Insert(ctx, entry); err != nil {
				return err
			}
			if referrer != nil {
				return tx.IncrementReferralCount(ctx, referrer.ID)
			}
			return nil
		})

		switch {
		case err == nil:
			return entry, nil

		case errors.Is(err, ErrDuplicateCode):
			s.metrics.collision()
			logger.Warn("Referral code collision", "attempt", attempt)

		case errors.Is(err, ErrDuplicateEmail):
			// A concurrent request admitted the same email first.
			winner, findErr := s.ledger.FindByEmail(ctx, email)
			if findErr != nil {
				logger.Error("Failed to load concurrently admitted entry", "email", email, "error", findErr)
				return nil, findErr
			}
			return nil, NewAlreadyRegisteredError(winner.ReferralCode)

		default:
			logger.Error("Failed to store signup", "email", email, "attempt", attempt, "error", err)
			return nil, err
		}
	}

	logger.Error("Referral code generation exhausted", "email", email, "attempts", s.maxCodeAttempts)
	return nil, NewCodeGenerationExhaustedError(s.maxCodeAttempts)
}

// notify is best effort: the signup is already committed.
func (s *admissionService) notify(ctx context.Context, logger *log.Logger, entry *models.WaitlistEntry) {
	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()

	err := s.notifier.Notify(notifyCtx, mailinglist.Contact{
		Email:        entry.Email,
		ReferralCode: entry.ReferralCode,
	})
	if err != nil {
		s.metrics.notification("failed")
		logger.Warn("Mailing list notification failed", "entry_id", entry.ID, "error", err)
		return
	}
	s.metrics.notification("dispatched")
}

func (s *admissionService) Status(ctx context.Context, email string) (*StatusResponse, error) {
	logger := log.GetLoggerInstanceFromContext(ctx, s.logger)

	email = strings.TrimSpace(email)
	if !emailPattern.MatchString(email) {
		return nil, NewInvalidEmailError()
	}

	entry, err := s.ledger.FindByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, ErrEntryNotFound) {
			logger.Error("Failed to load signup", "email", email, "error", err)
		}
		return nil, err
	}

	position, err := s.ledger.CountCreatedAtOrBefore(ctx, entry.CreatedAt)
	if err != nil {
		logger.Error("Failed to compute position", "entry_id", entry.ID, "error", err)
		return nil, err
	}

	resp := ToStatusResponse(entry, position)
	return &resp, nil
}

func (s *admissionService) CheckReferralCode(ctx context.Context, code string) (*ReferralCodeResponse, error) {
	code = NormalizeReferralCode(code)
	resp := &ReferralCodeResponse{Code: code}

	if !IsWellFormedReferralCode(code) {
		return resp, nil
	}

	if _, err := s.ledger.FindByReferralCode(ctx, code); err != nil {
		if errors.Is(err, ErrEntryNotFound) {
			return resp, nil
		}
		log.GetLoggerInstanceFromContext(ctx, s.logger).Error("Failed to check referral code", "referral_code", code, "error", err)
		return nil, err
	}

	resp.Valid = true
	return resp, nil
}

func admissionOutcome(err error) string {
	switch {
	case err == nil:
		return outcomeAdmitted
	case errors.Is(err, ErrAlreadyRegistered):
		return outcomeAlreadyRegistered
	case apperrors.GetErrorType(err) == apperrors.ErrorTypeInvalidRequest:
		return outcomeRejected
	default:
		return outcomeFailed
	}
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetAttributes(attribute.String("error.type", apperrors.GetErrorType(err)))
	if apperrors.HTTPStatusCode(err) >= 500 {
		span.SetStatus(otelcodes.Error, apperrors.GetHumanReadableMessage(err))
	}
}
