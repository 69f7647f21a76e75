package waitlist

import (
	"context"
	"errors"
	"iter"
	"strings"
	"time"

	"github.com/akeren/go-waitlist/internal/models"
	"github.com/akeren/go-waitlist/pkg/constants"
	apperrors "github.com/akeren/go-waitlist/pkg/errors"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"gorm.io/gorm"
)

const pgUniqueViolation = "23505"

//go:generate mockgen -source=repository.go -destination=mock_ledger.go -package=waitlist

// Ledger is the only place waitlist entries are stored. Uniqueness of email and
// referral code is enforced by the database, never by a prior read.
type Ledger interface {
	// Insert fails with ErrDuplicateEmail or ErrDuplicateCode on a unique violation.
	Insert(ctx context.Context, entry *models.WaitlistEntry) error
	FindByEmail(ctx context.Context, email string) (*models.WaitlistEntry, error)
	FindByReferralCode(ctx context.Context, code string) (*models.WaitlistEntry, error)
	// IncrementReferralCount adds one to the counter in a single UPDATE.
	IncrementReferralCount(ctx context.Context, id string) error
	// CountCreatedAtOrBefore is the 1-based queue position of an entry created at ts.
	CountCreatedAtOrBefore(ctx context.Context, ts time.Time) (int64, error)
	// ScanAll streams every entry in id order. Each call starts a fresh scan.
	ScanAll(ctx context.Context) iter.Seq2[*models.WaitlistEntry, error]
	// Transact runs fn against a Ledger bound to one database transaction.
	Transact(ctx context.Context, fn func(tx Ledger) error) error
}

type LedgerOption func(*gormLedger)

func WithScanBatchSize(n int) LedgerOption {
	return func(l *gormLedger) {
		if n > 0 {
			l.batchSize = n
		}
	}
}

type gormLedger struct {
	db        *gorm.DB
	batchSize int
}

func NewLedger(db *gorm.DB, opts ...LedgerOption) Ledger {
	l := &gormLedger{db: db, batchSize: constants.DefaultScanBatchSize}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *gormLedger) Insert(ctx context.Context, entry *models.WaitlistEntry) error {
	if err := l.db.WithContext(ctx).Create(entry).Error; err != nil {
		if column, ok := uniqueViolation(err); ok {
			if column == columnReferralCode {
				return NewDuplicateCodeError(err)
			}
			return NewDuplicateEmailError(err)
		}
		return apperrors.NewStoreError("unable to create waitlist entry", err)
	}

	return nil
}

func (l *gormLedger) FindByEmail(ctx context.Context, email string) (*models.WaitlistEntry, error) {
	return l.findOne(ctx, "email = ?", email)
}

func (l *gormLedger) FindByReferralCode(ctx context.Context, code string) (*models.WaitlistEntry, error) {
	return l.findOne(ctx, "referral_code = ?", code)
}

func (l *gormLedger) findOne(ctx context.Context, query string, arg any) (*models.WaitlistEntry, error) {
	var entry models.WaitlistEntry

	if err := l.db.WithContext(ctx).Where(query, arg).Take(&entry).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewEntryNotFoundError()
		}
		return nil, apperrors.NewStoreError("failed to fetch waitlist entry", err)
	}

	return &entry, nil
}

func (l *gormLedger) IncrementReferralCount(ctx context.Context, id string) error {
	result := l.db.WithContext(ctx).
		Model(&models.WaitlistEntry{}).
		Where("id = ?", id).
		UpdateColumns(map[string]any{
			"referral_count": gorm.Expr("referral_count + ?", 1),
			"updated_at":     models.Now(),
		})

	if result.Error != nil {
		return apperrors.NewStoreError("unable to update referral count", result.Error)
	}

	if result.RowsAffected == 0 {
		return NewEntryNotFoundError()
	}

	return nil
}

func (l *gormLedger) CountCreatedAtOrBefore(ctx context.Context, ts time.Time) (int64, error) {
	var count int64

	err := l.db.WithContext(ctx).
		Model(&models.WaitlistEntry{}).
		Where("created_at <= ?", ts.UTC()).
		Count(&count).Error
	if err != nil {
		return 0, apperrors.NewStoreError("unable to compute queue position", err)
	}

	return count, nil
}

func (l *gormLedger) ScanAll(ctx context.Context) iter.Seq2[*models.WaitlistEntry, error] {
	return func(yield func(*models.WaitlistEntry, error) bool) {
		lastID := ""

		for {
			query := l.db.WithContext(ctx).Order("id ASC").Limit(l.batchSize)
			if lastID != "" {
				query = query.Where("id > ?", lastID)
			}

			var batch []*models.WaitlistEntry
			if err := query.Find(&batch).Error; err != nil {
				yield(nil, apperrors.NewStoreError("failed to scan waitlist entries", err))
				return
			}

			for _, entry := range batch {
				if !yield(entry, nil) {
					return
				}
			}

			if len(batch) < l.batchSize {
				return
			}
			lastID = batch[len(batch)-1].ID
		}
	}
}

func (l *gormLedger) Transact(ctx context.Context, fn func(tx Ledger) error) error {
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormLedger{db: tx, batchSize: l.batchSize})
	})
	if err == nil {
		return nil
	}

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return apperrors.NewStoreError("waitlist transaction failed", err)
}

const (
	columnEmail        = "email"
	columnReferralCode = "referral_code"

	referralCodeIndex = "idx_waitlist_entries_referral_code"
	emailIndex        = "idx_waitlist_entries_email"
)

// uniqueViolation reports whether err is a unique-constraint failure and
// which column it hit. The column is empty when the driver does not say.
// Only constraint and column names are inspected; driver detail text echoes
// the offending value and cannot be trusted.
func uniqueViolation(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code != pgUniqueViolation {
			return "", false
		}
		switch pgErr.ConstraintName {
		case referralCodeIndex:
			return columnReferralCode, true
		case emailIndex:
			return columnEmail, true
		}
		return "", true
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		if sqliteErr.ExtendedCode != sqlite3.ErrConstraintUnique && sqliteErr.ExtendedCode != sqlite3.ErrConstraintPrimaryKey {
			return "", false
		}
		// "UNIQUE constraint failed: waitlist_entries.referral_code"
		msg := sqliteErr.Error()
		switch {
		case strings.HasSuffix(msg, "."+columnReferralCode):
			return columnReferralCode, true
		case strings.HasSuffix(msg, "."+columnEmail):
			return columnEmail, true
		}
		return "", true
	}

	if errors.Is(err, gorm.ErrDuplicatedKey) || apperrors.IsDuplicateKeyError(err) {
		if strings.Contains(err.Error(), `"`+referralCodeIndex+`"`) {
			return columnReferralCode, true
		}
		return "", true
	}
	return "", false
}
