package waitlist

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/akeren/go-waitlist/internal/log"
	"github.com/akeren/go-waitlist/internal/models"
	apperrors "github.com/akeren/go-waitlist/pkg/errors"
	"github.com/akeren/go-waitlist/pkg/mailinglist"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB opens an in-memory SQLite ledger on a single connection, so the
// concurrent tests below check counts under serialized writes only. The
// Postgres suite in integration/ runs the same races with parallel writers.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=on&_busy_timeout=10000", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models.ModelRegistry...))
	return db
}

func newEntry(email, code string) *models.WaitlistEntry {
	return &models.WaitlistEntry{Email: email, ReferralCode: code}
}

func TestLedger_InsertAndFind(t *testing.T) {
	ledger := NewLedger(newTestDB(t))
	ctx := context.Background()

	entry := newEntry("a@x.com", "AAAAAA")
	require.NoError(t, ledger.Insert(ctx, entry))
	assert.NotEmpty(t, entry.ID)
	assert.False(t, entry.CreatedAt.IsZero())

	byEmail, err := ledger.FindByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, entry.ID, byEmail.ID)
	assert.Equal(t, int64(0), byEmail.ReferralCount)

	byCode, err := ledger.FindByReferralCode(ctx, "AAAAAA")
	require.NoError(t, err)
	assert.Equal(t, entry.ID, byCode.ID)

	_, err = ledger.FindByEmail(ctx, "A@x.com")
	assert.ErrorIs(t, err, ErrEntryNotFound, "emails are case-sensitive")
	assert.Equal(t, apperrors.StatusNotFound, apperrors.HTTPStatusCode(err))
}

func TestLedger_InsertClassifiesUniqueViolations(t *testing.T) {
	ledger := NewLedger(newTestDB(t))
	ctx := context.Background()

	require.NoError(t, ledger.Insert(ctx, newEntry("a@x.com", "AAAAAA")))

	err := ledger.Insert(ctx, newEntry("a@x.com", "BBBBBB"))
	assert.ErrorIs(t, err, ErrDuplicateEmail)
	assert.NotErrorIs(t, err, ErrDuplicateCode)

	err = ledger.Insert(ctx, newEntry("b@x.com", "AAAAAA"))
	assert.ErrorIs(t, err, ErrDuplicateCode)
	assert.NotErrorIs(t, err, ErrDuplicateEmail)

	require.NoError(t, ledger.Insert(ctx, newEntry("referral_code@x.com", "CCCCCC")))
	err = ledger.Insert(ctx, newEntry("referral_code@x.com", "DDDDDD"))
	assert.ErrorIs(t, err, ErrDuplicateEmail)
	assert.NotErrorIs(t, err, ErrDuplicateCode)
}

func TestUniqueViolation(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantColumn string
		wantOK     bool
	}{
		{
			name: "postgres email index with code-like value",
			err: &pgconn.PgError{
				Code:           pgUniqueViolation,
				ConstraintName: "idx_waitlist_entries_email",
				Detail:         "Key (email)=(referral_code@x.com) already exists.",
			},
			wantColumn: columnEmail,
			wantOK:     true,
		},
		{
			name: "postgres referral code index",
			err: &pgconn.PgError{
				Code:           pgUniqueViolation,
				ConstraintName: "idx_waitlist_entries_referral_code",
				Detail:         "Key (referral_code)=(ABC123) already exists.",
			},
			wantColumn: columnReferralCode,
			wantOK:     true,
		},
		{
			name:       "postgres unknown constraint",
			err:        &pgconn.PgError{Code: pgUniqueViolation, ConstraintName: "waitlist_entries_pkey"},
			wantColumn: "",
			wantOK:     true,
		},
		{
			name:   "postgres other error",
			err:    &pgconn.PgError{Code: "23503", ConstraintName: "idx_waitlist_entries_referral_code"},
			wantOK: false,
		},
		{
			name:       "wrapped postgres error",
			err:        fmt.Errorf("create: %w", &pgconn.PgError{Code: pgUniqueViolation, ConstraintName: "idx_waitlist_entries_referral_code"}),
			wantColumn: columnReferralCode,
			wantOK:     true,
		},
		{
			name:       "sqlite unique without column",
			err:        sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintUnique},
			wantColumn: "",
			wantOK:     true,
		},
		{
			name:   "plain error",
			err:    errors.New("boom"),
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			column, ok := uniqueViolation(tt.err)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantColumn, column)
		})
	}
}

func TestLedger_IncrementReferralCount(t *testing.T) {
	ledger := NewLedger(newTestDB(t))
	ctx := context.Background()

	entry := newEntry("a@x.com", "AAAAAA")
	require.NoError(t, ledger.Insert(ctx, entry))

	require.NoError(t, ledger.IncrementReferralCount(ctx, entry.ID))

	got, err := ledger.FindByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.ReferralCount)
	assert.False(t, got.UpdatedAt.Before(got.CreatedAt))

	err = ledger.IncrementReferralCount(ctx, "missing")
	assert.ErrorIs(t, err, ErrEntryNotFound)
}

func TestLedger_ConcurrentIncrementsAreNotLost(t *testing.T) {
	ledger := NewLedger(newTestDB(t))
	ctx := context.Background()

	entry := newEntry("a@x.com", "AAAAAA")
	require.NoError(t, ledger.Insert(ctx, entry))

	const n = 25
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- ledger.IncrementReferralCount(ctx, entry.ID)
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	got, err := ledger.FindByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, int64(n), got.ReferralCount)
}

func TestLedger_CountCreatedAtOrBefore(t *testing.T) {
	ledger := NewLedger(newTestDB(t))
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	offsets := []time.Duration{0, time.Second, time.Second, 2500 * time.Millisecond}
	for i, offset := range offsets {
		entry := newEntry(fmt.Sprintf("u%d@x.com", i), fmt.Sprintf("CODE%02d", i))
		entry.CreatedAt = base.Add(offset)
		require.NoError(t, ledger.Insert(ctx, entry))
	}

	count := func(ts time.Time) int64 {
		n, err := ledger.CountCreatedAtOrBefore(ctx, ts)
		require.NoError(t, err)
		return n
	}

	assert.Equal(t, int64(0), count(base.Add(-time.Microsecond)))
	assert.Equal(t, int64(1), count(base))
	assert.Equal(t, int64(3), count(base.Add(time.Second)), "ties share a position")
	assert.Equal(t, int64(3), count(base.Add(2*time.Second)))
	assert.Equal(t, int64(4), count(base.Add(2500*time.Millisecond)))
}

func TestLedger_ScanAllIsRestartable(t *testing.T) {
	ledger := NewLedger(newTestDB(t), WithScanBatchSize(2))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, ledger.Insert(ctx, newEntry(fmt.Sprintf("u%d@x.com", i), fmt.Sprintf("CODE%02d", i))))
	}

	collect := func() []string {
		var emails []string
		for entry, err := range ledger.ScanAll(ctx) {
			require.NoError(t, err)
			emails = append(emails, entry.Email)
		}
		return emails
	}

	first := collect()
	assert.Len(t, first, 5)
	assert.ElementsMatch(t, first, collect())

	seen := 0
	for _, err := range ledger.ScanAll(ctx) {
		require.NoError(t, err)
		seen++
		if seen == 3 {
			break
		}
	}
	assert.Equal(t, 3, seen)
}

func TestLedger_ScanAllYieldsStoreError(t *testing.T) {
	db := newTestDB(t)
	ledger := NewLedger(db)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	var scanErr error
	for entry, err := range ledger.ScanAll(context.Background()) {
		assert.Nil(t, entry)
		scanErr = err
	}
	require.Error(t, scanErr)
	assert.Equal(t, apperrors.ErrorTypeDatabaseError, apperrors.GetErrorType(scanErr))
}

func TestLedger_TransactRollsBack(t *testing.T) {
	ledger := NewLedger(newTestDB(t))
	ctx := context.Background()
	boom := errors.New("boom")

	err := ledger.Transact(ctx, func(tx Ledger) error {
		if err := tx.Insert(ctx, newEntry("a@x.com", "AAAAAA")); err != nil {
			return err
		}
		return apperrors.NewInternalServerError("abort", boom)
	})
	require.ErrorIs(t, err, boom)

	_, err = ledger.FindByEmail(ctx, "a@x.com")
	assert.ErrorIs(t, err, ErrEntryNotFound)
}

func TestLedger_CancelledContextIsRetryable(t *testing.T) {
	ledger := NewLedger(newTestDB(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ledger.FindByEmail(ctx, "a@x.com")
	require.Error(t, err)
	assert.Equal(t, apperrors.StatusServiceUnavailable, apperrors.HTTPStatusCode(err))
}

func TestAdmissionService_OnSQLite(t *testing.T) {
	ledger := NewLedger(newTestDB(t))
	service := NewAdmissionService(log.NewDiscardLogger(), ledger, mailinglist.NoopNotifier{}, ServiceOptions{})
	ctx := context.Background()

	a, err := service.Admit(ctx, &AdmitRequest{Email: "a@x.com"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), a.Position)

	b, err := service.Admit(ctx, &AdmitRequest{Email: "b@x.com", ReferralCode: a.ReferralCode})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, b.Position, a.Position)
	assert.NotEqual(t, a.ReferralCode, b.ReferralCode)

	entryA, err := ledger.FindByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	entryB, err := ledger.FindByEmail(ctx, "b@x.com")
	require.NoError(t, err)
	assert.Equal(t, int64(1), entryA.ReferralCount)
	require.NotNil(t, entryB.ReferredBy)
	assert.Equal(t, entryA.ID, *entryB.ReferredBy)

	_, err = service.Admit(ctx, &AdmitRequest{Email: "a@x.com"})
	require.ErrorIs(t, err, ErrAlreadyRegistered)
	code, _ := ExistingReferralCode(err)
	assert.Equal(t, a.ReferralCode, code)
}

func TestAdmissionService_ConcurrentReferralsOnSQLite(t *testing.T) {
	ledger := NewLedger(newTestDB(t))
	service := NewAdmissionService(log.NewDiscardLogger(), ledger, mailinglist.NoopNotifier{}, ServiceOptions{})
	ctx := context.Background()

	referrer, err := service.Admit(ctx, &AdmitRequest{Email: "ref@x.com"})
	require.NoError(t, err)

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := service.Admit(ctx, &AdmitRequest{
				Email:        fmt.Sprintf("friend%d@x.com", i),
				ReferralCode: referrer.ReferralCode,
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	got, err := ledger.FindByEmail(ctx, "ref@x.com")
	require.NoError(t, err)
	assert.Equal(t, int64(n), got.ReferralCount)
}

func TestAdmissionService_ConcurrentSameEmailOnSQLite(t *testing.T) {
	ledger := NewLedger(newTestDB(t))
	service := NewAdmissionService(log.NewDiscardLogger(), ledger, mailinglist.NoopNotifier{}, ServiceOptions{})
	ctx := context.Background()

	const n = 10
	var wg sync.WaitGroup
	results := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := service.Admit(ctx, &AdmitRequest{Email: "same@x.com"})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	admitted := 0
	for err := range results {
		if err == nil {
			admitted++
			continue
		}
		assert.ErrorIs(t, err, ErrAlreadyRegistered)
	}
	assert.Equal(t, 1, admitted)

	var count int64
	for range ledger.ScanAll(ctx) {
		count++
	}
	assert.Equal(t, int64(1), count)
}
