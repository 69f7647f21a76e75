package waitlist

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/akeren/go-waitlist/internal/log"
	"github.com/akeren/go-waitlist/internal/models"
	apperrors "github.com/akeren/go-waitlist/pkg/errors"
	"github.com/akeren/go-waitlist/pkg/mailinglist"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type testDeps struct {
	ledger   *MockLedger
	notifier *MockNotifier
	metrics  *Metrics
}

func newTestService(t *testing.T, opts ServiceOptions) (*testDeps, AdmissionService) {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	deps := &testDeps{
		ledger:   NewMockLedger(ctrl),
		notifier: NewMockNotifier(ctrl),
		metrics:  NewMetrics(prometheus.NewRegistry()),
	}
	if opts.GenerateCode == nil {
		opts.GenerateCode = fixedCodes("ABC123")
	}
	opts.Metrics = deps.metrics

	service := NewAdmissionService(log.NewDiscardLogger(), deps.ledger, deps.notifier, opts)
	return deps, service
}

// fixedCodes returns codes in order, repeating the last one.
func fixedCodes(codes ...string) CodeGenerator {
	i := 0
	return func() (string, error) {
		code := codes[min(i, len(codes)-1)]
		i++
		return code, nil
	}
}

// runInline makes Transact call fn against the same mock.
func (d *testDeps) runInline() *gomock.Call {
	return d.ledger.EXPECT().Transact(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, fn func(Ledger) error) error {
			return fn(d.ledger)
		},
	)
}

func (d *testDeps) expectNewEmail(email string) {
	d.ledger.EXPECT().FindByEmail(gomock.Any(), email).Return(nil, NewEntryNotFoundError())
}

func TestAdmit_FirstSignup(t *testing.T) {
	deps, service := newTestService(t, ServiceOptions{})
	createdAt := models.Now()

	deps.expectNewEmail("a@x.com")
	deps.runInline()
	deps.ledger.EXPECT().Insert(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, entry *models.WaitlistEntry) error {
			assert.Equal(t, "a@x.com", entry.Email)
			assert.Equal(t, "ABC123", entry.ReferralCode)
			assert.Nil(t, entry.ReferredBy)
			entry.ID = "entry-a"
			entry.CreatedAt = createdAt
			return nil
		},
	)
	deps.ledger.EXPECT().CountCreatedAtOrBefore(gomock.Any(), createdAt).Return(int64(1), nil)
	deps.notifier.EXPECT().Notify(gomock.Any(), mailinglist.Contact{Email: "a@x.com", ReferralCode: "ABC123"}).Return(nil)

	resp, err := service.Admit(context.Background(), &AdmitRequest{Email: "  a@x.com "})
	require.NoError(t, err)
	assert.Equal(t, "ABC123", resp.ReferralCode)
	assert.Equal(t, int64(1), resp.Position)

	assert.Equal(t, float64(1), testutil.ToFloat64(deps.metrics.admissions.WithLabelValues(outcomeAdmitted)))
	assert.Equal(t, float64(1), testutil.ToFloat64(deps.metrics.notifications.WithLabelValues("dispatched")))
}

func TestAdmit_InvalidEmail(t *testing.T) {
	for _, email := range []string{"", "   ", "no-at-sign", "a b@x.com", "a@x", "@x.com", "a@@x.com"} {
		t.Run(email, func(t *testing.T) {
			_, service := newTestService(t, ServiceOptions{})

			resp, err := service.Admit(context.Background(), &AdmitRequest{Email: email})
			assert.Nil(t, resp)
			assert.ErrorIs(t, err, ErrInvalidEmail)
			assert.Equal(t, apperrors.ErrorTypeInvalidRequest, apperrors.GetErrorType(err))
		})
	}
}

func TestAdmit_NilRequest(t *testing.T) {
	_, service := newTestService(t, ServiceOptions{})

	_, err := service.Admit(context.Background(), nil)
	assert.Equal(t, apperrors.ErrorTypeInvalidRequest, apperrors.GetErrorType(err))
}

func TestAdmit_AlreadyRegistered(t *testing.T) {
	deps, service := newTestService(t, ServiceOptions{})

	deps.ledger.EXPECT().FindByEmail(gomock.Any(), "a@x.com").Return(&models.WaitlistEntry{ID: "entry-a", ReferralCode: "C1C1C1"}, nil)

	resp, err := service.Admit(context.Background(), &AdmitRequest{Email: "a@x.com"})
	assert.Nil(t, resp)
	require.ErrorIs(t, err, ErrAlreadyRegistered)

	code, ok := ExistingReferralCode(err)
	assert.True(t, ok)
	assert.Equal(t, "C1C1C1", code)
	assert.Equal(t, apperrors.StatusConflict, apperrors.HTTPStatusCode(err))
	assert.Equal(t, float64(1), testutil.ToFloat64(deps.metrics.admissions.WithLabelValues(outcomeAlreadyRegistered)))
}

func TestAdmit_WithReferral(t *testing.T) {
	deps, service := newTestService(t, ServiceOptions{GenerateCode: fixedCodes("BBBBBB")})
	referrer := &models.WaitlistEntry{ID: "entry-a", Email: "a@x.com", ReferralCode: "ABC123"}
	createdAt := models.Now()

	deps.expectNewEmail("b@x.com")
	deps.ledger.EXPECT().FindByReferralCode(gomock.Any(), "ABC123").Return(referrer, nil)
	deps.runInline()
	deps.ledger.EXPECT().Insert(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, entry *models.WaitlistEntry) error {
			require.NotNil(t, entry.ReferredBy)
			assert.Equal(t, "entry-a", *entry.ReferredBy)
			entry.CreatedAt = createdAt
			return nil
		},
	)
	deps.ledger.EXPECT().IncrementReferralCount(gomock.Any(), "entry-a").Return(nil)
	deps.ledger.EXPECT().CountCreatedAtOrBefore(gomock.Any(), createdAt).Return(int64(2), nil)
	deps.notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).Return(nil)

	resp, err := service.Admit(context.Background(), &AdmitRequest{Email: "b@x.com", ReferralCode: " abc123 "})
	require.NoError(t, err)
	assert.Equal(t, "BBBBBB", resp.ReferralCode)
	assert.Equal(t, int64(2), resp.Position)
	assert.Equal(t, float64(1), testutil.ToFloat64(deps.metrics.attributions))
}

func TestAdmit_UnknownReferralCodeIsIgnored(t *testing.T) {
	deps, service := newTestService(t, ServiceOptions{})

	deps.expectNewEmail("b@x.com")
	deps.ledger.EXPECT().FindByReferralCode(gomock.Any(), "ZZZZZZ").Return(nil, NewEntryNotFoundError())
	deps.runInline()
	deps.ledger.EXPECT().Insert(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, entry *models.WaitlistEntry) error {
			assert.Nil(t, entry.ReferredBy)
			return nil
		},
	)
	deps.ledger.EXPECT().IncrementReferralCount(gomock.Any(), gomock.Any()).Times(0)
	deps.ledger.EXPECT().CountCreatedAtOrBefore(gomock.Any(), gomock.Any()).Return(int64(1), nil)
	deps.notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).Return(nil)

	_, err := service.Admit(context.Background(), &AdmitRequest{Email: "b@x.com", ReferralCode: "zzzzzz"})
	require.NoError(t, err)
}

func TestAdmit_MalformedReferralCodeSkipsLookup(t *testing.T) {
	deps, service := newTestService(t, ServiceOptions{})

	deps.expectNewEmail("b@x.com")
	deps.runInline()
	deps.ledger.EXPECT().Insert(gomock.Any(), gomock.Any()).Return(nil)
	deps.ledger.EXPECT().CountCreatedAtOrBefore(gomock.Any(), gomock.Any()).Return(int64(1), nil)
	deps.notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).Return(nil)

	_, err := service.Admit(context.Background(), &AdmitRequest{Email: "b@x.com", ReferralCode: "not-a-code"})
	require.NoError(t, err)
}

func TestAdmit_ReferrerLookupFailureIsOperational(t *testing.T) {
	deps, service := newTestService(t, ServiceOptions{})

	deps.expectNewEmail("b@x.com")
	deps.ledger.EXPECT().FindByReferralCode(gomock.Any(), "ABC123").
		Return(nil, apperrors.NewStoreError("failed to fetch waitlist entry", errors.New("connection reset")))

	_, err := service.Admit(context.Background(), &AdmitRequest{Email: "b@x.com", ReferralCode: "ABC123"})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrorTypeDatabaseError, apperrors.GetErrorType(err))
}

func TestAdmit_RetriesOnCodeCollision(t *testing.T) {
	deps, service := newTestService(t, ServiceOptions{GenerateCode: fixedCodes("TAKEN1", "FRESH1")})

	deps.expectNewEmail("a@x.com")
	deps.runInline().Times(2)
	gomock.InOrder(
		deps.ledger.EXPECT().Insert(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, entry *models.WaitlistEntry) error {
				assert.Equal(t, "TAKEN1", entry.ReferralCode)
				return NewDuplicateCodeError(errors.New("UNIQUE constraint failed: waitlist_entries.referral_code"))
			},
		),
		deps.ledger.EXPECT().Insert(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, entry *models.WaitlistEntry) error {
				assert.Equal(t, "FRESH1", entry.ReferralCode)
				return nil
			},
		),
	)
	deps.ledger.EXPECT().CountCreatedAtOrBefore(gomock.Any(), gomock.Any()).Return(int64(7), nil)
	deps.notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).Return(nil)

	resp, err := service.Admit(context.Background(), &AdmitRequest{Email: "a@x.com"})
	require.NoError(t, err)
	assert.Equal(t, "FRESH1", resp.ReferralCode)
	assert.Equal(t, float64(1), testutil.ToFloat64(deps.metrics.collisions))
}

func TestAdmit_CodeGenerationExhausted(t *testing.T) {
	deps, service := newTestService(t, ServiceOptions{MaxCodeAttempts: 3})

	deps.expectNewEmail("a@x.com")
	deps.runInline().Times(3)
	deps.ledger.EXPECT().Insert(gomock.Any(), gomock.Any()).
		Return(NewDuplicateCodeError(errors.New("duplicate"))).Times(3)

	resp, err := service.Admit(context.Background(), &AdmitRequest{Email: "a@x.com"})
	assert.Nil(t, resp)
	require.ErrorIs(t, err, ErrCodeGenerationExhausted)
	assert.Equal(t, apperrors.StatusInternalServerError, apperrors.HTTPStatusCode(err))
	assert.Equal(t, float64(1), testutil.ToFloat64(deps.metrics.admissions.WithLabelValues(outcomeFailed)))
}

func TestAdmit_LostEmailRaceReportsWinner(t *testing.T) {
	deps, service := newTestService(t, ServiceOptions{})

	gomock.InOrder(
		deps.ledger.EXPECT().FindByEmail(gomock.Any(), "a@x.com").Return(nil, NewEntryNotFoundError()),
		deps.ledger.EXPECT().FindByEmail(gomock.Any(), "a@x.com").Return(&models.WaitlistEntry{ReferralCode: "WINNER"}, nil),
	)
	deps.runInline()
	deps.ledger.EXPECT().Insert(gomock.Any(), gomock.Any()).Return(NewDuplicateEmailError(errors.New("duplicate key")))

	_, err := service.Admit(context.Background(), &AdmitRequest{Email: "a@x.com"})
	require.ErrorIs(t, err, ErrAlreadyRegistered)

	code, _ := ExistingReferralCode(err)
	assert.Equal(t, "WINNER", code)
}

func TestAdmit_NotificationFailureIsSwallowed(t *testing.T) {
	deps, service := newTestService(t, ServiceOptions{})

	deps.expectNewEmail("a@x.com")
	deps.runInline()
	deps.ledger.EXPECT().Insert(gomock.Any(), gomock.Any()).Return(nil)
	deps.ledger.EXPECT().CountCreatedAtOrBefore(gomock.Any(), gomock.Any()).Return(int64(1), nil)
	deps.notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).Return(mailinglist.ErrBufferFull)

	resp, err := service.Admit(context.Background(), &AdmitRequest{Email: "a@x.com"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), resp.Position)
	assert.Equal(t, float64(1), testutil.ToFloat64(deps.metrics.notifications.WithLabelValues("failed")))
}

func TestAdmit_NotifyOutlivesRequestContext(t *testing.T) {
	deps, service := newTestService(t, ServiceOptions{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deps.expectNewEmail("a@x.com")
	deps.runInline()
	deps.ledger.EXPECT().Insert(gomock.Any(), gomock.Any()).Return(nil)
	deps.ledger.EXPECT().CountCreatedAtOrBefore(gomock.Any(), gomock.Any()).DoAndReturn(
		func(context.Context, time.Time) (int64, error) {
			cancel()
			return 1, nil
		},
	)
	deps.notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, _ mailinglist.Contact) error {
			return ctx.Err()
		},
	)

	_, err := service.Admit(ctx, &AdmitRequest{Email: "a@x.com"})
	require.NoError(t, err)
	assert.Equal(t, float64(1), testutil.ToFloat64(deps.metrics.notifications.WithLabelValues("dispatched")))
}

func TestAdmit_StoreTimeoutIsRetryable(t *testing.T) {
	deps, service := newTestService(t, ServiceOptions{})

	deps.ledger.EXPECT().FindByEmail(gomock.Any(), "a@x.com").
		Return(nil, apperrors.NewStoreError("failed to fetch waitlist entry", context.DeadlineExceeded))

	_, err := service.Admit(context.Background(), &AdmitRequest{Email: "a@x.com"})
	require.Error(t, err)
	assert.True(t, apperrors.IsRetryable(err))
	assert.Equal(t, apperrors.StatusServiceUnavailable, apperrors.HTTPStatusCode(err))
}

func TestAdmit_Categories(t *testing.T) {
	t.Run("required but missing", func(t *testing.T) {
		_, service := newTestService(t, ServiceOptions{RequireCategory: true})

		_, err := service.Admit(context.Background(), &AdmitRequest{Email: "a@x.com"})
		assert.ErrorIs(t, err, ErrCategoryUnset)
	})

	t.Run("unknown", func(t *testing.T) {
		_, service := newTestService(t, ServiceOptions{})

		_, err := service.Admit(context.Background(), &AdmitRequest{Email: "a@x.com", Category: "coach"})
		assert.ErrorIs(t, err, ErrInvalidCategory)
		assert.Equal(t, apperrors.StatusBadRequest, apperrors.HTTPStatusCode(err))
	})

	t.Run("case folded", func(t *testing.T) {
		deps, service := newTestService(t, ServiceOptions{RequireCategory: true})

		deps.expectNewEmail("a@x.com")
		deps.runInline()
		deps.ledger.EXPECT().Insert(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, entry *models.WaitlistEntry) error {
				require.NotNil(t, entry.Category)
				assert.Equal(t, models.CategoryTrainer, *entry.Category)
				return nil
			},
		)
		deps.ledger.EXPECT().CountCreatedAtOrBefore(gomock.Any(), gomock.Any()).Return(int64(1), nil)
		deps.notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).Return(nil)

		_, err := service.Admit(context.Background(), &AdmitRequest{Email: "a@x.com", Category: " Trainer "})
		require.NoError(t, err)
	})
}

func TestStatus(t *testing.T) {
	deps, service := newTestService(t, ServiceOptions{})
	referredBy := "entry-a"
	entry := &models.WaitlistEntry{
		ID:            "entry-b",
		Email:         "b@x.com",
		ReferralCode:  "BBBBBB",
		ReferredBy:    &referredBy,
		ReferralCount: 3,
		CreatedAt:     time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	deps.ledger.EXPECT().FindByEmail(gomock.Any(), "b@x.com").Return(entry, nil)
	deps.ledger.EXPECT().CountCreatedAtOrBefore(gomock.Any(), entry.CreatedAt).Return(int64(2), nil)

	resp, err := service.Status(context.Background(), "b@x.com")
	require.NoError(t, err)
	assert.Equal(t, "BBBBBB", resp.ReferralCode)
	assert.Equal(t, int64(2), resp.Position)
	assert.Equal(t, int64(3), resp.ReferralCount)
	assert.True(t, resp.Referred)
	assert.Equal(t, "2026-01-02T03:04:05Z", resp.JoinedAt)
}

func TestStatus_NotFound(t *testing.T) {
	deps, service := newTestService(t, ServiceOptions{})

	deps.ledger.EXPECT().FindByEmail(gomock.Any(), "nobody@x.com").Return(nil, NewEntryNotFoundError())

	_, err := service.Status(context.Background(), "nobody@x.com")
	assert.Equal(t, apperrors.StatusNotFound, apperrors.HTTPStatusCode(err))
}

func TestCheckReferralCode(t *testing.T) {
	deps, service := newTestService(t, ServiceOptions{})

	deps.ledger.EXPECT().FindByReferralCode(gomock.Any(), "ABC123").Return(&models.WaitlistEntry{}, nil)
	deps.ledger.EXPECT().FindByReferralCode(gomock.Any(), "ZZZZZZ").Return(nil, NewEntryNotFoundError())

	resp, err := service.CheckReferralCode(context.Background(), "abc123")
	require.NoError(t, err)
	assert.True(t, resp.Valid)
	assert.Equal(t, "ABC123", resp.Code)

	resp, err = service.CheckReferralCode(context.Background(), "ZZZZZZ")
	require.NoError(t, err)
	assert.False(t, resp.Valid)

	resp, err = service.CheckReferralCode(context.Background(), "short")
	require.NoError(t, err)
	assert.False(t, resp.Valid)
}

func TestRandomReferralCode(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 200; i++ {
		code, err := RandomReferralCode()
		require.NoError(t, err)
		assert.True(t, IsWellFormedReferralCode(code), code)
		seen[code] = struct{}{}
	}
	assert.Greater(t, len(seen), 190)
}
