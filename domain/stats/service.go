package stats

import (
	"context"
	"encoding/json"
	"iter"
	"strings"
	"time"

	"github.com/akeren/go-waitlist/internal/log"
	"github.com/akeren/go-waitlist/internal/models"
	"github.com/akeren/go-waitlist/pkg/constants"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

const summaryCacheKey = "waitlist:stats:summary"

var tracer = otel.Tracer("github.com/akeren/go-waitlist/domain/stats")

// Summary is the public aggregate view of the waitlist.
type Summary struct {
	Total             int64 `json:"total"`
	Client            int64 `json:"client"`
	Trainer           int64 `json:"trainer"`
	RecentSignups     int64 `json:"recent_signups"`
	DiversityEstimate int64 `json:"diversity_estimate"`
	Degraded          bool  `json:"degraded"`
}

// FallbackSummary is served when the ledger cannot be read.
func FallbackSummary() *Summary {
	return &Summary{DiversityEstimate: constants.DiversityBase, Degraded: true}
}

// EntrySource is the read side of the waitlist ledger.
type EntrySource interface {
	ScanAll(ctx context.Context) iter.Seq2[*models.WaitlistEntry, error]
}

// Cache holds the last good summary between scans.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
}

type StatsService interface {
	// Summarize never fails; read errors produce FallbackSummary. A cached
	// summary is reused only when it was computed at most one cache TTL
	// before now, so recent_signups lags now by no more than the TTL.
	Summarize(ctx context.Context, now time.Time) *Summary
}

type statsService struct {
	logger   *log.Logger
	source   EntrySource
	cache    Cache
	cacheTTL time.Duration
}

// NewStatsService builds the aggregator. cache may be nil, and a
// non-positive ttl disables caching.
func NewStatsService(logger *log.Logger, source EntrySource, cache Cache, ttl time.Duration) StatsService {
	if ttl <= 0 {
		cache = nil
	}

	return &statsService{
		logger:   logger,
		source:   source,
		cache:    cache,
		cacheTTL: ttl,
	}
}

func (s *statsService) Summarize(ctx context.Context, now time.Time) *Summary {
	ctx, span := tracer.Start(ctx, "stats.Summarize")
	defer span.End()

	logger := log.GetLoggerInstanceFromContext(ctx, s.logger)

	if cached := s.cached(ctx, logger, now); cached != nil {
		span.SetAttributes(attribute.Bool("stats.cache_hit", true))
		return cached
	}

	summary, err := Aggregate(ctx, s.source, now)
	if err != nil {
		logger.Error("Failed to aggregate waitlist stats, serving fallback", "error", err)
		span.RecordError(err)
		span.SetAttributes(attribute.Bool("stats.degraded", true))
		return FallbackSummary()
	}

	s.store(ctx, logger, summary, now)
	span.SetAttributes(attribute.Int64("stats.total", summary.Total))
	return summary
}

// Aggregate computes a summary in a single pass over source.
func Aggregate(ctx context.Context, source EntrySource, now time.Time) (*Summary, error) {
	summary := &Summary{}
	domains := make(map[string]struct{})
	recentFrom := now.Add(-constants.RecentSignupWindow)

	for entry, err := range source.ScanAll(ctx) {
		if err != nil {
			return nil, err
		}

		summary.Total++

		if entry.Category != nil {
			switch *entry.Category {
			case models.CategoryClient:
				summary.Client++
			case models.CategoryTrainer:
				summary.Trainer++
			}
		}

		if entry.CreatedAt.After(recentFrom) && !entry.CreatedAt.After(now) {
			summary.RecentSignups++
		}

		if domain := emailDomain(entry.Email); domain != "" {
			domains[domain] = struct{}{}
		}
	}

	summary.DiversityEstimate = min(int64(len(domains))+constants.DiversityBase, constants.DiversityCap)
	return summary, nil
}

func emailDomain(email string) string {
	at := strings.LastIndexByte(email, '@')
	if at < 0 {
		return ""
	}
	return strings.ToLower(email[at+1:])
}

// cachedSummary pairs a summary with the time it was computed for.
type cachedSummary struct {
	Summary
	AsOf time.Time `json:"as_of"`
}

func (s *statsService) cached(ctx context.Context, logger *log.Logger, now time.Time) *Summary {
	if s.cache == nil {
		return nil
	}

	raw, err := s.cache.Get(ctx, summaryCacheKey)
	if err != nil {
		logger.Warn("Stats cache read failed", "error", err)
		return nil
	}
	if raw == "" {
		return nil
	}

	var entry cachedSummary
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		logger.Warn("Discarding unreadable cached stats", "error", err)
		return nil
	}
	if age := now.Sub(entry.AsOf); entry.AsOf.IsZero() || age < 0 || age > s.cacheTTL {
		return nil
	}
	return &entry.Summary
}

func (s *statsService) store(ctx context.Context, logger *log.Logger, summary *Summary, now time.Time) {
	if s.cache == nil {
		return
	}

	raw, err := json.Marshal(cachedSummary{Summary: *summary, AsOf: now})
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, summaryCacheKey, string(raw), s.cacheTTL); err != nil {
		logger.Warn("Stats cache write failed", "error", err)
	}
}
