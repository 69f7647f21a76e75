package stats

import (
	"time"

	"github.com/akeren/go-waitlist/config/router"
	"github.com/akeren/go-waitlist/domain/waitlist"
	"github.com/akeren/go-waitlist/internal/log"
	"gorm.io/gorm"
)

type StatsServiceFactory interface {
	CreateService() StatsService
	CreateController() *router.RESTController
}

type DefaultStatsServiceFactory struct {
	db       *gorm.DB
	logger   *log.Logger
	cache    Cache
	cacheTTL time.Duration
}

func NewStatsServiceFactory(db *gorm.DB, logger *log.Logger, cache Cache, cacheTTL time.Duration) StatsServiceFactory {
	return &DefaultStatsServiceFactory{
		db:       db,
		logger:   logger,
		cache:    cache,
		cacheTTL: cacheTTL,
	}
}

func (f *DefaultStatsServiceFactory) CreateService() StatsService {
	return NewStatsService(f.logger, waitlist.NewLedger(f.db), f.cache, f.cacheTTL)
}

func (f *DefaultStatsServiceFactory) CreateController() *router.RESTController {
	return NewStatsController(f)
}
