package waitlist

import (
	"time"

	"github.com/akeren/go-waitlist/config/router"
	"github.com/akeren/go-waitlist/internal/log"
	"github.com/akeren/go-waitlist/pkg/constants"
	"gorm.io/gorm"
)

// Settings are the tunables the waitlist domain reads from configuration.
type Settings struct {
	MaxCodeAttempts  int
	RequireCategory  bool
	SignupRateLimit  int
	SignupRateWindow time.Duration
}

type WaitlistServiceFactory interface {
	CreateService(metrics *Metrics) AdmissionService
	CreateController() *router.RESTController
	Settings() Settings
}

type DefaultWaitlistServiceFactory struct {
	db       *gorm.DB
	logger   *log.Logger
	notifier Notifier
	settings Settings
}

func NewWaitlistServiceFactory(db *gorm.DB, logger *log.Logger, notifier Notifier, settings Settings) WaitlistServiceFactory {
	if settings.SignupRateLimit <= 0 {
		settings.SignupRateLimit = constants.DefaultSignupRateLimit
	}
	if settings.SignupRateWindow <= 0 {
		settings.SignupRateWindow = constants.DefaultSignupRateWindow
	}

	return &DefaultWaitlistServiceFactory{
		db:       db,
		logger:   logger,
		notifier: notifier,
		settings: settings,
	}
}

func (f *DefaultWaitlistServiceFactory) CreateService(metrics *Metrics) AdmissionService {
	return NewAdmissionService(f.logger, NewLedger(f.db), f.notifier, ServiceOptions{
		MaxCodeAttempts: f.settings.MaxCodeAttempts,
		RequireCategory: f.settings.RequireCategory,
		Metrics:         metrics,
	})
}

func (f *DefaultWaitlistServiceFactory) CreateController() *router.RESTController {
	return NewWaitlistController(f)
}

func (f *DefaultWaitlistServiceFactory) Settings() Settings {
	return f.settings
}
