package router

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

const (
	defaultPort         = "8080"
	defaultMaxBodyBytes = 64 << 10
	defaultHSTSMaxAge   = 31536000
)

// HTTPSettings are the HTTP-layer knobs read from the environment once, when
// the router is created.
type HTTPSettings struct {
	Port    string `env:"APP_PORT" envDefault:"8080"`
	GinMode string `env:"GIN_MODE"`
	AppEnv  string `env:"APP_ENV"`

	// TrustedProxies is a comma-separated CIDR/IP list, or "*" for any.
	// Empty means ClientIP() is always RemoteAddr.
	TrustedProxies     string   `env:"TRUSTED_PROXIES"`
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGIN" envSeparator:","`

	// Signup payloads are a handful of short strings.
	MaxBodyBytes int64 `env:"MAX_REQUEST_BODY_BYTES" envDefault:"65536"`

	// HSTSEnabled defaults to on only in production.
	HSTSEnabled           *bool `env:"HSTS_ENABLED"`
	HSTSMaxAge            int64 `env:"HSTS_MAX_AGE" envDefault:"31536000"`
	HSTSIncludeSubdomains bool  `env:"HSTS_INCLUDE_SUBDOMAINS" envDefault:"true"`

	MetricsEnabled bool `env:"METRICS_ENABLED" envDefault:"true"`
}

func DefaultHTTPSettings() HTTPSettings {
	return HTTPSettings{
		Port:                  defaultPort,
		MaxBodyBytes:          defaultMaxBodyBytes,
		HSTSMaxAge:            defaultHSTSMaxAge,
		HSTSIncludeSubdomains: true,
		MetricsEnabled:        true,
	}
}

func LoadHTTPSettings() (HTTPSettings, error) {
	settings, err := env.ParseAs[HTTPSettings]()
	if err != nil {
		return DefaultHTTPSettings(), fmt.Errorf("parse http env: %w", err)
	}

	settings.Port = strings.TrimSpace(settings.Port)
	if settings.Port == "" {
		settings.Port = defaultPort
	}
	if settings.MaxBodyBytes <= 0 {
		settings.MaxBodyBytes = defaultMaxBodyBytes
	}
	if settings.HSTSMaxAge <= 0 {
		settings.HSTSMaxAge = defaultHSTSMaxAge
	}
	settings.AppEnv = strings.ToLower(strings.TrimSpace(settings.AppEnv))

	origins := settings.CORSAllowedOrigins[:0]
	for _, o := range settings.CORSAllowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	settings.CORSAllowedOrigins = origins

	return settings, nil
}

func (s HTTPSettings) hstsEnabled() bool {
	if s.HSTSEnabled != nil {
		return *s.HSTSEnabled
	}
	return s.AppEnv == "production" || s.AppEnv == "prod"
}

func (s HTTPSettings) hstsValue() string {
	value := fmt.Sprintf("max-age=%d", s.HSTSMaxAge)
	if s.HSTSIncludeSubdomains {
		value += "; includeSubDomains"
	}
	return value
}

func (s HTTPSettings) originAllowed(origin string) bool {
	for _, allowed := range s.CORSAllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

func parseTrustedProxies(v string) []string {
	s := strings.TrimSpace(v)
	if s == "" {
		return nil
	}
	if s == "*" {
		return []string{"0.0.0.0/0", "::/0"}
	}

	var proxies []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			proxies = append(proxies, p)
		}
	}
	return proxies
}
