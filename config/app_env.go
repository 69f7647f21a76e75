package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/akeren/go-waitlist/internal/log"
	"github.com/akeren/go-waitlist/pkg/utils"
	"github.com/joho/godotenv"
)

const (
	AppEnvKey  = "APP_ENV"
	EnvFileKey = "ENV_FILE"
)

var devLikeEnvs = []string{"", "dev", "development", "local", "test", "testing"}

// InitializeEnvFile loads dotenv files without overriding variables that are
// already set. ENV_FILE names a single file; otherwise .env.<APP_ENV> and .env
// are loaded, the more specific one first so it wins.
func InitializeEnvFile(logger *log.Logger) {
	if utils.GetEnvBool("SKIP_DOTENV", false) {
		logger.Info("Skipping .env file load (SKIP_DOTENV=true)")
		return
	}

	files := envFileCandidates()
	if len(files) == 0 {
		logger.Debug("No .env file present")
		return
	}

	if err := godotenv.Load(files...); err != nil {
		logger.Warn("Failed to load .env files", "files", files, "error", err.Error())
		return
	}

	logger.Info("Environment variables loaded from .env files", "files", files)
}

func envFileCandidates() []string {
	if explicit := utils.GetEnvTrimmed(EnvFileKey); explicit != "" {
		return []string{explicit}
	}

	var candidates []string
	if appEnv := GetAppEnv(); appEnv != "" {
		candidates = append(candidates, ".env."+appEnv)
	}
	candidates = append(candidates, ".env")

	files := candidates[:0]
	for _, name := range candidates {
		if info, err := os.Stat(name); err == nil && !info.IsDir() {
			files = append(files, name)
		}
	}
	return files
}

func GetValueFromEnvironmentVariable(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}

	return defaultValue
}

func GetAppEnv() string {
	return strings.ToLower(strings.TrimSpace(os.Getenv(AppEnvKey)))
}

// IsDevLikeEnv reports whether appEnv allows schema auto-migration.
func IsDevLikeEnv(appEnv string) bool {
	env := strings.ToLower(strings.TrimSpace(appEnv))
	for _, allowed := range devLikeEnvs {
		if env == allowed {
			return true
		}
	}
	return false
}

func ValidateAutoMigrateAllowed(appEnv string) error {
	if IsDevLikeEnv(appEnv) {
		return nil
	}

	return fmt.Errorf("--auto-migrate is not allowed when %s=%q (allowed: %s); run `cli migrate` instead",
		AppEnvKey, strings.ToLower(strings.TrimSpace(appEnv)), strings.Join(devLikeEnvs[1:], ", "))
}
