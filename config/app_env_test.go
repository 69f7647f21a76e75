package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/akeren/go-waitlist/internal/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateAutoMigrateAllowed(t *testing.T) {
	for _, env := range []string{"", "dev", "development", "local", "test", "testing", "DEV", "  Local  "} {
		assert.NoError(t, ValidateAutoMigrateAllowed(env), env)
	}

	for _, env := range []string{"prod", "production", "staging", "preprod", " Production ", "qa"} {
		err := ValidateAutoMigrateAllowed(env)
		require.Error(t, err, env)
		assert.Contains(t, err.Error(), "cli migrate")
	}
}

func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestInitializeEnvFile_EnvSpecificFileWins(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("WAITLIST_TEST_A=base\nWAITLIST_TEST_B=base\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env.staging"), []byte("WAITLIST_TEST_A=staging\n"), 0o600))
	chdir(t, dir)

	t.Setenv("APP_ENV", "staging")
	t.Setenv("SKIP_DOTENV", "")
	t.Setenv("ENV_FILE", "")
	t.Setenv("WAITLIST_TEST_A", "")
	t.Setenv("WAITLIST_TEST_B", "")
	require.NoError(t, os.Unsetenv("WAITLIST_TEST_A"))
	require.NoError(t, os.Unsetenv("WAITLIST_TEST_B"))

	InitializeEnvFile(log.NewDiscardLogger())

	assert.Equal(t, "staging", os.Getenv("WAITLIST_TEST_A"))
	assert.Equal(t, "base", os.Getenv("WAITLIST_TEST_B"))
}

func TestInitializeEnvFile_DoesNotOverrideProcessEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.env")
	require.NoError(t, os.WriteFile(path, []byte("WAITLIST_TEST_A=file\n"), 0o600))

	t.Setenv("SKIP_DOTENV", "")
	t.Setenv("ENV_FILE", path)
	t.Setenv("WAITLIST_TEST_A", "process")

	InitializeEnvFile(log.NewDiscardLogger())

	assert.Equal(t, "process", os.Getenv("WAITLIST_TEST_A"))
}

func TestInitializeEnvFile_Skip(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("WAITLIST_TEST_A=file\n"), 0o600))
	chdir(t, dir)

	t.Setenv("SKIP_DOTENV", "true")
	t.Setenv("ENV_FILE", "")
	t.Setenv("WAITLIST_TEST_A", "")
	require.NoError(t, os.Unsetenv("WAITLIST_TEST_A"))

	InitializeEnvFile(log.NewDiscardLogger())

	_, set := os.LookupEnv("WAITLIST_TEST_A")
	assert.False(t, set)
}

func TestEnvFileCandidates_SkipsMissingFiles(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("ENV_FILE", "")
	t.Setenv("APP_ENV", "local")

	assert.Empty(t, envFileCandidates())
}
