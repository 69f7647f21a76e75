package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/akeren/go-waitlist/config"
	"github.com/akeren/go-waitlist/domain/stats"
	"github.com/akeren/go-waitlist/domain/waitlist"
	"github.com/akeren/go-waitlist/internal/log"
	"github.com/akeren/go-waitlist/pkg/migrations"
	"github.com/akeren/go-waitlist/pkg/utils"
	"gorm.io/gorm"
)

func main() {
	logger := log.NewLoggerWithJSONOutput()

	config.InitializeEnvFile(logger) // Load envs early for CLI consistency

	args := os.Args[1:]
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	switch args[0] {
	case "migrate":
		if err := runMigrate(logger); err != nil {
			logger.Error("Database migration failed", "error", err.Error())
			os.Exit(1)
		}
		logger.Info("Database migrations completed")

	case "stats":
		if err := runStats(logger); err != nil {
			logger.Error("Failed to compute waitlist stats", "error", err.Error())
			os.Exit(1)
		}

	case "queue-status":
		if err := runQueueStatus(logger); err != nil {
			logger.Error("Failed to read mailing list queue", "error", err.Error())
			os.Exit(1)
		}

	case "help", "-h", "--help":
		printUsage()

	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func openDatabase(logger *log.Logger) (*gorm.DB, func(), error) {
	db, err := config.NewDatabase(logger, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("connect: %w", err)
	}

	return db, func() { config.CloseDatabase(db, logger) }, nil
}

func runMigrate(logger *log.Logger) error {
	db, closeDB, err := openDatabase(logger)
	if err != nil {
		return err
	}
	defer closeDB()

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("sql handle: %w", err)
	}

	// Empty selects migrations/<driver>.
	migrationsDir := utils.GetEnvTrimmedOrDefault("MIGRATIONS_DIR", "")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	return migrations.Up(ctx, sqlDB, migrations.Config{
		Dir:    migrationsDir,
		Driver: config.DBDriver(),
		Logger: logger,
	})
}

// runStats prints the summary computed straight from the ledger, bypassing
// the cache, so a read failure is reported instead of served as a fallback.
func runStats(logger *log.Logger) error {
	db, closeDB, err := openDatabase(logger)
	if err != nil {
		return err
	}
	defer closeDB()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	summary, err := stats.Aggregate(ctx, waitlist.NewLedger(db), time.Now().UTC())
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(summary)
}

func runQueueStatus(logger *log.Logger) error {
	waitlistConfig, err := config.LoadWaitlistConfig()
	if err != nil {
		return err
	}

	cacheConfig, err := config.LoadCacheConfig()
	if err != nil {
		return err
	}
	cache, err := cacheConfig.NewCache(logger)
	if err != nil {
		return err
	}
	defer config.CloseCache(cache, logger)

	q, err := config.NewMailingListQueue(config.GetRedisClient(cache), waitlistConfig.MailingList, logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pending, err := q.Len(ctx)
	if err != nil {
		return err
	}
	dead, err := q.DeadLetterLen(ctx)
	if err != nil {
		return err
	}

	return json.NewEncoder(os.Stdout).Encode(map[string]any{
		"queue":       waitlistConfig.MailingList.Queue,
		"pending":     pending,
		"dead_letter": dead,
	})
}

func printUsage() {
	fmt.Println("Usage: cli <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  migrate       Run database migrations and exit")
	fmt.Println("  stats         Print the waitlist summary as JSON")
	fmt.Println("  queue-status  Print mailing list queue and dead-letter lengths")
}
