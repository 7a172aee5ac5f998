package database

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/tabledrop/backend/internal/models"
	"github.com/tabledrop/backend/internal/telemetry"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DB holds the database connection
var DB *gorm.DB

// Initialize creates and configures the database connection
func Initialize() error {
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		// Fallback to individual components
		host := getEnvOrDefault("DB_HOST", "localhost")
		port := getEnvOrDefault("DB_PORT", "5432")
		user := getEnvOrDefault("DB_USER", "postgres")
		password := getEnvOrDefault("DB_PASSWORD", "")
		dbname := getEnvOrDefault("DB_NAME", "tabledrop")
		sslmode := getEnvOrDefault("DB_SSLMODE", "disable")

		databaseURL = fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			host, port, user, password, dbname, sslmode)
	}

	// Configure GORM logger
	gormLogger := logger.Default
	if os.Getenv("ENVIRONMENT") == "development" {
		gormLogger = logger.Default.LogMode(logger.Info)
	}

	// Open database connection
	db, err := gorm.Open(postgres.Open(databaseURL), &gorm.Config{
		Logger: gormLogger,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	// Configure connection pool
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	// Trace queries when a tracer provider is installed; the plugin is a
	// no-op otherwise
	if err := db.Use(telemetry.GORMTracingPlugin()); err != nil {
		log.Printf("Warning: Could not register tracing plugin: %v", err)
	}

	DB = db
	log.Println("✅ Database connected successfully")

	return nil
}

// Migrate runs auto-migration for all models
func Migrate() error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	// Enable UUID extension for PostgreSQL
	err := DB.Exec("CREATE EXTENSION IF NOT EXISTS \"uuid-ossp\"").Error
	if err != nil {
		log.Printf("Warning: Could not create uuid-ossp extension: %v", err)
	}

	// Auto-migrate all models
	err = DB.AutoMigrate(
		&models.User{},
		&models.Listing{},
		&models.Conversation{},
		&models.ChatMessage{},
		&models.ForumThread{},
		&models.ForumReply{},
		&models.Report{},
	)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	// Create indexes for performance
	err = createIndexes()
	if err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	log.Println("✅ Database migrations completed")
	return nil
}

// createIndexes creates performance indexes
func createIndexes() error {
	// User indexes
	DB.Exec("CREATE INDEX IF NOT EXISTS idx_users_email_lower ON users (LOWER(email))")
	DB.Exec("CREATE INDEX IF NOT EXISTS idx_users_username_lower ON users (LOWER(username))")

	// Listing indexes for map/discovery queries
	DB.Exec("CREATE INDEX IF NOT EXISTS idx_listings_owner_created ON listings (owner_id, created_at DESC)")
	DB.Exec("CREATE INDEX IF NOT EXISTS idx_listings_status_created ON listings (status, created_at DESC)")
	DB.Exec("CREATE INDEX IF NOT EXISTS idx_listings_lat_lng ON listings (lat, lng) WHERE status = 'available'")
	DB.Exec("CREATE INDEX IF NOT EXISTS idx_listings_categories ON listings USING GIN (categories)")
	DB.Exec("CREATE INDEX IF NOT EXISTS idx_listings_pickup_end ON listings (pickup_end) WHERE pickup_end IS NOT NULL")

	// Conversation and message indexes for chat retrieval
	DB.Exec("CREATE INDEX IF NOT EXISTS idx_conversations_owner ON conversations (owner_id, last_message_at DESC)")
	DB.Exec("CREATE INDEX IF NOT EXISTS idx_conversations_requester ON conversations (requester_id, last_message_at DESC)")
	DB.Exec("CREATE INDEX IF NOT EXISTS idx_chat_messages_conversation_created ON chat_messages (conversation_id, created_at DESC)")
	DB.Exec("CREATE INDEX IF NOT EXISTS idx_chat_messages_unread ON chat_messages (conversation_id) WHERE read_at IS NULL")

	// Forum indexes
	DB.Exec("CREATE INDEX IF NOT EXISTS idx_forum_threads_category_activity ON forum_threads (category, last_reply_at DESC)")
	DB.Exec("CREATE INDEX IF NOT EXISTS idx_forum_threads_visible ON forum_threads (last_reply_at DESC) WHERE is_hidden = false")
	DB.Exec("CREATE INDEX IF NOT EXISTS idx_forum_replies_thread_created ON forum_replies (thread_id, created_at)")

	// Full-text search index for thread content
	DB.Exec("CREATE INDEX IF NOT EXISTS idx_forum_threads_search ON forum_threads USING gin(to_tsvector('english', title || ' ' || body)) WHERE is_hidden = false")

	// Report indexes for the moderation queue
	DB.Exec("CREATE INDEX IF NOT EXISTS idx_reports_reporter ON reports (reporter_id)")
	DB.Exec("CREATE INDEX IF NOT EXISTS idx_reports_status_created ON reports (status, created_at)")
	DB.Exec("CREATE UNIQUE INDEX IF NOT EXISTS idx_reports_unique ON reports (reporter_id, target_type, target_id) WHERE deleted_at IS NULL")

	return nil
}

// Close closes the database connection
func Close() error {
	if DB == nil {
		return nil
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}

	return sqlDB.Close()
}

// Health checks database connectivity
func Health() error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}

	return sqlDB.Ping()
}

// getEnvOrDefault returns environment variable or default value
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
