package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"bidflow/models"

	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var (
	DB        *gorm.DB
	AppConfig Config
)

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"-"`
	DB       int    `json:"db"`
}

type SMTPConfig struct {
	Host      string `json:"host"`
	Port      int    `json:"port"`
	Username  string `json:"username"`
	Password  string `json:"-"`
	FromEmail string `json:"from_email"`
	FromName  string `json:"from_name"`
}

type TwilioConfig struct {
	AccountSID string `json:"account_sid"`
	AuthToken  string `json:"-"`
	FromNumber string `json:"from_number"`
}

type IMAPConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"-"`
	Mailbox  string `json:"mailbox"`
}

type Config struct {
	Environment    string       `json:"environment"`
	ServerPort     string       `json:"server_port"`
	EncryptionKey  string       `json:"-"`
	InternalToken  string       `json:"-"`
	SentryDSN      string       `json:"-"`
	DBHost         string       `json:"db_host"`
	DBPort         string       `json:"db_port"`
	DBUser         string       `json:"db_user"`
	DBPassword     string       `json:"-"`
	DBName         string       `json:"db_name"`
	DBSSLMode      string       `json:"db_ssl_mode"`
	DBMaxIdleConns int          `json:"db_max_idle_conns"`
	DBMaxOpenConns int          `json:"db_max_open_conns"`
	SMTP           SMTPConfig   `json:"smtp"`
	Twilio         TwilioConfig `json:"twilio"`
	IMAP           IMAPConfig   `json:"imap"`
	Redis          RedisConfig  `json:"redis"`

	// Sequence engine knobs
	ProcessSchedule  string `json:"process_schedule"` // cron spec for the worker
	ProcessBatchSize int    `json:"process_batch_size"`
	NotifyWebhookURL string `json:"-"`
	RateLimitEnroll  int    `json:"rate_limit_enroll"`
}

func init() {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()
}

func LoadConfig() error {
	AppConfig = Config{
		Environment:    getEnv("ENVIRONMENT", "development"),
		ServerPort:     getEnv("SERVER_PORT", "5000"),
		EncryptionKey:  getEnv("ENCRYPTION_KEY", ""),
		InternalToken:  getEnv("INTERNAL_API_TOKEN", ""),
		SentryDSN:      getEnv("SENTRY_DSN", ""),
		DBHost:         getEnv("DB_HOST", "localhost"),
		DBPort:         getEnv("DB_PORT", "5432"),
		DBUser:         getEnv("DB_USER", "postgres"),
		DBPassword:     getEnv("DB_PASSWORD", ""),
		DBName:         getEnv("DB_NAME", "bidflow"),
		DBSSLMode:      getEnv("DB_SSL_MODE", "disable"),
		DBMaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 10),
		DBMaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 100),

		SMTP: SMTPConfig{
			Host:      getEnv("SMTP_HOST", ""),
			Port:      getEnvAsInt("SMTP_PORT", 587),
			Username:  getEnv("SMTP_USERNAME", ""),
			Password:  getEnv("SMTP_PASSWORD", ""),
			FromEmail: getEnv("SMTP_FROM_EMAIL", ""),
			FromName:  getEnv("SMTP_FROM_NAME", ""),
		},
		Twilio: TwilioConfig{
			AccountSID: getEnv("TWILIO_ACCOUNT_SID", ""),
			AuthToken:  getEnv("TWILIO_AUTH_TOKEN", ""),
			FromNumber: getEnv("TWILIO_FROM_NUMBER", ""),
		},
		IMAP: IMAPConfig{
			Host:     getEnv("IMAP_HOST", ""),
			Port:     getEnvAsInt("IMAP_PORT", 993),
			Username: getEnv("IMAP_USERNAME", ""),
			Password: getEnv("IMAP_PASSWORD", ""),
			Mailbox:  getEnv("IMAP_MAILBOX", "INBOX"),
		},
		Redis: RedisConfig{
			Enabled:  getEnv("REDIS_ENABLED", "false") == "true",
			Address:  getEnv("REDIS_ADDRESS", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},

		ProcessSchedule:  getEnv("SEQUENCE_PROCESS_SCHEDULE", "@every 15m"),
		ProcessBatchSize: getEnvAsInt("SEQUENCE_PROCESS_BATCH_SIZE", 100),
		NotifyWebhookURL: getEnv("NOTIFY_WEBHOOK_URL", ""),
		RateLimitEnroll:  getEnvAsInt("RATE_LIMIT_ENROLL", 30),
	}

	if AppConfig.DBPassword == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if AppConfig.EncryptionKey == "" {
		return fmt.Errorf("ENCRYPTION_KEY is required")
	}
	if AppConfig.Environment == "production" && AppConfig.InternalToken == "" {
		return fmt.Errorf("INTERNAL_API_TOKEN is required in production")
	}

	logConfig()
	return nil
}

func ConnectDB() error {
	log.Println("Attempting to connect to database...")

	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		AppConfig.DBHost,
		AppConfig.DBPort,
		AppConfig.DBUser,
		AppConfig.DBPassword,
		AppConfig.DBName,
		AppConfig.DBSSLMode,
	)
	log.Println("Using connection string:", maskPassword(dsn))

	var err error
	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get DB instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(AppConfig.DBMaxIdleConns)
	sqlDB.SetMaxOpenConns(AppConfig.DBMaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(30 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	log.Println("Successfully connected to the database")
	log.Println("Starting database migration...")
	if err := migrateDB(DB); err != nil {
		return fmt.Errorf("database migration failed: %w", err)
	}
	log.Println("Database migration completed")
	return nil
}

// Helper functions
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	var value int
	_, err := fmt.Sscanf(valueStr, "%d", &value)
	if err != nil {
		return fallback
	}
	return value
}

func maskPassword(dsn string) string {
	const passwordMarker = "password="
	startIdx := strings.Index(dsn, passwordMarker)
	if startIdx == -1 {
		return dsn
	}

	startIdx += len(passwordMarker)
	endIdx := strings.IndexAny(dsn[startIdx:], " ")
	if endIdx == -1 {
		return dsn[:startIdx] + "*****"
	}
	return dsn[:startIdx] + "*****" + dsn[startIdx+endIdx:]
}

func logConfig() {
	log.Println("Loaded configuration:")
	log.Printf("Environment: %s", AppConfig.Environment)
	log.Printf("Server Port: %s", AppConfig.ServerPort)
	log.Printf("Database: %s@%s:%s/%s",
		AppConfig.DBUser,
		AppConfig.DBHost,
		AppConfig.DBPort,
		AppConfig.DBName)
	log.Printf("Channels: SMTP(%t), Twilio(%t), IMAP(%t), Webhook(%t)",
		AppConfig.SMTP.Host != "",
		AppConfig.Twilio.AccountSID != "",
		AppConfig.IMAP.Host != "",
		AppConfig.NotifyWebhookURL != "")
}

func migrateDB(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Lead{},
		&models.Job{},
		&models.MessageTemplate{},
		&models.Sequence{},
		&models.SequenceStep{},
		&models.Enrollment{},
		&models.SequenceLog{},
	)
}
