package db

import (
	"fmt"
	"os"

	"tahfidh/internal/auth"
	"tahfidh/pkg/models"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDatabase creates a new database connection
func NewDatabase() (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s",
		os.Getenv("DB_HOST"),
		os.Getenv("DB_USER"),
		os.Getenv("DB_PASSWORD"),
		os.Getenv("DB_NAME"),
		os.Getenv("DB_PORT"),
		os.Getenv("DB_SSLMODE"),
		os.Getenv("DB_TIMEZONE"),
	)

	config := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Error),
		DisableForeignKeyConstraintWhenMigrating: false,
	}

	database, err := gorm.Open(postgres.Open(dsn), config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return database, nil
}

// AutoMigrate runs database migrations using GORM
func AutoMigrate(database *gorm.DB) error {
	log.Info().Msg("Running GORM AutoMigrate...")

	if err := database.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp"`).Error; err != nil {
		log.Warn().Err(err).Msg("Could not create uuid-ossp extension")
	}

	if err := database.AutoMigrate(models.GetAllModels()...); err != nil {
		return fmt.Errorf("failed to run GORM AutoMigrate: %w", err)
	}

	if err := createCustomIndexes(database); err != nil {
		log.Warn().Err(err).Msg("Failed to create some custom indexes")
	}

	log.Info().Msg("GORM AutoMigrate completed successfully")
	return nil
}

func createCustomIndexes(database *gorm.DB) error {
	indexes := []string{
		// The dispatcher's due-row scan: queued messages ordered by
		// delivery time.
		`CREATE INDEX IF NOT EXISTS idx_message_histories_due ON message_histories (scheduled_at) WHERE status = 'queued'`,

		// Suffix matching joins students to extracted attendance phones.
		`CREATE INDEX IF NOT EXISTS idx_students_phone_suffix ON students (right(phone, 9))`,
	}

	for _, idx := range indexes {
		if err := database.Exec(idx).Error; err != nil {
			log.Warn().Err(err).Str("index", idx).Msg("Failed to create index")
		}
	}

	return nil
}

// SeedInitialData creates the first admin account when no admin exists.
func SeedInitialData(database *gorm.DB) error {
	var count int64
	if err := database.Model(&models.User{}).Where("role = ?", "admin").Count(&count).Error; err != nil {
		return fmt.Errorf("failed to check existing users: %w", err)
	}
	if count > 0 {
		return nil
	}

	email := os.Getenv("ADMIN_EMAIL")
	password := os.Getenv("ADMIN_PASSWORD")
	if email == "" || password == "" {
		log.Warn().Msg("ADMIN_EMAIL/ADMIN_PASSWORD not set, skipping admin seed")
		return nil
	}

	hashed, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}

	admin := models.User{
		Email:    email,
		Password: hashed,
		Name:     "Administrator",
		Role:     "admin",
		IsActive: true,
	}
	if err := database.Create(&admin).Error; err != nil {
		return fmt.Errorf("failed to create admin user: %w", err)
	}

	log.Info().Str("email", email).Msg("Admin user created")
	return nil
}

// RunMigrations is the main migration function called from main.go
func RunMigrations(database *gorm.DB) error {
	if err := AutoMigrate(database); err != nil {
		return fmt.Errorf("AutoMigrate failed: %w", err)
	}
	if err := SeedInitialData(database); err != nil {
		return fmt.Errorf("initial data seeding failed: %w", err)
	}
	return nil
}
