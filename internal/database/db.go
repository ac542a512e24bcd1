package database

import (
	"fmt"
	"time"

	"modelhub_go_backend/internal/models"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// Config returns the gorm settings shared by every dialect. Timestamps are
// written in UTC so range queries compare like with like.
func Config() *gorm.Config {
	return &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Warn),
		NowFunc: func() time.Time { return time.Now().UTC() },
	}
}

func InitDB(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), Config())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	DB = db
	log.Info().Msg("Connected to database")
	return db, nil
}

// Migrate creates or updates every table the service owns.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.ModelProvider{},
		&models.AIModel{},
		&models.User{},
		&models.UserAPIKey{},
		&models.Conversation{},
		&models.Message{},
		&models.UsageRecord{},
		&models.UsageAlert{},
		&models.QuotaTopUp{},
	)
	if err != nil {
		return fmt.Errorf("failed to auto migrate: %w", err)
	}
	return nil
}
