package main

import (
	"fmt"
	"os"

	"modelhub_go_backend/cmd/api/config"
	"modelhub_go_backend/internal/database"
	"modelhub_go_backend/internal/logger"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

type CLI struct {
	EnvFile string `default:".env" help:"Dotenv file loaded before reading the environment"`

	Serve      ServeCmd      `cmd:"" default:"1" help:"Run the HTTP API (default)"`
	Migrate    MigrateCmd    `cmd:"" help:"Create or update the database schema"`
	VerifyKey  VerifyKeyCmd  `cmd:"" help:"Check an OpenRouter API key"`
	SyncModels SyncModelsCmd `cmd:"" help:"Import the provider model list into the catalog"`
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("modelhub"),
		kong.Description("AI model marketplace and chat backend"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)

	if err := ctx.Run(&cli); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// bootstrap loads the environment and installs the logger.
func (cli *CLI) bootstrap() (*config.Config, zerolog.Logger, error) {
	envErr := godotenv.Load(cli.EnvFile)

	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	if envErr != nil {
		log.Debug().Str("file", cli.EnvFile).Msg("No .env file found")
	}
	return cfg, log, nil
}

func openDB(cfg *config.Config) (*gorm.DB, error) {
	return database.InitDB(cfg.Database.DSN())
}
