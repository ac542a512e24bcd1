package main

import (
	"context"
	"fmt"

	"modelhub_go_backend/cmd/api/config"
	"modelhub_go_backend/internal/services"
)

func providerConfig(cfg *config.Config) services.OpenRouterConfig {
	return services.OpenRouterConfig{
		APIKey:        cfg.Provider.APIKey,
		BaseURL:       cfg.Provider.BaseURL,
		Referer:       cfg.Provider.Referer,
		Title:         cfg.Provider.Title,
		Timeout:       cfg.Provider.Timeout,
		VerifyTimeout: cfg.Provider.VerifyTimeout,
	}
}

type VerifyKeyCmd struct {
	Key string `arg:"" optional:"" help:"Key to check (defaults to OPENROUTER_API_KEY)"`
}

func (c *VerifyKeyCmd) Run(cli *CLI) error {
	cfg, log, err := cli.bootstrap()
	if err != nil {
		return err
	}
	key := c.Key
	if key == "" {
		key = cfg.Provider.APIKey
	}
	if key == "" {
		return fmt.Errorf("API key is required")
	}

	provider := services.NewOpenRouterService(providerConfig(cfg), nil)
	valid, message := provider.VerifyKey(log.WithContext(context.Background()), key)
	fmt.Println(message)
	if !valid {
		return fmt.Errorf("key rejected")
	}
	return nil
}

type SyncModelsCmd struct{}

func (c *SyncModelsCmd) Run(cli *CLI) error {
	cfg, log, err := cli.bootstrap()
	if err != nil {
		return err
	}
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	catalog := services.NewCatalogServiceDB(db)
	provider := services.NewOpenRouterService(providerConfig(cfg), catalog)

	n, err := services.SyncCatalog(log.WithContext(context.Background()), catalog, provider)
	if err != nil {
		return err
	}
	fmt.Printf("Synced %d models\n", n)
	return nil
}
