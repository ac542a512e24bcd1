package main

import (
	"modelhub_go_backend/internal/database"
)

type MigrateCmd struct{}

func (c *MigrateCmd) Run(cli *CLI) error {
	cfg, log, err := cli.bootstrap()
	if err != nil {
		return err
	}
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	if err := database.Migrate(db); err != nil {
		return err
	}
	log.Info().Msg("Schema is up to date")
	return nil
}
