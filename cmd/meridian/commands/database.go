package commands

import (
	"database/sql"

	"github.com/meridianhq/meridian/config"
	"github.com/meridianhq/meridian/db"
	"github.com/meridianhq/meridian/errors"
	"github.com/meridianhq/meridian/logger"
)

// openDatabase opens and migrates the database at the configured path.
// An explicit dbPath (from a flag) wins over configuration.
func openDatabase(cfg *config.Config, dbPath string) (*sql.DB, error) {
	if dbPath == "" {
		dbPath = cfg.Database.Path
	}
	if dbPath == "" {
		dbPath = "meridian.db"
	}

	database, err := db.Open(dbPath, logger.Logger)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database at %s", dbPath)
	}

	if err := db.Migrate(database, logger.Logger); err != nil {
		database.Close()
		return nil, errors.Wrapf(err, "failed to run migrations on %s", dbPath)
	}

	return database, nil
}

// loadConfig loads configuration plus the rules file it points at.
func loadConfig() (*config.Config, *config.RulesFile, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to load configuration")
	}
	rules, err := config.LoadRules(cfg.Rules.Path)
	if err != nil {
		return nil, nil, err
	}
	return cfg, rules, nil
}
