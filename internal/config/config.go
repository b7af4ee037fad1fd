// Package config reads and writes the releve.yaml settings file.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// FileName is the settings file looked up in the work directory.
const FileName = "releve.yaml"

// Environment variables that override the file.
const (
	EnvDatabaseDriver    = "RELEVE_DATABASE_DRIVER"
	EnvDatabaseDSN       = "RELEVE_DATABASE_DSN"
	EnvServiceAccountKey = "RELEVE_SERVICE_ACCOUNT_KEY"
	EnvLogLevel          = "RELEVE_LOG_LEVEL"
)

// Config represents the top-level releve.yaml configuration.
type Config struct {
	Credentials   CredentialsConfig   `yaml:"credentials"`
	Source        SourceConfig        `yaml:"source"`
	Archive       ArchiveConfig       `yaml:"archive"`
	Accounts      AccountsConfig      `yaml:"accounts"`
	Cash          CashConfig          `yaml:"cash"`
	Mappings      MappingsConfig      `yaml:"mappings"`
	Extracts      ExtractsConfig      `yaml:"extracts"`
	Ledger        LedgerConfig        `yaml:"ledger"`
	Exclusions    []string            `yaml:"exclusions"` // e.g. "REMBOURSEMENT DE PRET"
	Periodization PeriodizationConfig `yaml:"periodization"`
	Database      DatabaseConfig      `yaml:"database"`
	Log           LogConfig           `yaml:"log"`
}

// CredentialsConfig points at the Google service account key.
type CredentialsConfig struct {
	ServiceAccountKey string `yaml:"service_account_key"`
}

// SourceConfig is where bank exports are downloaded.
type SourceConfig struct {
	DownloadFolder string `yaml:"download_folder"`
}

// ArchiveConfig controls where processed exports are moved. Relative
// folders are resolved against the download folder.
type ArchiveConfig struct {
	Enabled                 bool   `yaml:"enabled"`
	CreditAgricoleSubfolder string `yaml:"credit_agricole_subfolder"`
	BoursoramaSubfolder     string `yaml:"boursorama_subfolder"`
}

// AccountsConfig names the accounts records are booked on.
type AccountsConfig struct {
	CreditAgricole string `yaml:"credit_agricole"`
	Boursorama     string `yaml:"boursorama"`
}

// CashConfig locates the shared cash ledger. Each account is a worksheet.
type CashConfig struct {
	SpreadsheetID string   `yaml:"spreadsheet_id"`
	Accounts      []string `yaml:"accounts"`
}

// MappingsConfig selects where keyword mappings are read from: the
// database tables when both files are empty, otherwise the CSV files.
type MappingsConfig struct {
	CategoriesFile string `yaml:"categories_file"`
	OrganismesFile string `yaml:"organismes_file"`
}

// ExtractsConfig is the folder receiving the CSV exports of each run.
type ExtractsConfig struct {
	Folder string `yaml:"folder"`
}

// LedgerConfig locates the ledger workbooks of the spreadsheet mode.
type LedgerConfig struct {
	Folder string `yaml:"folder"`
	Sheet  string `yaml:"sheet"`
}

// PeriodizationConfig selects the rows spread over twelve months.
type PeriodizationConfig struct {
	Threshold float64 `yaml:"threshold"`
	Column    string  `yaml:"column"`
}

// DatabaseConfig selects the store driver and its DSN.
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// LogConfig holds the default log level.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Load reads a releve.yaml file from disk.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return &cfg, nil
}

// Save writes a Config to a YAML file.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// LoadOrInit overlays the file at path, if any, on the defaults and writes
// the merged result back so that new settings show up in the file.
func LoadOrInit(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("reading config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}
	if err := Save(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv loads envFile when it exists, then lets the process environment
// override the database, credentials and log settings. Variables already
// set in the environment win over the file.
func (c *Config) ApplyEnv(envFile string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", envFile, err)
		}
	}
	if v := os.Getenv(EnvDatabaseDriver); v != "" {
		c.Database.Driver = v
	}
	if v := os.Getenv(EnvDatabaseDSN); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv(EnvServiceAccountKey); v != "" {
		c.Credentials.ServiceAccountKey = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
	return nil
}

// Default returns a Config with sensible defaults for a new work directory.
func Default() *Config {
	return &Config{
		Source: SourceConfig{
			DownloadFolder: "Téléchargements",
		},
		Archive: ArchiveConfig{
			Enabled:                 true,
			CreditAgricoleSubfolder: "ArchiveCA",
			BoursoramaSubfolder:     "ArchiveBA",
		},
		Accounts: AccountsConfig{
			CreditAgricole: "Crédit Agricole",
			Boursorama:     "Boursorama",
		},
		Cash: CashConfig{
			Accounts: []string{"Liquide"},
		},
		Extracts: ExtractsConfig{
			Folder: "extracts",
		},
		Ledger: LedgerConfig{
			Folder: "comptes",
			Sheet:  "Transactions",
		},
		Exclusions: []string{},
		Periodization: PeriodizationConfig{
			Threshold: 150,
			Column:    "expense",
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "releve.db",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}
