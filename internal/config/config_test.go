package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Credentials.ServiceAccountKey = "/secrets/key.json"
	cfg.Cash = CashConfig{SpreadsheetID: "1AbC", Accounts: []string{"Liquide", "Tickets Resto"}}
	cfg.Exclusions = []string{"REMBOURSEMENT DE PRET", "ASSU. CNP PRET HABITAT"}

	path := filepath.Join(t.TempDir(), FileName)
	err := Save(path, cfg)
	require.NoError(t, err)

	got, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, cfg.Credentials.ServiceAccountKey, got.Credentials.ServiceAccountKey)
	assert.Equal(t, cfg.Source.DownloadFolder, got.Source.DownloadFolder)
	assert.Equal(t, cfg.Archive, got.Archive)
	assert.Equal(t, cfg.Accounts, got.Accounts)
	assert.Equal(t, "1AbC", got.Cash.SpreadsheetID)
	assert.Equal(t, []string{"Liquide", "Tickets Resto"}, got.Cash.Accounts)
	assert.Equal(t, cfg.Exclusions, got.Exclusions)
	assert.InDelta(t, 150, got.Periodization.Threshold, 0.001)
	assert.Equal(t, cfg.Database, got.Database)
}

func TestDefaults(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "Téléchargements", cfg.Source.DownloadFolder)
	assert.True(t, cfg.Archive.Enabled)
	assert.Equal(t, "ArchiveCA", cfg.Archive.CreditAgricoleSubfolder)
	assert.Equal(t, "ArchiveBA", cfg.Archive.BoursoramaSubfolder)
	assert.Equal(t, "Crédit Agricole", cfg.Accounts.CreditAgricole)
	assert.Empty(t, cfg.Exclusions)
	assert.InDelta(t, 150, cfg.Periodization.Threshold, 0.001)
	assert.Equal(t, "expense", cfg.Periodization.Column)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "releve.db", cfg.Database.DSN)
	assert.Empty(t, cfg.Credentials.ServiceAccountKey)
}

func TestLoadNotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadOrInit_CreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)

	cfg, err := LoadOrInit(path)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.FileExists(t, path)
}

func TestLoadOrInit_OverlaysExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	existing := "source:\n  download_folder: /home/me/Downloads\narchive:\n  enabled: false\n"
	require.NoError(t, os.WriteFile(path, []byte(existing), 0o644))

	cfg, err := LoadOrInit(path)
	require.NoError(t, err)
	assert.Equal(t, "/home/me/Downloads", cfg.Source.DownloadFolder)
	assert.False(t, cfg.Archive.Enabled)
	assert.Equal(t, "ArchiveCA", cfg.Archive.CreditAgricoleSubfolder, "unset keys keep their default")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "threshold: 150", "defaults are written back")
}

func TestLoadOrInit_BadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte("source: [unclosed"), 0o644))

	_, err := LoadOrInit(path)
	assert.ErrorContains(t, err, "parsing config")
}

func TestApplyEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("RELEVE_DATABASE_DRIVER=pgx\nRELEVE_LOG_LEVEL=debug\n"), 0o644))

	// godotenv does not override variables that are already set.
	t.Setenv(EnvDatabaseDriver, "")
	t.Setenv(EnvLogLevel, "")
	t.Setenv(EnvDatabaseDSN, "postgres://releve@localhost/releve")
	t.Setenv(EnvServiceAccountKey, "")
	os.Unsetenv(EnvDatabaseDriver)
	os.Unsetenv(EnvLogLevel)

	cfg := Default()
	require.NoError(t, cfg.ApplyEnv(envFile))

	assert.Equal(t, "pgx", cfg.Database.Driver)
	assert.Equal(t, "postgres://releve@localhost/releve", cfg.Database.DSN)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Empty(t, cfg.Credentials.ServiceAccountKey)
}

func TestApplyEnv_MissingFile(t *testing.T) {
	cfg := Default()
	assert.NoError(t, cfg.ApplyEnv(filepath.Join(t.TempDir(), ".env")))
}

func TestYAMLFormat(t *testing.T) {
	cfg := Default()
	path := filepath.Join(t.TempDir(), FileName)
	err := Save(path, cfg)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	contents := string(data)

	assert.Contains(t, contents, "download_folder: Téléchargements")
	assert.Contains(t, contents, "credit_agricole_subfolder: ArchiveCA")
	assert.Contains(t, contents, "exclusions: []")
	assert.Contains(t, contents, "driver: sqlite")
}
