package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "log_level: debug\n"))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, "12:00", cfg.Digest.RunAt)
	assert.Equal(t, 6, cfg.News.MaxItems)
	assert.Equal(t, 6, cfg.News.MaxRounds)
	assert.Equal(t, 5, cfg.News.WindowDays)
	assert.Equal(t, 60*time.Second, cfg.Digest.SummarizeTimeout)
	assert.Equal(t, DeliverySMTP, cfg.Delivery.Mode)
	assert.Equal(t, ":8080", cfg.API.Addr)
}

func TestLoad_ExpandsEnv(t *testing.T) {
	t.Setenv("TEST_FINNHUB_KEY", "fh-secret")

	cfg, err := Load(writeConfig(t, "finnhub:\n  api_key: ${TEST_FINNHUB_KEY}\n"))
	require.NoError(t, err)

	assert.Equal(t, "fh-secret", cfg.Finnhub.APIKey)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func validDigestConfig() *Config {
	cfg := &Config{
		Database:   DatabaseConfig{Driver: DriverSQLite, Path: "digest.db"},
		Finnhub:    FinnhubConfig{APIKey: "fh"},
		Summarizer: SummarizerConfig{APIKey: "sk"},
		Delivery: DeliveryConfig{
			SMTP: SMTPConfig{Host: "smtp.example.com", Username: "u", Password: "p"},
		},
	}
	cfg.setDefaults()
	return cfg
}

func TestValidateDigest(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(*Config)
		credential bool
		wantErr    bool
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "missing finnhub key", mutate: func(c *Config) { c.Finnhub.APIKey = "" }, credential: true, wantErr: true},
		{name: "missing summarizer key", mutate: func(c *Config) { c.Summarizer.APIKey = "" }, credential: true, wantErr: true},
		{name: "missing smtp password", mutate: func(c *Config) { c.Delivery.SMTP.Password = "" }, credential: true, wantErr: true},
		{name: "rabbitmq needs no smtp", mutate: func(c *Config) { c.Delivery.Mode = DeliveryRabbitMQ; c.Delivery.SMTP = SMTPConfig{} }},
		{name: "unknown provider", mutate: func(c *Config) { c.Summarizer.Provider = "gemini" }, wantErr: true},
		{name: "bad run_at", mutate: func(c *Config) { c.Digest.RunAt = "noon" }, wantErr: true},
		{name: "sqlite without path", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validDigestConfig()
			tt.mutate(cfg)

			err := cfg.ValidateDigest()
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.credential, errors.Is(err, ErrMissingCredential))
		})
	}
}

func TestParseRunAt(t *testing.T) {
	d, err := ParseRunAt("07:30")
	require.NoError(t, err)
	assert.Equal(t, 7*time.Hour+30*time.Minute, d)

	_, err = ParseRunAt("25:00")
	assert.Error(t, err)
}

func TestDSN(t *testing.T) {
	pg := DatabaseConfig{Driver: DriverPostgres, Host: "db", Port: 5432, User: "u", Password: "p", DBName: "digest", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=digest sslmode=disable", pg.DSN())

	lite := DatabaseConfig{Driver: DriverSQLite, Path: "/tmp/digest.db"}
	assert.Equal(t, "/tmp/digest.db", lite.DSN())
}
