package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{Port: "8080"},
		Database: DatabaseConfig{
			Host:   "localhost",
			Port:   3306,
			User:   "triage",
			DBName: "referrals",
		},
		Mailbox: MailboxConfig{
			ClientID:     "client",
			ClientSecret: "secret",
			RefreshToken: "token",
			UserEmail:    "triage@hospital.example",
		},
		Pipeline: PipelineConfig{
			BatchSize:             20,
			MaxResultsPerPoll:     50,
			PollIntervalSeconds:   300,
			MaxRetries:            3,
			RetryDelaySeconds:     60,
			PerMessageTimeoutSecs: 300,
			ConcurrentWorkers:     4,
			MaxAttachmentBytes:    50 * 1024 * 1024,
		},
		OCR: OCRConfig{Enabled: true, Language: "spa+eng", DPI: 300},
	}
}

func TestValidateAcceptsCompleteConfig(t *testing.T) {
	require.NoError(t, validConfig().Validate())
}

func TestValidateRejectsMissingFields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing server port", func(c *Config) { c.Server.Port = "" }},
		{"missing database host", func(c *Config) { c.Database.Host = "" }},
		{"missing oauth credentials", func(c *Config) { c.Mailbox.ClientSecret = "" }},
		{"zero poll interval", func(c *Config) { c.Pipeline.PollIntervalSeconds = 0 }},
		{"zero max retries", func(c *Config) { c.Pipeline.MaxRetries = 0 }},
		{"zero workers", func(c *Config) { c.Pipeline.ConcurrentWorkers = 0 }},
		{"zero attachment limit", func(c *Config) { c.Pipeline.MaxAttachmentBytes = 0 }},
		{"ocr enabled without language", func(c *Config) { c.OCR.Language = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidateIMAPCredentials(t *testing.T) {
	cfg := validConfig()
	cfg.Mailbox.UseIMAP = true
	cfg.Mailbox.ClientID = ""
	cfg.Mailbox.ClientSecret = ""
	cfg.Mailbox.RefreshToken = ""
	assert.Error(t, cfg.Validate())

	cfg.Mailbox.IMAPUser = "triage@hospital.example"
	cfg.Mailbox.IMAPPassword = "app-password"
	assert.NoError(t, cfg.Validate())
}

func TestEnvOverrides(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	t.Setenv("MAILBOX_PROCESSED_LABEL", "tramitado")
	t.Setenv("MAILBOX_QUARANTINE_LABEL", "sospechoso")
	t.Setenv("PIPELINE_ALLOWED_SENDER_DOMAINS", "hospital.example,clinic.example")
	t.Setenv("PIPELINE_BATCH_SIZE", "5")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "tramitado", cfg.Mailbox.ProcessedLabel)
	assert.Equal(t, "sospechoso", cfg.Mailbox.QuarantineLabel)
	assert.Equal(t, []string{"hospital.example", "clinic.example"}, cfg.Pipeline.AllowedSenderDomains)
	assert.Equal(t, 5, cfg.Pipeline.BatchSize)

	// Untouched keys keep their defaults.
	assert.Equal(t, "INBOX", cfg.Mailbox.Folder)
	assert.Equal(t, 300, cfg.Pipeline.PollIntervalSeconds)
}

func TestDurationHelpers(t *testing.T) {
	p := PipelineConfig{
		PollIntervalSeconds:   300,
		RetryDelaySeconds:     60,
		PerMessageTimeoutSecs: 120,
	}
	assert.Equal(t, 5*time.Minute, p.PollInterval())
	assert.Equal(t, time.Minute, p.RetryDelay())
	assert.Equal(t, 2*time.Minute, p.PerMessageTimeout())
}

func TestSenderAllowed(t *testing.T) {
	p := PipelineConfig{AllowedSenderDomains: []string{"hospital.example", "Clinic.Example"}}

	assert.True(t, p.SenderAllowed("dr.lopez@hospital.example"))
	assert.True(t, p.SenderAllowed("admin@CLINIC.EXAMPLE"))
	assert.True(t, p.SenderAllowed("Dra. Ruiz <ruiz@hospital.example>"))
	assert.False(t, p.SenderAllowed("spam@elsewhere.example"))
	assert.False(t, p.SenderAllowed("no-at-sign"))

	// An empty filter allows every sender.
	open := PipelineConfig{}
	assert.True(t, open.SenderAllowed("anyone@anywhere.example"))
}

func TestGetDSN(t *testing.T) {
	d := DatabaseConfig{
		Host:     "db.internal",
		Port:     3306,
		User:     "triage",
		Password: "pw",
		DBName:   "referrals",
	}
	assert.Equal(t,
		"triage:pw@tcp(db.internal:3306)/referrals?charset=utf8mb4&parseTime=True&loc=Local",
		d.GetDSN())
}
