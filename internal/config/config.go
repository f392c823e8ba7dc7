// Package config содержит логику чтения конфигурации сервиса краудфандинга.
package config

import (
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config содержит параметры конфигурации сервиса краудфандинга.
type Config struct {
	RunAddress              string        `env:"RUN_ADDRESS"`
	DatabaseURI             string        `env:"DATABASE_URI"`
	CredentialIssuerAddress string        `env:"CREDENTIAL_ISSUER_ADDRESS"`
	TransferSystemAddress   string        `env:"TRANSFER_SYSTEM_ADDRESS"`
	AuthSecret              string        `env:"AUTH_SECRET"`
	MinContribution         int64         `env:"MIN_CONTRIBUTION"`
	CredentialUnit          int64         `env:"CREDENTIAL_UNIT"`
	CampaignDuration        time.Duration `env:"CAMPAIGN_DURATION"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных
// окружения; значения окружения имеют приоритет. Файл .env, если он есть,
// подгружается перед разбором.
func Parse() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envIssuerAddress := cfg.CredentialIssuerAddress
	envTransferAddress := cfg.TransferSystemAddress
	envAuthSecret := cfg.AuthSecret
	envMinContribution := cfg.MinContribution
	envCredentialUnit := cfg.CredentialUnit
	envCampaignDuration := cfg.CampaignDuration

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.CredentialIssuerAddress, "i", "", "credential issuer address")
	flag.StringVar(&cfg.TransferSystemAddress, "t", "", "transfer system address")
	flag.StringVar(&cfg.AuthSecret, "s", "", "secret key for identity cookies")
	flag.Int64Var(&cfg.MinContribution, "m", 1, "minimum contribution amount")
	flag.Int64Var(&cfg.CredentialUnit, "u", 100, "contribution units per credential")
	flag.DurationVar(&cfg.CampaignDuration, "l", 720*time.Hour, "campaign lifetime from creation to deadline")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envIssuerAddress != "" {
		cfg.CredentialIssuerAddress = envIssuerAddress
	}
	if envTransferAddress != "" {
		cfg.TransferSystemAddress = envTransferAddress
	}
	if envAuthSecret != "" {
		cfg.AuthSecret = envAuthSecret
	}
	if envMinContribution != 0 {
		cfg.MinContribution = envMinContribution
	}
	if envCredentialUnit != 0 {
		cfg.CredentialUnit = envCredentialUnit
	}
	if envCampaignDuration != 0 {
		cfg.CampaignDuration = envCampaignDuration
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}

	return cfg, nil
}
