package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Secrets are read from the environment only, never from capline.yml.
type Secrets struct {
	ReceiptSecret string `env:"CAPLINE_RECEIPT_SECRET"`
	PostgresDSN   string `env:"CAPLINE_POSTGRES_DSN"`
}

// LoadSecrets parses Secrets from the environment.
func LoadSecrets() (Secrets, error) {
	var s Secrets
	if err := env.Parse(&s); err != nil {
		return Secrets{}, fmt.Errorf("parse env: %w", err)
	}
	return s, nil
}
