package domain

import "strings"

// PaymentConfig is the provider configuration set by an administrator.
type PaymentConfig struct {
	SecretKey        string   `json:"secret_key"`
	AllowedCountries []string `json:"allowed_countries"`
}

func (c PaymentConfig) Validate() error {
	if strings.TrimSpace(c.SecretKey) == "" {
		return ErrInvalidConfig
	}
	for _, country := range c.AllowedCountries {
		if len(country) != 2 {
			return ErrInvalidConfig
		}
	}
	return nil
}
