package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/flagx"
	"github.com/dmitrijs2005/authkeeper/internal/timex"
)

// JsonConfig defines a configuration structure tailored for JSON unmarshalling.
// It uses timex.Duration for interval fields, which allows parsing both
// string values such as "15m" and integer nanoseconds.
//
// This struct is an intermediate DTO used only for reading JSON configuration
// files. Fields left out of the file keep their current value.
type JsonConfig struct {
	HTTPAddr                           string         `json:"http_addr"`
	GRPCAddr                           string         `json:"grpc_addr"`
	DatabaseDSN                        string         `json:"database_dsn"`
	SecretKey                          string         `json:"secret_key"`
	AccessTokenValidityDuration        timex.Duration `json:"access_token_validity_duration"`
	RefreshTokenValidityDuration       timex.Duration `json:"refresh_token_validity_duration"`
	ResetPasswordTokenValidityDuration timex.Duration `json:"reset_password_token_validity_duration"`
	VerifyEmailTokenValidityDuration   timex.Duration `json:"verify_email_token_validity_duration"`
	RedisAddr                          string         `json:"redis_addr"`
	RedisPassword                      string         `json:"redis_password"`
	CacheTTL                           timex.Duration `json:"cache_ttl"`
	PasswordHasher                     string         `json:"password_hasher"`
	BcryptCost                         int            `json:"bcrypt_cost"`
	AppBaseURL                         string         `json:"app_base_url"`
	MailOutbox                         string         `json:"mail_outbox"`
	AuthRateLimit                      int            `json:"auth_rate_limit"`
	AuthRateWindow                     timex.Duration `json:"auth_rate_window"`
}

// parseJson loads configuration values from the JSON file named by the -c or
// -config flag in args. Without the flag nothing is loaded. An unreadable
// file or invalid JSON panics.
func parseJson(config *Config, args []string) {
	jsonConfigFile := flagx.ConfigPath(args)

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	setString(&config.HTTPAddr, c.HTTPAddr)
	setString(&config.GRPCAddr, c.GRPCAddr)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setDuration(&config.AccessTokenValidityDuration, c.AccessTokenValidityDuration)
	setDuration(&config.RefreshTokenValidityDuration, c.RefreshTokenValidityDuration)
	setDuration(&config.ResetPasswordTokenValidityDuration, c.ResetPasswordTokenValidityDuration)
	setDuration(&config.VerifyEmailTokenValidityDuration, c.VerifyEmailTokenValidityDuration)
	setString(&config.RedisAddr, c.RedisAddr)
	setString(&config.RedisPassword, c.RedisPassword)
	setDuration(&config.CacheTTL, c.CacheTTL)
	setString(&config.PasswordHasher, c.PasswordHasher)
	if c.BcryptCost != 0 {
		config.BcryptCost = c.BcryptCost
	}
	setString(&config.AppBaseURL, c.AppBaseURL)
	setString(&config.MailOutbox, c.MailOutbox)
	if c.AuthRateLimit != 0 {
		config.AuthRateLimit = c.AuthRateLimit
	}
	setDuration(&config.AuthRateWindow, c.AuthRateWindow)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v timex.Duration) {
	if v.Duration != 0 {
		*dst = v.Duration
	}
}
