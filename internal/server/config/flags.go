package config

import (
	"flag"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/flagx"
)

// FlagNames lists the command-line flags consumed by the config layer,
// including the JSON file flags. Other components sharing the command line
// drop these with flagx.ExcludeArgs.
var FlagNames = []string{
	"-c", "-config",
	"-a", "-g", "-d", "-s", "-t", "-r", "-w", "-v", "-m", "-p", "-e", "-k", "-b", "-u", "-o", "-l", "-i",
}

// parseFlags populates Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":3000")
//	-g string   gRPC bind address (e.g., ":50051")
//	-d string   PostgreSQL DSN
//	-s string   JWT HMAC secret key
//	-t int      access token validity, minutes
//	-r int      refresh token validity, minutes
//	-w int      reset password token validity, minutes
//	-v int      verify email token validity, minutes
//	-m string   Redis address; empty disables the response cache
//	-p string   Redis password
//	-e int      response cache TTL, minutes
//	-k string   password hasher: bcrypt or argon2id
//	-b int      bcrypt cost
//	-u string   public base URL for email links
//	-o string   mail outbox file; empty writes emails to stderr
//	-l int      auth requests allowed per client and window; 0 disables
//	-i int      auth rate limit window, minutes
//
// Duration flags are accepted as integers in minutes and then converted
// to time.Duration values.
func parseFlags(config *Config, args []string) {
	// Filter args to include only the flags handled here.
	args = flagx.FilterArgs(args, FlagNames[2:])

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.HTTPAddr, "a", config.HTTPAddr, "HTTP address and port to run server")
	fs.StringVar(&config.GRPCAddr, "g", config.GRPCAddr, "gRPC address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")

	access := fs.Int("t", minutes(config.AccessTokenValidityDuration), "access token validity (in minutes)")
	refresh := fs.Int("r", minutes(config.RefreshTokenValidityDuration), "refresh token validity (in minutes)")
	reset := fs.Int("w", minutes(config.ResetPasswordTokenValidityDuration), "reset password token validity (in minutes)")
	verify := fs.Int("v", minutes(config.VerifyEmailTokenValidityDuration), "verify email token validity (in minutes)")

	fs.StringVar(&config.RedisAddr, "m", config.RedisAddr, "Redis address")
	fs.StringVar(&config.RedisPassword, "p", config.RedisPassword, "Redis password")
	cacheTTL := fs.Int("e", minutes(config.CacheTTL), "response cache TTL (in minutes)")

	fs.StringVar(&config.PasswordHasher, "k", config.PasswordHasher, "password hasher (bcrypt|argon2id)")
	fs.IntVar(&config.BcryptCost, "b", config.BcryptCost, "bcrypt cost")
	fs.StringVar(&config.AppBaseURL, "u", config.AppBaseURL, "public base URL")
	fs.StringVar(&config.MailOutbox, "o", config.MailOutbox, "mail outbox file")
	fs.IntVar(&config.AuthRateLimit, "l", config.AuthRateLimit, "auth requests per client and window")
	rateWindow := fs.Int("i", minutes(config.AuthRateWindow), "auth rate limit window (in minutes)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.AccessTokenValidityDuration = time.Duration(*access) * time.Minute
	config.RefreshTokenValidityDuration = time.Duration(*refresh) * time.Minute
	config.ResetPasswordTokenValidityDuration = time.Duration(*reset) * time.Minute
	config.VerifyEmailTokenValidityDuration = time.Duration(*verify) * time.Minute
	config.CacheTTL = time.Duration(*cacheTTL) * time.Minute
	config.AuthRateWindow = time.Duration(*rateWindow) * time.Minute
}

func minutes(d time.Duration) int {
	return int(d / time.Minute)
}
