// Package config loads and validates the bot configuration.
//
// The four settings the bot cannot run without keep their historical
// environment names (TELEGRAM_BOT_TOKEN, AUTHORIZED_CHAT_ID, BLINKO_API_URL,
// BLINKO_API_KEY) so existing deployments keep working. Everything else is
// tunable through flags or an optional config file via viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"github.com/ubuntu/decorate"
)

// Config holds everything the daemon needs to run.
type Config struct {
	Token     string `mapstructure:"token"`
	ChatID    int64  `mapstructure:"chat-id"`
	BlinkoURL string `mapstructure:"blinko-url"`
	BlinkoKey string `mapstructure:"blinko-key"`

	DBPath        string        `mapstructure:"db-path"`
	AlbumDelay    time.Duration `mapstructure:"album-delay"`
	PollTimeout   time.Duration `mapstructure:"poll-timeout"`
	RetryInterval time.Duration `mapstructure:"retry-interval"`
}

// Defaults returns the configuration used when nothing is overridden.
func Defaults() Config {
	return Config{
		DBPath:        "./blinkobot.db",
		AlbumDelay:    1500 * time.Millisecond,
		PollTimeout:   10 * time.Second,
		RetryInterval: 5 * time.Minute,
	}
}

// BindEnv wires the historical environment variable names into viper.
// A .env file in the working directory is loaded first, if present.
func BindEnv(v *viper.Viper) (err error) {
	defer decorate.OnError(&err, "could not bind environment")

	// Missing .env is fine, the variables may come from the real environment.
	_ = godotenv.Load()

	for key, env := range map[string]string{
		"token":      "TELEGRAM_BOT_TOKEN",
		"chat-id":    "AUTHORIZED_CHAT_ID",
		"blinko-url": "BLINKO_API_URL",
		"blinko-key": "BLINKO_API_KEY",
	} {
		if err := v.BindEnv(key, env); err != nil {
			return err
		}
	}
	return nil
}

// Validate reports every missing mandatory setting at once.
func (c Config) Validate() error {
	var missing []string
	if c.Token == "" {
		missing = append(missing, "TELEGRAM_BOT_TOKEN")
	}
	if c.ChatID == 0 {
		missing = append(missing, "AUTHORIZED_CHAT_ID")
	}
	if c.BlinkoURL == "" {
		missing = append(missing, "BLINKO_API_URL")
	}
	if c.BlinkoKey == "" {
		missing = append(missing, "BLINKO_API_KEY")
	}
	if len(missing) > 0 {
		return fmt.Errorf("incomplete configuration, missing: %s", strings.Join(missing, ", "))
	}
	return nil
}
