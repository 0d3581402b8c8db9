// Package daemon wires configuration, the capture journal, the Blinko client
// and the Telegram bot into a single long-running command.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ikofan/blinkobot/internal/blinko"
	"github.com/ikofan/blinkobot/internal/bot"
	"github.com/ikofan/blinkobot/internal/config"
	"github.com/ikofan/blinkobot/internal/journal"
)

// App represents the application.
type App struct {
	cmd    *cobra.Command
	viper  *viper.Viper
	config appConfig

	configPath string
}

type appConfig struct {
	Verbosity     int `mapstructure:"verbose"`
	config.Config `mapstructure:",squash"`
}

// New creates a new App instance with default values.
func New() (*App, error) {
	a := App{}

	a.cmd = &cobra.Command{
		Use:   "blinkobot",
		Short: "Telegram to Blinko capture bot",
		Long: `blinkobot runs a Telegram bot restricted to a single authorized chat and
saves everything sent to it into a Blinko instance: text messages become notes,
media messages (including albums) become notes with attachments.`,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Command parsing has been successful. Returns to not print usage anymore.
			a.cmd.SilenceUsage = true
			if err := a.initViperConfig(); err != nil {
				return err
			}
			if err := a.viper.Unmarshal(&a.config); err != nil {
				return fmt.Errorf("unable to decode configuration into struct: %w", err)
			}
			setVerbosity(a.config.Verbosity)
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run()
		},
	}
	a.viper = viper.New()
	a.cmd.CompletionOptions.HiddenDefaultCmd = true

	installFlags(&a)
	if err := a.viper.BindPFlags(a.cmd.Flags()); err != nil {
		return nil, err
	}
	if err := config.BindEnv(a.viper); err != nil {
		return nil, err
	}

	return &a, nil
}

func installFlags(a *App) {
	cmd := a.cmd
	def := config.Defaults()

	cmd.PersistentFlags().CountP("verbose", "v", "issue INFO (-v), DEBUG (-vv)")
	cmd.PersistentFlags().StringVar(&a.configPath, "config", "", "path to the configuration file")

	cmd.Flags().String("db-path", def.DBPath, "path to the capture journal database")
	cmd.Flags().Duration("album-delay", def.AlbumDelay, "how long to collect media group parts before saving")
	cmd.Flags().Duration("poll-timeout", def.PollTimeout, "Telegram long-polling timeout")
	cmd.Flags().Duration("retry-interval", def.RetryInterval, "how often to replay failed text captures")

	if err := cmd.MarkFlagFilename("db-path"); err != nil {
		// This should never happen.
		panic(fmt.Sprintf("failed to mark db-path flag as filename: %v", err))
	}
}

func (a *App) initViperConfig() error {
	// Persistent flags are bound late so -v on subcommands is picked up.
	if err := a.viper.BindPFlags(a.cmd.PersistentFlags()); err != nil {
		return err
	}

	if a.configPath != "" {
		a.viper.SetConfigFile(a.configPath)
	} else {
		a.viper.SetConfigName("blinkobot")
		a.viper.AddConfigPath(".")
	}

	if err := a.viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("could not read config file: %w", err)
		}
	}
	return nil
}

// Run executes the command and associated process, returning an error if any.
func (a *App) Run() error {
	return a.cmd.Execute()
}

func (a *App) run() error {
	cfg := a.config.Config
	if err := cfg.Validate(); err != nil {
		return err
	}

	db, err := journal.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.Init(); err != nil {
		return err
	}

	store := blinko.New(cfg.BlinkoURL, cfg.BlinkoKey)

	b, err := bot.New(bot.Config{
		Token:       cfg.Token,
		ChatID:      cfg.ChatID,
		PollTimeout: cfg.PollTimeout,
		AlbumDelay:  cfg.AlbumDelay,
	}, store, db)
	if err != nil {
		return fmt.Errorf("bot init failed: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		ticker := time.NewTicker(cfg.RetryInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				b.RetryFailed(ctx)
			}
		}
	}()

	go func() {
		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
		select {
		case sig := <-sigs:
			slog.Info("shutting down", "signal", sig.String())
			cancel()
			b.Stop()
		case <-ctx.Done():
		}
	}()

	b.Start()
	return nil
}

// setVerbosity maps the -v count to slog levels on the default logger.
func setVerbosity(level int) {
	switch level {
	case 0:
		slog.SetLogLoggerLevel(slog.LevelWarn)
	case 1:
		slog.SetLogLoggerLevel(slog.LevelInfo)
	default:
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}
}
