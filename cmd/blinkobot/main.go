package main

import (
	"log/slog"
	"os"

	"github.com/ikofan/blinkobot/internal/daemon"
)

func main() {
	app, err := daemon.New()
	if err != nil {
		slog.Error("can't create app", "error", err)
		os.Exit(1)
	}

	if err := app.Run(); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}
