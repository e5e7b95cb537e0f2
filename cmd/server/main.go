package main

import (
	"log/slog"
	"os"

	"github.com/FACorreiaa/smart-import/cmd/api"
)

func main() {
	if err := api.Run(); err != nil {
		slog.Error("server exited", slog.Any("error", err))
		os.Exit(1)
	}
}
