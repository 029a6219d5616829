package main

import (
	"log/slog"
	"os"

	"quiz-platform/config"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const releaseVersion = "1.0.0"

func main() {
	// .env dosyası opsiyonel
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("could not load .env", "error", err)
	}

	cfg := &config.Config{}
	cobra.CheckErr(newCmd(cfg).Execute())
}
