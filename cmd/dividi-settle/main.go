package main

import (
	"flag"
	"os"

	"dividi/internal/cli"
	applog "dividi/internal/log"
)

func main() {
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), applog.ComponentCLI)

	cfg, err := cli.ParseSettleConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		logger.Error("Failed to parse flags", applog.FieldError, err)
		os.Exit(2)
	}
	if err := cli.RunSettle(cfg, os.Stdin, os.Stdout); err != nil {
		logger.Error("Settlement report failed", applog.FieldError, err, "path", cfg.Path)
		os.Exit(1)
	}
}
