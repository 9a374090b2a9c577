package main

import (
	"os"

	"github.com/dyike/CortexVN/config"
	"github.com/dyike/CortexVN/internal/cleanup"
	"github.com/dyike/CortexVN/internal/logging"
)

func main() {
	cfg := config.DefaultConfig()
	logging.Setup(cfg.LogLevel, cfg.Debug)

	cleanup.Run(cfg.ReportsDir, cfg.ProjectDir, os.Stdout)
}
