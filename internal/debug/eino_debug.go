// Package debug starts the eino visual debugger for the crew graphs.
package debug

import (
	"context"
	"fmt"
	"strconv"

	"github.com/cloudwego/eino-ext/devops"
	"github.com/phuslu/log"

	"github.com/dyike/CortexVN/config"
)

const defaultDevServerPort = 52538

type EinoDebugger struct {
	config *config.Config
}

func NewEinoDebugger(cfg *config.Config) *EinoDebugger {
	return &EinoDebugger{config: cfg}
}

// Initialize registers the devops plugin. It is a no-op unless EINO_DEBUG_ENABLED is set.
func (d *EinoDebugger) Initialize(ctx context.Context) error {
	if !d.IsEnabled() {
		return nil
	}

	log.Debug().Int("port", d.port()).Msg("initializing eino debug plugin")
	if err := devops.Init(ctx, devops.WithDevServerPort(strconv.Itoa(d.port()))); err != nil {
		return fmt.Errorf("failed to initialize Eino debug plugin: %w", err)
	}
	log.Info().Str("url", d.GetDebugURL()).Msg("eino debug server ready")
	return nil
}

func (d *EinoDebugger) IsEnabled() bool {
	return d.config != nil && d.config.EinoDebugEnabled
}

func (d *EinoDebugger) GetDebugURL() string {
	if !d.IsEnabled() {
		return ""
	}
	return fmt.Sprintf("http://localhost:%d", d.port())
}

func (d *EinoDebugger) port() int {
	if d.config == nil || d.config.EinoDebugPort <= 0 {
		return defaultDevServerPort
	}
	return d.config.EinoDebugPort
}
