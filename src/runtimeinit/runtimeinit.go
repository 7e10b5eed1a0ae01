// Package runtimeinit holds the startup sequence shared by the resident app
// and the CLI.
package runtimeinit

import (
	"context"
	"fmt"
	"log"
	"time"

	"gpix/src/clipboard"
	"gpix/src/config"
	"gpix/src/llm"
	"gpix/src/logutil"
	"gpix/src/notification"
)

const pingTimeout = 10 * time.Second

type Options struct {
	LoadOptions  config.LoadOptions
	SetupLogging func(bool)
	// Ping verifies the key and model against the API before returning.
	Ping                 bool
	ShowBlockingLLMError bool
	SkipClipboard        bool
}

func Bootstrap(opts Options) (*config.Config, error) {
	cfg, err := config.LoadWithOptions(opts.LoadOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if opts.SetupLogging != nil {
		opts.SetupLogging(cfg.EnableFileLogging)
	}

	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%s is required. Checked key file %s and %s env var", config.APIKeyEnvVar, cfg.APIKeyPath, config.APIKeyEnvVar)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("MODEL is required. Please set it in your .env file")
	}
	log.Printf("config: model=%s key=%s hotkey=%s", cfg.Model, logutil.RedactKey(cfg.APIKey), cfg.Hotkey)

	llm.Init(&llm.Config{
		APIKey: cfg.APIKey,
		Model:  cfg.Model,
	})
	if opts.Ping {
		ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
		err := llm.Ping(ctx)
		cancel()
		if err != nil {
			if opts.ShowBlockingLLMError {
				notification.ShowBlockingError("Gemini unavailable", fmt.Sprintf("Startup check failed: %v\n\nPlease verify your API key and network connectivity.", err))
			}
			return nil, fmt.Errorf("startup check failed: %w", err)
		}
		log.Printf("LLM ping succeeded")
	}

	if !opts.SkipClipboard {
		if err := clipboard.Init(); err != nil {
			return nil, fmt.Errorf("failed to initialize clipboard: %w", err)
		}
	}

	return cfg, nil
}
