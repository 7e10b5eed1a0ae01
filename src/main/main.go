package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"gpix/src/config"
	"gpix/src/eventloop"
	"gpix/src/glwindow"
	"gpix/src/hotkey"
	"gpix/src/logutil"
	"gpix/src/notification"
	"gpix/src/overlay"
	"gpix/src/runtimeinit"
	"gpix/src/screenshot"
	"gpix/src/session"
	"gpix/src/tray"
	"gpix/src/worker"
)

// Exit codes for --run-once.
const (
	exitOK        = 0
	exitError     = 1
	exitCancelled = 2
)

type mainOptions struct {
	runOnce    bool
	apiKeyPath string
}

// exitCode is set by the run-once path; cobra's RunE only reports errors.
var exitCode = exitOK

func main() {
	// DPI awareness has to be set before any window is created or any
	// display metric is read.
	enableDPIAwareness()

	opts := &mainOptions{}
	cmd := newRootCmd(opts)
	cmd.SetArgs(normalizeLegacyArgs(os.Args)[1:])
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitError)
	}
	os.Exit(exitCode)
}

func newRootCmd(opts *mainOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "gpix",
		Short:         "Select a screen region and copy it as LaTeX",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.runOnce {
				exitCode = runOnce(*opts)
				return nil
			}
			return runResident(*opts)
		},
	}
	cmd.Flags().BoolVar(&opts.runOnce, "run-once", false, "Capture once, copy the result to the clipboard, and exit")
	cmd.Flags().StringVar(&opts.apiKeyPath, "api-key-path", "", "Path to API key file (highest precedence)")
	return cmd
}

// normalizeLegacyArgs accepts Go-style single-dash long flags.
func normalizeLegacyArgs(args []string) []string {
	if len(args) == 0 {
		return []string{"gpix"}
	}
	normalized := make([]string, len(args))
	copy(normalized, args)
	for i := 1; i < len(normalized); i++ {
		for _, name := range []string{"run-once", "api-key-path"} {
			arg := normalized[i]
			switch {
			case arg == "-"+name:
				normalized[i] = "--" + name
			case strings.HasPrefix(arg, "-"+name+"="):
				normalized[i] = "-" + arg
			}
		}
	}
	return normalized
}

func bootstrap(opts mainOptions) (*config.Config, error) {
	return runtimeinit.Bootstrap(runtimeinit.Options{
		LoadOptions:          config.LoadOptions{APIKeyPathOverride: opts.apiKeyPath},
		SetupLogging:         logutil.Setup,
		Ping:                 true,
		ShowBlockingLLMError: true,
	})
}

// components is everything one capture loop needs.
type components struct {
	loop *eventloop.Loop
	pool *worker.Pool
}

func buildLoop(cfg *config.Config, notifier eventloop.Notifier, onTransition func(from, to eventloop.State)) components {
	deadline := time.Duration(cfg.APIDeadlineSec) * time.Second

	capturer := screenshot.NewService(screenshot.Options{
		Displays: screenshot.KbinaniDisplays{ScaleOverride: cfg.ScaleFactor},
		Timeout:  time.Duration(cfg.CaptureTimeoutSec) * time.Second,
	})
	selector := overlay.NewManager(overlay.Options{
		Factory:   glwindow.Factory{},
		DimAmount: cfg.DimAmount,
	})
	pool := worker.New(1, func(ctx context.Context, crop session.Crop) (string, error) {
		res, err := session.Execute(ctx, crop, session.Options{
			Deadline: deadline,
			Target:   session.ClipboardTarget{},
		})
		return res.Text, err
	})

	loop := eventloop.New(eventloop.Options{
		Capturer:     capturer,
		Selector:     selector,
		Pool:         pool,
		Notifier:     notifier,
		Deadline:     deadline,
		OnTransition: onTransition,
	})
	return components{loop: loop, pool: pool}
}

func idleTooltip(cfg *config.Config) string {
	return fmt.Sprintf("gpix - Press %s to capture", cfg.Hotkey)
}

func runResident(opts mainOptions) error {
	cfg, err := bootstrap(opts)
	if err != nil {
		return err
	}
	logMonitorConfiguration()
	log.Printf("gpix initialized: model=%s hotkey=%s deadline=%ds", cfg.Model, cfg.Hotkey, cfg.APIDeadlineSec)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var loop *eventloop.Loop
	trayIcon, err := tray.New(tray.Config{
		Title:   "gpix",
		Tooltip: idleTooltip(cfg),
		OnCapture: func() {
			if loop != nil {
				loop.Hotkey()
			}
		},
		OnExit: cancel,
	})
	if err != nil {
		return fmt.Errorf("failed to create tray: %w", err)
	}
	toaster := &notification.Toaster{Tray: trayIcon, Idle: idleTooltip(cfg)}

	c := buildLoop(cfg, toaster, func(from, to eventloop.State) {
		if to == eventloop.Idle {
			toaster.SetIdle(idleTooltip(cfg))
			return
		}
		toaster.SetIdle("gpix - " + to.String())
	})
	loop = c.loop
	defer c.pool.Close()

	// The tray runs its own message loop; the main thread belongs to the overlay.
	go trayIcon.Run()
	defer trayIcon.Destroy()

	stopHotkey, err := hotkey.Listen(cfg.Hotkey, func() { loop.Hotkey() })
	if err != nil {
		return fmt.Errorf("failed to register hotkey %q: %w", cfg.Hotkey, err)
	}
	defer stopHotkey()

	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		select {
		case sig := <-ch:
			log.Printf("received %s, shutting down", sig)
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(ch)
	}()

	if err := loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Printf("gpix stopped")
	return nil
}

func runOnce(opts mainOptions) int {
	cfg, err := bootstrap(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return exitError
	}
	log.Printf("Running once with API deadline %ds", cfg.APIDeadlineSec)

	c := buildLoop(cfg, &notification.Toaster{}, nil)
	defer c.pool.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	text, err := c.loop.RunOnce(ctx)
	switch {
	case errors.Is(err, eventloop.ErrSelectionCancelled):
		log.Printf("run-once: selection cancelled")
		return exitCancelled
	case err != nil:
		fmt.Fprintf(os.Stderr, "gpix: %v\n", err)
		return exitError
	}
	log.Printf("run-once: copied %d chars: %q", len(text), sanitizeForLogging(text))
	return exitOK
}

// sanitizeForLogging bounds the text and escapes control characters so a
// recognition result cannot forge log lines.
func sanitizeForLogging(text string) string {
	const maxLogLength = 100
	if len(text) > maxLogLength {
		text = text[:maxLogLength] + "..."
	}

	var b strings.Builder
	for _, r := range text {
		switch {
		case r == '\n' || r == '\r':
			b.WriteString(`\n`)
		case r == '\t':
			b.WriteString(`\t`)
		case r < 32 || r == 127:
			b.WriteByte('?')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
