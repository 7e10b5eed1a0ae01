// Package tray owns the system tray icon and its menu.
package tray

import (
	"log"
	"sync"

	"github.com/getlantern/systray"
)

type Config struct {
	Title     string
	Tooltip   string
	OnCapture func()
	OnExit    func()
}

type Tray struct {
	cfg Config

	mu      sync.Mutex
	ready   bool
	tooltip string
}

func New(cfg Config) (*Tray, error) {
	if cfg.Title == "" {
		cfg.Title = "gpix"
	}
	return &Tray{cfg: cfg, tooltip: cfg.Tooltip}, nil
}

// Run blocks until Destroy is called or the user picks Quit.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

func (t *Tray) onReady() {
	systray.SetIcon(Icon())
	systray.SetTitle(t.cfg.Title)

	t.mu.Lock()
	t.ready = true
	systray.SetTooltip(t.tooltip)
	t.mu.Unlock()

	mCapture := systray.AddMenuItem("Capture equation", "Select a screen region to convert to LaTeX")
	systray.AddSeparator()
	mQuit := systray.AddMenuItem("Quit", "Quit gpix")

	go func() {
		for {
			select {
			case <-mCapture.ClickedCh:
				log.Printf("tray: capture requested")
				if t.cfg.OnCapture != nil {
					t.cfg.OnCapture()
				}
			case <-mQuit.ClickedCh:
				log.Printf("tray: quit requested")
				systray.Quit()
				return
			}
		}
	}()
}

func (t *Tray) onExit() {
	if t.cfg.OnExit != nil {
		t.cfg.OnExit()
	}
}

// UpdateTooltip sets the hover text. Calls before the tray is ready are
// remembered and applied on startup.
func (t *Tray) UpdateTooltip(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tooltip = text
	if t.ready {
		systray.SetTooltip(text)
	}
}

func (t *Tray) Destroy() {
	systray.Quit()
}
