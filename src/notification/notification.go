// Package notification shows short-lived status messages in the tray tooltip.
package notification

import (
	"log"
	"sync"
	"time"
)

// DefaultDuration is how long a toast stays visible.
const DefaultDuration = 2500 * time.Millisecond

const maxToastChars = 120

type Kind int

const (
	Info Kind = iota
	Success
	Error
)

func (k Kind) prefix() string {
	switch k {
	case Success:
		return "Copied: "
	case Error:
		return "Error: "
	}
	return ""
}

// TooltipSetter is the tray surface a toast is flashed on.
type TooltipSetter interface {
	UpdateTooltip(text string)
}

// Toaster flashes a message and restores the idle tooltip after Duration.
// A newer toast supersedes an older one's restore.
type Toaster struct {
	Tray     TooltipSetter
	Idle     string
	Duration time.Duration

	mu      sync.Mutex
	gen     uint64
	timer   *time.Timer
	showing bool
}

func (t *Toaster) Notify(msg string, kind Kind) {
	text := kind.prefix() + truncate(msg, maxToastChars)
	log.Printf("notify: %s", text)
	if t == nil || t.Tray == nil {
		return
	}

	d := t.Duration
	if d <= 0 {
		d = DefaultDuration
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.gen++
	gen := t.gen
	if t.timer != nil {
		t.timer.Stop()
	}
	t.Tray.UpdateTooltip(text)
	t.showing = true
	t.timer = time.AfterFunc(d, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.gen == gen {
			t.showing = false
			t.Tray.UpdateTooltip(t.Idle)
		}
	})
}

// SetIdle changes the tooltip shown between toasts. A toast on screen keeps
// its slot and restores to the new text.
func (t *Toaster) SetIdle(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Idle = text
	if t.Tray != nil && !t.showing {
		t.Tray.UpdateTooltip(text)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
