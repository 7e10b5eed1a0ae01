package eventloop

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"gpix/src/notification"
	"gpix/src/overlay"
	"gpix/src/region"
	"gpix/src/screenshot"
	"gpix/src/session"
	"gpix/src/worker"
)

var (
	ErrSelectionCancelled = errors.New("selection cancelled")
	ErrBusy               = errors.New("busy, please retry")
)

const defaultDeadline = 20 * time.Second

// Capturer produces one frame of the primary display.
type Capturer interface {
	Capture(ctx context.Context) (*screenshot.Frame, error)
}

// Submitter hands a crop to background processing; false means it was dropped.
type Submitter interface {
	Submit(ctx context.Context, crop session.Crop, cb worker.ResultCallback) bool
}

type Notifier interface {
	Notify(msg string, kind notification.Kind)
}

type Options struct {
	Capturer Capturer
	Selector overlay.Selector
	Pool     Submitter
	Notifier Notifier
	// Deadline bounds Processing; defaults to 20s.
	Deadline     time.Duration
	OnTransition func(from, to State)
}

// Loop is the single-threaded coordinator for the capture flow. Capture,
// selection and extraction run on the goroutine that calls Run, which must be
// the locked main thread when the selector drives a native window.
type Loop struct {
	machine  *Machine
	capturer Capturer
	selector overlay.Selector
	pool     Submitter
	notifier Notifier
	deadline time.Duration

	// frame is the one captured frame alive, between capture and extraction.
	frame *screenshot.Frame

	captureCh chan struct{}
	results   chan result
}

type result struct {
	text   string
	err    error
	cancel context.CancelFunc
}

func New(opts Options) *Loop {
	deadline := opts.Deadline
	if deadline <= 0 {
		deadline = defaultDeadline
	}
	l := &Loop{
		capturer:  opts.Capturer,
		selector:  opts.Selector,
		pool:      opts.Pool,
		notifier:  opts.Notifier,
		deadline:  deadline,
		captureCh: make(chan struct{}, 1),
		results:   make(chan result, 1),
	}
	l.machine = NewMachine(func(from, to State) {
		log.Printf("loop: %s -> %s", from, to)
		if opts.OnTransition != nil {
			opts.OnTransition(from, to)
		}
	})
	return l
}

func (l *Loop) State() State { return l.machine.State() }

// Deadline returns the configured processing deadline for this loop.
func (l *Loop) Deadline() time.Duration { return l.deadline }

// Hotkey requests a capture. It is safe to call from any goroutine and is a
// no-op unless the loop is Idle.
func (l *Loop) Hotkey() bool {
	if !l.machine.BeginCapture() {
		log.Printf("loop: hotkey ignored, state %s", l.machine.State())
		return false
	}
	select {
	case l.captureCh <- struct{}{}:
	default:
	}
	return true
}

// Run processes hotkey requests and results until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.captureCh:
			if err := l.runCycle(ctx); err != nil && !errors.Is(err, ErrSelectionCancelled) {
				log.Printf("loop: cycle ended: %v", err)
			}
		case res := <-l.results:
			l.handleResult(res)
		}
	}
}

// RunOnce performs a single capture cycle and waits for its result.
func (l *Loop) RunOnce(ctx context.Context) (string, error) {
	if !l.machine.BeginCapture() {
		return "", ErrBusy
	}
	if err := l.runCycle(ctx); err != nil {
		return "", err
	}
	select {
	case res := <-l.results:
		l.handleResult(res)
		return res.text, res.err
	case <-ctx.Done():
		l.reset()
		return "", ctx.Err()
	}
}

// runCycle takes the machine from Capturing to Processing. On every early
// exit the frame is dropped and the machine returns to Idle.
func (l *Loop) runCycle(ctx context.Context) error {
	frame, err := l.capturer.Capture(ctx)
	if err != nil {
		l.fail("Capture failed", err)
		return fmt.Errorf("capture: %w", err)
	}
	l.frame = frame
	if err := l.machine.Captured(); err != nil {
		l.reset()
		return err
	}

	rect, cancelled, err := l.selector.Select(ctx, l.frame)
	if err != nil {
		l.fail("Selection failed", err)
		return fmt.Errorf("select: %w", err)
	}
	if cancelled {
		log.Printf("loop: selection cancelled")
		l.reset()
		return ErrSelectionCancelled
	}

	if err := l.machine.Selected(); err != nil {
		l.reset()
		return err
	}
	crop, err := l.extract(rect)
	if err != nil {
		l.fail("Invalid selection", err)
		return err
	}

	jobCtx, cancel := context.WithTimeout(ctx, l.deadline)
	submitted := l.pool.Submit(jobCtx, crop, func(text string, err error) {
		select {
		case l.results <- result{text: text, err: err, cancel: cancel}:
		case <-ctx.Done():
			cancel()
		}
	})
	if !submitted {
		cancel()
		l.fail("Busy", ErrBusy)
		return ErrBusy
	}
	return nil
}

// extract crops rect out of the current frame and releases the frame.
func (l *Loop) extract(rect region.Rect) (session.Crop, error) {
	pix, err := region.Extract(l.frame, rect)
	l.frame = nil
	if err != nil {
		return session.Crop{}, err
	}
	return session.Crop{Pixels: pix, Width: rect.Width, Height: rect.Height}, nil
}

func (l *Loop) handleResult(res result) {
	defer func() {
		if res.cancel != nil {
			res.cancel()
		}
		l.reset()
	}()
	if res.err != nil {
		log.Printf("loop: processing error: %v", res.err)
		l.notify(res.err.Error(), notification.Error)
		return
	}
	l.notify(res.text, notification.Success)
}

func (l *Loop) fail(what string, err error) {
	log.Printf("loop: %s: %v", what, err)
	l.notify(fmt.Sprintf("%s: %v", what, err), notification.Error)
	l.reset()
}

func (l *Loop) reset() {
	l.frame = nil
	l.machine.Reset()
}

func (l *Loop) notify(msg string, kind notification.Kind) {
	if l.notifier != nil {
		l.notifier.Notify(msg, kind)
	}
}
