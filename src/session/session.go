// Package session runs the processing half of a capture: a cropped region is
// encoded, recognized and delivered to a result target.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"gpix/src/clipboard"
	"gpix/src/imageenc"
	"gpix/src/llm"
)

// DefaultDeadline bounds a single recognition.
const DefaultDeadline = 20 * time.Second

// Crop is the extracted selection: tightly packed RGBA, stride Width*4.
type Crop struct {
	Pixels []byte
	Width  int
	Height int
}

type RecognizeFunc func(ctx context.Context, pngBase64 string) (string, error)

type ResultTarget interface {
	OnSuccess(text string) error
	OnFailure(err error) error
}

type Options struct {
	Deadline  time.Duration
	Recognize RecognizeFunc
	Target    ResultTarget
}

type Result struct {
	Text    string
	Elapsed time.Duration
}

// Execute encodes crop, recognizes it within the deadline and hands the text
// to the target. Every failure is reported to the target and returned.
func Execute(ctx context.Context, crop Crop, opts Options) (Result, error) {
	if opts.Target == nil {
		return Result{}, errors.New("Target is required")
	}
	start := time.Now()

	deadline := opts.Deadline
	if deadline <= 0 {
		deadline = DefaultDeadline
	}
	recognize := opts.Recognize
	if recognize == nil {
		recognize = llm.QueryVision
	}

	fail := func(err error) (Result, error) {
		log.Printf("session: failed after %s: %v", time.Since(start).Round(time.Millisecond), err)
		_ = opts.Target.OnFailure(err)
		return Result{}, err
	}

	encoded, err := imageenc.EncodePNGBase64(crop.Pixels, crop.Width, crop.Height)
	if err != nil {
		return fail(fmt.Errorf("encode crop: %w", err))
	}

	jobCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	text, err := recognizeWithContext(jobCtx, recognize, encoded)
	if err != nil {
		return fail(err)
	}

	if err := opts.Target.OnSuccess(text); err != nil {
		return fail(fmt.Errorf("deliver result: %w", err))
	}

	elapsed := time.Since(start)
	log.Printf("session: recognized %dx%d region in %s (%d chars)", crop.Width, crop.Height, elapsed.Round(time.Millisecond), len(text))
	return Result{Text: text, Elapsed: elapsed}, nil
}

// recognizeWithContext returns as soon as ctx is done even if recognize
// ignores it; the abandoned call finishes in the background.
func recognizeWithContext(ctx context.Context, recognize RecognizeFunc, encoded string) (string, error) {
	resCh := make(chan struct {
		text string
		err  error
	}, 1)

	go func() {
		text, err := recognize(ctx, encoded)
		resCh <- struct {
			text string
			err  error
		}{text: text, err: err}
	}()

	select {
	case r := <-resCh:
		return r.text, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

type ClipboardTarget struct{}

func (ClipboardTarget) OnSuccess(text string) error {
	return clipboard.Write(text)
}

func (ClipboardTarget) OnFailure(err error) error {
	return nil
}

type StdoutTarget struct {
	Writer io.Writer
}

func (t StdoutTarget) OnSuccess(text string) error {
	w := t.Writer
	if w == nil {
		w = os.Stdout
	}
	_, err := fmt.Fprint(w, text)
	return err
}

func (t StdoutTarget) OnFailure(err error) error {
	return nil
}
