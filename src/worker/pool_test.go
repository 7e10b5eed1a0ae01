package worker

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"gpix/src/session"
)

func TestSubmitBackPressure(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 4)
	p := New(1, func(ctx context.Context, crop session.Crop) (string, error) {
		started <- struct{}{}
		<-release
		return "done", nil
	})

	results := make(chan string, 4)
	cb := func(text string, err error) { results <- text }

	if !p.Submit(context.Background(), session.Crop{Width: 1, Height: 1}, cb) {
		t.Fatal("first submit should be accepted")
	}
	<-started // worker busy, queue empty
	if !p.Submit(context.Background(), session.Crop{Width: 1, Height: 1}, cb) {
		t.Fatal("second submit should fill the queue slot")
	}
	if p.Submit(context.Background(), session.Crop{Width: 1, Height: 1}, cb) {
		t.Fatal("third submit should be dropped")
	}

	close(release)
	for i := 0; i < 2; i++ {
		select {
		case text := <-results:
			if text != "done" {
				t.Errorf("text = %q", text)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for result")
		}
	}
	p.Close()
	p.Close()
}

func TestPanicReportedAsError(t *testing.T) {
	p := New(1, func(ctx context.Context, crop session.Crop) (string, error) {
		panic(errors.New("boom"))
	})
	defer p.Close()

	errCh := make(chan error, 1)
	p.Submit(context.Background(), session.Crop{}, func(text string, err error) { errCh <- err })
	select {
	case err := <-errCh:
		if err == nil || !strings.Contains(err.Error(), "boom") {
			t.Errorf("err = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("callback not invoked")
	}
}
