package clipboard

import (
	"errors"
	"strings"
	"sync"

	"golang.design/x/clipboard"
)

var ErrEmptyText = errors.New("refusing to copy empty text")

var (
	writeMu sync.Mutex
)

func Init() error {
	return clipboard.Init()
}

// Write performs a mutex-guarded clipboard write to prevent corruption under parallel writes.
func Write(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyText
	}
	writeMu.Lock()
	defer writeMu.Unlock()
	clipboard.Write(clipboard.FmtText, []byte(text))
	return nil
}
