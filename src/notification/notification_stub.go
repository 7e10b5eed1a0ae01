//go:build !windows

package notification

import (
	"fmt"
	"log"
	"os"
)

// ShowBlockingError logs the message and echoes it to stderr on non-Windows platforms.
func ShowBlockingError(title, message string) {
	log.Printf("%s: %s", title, message)
	fmt.Fprintf(os.Stderr, "%s: %s\n", title, message)
}
