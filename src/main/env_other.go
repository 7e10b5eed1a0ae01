//go:build !windows

package main

import "log"

// enableDPIAwareness is a no-op: X11 and macOS capture report physical pixels
// without an opt-in.
func enableDPIAwareness() {}

func logMonitorConfiguration() {
	log.Printf("MONITOR: configuration logging is only available on Windows")
}
