// Package hotkey registers a global key combination through gohook.
package hotkey

import (
	"fmt"
	"log"
	"strings"
	"sync"

	gohook "github.com/robotn/gohook"
)

// Listen starts a global listener for combo (e.g. "Ctrl+Shift+S") and calls
// callback each time the full combination goes down. The callback runs on the
// hook goroutine and must not block. The returned stop func ends the hook.
func Listen(combo string, callback func()) (stop func(), err error) {
	m, err := newMatcher(combo)
	if err != nil {
		return nil, err
	}
	log.Printf("hotkey: listening for %s", combo)

	evChan := gohook.Start()
	if evChan == nil {
		return nil, fmt.Errorf("hotkey: gohook.Start returned nil channel")
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer func() {
			if r := recover(); r != nil {
				log.Printf("hotkey: PANIC in hook goroutine: %v", r)
			}
		}()
		for ev := range evChan {
			if ev.Kind != gohook.KeyDown && ev.Kind != gohook.KeyUp {
				continue
			}
			if m.feed(ev.Kind == gohook.KeyDown, ev.Rawcode) {
				log.Printf("hotkey: %s activated", combo)
				if callback != nil {
					callback()
				}
			}
		}
		log.Printf("hotkey: event channel closed")
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			gohook.End()
			<-done
		})
	}, nil
}

type keyState struct {
	name     string
	rawcodes []uint16
	pressed  bool
}

// matcher tracks which keys of a combination are held.
type matcher struct {
	mu   sync.Mutex
	keys []keyState
}

func newMatcher(combo string) (*matcher, error) {
	names := parseHotkey(combo)
	m := &matcher{}
	for _, name := range names {
		rawcodes := keyNameToRawcodes(name)
		if len(rawcodes) == 0 {
			return nil, fmt.Errorf("hotkey: cannot map key %q in %q", name, combo)
		}
		m.keys = append(m.keys, keyState{name: name, rawcodes: rawcodes})
	}
	if len(m.keys) == 0 {
		return nil, fmt.Errorf("hotkey: no keys in %q", combo)
	}
	return m, nil
}

// feed records a key transition and reports whether it completed the
// combination. States reset on activation so holding the keys fires once.
func (m *matcher) feed(down bool, rawcode uint16) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.keys {
		for _, rc := range m.keys[i].rawcodes {
			if rc == rawcode {
				m.keys[i].pressed = down
				break
			}
		}
	}
	if !down {
		return false
	}
	for i := range m.keys {
		if !m.keys[i].pressed {
			return false
		}
	}
	for i := range m.keys {
		m.keys[i].pressed = false
	}
	return true
}

// parseHotkey converts a hotkey string like "Ctrl+Shift+S" to normalized key names
func parseHotkey(hotkeyConfig string) []string {
	var keys []string
	for _, part := range strings.Split(strings.ToLower(hotkeyConfig), "+") {
		part = strings.TrimSpace(part)
		switch part {
		case "":
			continue
		case "control":
			part = "ctrl"
		case "win", "cmd", "super", "meta":
			part = "cmd"
		}
		keys = append(keys, part)
	}
	return keys
}

// Windows virtual key codes; modifiers list both left and right variants.
var rawcodes = map[string][]uint16{
	"ctrl":  {162, 163}, // VK_LCONTROL, VK_RCONTROL
	"alt":   {164, 165}, // VK_LMENU, VK_RMENU
	"shift": {160, 161}, // VK_LSHIFT, VK_RSHIFT
	"cmd":   {91, 92},   // VK_LWIN, VK_RWIN

	"space":     {32},
	"enter":     {13},
	"esc":       {27},
	"tab":       {9},
	"backspace": {8},
	"delete":    {46},
	"insert":    {45},
	"home":      {36},
	"end":       {35},
	"pageup":    {33},
	"pagedown":  {34},
	"left":      {37},
	"up":        {38},
	"right":     {39},
	"down":      {40},
}

var aliases = map[string]string{
	"win":    "cmd",
	"super":  "cmd",
	"return": "enter",
	"escape": "esc",
	"del":    "delete",
	"ins":    "insert",
	"pgup":   "pageup",
	"pgdn":   "pagedown",
}

func init() {
	for c := 'a'; c <= 'z'; c++ {
		rawcodes[string(c)] = []uint16{uint16('A' + c - 'a')}
	}
	for c := '0'; c <= '9'; c++ {
		rawcodes[string(c)] = []uint16{uint16(c)}
	}
	for n := 1; n <= 24; n++ {
		rawcodes[fmt.Sprintf("f%d", n)] = []uint16{uint16(111 + n)} // VK_F1 = 112
	}
}

// keyNameToRawcodes maps a key name to its rawcodes, or nil if unknown.
func keyNameToRawcodes(keyName string) []uint16 {
	keyName = strings.ToLower(strings.TrimSpace(keyName))
	if alias, ok := aliases[keyName]; ok {
		keyName = alias
	}
	codes, ok := rawcodes[keyName]
	if !ok {
		log.Printf("hotkey: WARNING unknown key name '%s'", keyName)
		return nil
	}
	return codes
}
