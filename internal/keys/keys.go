// Package keys decodes G19 interrupt reports into key transitions and routes
// them to the active binding table.
package keys

import (
	"fmt"
	"strings"
)

// Key identifies one physical key. Its value is the bit index in the
// 32-bit key state word.
type Key uint8

// Display keys occupy bits 0-7, G-keys 8-19, mode keys 20-23.
const (
	Settings Key = iota
	Back
	Menu
	OK
	Right
	Left
	Down
	Up
	G1
	G2
	G3
	G4
	G5
	G6
	G7
	G8
	G9
	G10
	G11
	G12
	MR
	M3
	M2
	M1
	Light

	numKeys
)

var keyNames = [numKeys]string{
	"settings", "back", "menu", "ok", "right", "left", "down", "up",
	"g1", "g2", "g3", "g4", "g5", "g6", "g7", "g8", "g9", "g10", "g11", "g12",
	"mr", "m3", "m2", "m1", "light",
}

func (k Key) String() string {
	if k < numKeys {
		return keyNames[k]
	}
	return fmt.Sprintf("key(%d)", uint8(k))
}

// Bit returns the key's mask in the state word.
func (k Key) Bit() uint32 {
	return 1 << k
}

// Valid reports whether k is a known key.
func (k Key) Valid() bool {
	return k < numKeys
}

// IsMode reports whether k is one of the exclusive M1-M3 mode keys.
func (k Key) IsMode() bool {
	return k == M1 || k == M2 || k == M3
}

// IsG reports whether k is one of G1-G12.
func (k Key) IsG() bool {
	return k >= G1 && k <= G12
}

// LED returns the mode-LED mask lighting the key, or 0 for keys without one.
func (k Key) LED() byte {
	switch k {
	case M1:
		return 0x80
	case M2:
		return 0x40
	case M3:
		return 0x20
	case MR:
		return 0x10
	}
	return 0
}

// ParseKey returns the key with the given case-insensitive name.
func ParseKey(name string) (Key, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for i, s := range keyNames {
		if s == n {
			return Key(i), nil
		}
	}
	return 0, fmt.Errorf("unknown key %q", name)
}

// Event is one key transition.
type Event struct {
	Key     Key
	Pressed bool
}

func (e Event) String() string {
	if e.Pressed {
		return e.Key.String() + " down"
	}
	return e.Key.String() + " up"
}
