// Package common holds enums shared between the reader core and program
// configuration, so neither has to import the other.
package common

import (
	"fmt"
	"strings"
)

// Mode specifies how raw navigation intents (arrow keys, next/prev) are
// interpreted: continuous scrolling or discrete virtual pages.
type Mode int

const (
	ModeScroll Mode = iota
	ModePage
)

var modeNames = [...]string{"scroll", "page"}

func (m Mode) IsValid() bool {
	return m >= ModeScroll && m <= ModePage
}

func (m Mode) String() string {
	if !m.IsValid() {
		return fmt.Sprintf("Mode(%d)", int(m))
	}
	return modeNames[m]
}

// ModeNames returns names of all valid modes in declaration order.
func ModeNames() []string {
	return append([]string{}, modeNames[:]...)
}

// ParseMode converts mode name to its value, case-insensitive.
func ParseMode(name string) (Mode, error) {
	for i, n := range modeNames {
		if strings.EqualFold(n, name) {
			return Mode(i), nil
		}
	}
	return Mode(0), fmt.Errorf("%q is not a valid mode, try [%s]", name, strings.Join(modeNames[:], ", "))
}

// MustParseMode is like ParseMode but panics on error. Only for use with
// built-in defaults.
func MustParseMode(name string) Mode {
	m, err := ParseMode(name)
	if err != nil {
		panic(err)
	}
	return m
}

func (m Mode) MarshalText() ([]byte, error) {
	if !m.IsValid() {
		return nil, fmt.Errorf("invalid mode value %d", int(m))
	}
	return []byte(m.String()), nil
}

func (m *Mode) UnmarshalText(text []byte) error {
	v, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = v
	return nil
}
