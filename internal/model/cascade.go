package model

import (
	"fmt"
	"strings"
)

// CascadeMode controls how far an edit propagates along a recurrence chain.
type CascadeMode int

const (
	// CascadeSingle edits only the addressed row.
	CascadeSingle CascadeMode = iota
	// CascadeFuture also edits the template and instances from the row's month on.
	CascadeFuture
	// CascadeAll edits the template and every instance of the chain.
	CascadeAll
)

// String returns the wire name of the mode.
func (m CascadeMode) String() string {
	switch m {
	case CascadeSingle:
		return "single"
	case CascadeFuture:
		return "future"
	case CascadeAll:
		return "all"
	default:
		return fmt.Sprintf("CascadeMode(%d)", int(m))
	}
}

// ParseCascadeMode converts a wire name into a CascadeMode. Empty means single.
func ParseCascadeMode(s string) (CascadeMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "single":
		return CascadeSingle, nil
	case "future":
		return CascadeFuture, nil
	case "all":
		return CascadeAll, nil
	default:
		return CascadeSingle, fmt.Errorf("unknown cascade mode %q (expected single, future or all)", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m CascadeMode) MarshalText() ([]byte, error) {
	if m < CascadeSingle || m > CascadeAll {
		return nil, fmt.Errorf("invalid cascade mode %d", int(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *CascadeMode) UnmarshalText(text []byte) error {
	parsed, err := ParseCascadeMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
