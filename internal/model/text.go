package model

import "fmt"

// MarshalText encodes the severity by name so JSON output and map keys
// stay readable.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a severity name.
func (s *Severity) UnmarshalText(text []byte) error {
	v, ok := ParseSeverity(string(text))
	if !ok {
		return fmt.Errorf("unknown severity %q", text)
	}
	*s = v
	return nil
}

// MarshalText encodes the change kind by name.
func (k ChangeKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes a change kind name.
func (k *ChangeKind) UnmarshalText(text []byte) error {
	v, ok := ParseChangeKind(string(text))
	if !ok {
		return fmt.Errorf("unknown change kind %q", text)
	}
	*k = v
	return nil
}

// MarshalText encodes the outcome by name.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText decodes an outcome name.
func (o *Outcome) UnmarshalText(text []byte) error {
	v, ok := ParseOutcome(string(text))
	if !ok {
		return fmt.Errorf("unknown outcome %q", text)
	}
	*o = v
	return nil
}

// MarshalText encodes the window by name.
func (w Window) MarshalText() ([]byte, error) {
	return []byte(w.String()), nil
}

// UnmarshalText decodes a window name.
func (w *Window) UnmarshalText(text []byte) error {
	v, ok := ParseWindow(string(text))
	if !ok {
		return fmt.Errorf("unknown window %q", text)
	}
	*w = v
	return nil
}
