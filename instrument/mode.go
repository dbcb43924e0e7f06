package instrument

import "fmt"

// ControlMode selects which quantity the instrument controls.
type ControlMode int

const (
	// Potentiostat controls voltage and measures current.
	Potentiostat ControlMode = iota
	// Galvanostat controls current and measures voltage.
	Galvanostat
)

func (m ControlMode) String() string {
	switch m {
	case Potentiostat:
		return "potentiostat"
	case Galvanostat:
		return "galvanostat"
	}
	return fmt.Sprintf("ControlMode(%d)", int(m))
}

// ParseControlMode parses the String form of a mode.
func ParseControlMode(s string) (ControlMode, error) {
	switch s {
	case "potentiostat":
		return Potentiostat, nil
	case "galvanostat":
		return Galvanostat, nil
	}
	return 0, fmt.Errorf("unknown control mode %q", s)
}

func (m ControlMode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m *ControlMode) UnmarshalText(data []byte) (err error) {
	*m, err = ParseControlMode(string(data))
	return err
}

// command is the MODE argument that selects m.
func (m ControlMode) command() string {
	if m == Galvanostat {
		return "MODE 1"
	}
	return "MODE 2"
}
