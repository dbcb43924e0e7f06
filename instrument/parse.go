package instrument

import (
	"strconv"
	"strings"
)

// parseCurrent parses a READI reply of the form "<mantissa>,<exponent>".
func parseCurrent(data string) (float64, error) {
	parts := strings.Split(strings.TrimSpace(data), ",")
	if len(parts) != 2 {
		return 0, &ProtocolError{Command: "READI", Response: data, Reason: "want 2 comma separated values"}
	}
	m, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, &ProtocolError{Command: "READI", Response: data, Reason: "invalid mantissa"}
	}
	e, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, &ProtocolError{Command: "READI", Response: data, Reason: "invalid exponent"}
	}
	return m * pow10(e), nil
}

// parseVoltage parses a READE reply holding a single number.
func parseVoltage(data string) (float64, error) {
	data = strings.TrimSpace(data)
	if data == "" || strings.ContainsAny(data, ", ") {
		return 0, &ProtocolError{Command: "READE", Response: data, Reason: "want a single value"}
	}
	v, err := strconv.ParseFloat(data, 64)
	if err != nil {
		return 0, &ProtocolError{Command: "READE", Response: data, Reason: "invalid voltage"}
	}
	return v, nil
}

func formatVolts(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
