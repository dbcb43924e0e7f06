package method

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ConfigurationError reports an invalid parameter value or a run that
// cannot be started. It is always detected before any instrument I/O.
type ConfigurationError struct {
	Param  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Param == "" {
		return "configuration error: " + e.Reason
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Param, e.Reason)
}

// Parameter declares a single numeric method parameter.
type Parameter struct {
	Name    string  `json:"name"`
	Label   string  `json:"label"`
	Default float64 `json:"default"`

	// Integer rejects values with a fractional part.
	Integer bool `json:"integer,omitempty"`
	// Positive rejects zero and negative values.
	Positive bool `json:"positive,omitempty"`

	// Min and Max bound accepted values; a nil bound is open.
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}

func bound(v float64) *float64 { return &v }

func (p Parameter) check(v float64) error {
	switch {
	case math.IsNaN(v) || math.IsInf(v, 0):
		return &ConfigurationError{Param: p.Name, Reason: "not a finite number"}
	case p.Integer && v != math.Trunc(v):
		return &ConfigurationError{Param: p.Name, Reason: fmt.Sprintf("%g is not an integer", v)}
	case p.Positive && v <= 0:
		return &ConfigurationError{Param: p.Name, Reason: fmt.Sprintf("%g must be greater than 0", v)}
	case p.Min != nil && v < *p.Min:
		return &ConfigurationError{Param: p.Name, Reason: fmt.Sprintf("%g is below the minimum %g", v, *p.Min)}
	case p.Max != nil && v > *p.Max:
		return &ConfigurationError{Param: p.Name, Reason: fmt.Sprintf("%g is above the maximum %g", v, *p.Max)}
	}
	return nil
}

// ParameterSpec is the ordered list of parameters a method accepts.
type ParameterSpec []Parameter

// Lookup finds a parameter by name.
func (s ParameterSpec) Lookup(name string) (Parameter, bool) {
	for _, p := range s {
		if p.Name == name {
			return p, true
		}
	}
	return Parameter{}, false
}

// Defaults returns the default value of every parameter.
func (s ParameterSpec) Defaults() Params {
	p := make(Params, len(s))
	for _, param := range s {
		p[param.Name] = param.Default
	}
	return p
}

// Bind converts raw values to a complete, validated Params. Values may be
// float64, float32, int, int64, json.Number or a numeric string; names not
// present take their default.
func (s ParameterSpec) Bind(values map[string]any) (Params, error) {
	for name := range values {
		if _, ok := s.Lookup(name); !ok {
			return nil, &ConfigurationError{Param: name, Reason: "unknown parameter"}
		}
	}

	p := make(Params, len(s))
	for _, param := range s {
		v := param.Default
		if raw, ok := values[param.Name]; ok {
			var err error
			v, err = toFloat(raw)
			if err != nil {
				return nil, &ConfigurationError{Param: param.Name, Reason: err.Error()}
			}
		}
		if err := param.check(v); err != nil {
			return nil, err
		}
		p[param.Name] = v
	}
	return p, nil
}

func toFloat(raw any) (float64, error) {
	switch v := raw.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, fmt.Errorf("%q is not a number", v.String())
		}
		return f, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("%q is not a number", v)
		}
		return f, nil
	}
	return 0, fmt.Errorf("unsupported value type %T", raw)
}

// Params maps parameter names to bound values.
type Params map[string]float64

// Clone returns a copy of p.
func (p Params) Clone() Params {
	if p == nil {
		return nil
	}
	c := make(Params, len(p))
	for k, v := range p {
		c[k] = v
	}
	return c
}
