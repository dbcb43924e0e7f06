package instrument

import "math"

// Limits of the SETI mantissa/exponent representation.
const (
	MinExponent = -10
	MaxExponent = -3
	MaxMantissa = 2000

	zeroExponent = -6
)

// EncodeCurrent quantizes a current in amperes to the integer mantissa and
// decade exponent accepted by SETI, so that the set current is
// mantissa·10^exponent.
//
// Values outside the representable range saturate instead of failing:
// anything of 10 mA or more encodes as ±MaxMantissa at MaxExponent, and
// below the smallest decade the exponent stays at MinExponent. Zero always
// encodes as (0, -6).
func EncodeCurrent(amps float64) (mantissa, exponent int) {
	if amps == 0 || math.IsNaN(amps) {
		return 0, zeroExponent
	}

	sign := 1
	if amps < 0 {
		sign = -1
	}
	mag := math.Abs(amps)

	exp := math.Floor(math.Log10(mag))
	if exp > MaxExponent {
		// above the largest decade the instrument is driven to full scale
		return sign * MaxMantissa, MaxExponent
	}
	exp = math.Max(MinExponent, exp)

	m := math.Round(mag / math.Pow10(int(exp)))
	if m > MaxMantissa {
		m = MaxMantissa
	}
	return sign * int(m), int(exp)
}

// DecodeCurrent is the inverse of EncodeCurrent.
func DecodeCurrent(mantissa, exponent int) float64 {
	return float64(mantissa) * math.Pow10(exponent)
}

func pow10(e float64) float64 {
	if e == math.Trunc(e) && math.Abs(e) < 400 {
		return math.Pow10(int(e))
	}
	return math.Pow(10, e)
}
