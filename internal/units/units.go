// Package units renders widget values for display.
package units

import (
	"math"
	"strings"

	"github.com/dustin/go-humanize"
)

// Kind selects how a value is rendered
type Kind string

const (
	Numeric      Kind = "numeric"
	DecimalBytes Kind = "decimalBytes"
	BinaryBytes  Kind = "binaryBytes"
	Percent      Kind = "percent"
)

// None is shown for a missing value, such as an unset limit
const None = "None"

// ParseKind returns the kind for name, falling back to Numeric
func ParseKind(name string) Kind {
	switch Kind(name) {
	case DecimalBytes, BinaryBytes, Percent:
		return Kind(name)
	default:
		return Numeric
	}
}

// Humanize formats value according to kind. NaN and infinities render as "-".
func Humanize(value float64, kind Kind) string {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return "-"
	}

	switch kind {
	case DecimalBytes:
		return withSign(value, func(v float64) string { return humanize.Bytes(uint64(math.Round(v))) })
	case BinaryBytes:
		return withSign(value, func(v float64) string { return humanize.IBytes(uint64(math.Round(v))) })
	case Percent:
		return humanize.FtoaWithDigits(value*100, 1) + "%"
	default:
		return strings.TrimSpace(humanize.SIWithDigits(value, 2, ""))
	}
}

// HumanizePtr formats an optional value, returning None when it is nil
func HumanizePtr(value *float64, kind Kind) string {
	if value == nil {
		return None
	}
	return Humanize(*value, kind)
}

// byte formatters only take unsigned input
func withSign(value float64, format func(float64) string) string {
	if value < 0 {
		return "-" + format(-value)
	}
	return format(value)
}
