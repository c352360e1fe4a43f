package units

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHumanize(t *testing.T) {
	tests := []struct {
		name  string
		value float64
		kind  Kind
		want  string
	}{
		{"plain number", 20, Numeric, "20"},
		{"kilo", 1500, Numeric, "1.5 k"},
		{"milli", 0.0025, Numeric, "2.5 m"},
		{"zero", 0, Numeric, "0"},
		{"decimal bytes", 1500, DecimalBytes, "1.5 kB"},
		{"small bytes", 512, DecimalBytes, "512 B"},
		{"binary bytes", 1024, BinaryBytes, "1.0 KiB"},
		{"negative bytes", -1500, DecimalBytes, "-1.5 kB"},
		{"percent", 0.125, Percent, "12.5%"},
		{"whole percent", 0.5, Percent, "50%"},
		{"nan", math.NaN(), Numeric, "-"},
		{"inf", math.Inf(1), DecimalBytes, "-"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Humanize(tt.value, tt.kind))
		})
	}
}

func TestParseKind(t *testing.T) {
	assert.Equal(t, DecimalBytes, ParseKind("decimalBytes"))
	assert.Equal(t, BinaryBytes, ParseKind("binaryBytes"))
	assert.Equal(t, Percent, ParseKind("percent"))
	assert.Equal(t, Numeric, ParseKind(""))
	assert.Equal(t, Numeric, ParseKind("furlongs"))
}

func TestHumanizePtr(t *testing.T) {
	assert.Equal(t, None, HumanizePtr(nil, Numeric))

	limit := 2048.0
	assert.Equal(t, "2.0 KiB", HumanizePtr(&limit, BinaryBytes))
}
