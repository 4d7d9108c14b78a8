package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTrunc(t *testing.T) {
	tests := []struct {
		name   string
		value  float64
		places int32
		want   float64
	}{
		{name: "eight places", value: 0.123456789, places: 8, want: 0.12345678},
		{name: "never rounds up", value: 1.999999999, places: 8, want: 1.99999999},
		{name: "already exact", value: 0.00104546, places: 8, want: 0.00104546},
		{name: "two places", value: 0.056789, places: 2, want: 0.05},
		{name: "negative floors away from zero", value: -0.0049, places: 2, want: -0.01},
		{name: "zero", value: 0, places: 8, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Trunc(tt.value, tt.places), 1e-12)
		})
	}
}
