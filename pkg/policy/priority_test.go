package policy

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/anggasct/junction/pkg/core"
)

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name   string
		length int
		before bool
		want   bool
	}{
		{"inactive below on", 10, false, false},
		{"inactive above on", 11, false, true},
		{"active inside band", 7, true, true},
		{"active at off", 5, true, true},
		{"active below off", 4, true, false},
		{"inactive inside band", 7, false, false},
		{"active far above", 40, true, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Evaluate(tc.length, tc.before))
		})
	}
}

// Once true, the flag stays true until the length drops strictly below Off.
func TestEvaluate_HysteresisLaw(t *testing.T) {
	th := DefaultThresholds()
	rng := rand.New(rand.NewSource(11))

	for run := 0; run < 100; run++ {
		active := false
		for step := 0; step < 200; step++ {
			length := rng.Intn(20)
			next := th.Evaluate(length, active)

			if active && length >= th.Off {
				assert.True(t, next, "flag cleared at length %d", length)
			}
			if !active && length <= th.On {
				assert.False(t, next, "flag set at length %d", length)
			}
			active = next
		}
	}
}

func TestThresholds_Validate(t *testing.T) {
	assert.NoError(t, DefaultThresholds().Validate())
	assert.NoError(t, Thresholds{On: 5, Off: 5}.Validate())

	err := Thresholds{On: 3, Off: 8}.Validate()
	assert.True(t, core.IsConfigurationError(err))

	err = Thresholds{On: -1, Off: -2}.Validate()
	assert.True(t, core.IsConfigurationError(err))
}
