package backlight_test

import (
	"errors"
	"testing"

	"github.com/shini4i/ambient-brightness-daemon/internal/backlight"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBrightnessctl_Read(t *testing.T) {
	tests := []struct {
		name     string
		output   string
		expected int
		wantErr  bool
	}{
		{name: "machine readable", output: "intel_backlight,backlight,9600,50%,19200\n", expected: 50},
		{name: "multiple lines", output: "intel_backlight,backlight,19200,100%,19200\nother,leds,0,0%,1\n", expected: 100},
		{name: "too few fields", output: "intel_backlight,backlight\n", wantErr: true},
		{name: "not a number", output: "a,b,c,d%,e\n", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			b, err := backlight.NewBrightnessctl(backlight.WithRunner(func(args ...string) ([]byte, error) {
				got = args
				return []byte(tt.output), nil
			}))
			require.NoError(t, err)

			percent, err := b.Read()
			assert.Equal(t, []string{"-m"}, got)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, percent)
		})
	}
}

func TestBrightnessctl_Apply(t *testing.T) {
	var got []string
	b, err := backlight.NewBrightnessctl(
		backlight.WithDeviceName("intel_backlight"),
		backlight.WithRunner(func(args ...string) ([]byte, error) {
			got = args
			return nil, nil
		}),
	)
	require.NoError(t, err)

	require.NoError(t, b.Apply(42))
	assert.Equal(t, []string{"--device=intel_backlight", "set", "42%"}, got)
}

func TestBrightnessctl_RunError(t *testing.T) {
	b, err := backlight.NewBrightnessctl(backlight.WithRunner(func(...string) ([]byte, error) {
		return nil, errors.New("exit status 1")
	}))
	require.NoError(t, err)

	assert.ErrorContains(t, b.Apply(10), "brightnessctl set 10%")
}
