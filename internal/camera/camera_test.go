package camera

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gocv.io/x/gocv"

	"github.com/shini4i/ambient-brightness-daemon/internal/sampler"
)

func bgrFrame(t *testing.T, rows, cols int, v float64) gocv.Mat {
	t.Helper()
	m := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(v, v, v, 0), rows, cols, gocv.MatTypeCV8UC3)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestResize(t *testing.T) {
	src := bgrFrame(t, 480, 640, 200)

	tests := []struct {
		name         string
		size         sampler.Resolution
		expectedCols int
		expectedRows int
	}{
		{
			name:         "downscales to requested resolution",
			size:         sampler.Resolution{Width: 320, Height: 240},
			expectedCols: 320,
			expectedRows: 240,
		},
		{
			name:         "keeps frame when size is unset",
			size:         sampler.Resolution{},
			expectedCols: 640,
			expectedRows: 480,
		},
		{
			name:         "keeps frame when size already matches",
			size:         sampler.Resolution{Width: 640, Height: 480},
			expectedCols: 640,
			expectedRows: 480,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := resize(src, tt.size)
			defer out.Close()

			assert.Equal(t, tt.expectedCols, out.Cols())
			assert.Equal(t, tt.expectedRows, out.Rows())
			assert.Equal(t, 3, out.Channels())
		})
	}
}

func TestResize_ReturnsIndependentCopy(t *testing.T) {
	src := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(50, 50, 50, 0), 24, 32, gocv.MatTypeCV8UC3)

	out := resize(src, sampler.Resolution{})
	_ = src.Close()
	defer out.Close()

	assert.False(t, out.Empty())
	assert.Equal(t, uint8(50), out.GetUCharAt(0, 0))
}

func TestResize_PreservesUniformIntensity(t *testing.T) {
	src := bgrFrame(t, 48, 64, 120)

	out := resize(src, sampler.Resolution{Width: 32, Height: 24})
	defer out.Close()

	for _, v := range out.ToBytes() {
		assert.Equal(t, uint8(120), v)
	}
}
