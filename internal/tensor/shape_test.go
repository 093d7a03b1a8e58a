package tensor

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcastShapes(t *testing.T) {
	tests := []struct {
		name      string
		a, b      Shape
		want      Shape
		broadcast bool
		wantErr   bool
	}{
		{"same", Shape{3, 5}, Shape{3, 5}, Shape{3, 5}, false, false},
		{"channel stats", Shape{1, 3, 1, 1}, Shape{1, 3, 8, 8}, Shape{1, 3, 8, 8}, true, false},
		{"rank extension", Shape{5}, Shape{2, 5}, Shape{2, 5}, true, false},
		{"incompatible", Shape{3, 4}, Shape{3, 5}, nil, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, broadcast, err := BroadcastShapes(tt.a, tt.b)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.broadcast, broadcast)
		})
	}
}

func TestShapeBasics(t *testing.T) {
	s := Shape{2, 3, 4}
	assert.Equal(t, 24, s.NumElements())
	assert.Equal(t, []int{12, 4, 1}, s.ComputeStrides())
	assert.Equal(t, 1, Shape{}.NumElements())
	assert.Error(t, Shape{2, 0}.Validate())

	c := s.Clone()
	c[0] = 9
	assert.Equal(t, 2, s[0])
	assert.False(t, s.Equal(c))
}

func TestRawClampAndFinite(t *testing.T) {
	r, err := RawFromSlice([]float32{-0.5, 0.25, 1.5}, Shape{3}, CPU)
	require.NoError(t, err)

	clone := r.Clone()
	r.Clamp(0, 1)
	assert.Equal(t, []float32{0, 0.25, 1}, r.Data())
	assert.Equal(t, []float32{-0.5, 0.25, 1.5}, clone.Data(), "clone must own its buffer")
	assert.True(t, r.IsFinite())

	r.Data()[1] = float32(math.Inf(1))
	assert.False(t, r.IsFinite())
}

func TestRawFromSliceRejectsSizeMismatch(t *testing.T) {
	_, err := RawFromSlice([]float32{1, 2, 3}, Shape{2, 2}, CPU)
	assert.Error(t, err)
}

func TestParseDevice(t *testing.T) {
	d, err := ParseDevice("webgpu")
	require.NoError(t, err)
	assert.Equal(t, WebGPU, d)

	d, err = ParseDevice("")
	require.NoError(t, err)
	assert.Equal(t, CPU, d)

	_, err = ParseDevice("tpu")
	assert.Error(t, err)
}
