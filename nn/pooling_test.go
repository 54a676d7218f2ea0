package nn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cortex-ml/cortex/backend/cpu"
	"github.com/cortex-ml/cortex/tensor"
)

func TestGlobalAvgPool2D(t *testing.T) {
	backend := cpu.New()
	pool := NewGlobalAvgPool2D[*cpu.CPUBackend]()

	input, err := tensor.FromSlice([]float32{1, 2, 3, 4, 10, 20, 30, 40}, tensor.Shape{1, 2, 2, 2}, backend)
	require.NoError(t, err)

	output := pool.Forward(input)

	assert.True(t, output.Shape().Equal(tensor.Shape{1, 2, 1, 1}))
	assert.InDelta(t, 2.5, output.At(0, 0, 0, 0), 1e-5)
	assert.InDelta(t, 25.0, output.At(0, 1, 0, 0), 1e-5)
	assert.Empty(t, pool.Parameters())
}

func TestAvgPool2DWithConv_MatchesManualAverage(t *testing.T) {
	backend := cpu.New()
	pool := NewAvgPool2DWithConv([2]int{3, 1}, [2]int{1, 1}, [2]int{1, 1}, backend)

	input, err := tensor.FromSlice([]float32{1, 2, 3, 4, 5}, tensor.Shape{1, 1, 5, 1}, backend)
	require.NoError(t, err)

	output := pool.Forward(input)

	assert.True(t, output.Shape().Equal(tensor.Shape{1, 1, 3, 1}))
	want := []float32{2, 3, 4}
	for i, v := range output.Data() {
		assert.InDelta(t, want[i], v, 1e-5)
	}
}

func TestAvgPool2DWithConv_Dilated(t *testing.T) {
	backend := cpu.New()
	// Window of 2 with dilation 2 averages samples two apart.
	pool := NewAvgPool2DWithConv([2]int{2, 1}, [2]int{1, 1}, [2]int{2, 1}, backend)

	input, err := tensor.FromSlice([]float32{1, 2, 3, 4, 5}, tensor.Shape{1, 1, 5, 1}, backend)
	require.NoError(t, err)

	output := pool.Forward(input)

	// Positions: (1+3)/2, (2+4)/2, (3+5)/2.
	assert.True(t, output.Shape().Equal(tensor.Shape{1, 1, 3, 1}))
	want := []float32{2, 3, 4}
	for i, v := range output.Data() {
		assert.InDelta(t, want[i], v, 1e-5)
	}
}

func TestAvgPool2DWithConv_ChannelsIndependent(t *testing.T) {
	backend := cpu.New()
	pool := NewAvgPool2DWithConv([2]int{2, 1}, [2]int{1, 1}, [2]int{1, 1}, backend)

	input, err := tensor.FromSlice([]float32{
		1, 3, // channel 0
		10, 30, // channel 1
	}, tensor.Shape{1, 2, 2, 1}, backend)
	require.NoError(t, err)

	output := pool.Forward(input)

	assert.True(t, output.Shape().Equal(tensor.Shape{1, 2, 1, 1}))
	assert.InDelta(t, 2.0, output.At(0, 0, 0, 0), 1e-5)
	assert.InDelta(t, 20.0, output.At(0, 1, 0, 0), 1e-5)
}

func TestAvgPool2DWithConv_NoParameters(t *testing.T) {
	backend := cpu.New()
	pool := NewAvgPool2DWithConv([2]int{2, 1}, [2]int{1, 1}, [2]int{1, 1}, backend)
	assert.Empty(t, pool.Parameters())
}
