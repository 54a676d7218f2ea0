package nn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cortex-ml/cortex/backend/cpu"
	"github.com/cortex-ml/cortex/tensor"
)

func TestConv2D_ForwardShape(t *testing.T) {
	backend := cpu.New()
	// Temporal filter over [batch, 1, T, C]: (3, 1) kernel with padding
	// (1, 0) keeps T.
	conv := NewConv2D(1, 20, [2]int{3, 1}, [2]int{1, 1}, [2]int{1, 0}, [2]int{1, 1}, true, backend)

	input := tensor.Randn(tensor.Shape{2, 1, 100, 22}, backend)
	output := conv.Forward(input)

	assert.True(t, output.Shape().Equal(tensor.Shape{2, 20, 100, 22}),
		"output shape = %v", output.Shape())
}

func TestConv2D_KnownValues(t *testing.T) {
	backend := cpu.New()
	conv := NewConv2D(1, 1, [2]int{2, 2}, [2]int{1, 1}, [2]int{0, 0}, [2]int{1, 1}, true, backend)

	// Identity-corner kernel plus a bias of 10.
	weights := conv.Weight().Tensor().Data()
	copy(weights, []float32{1, 0, 0, 0})
	conv.Bias().Tensor().Data()[0] = 10

	input, err := tensor.FromSlice([]float32{1, 2, 3, 4}, tensor.Shape{1, 1, 2, 2}, backend)
	require.NoError(t, err)

	output := conv.Forward(input)
	assert.True(t, output.Shape().Equal(tensor.Shape{1, 1, 1, 1}))
	assert.InDelta(t, 11.0, output.Item(), 1e-5)
}

func TestConv2D_NoBias(t *testing.T) {
	backend := cpu.New()
	conv := NewConv2D(20, 20, [2]int{1, 22}, [2]int{1, 1}, [2]int{0, 0}, [2]int{1, 1}, false, backend)

	assert.Nil(t, conv.Bias())
	assert.Len(t, conv.Parameters(), 1)

	stateDict := conv.StateDict()
	assert.Contains(t, stateDict, "weight")
	assert.NotContains(t, stateDict, "bias")
}

func TestConv2D_ChannelMismatchPanics(t *testing.T) {
	backend := cpu.New()
	conv := NewConv2D(3, 4, [2]int{1, 1}, [2]int{1, 1}, [2]int{0, 0}, [2]int{1, 1}, true, backend)

	input := tensor.Randn(tensor.Shape{1, 2, 4, 4}, backend)
	assert.Panics(t, func() { conv.Forward(input) })
}

func TestConv2D_StateDictRoundTrip(t *testing.T) {
	backend := cpu.New()
	src := NewConv2D(2, 3, [2]int{3, 1}, [2]int{1, 1}, [2]int{1, 0}, [2]int{1, 1}, true, backend)
	dst := NewConv2D(2, 3, [2]int{3, 1}, [2]int{1, 1}, [2]int{1, 0}, [2]int{1, 1}, true, backend)

	require.NoError(t, dst.LoadStateDict(src.StateDict()))

	assert.Equal(t, src.Weight().Tensor().Data(), dst.Weight().Tensor().Data())
	assert.Equal(t, src.Bias().Tensor().Data(), dst.Bias().Tensor().Data())
}

func TestConv2D_LoadStateDictMissingWeight(t *testing.T) {
	backend := cpu.New()
	conv := NewConv2D(1, 1, [2]int{1, 1}, [2]int{1, 1}, [2]int{0, 0}, [2]int{1, 1}, true, backend)

	err := conv.LoadStateDict(map[string]*tensor.RawTensor{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing weight")
}
