package cpu

import (
	"testing"

	"github.com/cortex-ml/cortex/tensor"
)

func TestReshape_View(t *testing.T) {
	backend := New()
	x := mustRaw(t, []float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3})

	reshaped := backend.Reshape(x, tensor.Shape{3, 2})
	if !reshaped.Shape().Equal(tensor.Shape{3, 2}) {
		t.Fatalf("shape = %v, want [3 2]", reshaped.Shape())
	}

	// Reshape is a view: writes show through.
	reshaped.Data()[0] = 42
	if x.Data()[0] != 42 {
		t.Error("reshape copied instead of viewing")
	}
}

func TestTranspose_2D(t *testing.T) {
	backend := New()
	x := mustRaw(t, []float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3})

	transposed := backend.Transpose(x)

	if !transposed.Shape().Equal(tensor.Shape{3, 2}) {
		t.Fatalf("shape = %v, want [3 2]", transposed.Shape())
	}
	assertClose(t, transposed.Data(), []float32{1, 4, 2, 5, 3, 6}, 0)
}

func TestTranspose_Dimshuffle(t *testing.T) {
	backend := New()
	// The model's dimshuffle: [batch, C, T, 1] -> [batch, 1, T, C].
	x := mustRaw(t, []float32{
		1, 2, 3, // channel 0 over time
		4, 5, 6, // channel 1 over time
	}, tensor.Shape{1, 2, 3, 1})

	shuffled := backend.Transpose(x, 0, 3, 2, 1)

	if !shuffled.Shape().Equal(tensor.Shape{1, 1, 3, 2}) {
		t.Fatalf("shape = %v, want [1 1 3 2]", shuffled.Shape())
	}
	// Row t holds [channel0[t], channel1[t]].
	assertClose(t, shuffled.Data(), []float32{1, 4, 2, 5, 3, 6}, 0)
}

func TestCat_ChannelPadding(t *testing.T) {
	backend := New()
	// The residual-skip pattern: zeros around the input along dim 1.
	x := mustRaw(t, []float32{1, 2, 3, 4}, tensor.Shape{1, 2, 2, 1})
	pad := mustRaw(t, []float32{0, 0}, tensor.Shape{1, 1, 2, 1})

	result := backend.Cat([]*tensor.RawTensor{pad, x, pad}, 1)

	if !result.Shape().Equal(tensor.Shape{1, 4, 2, 1}) {
		t.Fatalf("shape = %v, want [1 4 2 1]", result.Shape())
	}
	assertClose(t, result.Data(), []float32{0, 0, 1, 2, 3, 4, 0, 0}, 0)
}

func TestCat_Batched(t *testing.T) {
	backend := New()
	a := mustRaw(t, []float32{1, 2, 3, 4}, tensor.Shape{2, 1, 2, 1})
	b := mustRaw(t, []float32{10, 20, 30, 40}, tensor.Shape{2, 1, 2, 1})

	result := backend.Cat([]*tensor.RawTensor{a, b}, 1)

	if !result.Shape().Equal(tensor.Shape{2, 2, 2, 1}) {
		t.Fatalf("shape = %v, want [2 2 2 1]", result.Shape())
	}
	assertClose(t, result.Data(), []float32{1, 2, 10, 20, 3, 4, 30, 40}, 0)
}

func TestUnsqueezeSqueeze(t *testing.T) {
	backend := New()
	x := mustRaw(t, []float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3})

	up := backend.Unsqueeze(x, -1)
	if !up.Shape().Equal(tensor.Shape{2, 3, 1}) {
		t.Fatalf("unsqueeze shape = %v, want [2 3 1]", up.Shape())
	}

	down := backend.Squeeze(up, 2)
	if !down.Shape().Equal(tensor.Shape{2, 3}) {
		t.Fatalf("squeeze shape = %v, want [2 3]", down.Shape())
	}

	defer func() {
		if recover() == nil {
			t.Error("squeezing a non-singleton dimension did not panic")
		}
	}()
	backend.Squeeze(x, 0)
}
