package nn

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/cortex-ml/cortex/tensor"
)

// KaimingNormal fills t in place with values drawn from N(0, std^2) where
//
//	std = sqrt(2 / ((1 + negativeSlope^2) * fan_in))
//
// the He initialization for layers followed by ReLU-family nonlinearities.
// For a convolution weight [out, in, kh, kw], fan_in = in * kh * kw.
func KaimingNormal[B tensor.Backend](t *tensor.Tensor[B], negativeSlope float64) {
	fanIn := FanIn(t.Shape())
	std := math.Sqrt(2.0 / ((1.0 + negativeSlope*negativeSlope) * float64(fanIn)))

	dist := distuv.Normal{Mu: 0, Sigma: std}
	data := t.Data()
	for i := range data {
		data[i] = float32(dist.Rand())
	}
}

// FanIn returns the fan-in of a weight tensor: the product of all
// dimensions except the first (output) dimension. For 1D tensors it is the
// single dimension.
func FanIn(shape tensor.Shape) int {
	if len(shape) == 0 {
		panic("fanin: scalar weight has no fan-in")
	}
	if len(shape) == 1 {
		return shape[0]
	}
	fanIn := 1
	for _, dim := range shape[1:] {
		fanIn *= dim
	}
	return fanIn
}

// Constant fills t in place with a single value.
func Constant[B tensor.Backend](t *tensor.Tensor[B], value float32) {
	data := t.Data()
	for i := range data {
		data[i] = value
	}
}

// Zeros creates a zero-filled tensor. Commonly used for bias initialization.
func Zeros[B tensor.Backend](shape tensor.Shape, backend B) *tensor.Tensor[B] {
	return tensor.Zeros(shape, backend)
}

// Ones creates a tensor filled with ones. Commonly used for normalization
// scale initialization.
func Ones[B tensor.Backend](shape tensor.Shape, backend B) *tensor.Tensor[B] {
	return tensor.Ones(shape, backend)
}

// copyInto copies src into dst, validating shape compatibility.
// Shared by the layers' LoadStateDict implementations.
func copyInto(name string, dst *tensor.RawTensor, src *tensor.RawTensor) error {
	if src == nil {
		return fmt.Errorf("missing %s in state dict", name)
	}
	if !src.Shape().Equal(dst.Shape()) {
		return fmt.Errorf("%s shape mismatch: expected %v, got %v", name, dst.Shape(), src.Shape())
	}
	copy(dst.Data(), src.Data())
	return nil
}
