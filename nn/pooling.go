package nn

import (
	"fmt"

	"github.com/cortex-ml/cortex/tensor"
)

// GlobalAvgPool2D averages over both spatial axes, producing a (1, 1)
// spatial output. Equivalent to adaptive average pooling with target (1, 1).
type GlobalAvgPool2D[B tensor.Backend] struct{}

// NewGlobalAvgPool2D creates a new global average pooling module.
func NewGlobalAvgPool2D[B tensor.Backend]() *GlobalAvgPool2D[B] {
	return &GlobalAvgPool2D[B]{}
}

// Forward pools [batch, channels, H, W] to [batch, channels, 1, 1].
func (g *GlobalAvgPool2D[B]) Forward(input *tensor.Tensor[B]) *tensor.Tensor[B] {
	backend := input.Backend()
	return tensor.New(backend.GlobalAvgPool2D(input.Raw()), backend)
}

// Parameters returns an empty slice.
func (g *GlobalAvgPool2D[B]) Parameters() []*Parameter[B] {
	return nil
}

// AvgPool2DWithConv performs average pooling via a constant convolution
// filter. Unlike plain average pooling, the convolution formulation
// supports dilation, which the final pooling stage of dilated networks
// needs: with temporal dilation d the pool window covers samples spaced d
// apart.
//
// The input [N, C, H, W] is folded to [N*C, 1, H, W] and convolved with a
// single 1/(kh*kw) kernel, so every channel is pooled independently.
//
// The filter is fixed, not trainable; weight-init passes must leave this
// module untouched.
type AvgPool2DWithConv[B tensor.Backend] struct {
	kernelSize [2]int
	stride     [2]int
	dilation   [2]int

	filter  *tensor.RawTensor // [1, 1, kh, kw], every entry 1/(kh*kw)
	backend B
}

// NewAvgPool2DWithConv creates a dilated average pooling module.
func NewAvgPool2DWithConv[B tensor.Backend](kernelSize, stride, dilation [2]int, backend B) *AvgPool2DWithConv[B] {
	if kernelSize[0] <= 0 || kernelSize[1] <= 0 {
		panic(fmt.Sprintf("avgpool2dwithconv: invalid kernel size %v", kernelSize))
	}
	if stride[0] <= 0 || stride[1] <= 0 {
		panic(fmt.Sprintf("avgpool2dwithconv: invalid stride %v", stride))
	}
	if dilation[0] <= 0 || dilation[1] <= 0 {
		panic(fmt.Sprintf("avgpool2dwithconv: invalid dilation %v", dilation))
	}

	filter, err := tensor.NewRaw(tensor.Shape{1, 1, kernelSize[0], kernelSize[1]})
	if err != nil {
		panic(err)
	}
	weight := 1.0 / float32(kernelSize[0]*kernelSize[1])
	for i := range filter.Data() {
		filter.Data()[i] = weight
	}

	return &AvgPool2DWithConv[B]{
		kernelSize: kernelSize,
		stride:     stride,
		dilation:   dilation,
		filter:     filter,
		backend:    backend,
	}
}

// Forward pools [batch, channels, H, W] with the configured window,
// stride and dilation. No padding is applied.
func (a *AvgPool2DWithConv[B]) Forward(input *tensor.Tensor[B]) *tensor.Tensor[B] {
	shape := input.Shape()
	if len(shape) != 4 {
		panic(fmt.Sprintf("avgpool2dwithconv: expected 4D input [N,C,H,W], got %dD", len(shape)))
	}
	n, c, h, w := shape[0], shape[1], shape[2], shape[3]

	// Fold channels into the batch axis so the single-channel averaging
	// kernel pools each channel independently.
	folded := a.backend.Reshape(input.Raw(), tensor.Shape{n * c, 1, h, w})
	pooled := a.backend.Conv2D(folded, a.filter, a.stride, [2]int{0, 0}, a.dilation)

	pooledShape := pooled.Shape()
	unfolded := a.backend.Reshape(pooled, tensor.Shape{n, c, pooledShape[2], pooledShape[3]})
	return tensor.New(unfolded, a.backend)
}

// Parameters returns an empty slice: the averaging filter is constant.
func (a *AvgPool2DWithConv[B]) Parameters() []*Parameter[B] {
	return nil
}

// String returns a string representation of the module.
func (a *AvgPool2DWithConv[B]) String() string {
	return fmt.Sprintf("AvgPool2DWithConv(kernel_size=(%d, %d), stride=(%d, %d), dilation=(%d, %d))",
		a.kernelSize[0], a.kernelSize[1], a.stride[0], a.stride[1], a.dilation[0], a.dilation[1])
}
