package models

import (
	"fmt"

	"github.com/cortex-ml/cortex/nn"
	"github.com/cortex-ml/cortex/tensor"
)

// ResidualBlock is a two-convolution residual unit with dilated temporal
// filters, operating on [batch, filters, time, 1] tensors:
//
//	a = act(bn1(conv1(x)))
//	b = bn2(conv2(a))
//	y = act(skip(x) + b)
//
// Both convolutions keep the temporal length by padding with
// (filter_length-1)*dilation/2 samples per side. When the block widens the
// filter count, the identity path is zero-padded symmetrically along the
// filter axis so the shapes match.
type ResidualBlock[B tensor.Backend] struct {
	inFilters  int
	outFilters int

	conv1 *nn.Conv2D[B]
	bn1   *nn.BatchNorm2d[B]
	conv2 *nn.Conv2D[B]
	bn2   *nn.BatchNorm2d[B]
	act1  nn.Module[B]
	act2  nn.Module[B]

	backend B
}

// NewResidualBlock creates a residual block.
//
// dilation applies to the temporal axis of both convolutions; activation is
// called twice to give each application its own module instance. The
// padding (filterTimeLength-1)*dilation[0] and the filter delta
// outFilters-inFilters must both be even, otherwise the output could not
// align with the identity path.
func NewResidualBlock[B tensor.Backend](
	inFilters, outFilters int,
	dilation [2]int,
	filterTimeLength int,
	activation func() nn.Module[B],
	bnMomentum, bnEps float32,
	backend B,
) (*ResidualBlock[B], error) {
	timePadding := (filterTimeLength - 1) * dilation[0]
	if timePadding%2 != 0 {
		return nil, fmt.Errorf("residual block: temporal padding %d is odd for filter length %d, dilation %d",
			timePadding, filterTimeLength, dilation[0])
	}
	if (outFilters-inFilters)%2 != 0 {
		return nil, fmt.Errorf("residual block: filter delta %d is odd, cannot pad identity path symmetrically",
			outFilters-inFilters)
	}
	padding := [2]int{timePadding / 2, 0}
	kernel := [2]int{filterTimeLength, 1}
	stride := [2]int{1, 1}

	return &ResidualBlock[B]{
		inFilters:  inFilters,
		outFilters: outFilters,
		conv1:      nn.NewConv2D(inFilters, outFilters, kernel, stride, padding, dilation, true, backend),
		bn1:        nn.NewBatchNorm2d(outFilters, bnMomentum, bnEps, backend),
		conv2:      nn.NewConv2D(outFilters, outFilters, kernel, stride, padding, dilation, true, backend),
		bn2:        nn.NewBatchNorm2d(outFilters, bnMomentum, bnEps, backend),
		act1:       activation(),
		act2:       activation(),
		backend:    backend,
	}, nil
}

// Forward runs the block. Input and output are [batch, filters, time, 1];
// the temporal length is preserved.
func (r *ResidualBlock[B]) Forward(input *tensor.Tensor[B]) *tensor.Tensor[B] {
	a := r.act1.Forward(r.bn1.Forward(r.conv1.Forward(input)))
	b := r.bn2.Forward(r.conv2.Forward(a))

	skip := input
	if r.outFilters != r.inFilters {
		skip = r.padFilters(input)
	}
	return r.act2.Forward(skip.Add(b))
}

// padFilters zero-pads the filter axis by (out-in)/2 on each side.
func (r *ResidualBlock[B]) padFilters(input *tensor.Tensor[B]) *tensor.Tensor[B] {
	shape := input.Shape()
	padEach := (r.outFilters - r.inFilters) / 2
	padShape := tensor.Shape{shape[0], padEach, shape[2], shape[3]}
	pad := tensor.Zeros(padShape, r.backend)
	return tensor.Cat([]*tensor.Tensor[B]{pad, input, pad}, 1)
}

// InFilters returns the block's input filter count.
func (r *ResidualBlock[B]) InFilters() int {
	return r.inFilters
}

// OutFilters returns the block's output filter count.
func (r *ResidualBlock[B]) OutFilters() int {
	return r.outFilters
}

// Parameters returns the parameters of both convolutions and both norms.
func (r *ResidualBlock[B]) Parameters() []*nn.Parameter[B] {
	var params []*nn.Parameter[B]
	params = append(params, r.conv1.Parameters()...)
	params = append(params, r.bn1.Parameters()...)
	params = append(params, r.conv2.Parameters()...)
	params = append(params, r.bn2.Parameters()...)
	return params
}

// Children returns the child modules.
func (r *ResidualBlock[B]) Children() []nn.Module[B] {
	return []nn.Module[B]{r.conv1, r.bn1, r.act1, r.conv2, r.bn2, r.act2}
}

// StateDict returns the block's parameters and buffers under the
// conv_1/bn1/conv_2/bn2 prefixes.
func (r *ResidualBlock[B]) StateDict() map[string]*tensor.RawTensor {
	stateDict := make(map[string]*tensor.RawTensor)
	for name, stateful := range r.statefulChildren() {
		for key, value := range stateful.StateDict() {
			stateDict[name+"."+key] = value
		}
	}
	return stateDict
}

// LoadStateDict loads the block's parameters and buffers.
func (r *ResidualBlock[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	for name, stateful := range r.statefulChildren() {
		sub := make(map[string]*tensor.RawTensor)
		prefix := name + "."
		for key, value := range stateDict {
			if len(key) > len(prefix) && key[:len(prefix)] == prefix {
				sub[key[len(prefix):]] = value
			}
		}
		if err := stateful.LoadStateDict(sub); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

func (r *ResidualBlock[B]) statefulChildren() map[string]nn.Stateful {
	return map[string]nn.Stateful{
		"conv_1": r.conv1,
		"bn1":    r.bn1,
		"conv_2": r.conv2,
		"bn2":    r.bn2,
	}
}

// String returns a string representation of the block.
func (r *ResidualBlock[B]) String() string {
	return fmt.Sprintf("ResidualBlock(in_filters=%d, out_filters=%d)", r.inFilters, r.outFilters)
}
