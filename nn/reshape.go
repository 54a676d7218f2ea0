package nn

import (
	"fmt"

	"github.com/cortex-ml/cortex/tensor"
)

// Ensure4d normalizes the input tensor rank to 4 by appending trailing
// singleton dimensions. A [batch, channels, time] recording becomes
// [batch, channels, time, 1]; rank-4 input passes through unchanged.
type Ensure4d[B tensor.Backend] struct{}

// NewEnsure4d creates a new rank-normalizing module.
func NewEnsure4d[B tensor.Backend]() *Ensure4d[B] {
	return &Ensure4d[B]{}
}

// Forward appends size-1 dimensions until the tensor is rank 4.
func (e *Ensure4d[B]) Forward(input *tensor.Tensor[B]) *tensor.Tensor[B] {
	if len(input.Shape()) > 4 {
		panic(fmt.Sprintf("ensure4d: input rank %d exceeds 4", len(input.Shape())))
	}
	output := input
	for len(output.Shape()) < 4 {
		output = output.Unsqueeze(-1)
	}
	return output
}

// Parameters returns an empty slice.
func (e *Ensure4d[B]) Parameters() []*Parameter[B] {
	return nil
}

// Permute reorders tensor axes. The model's dimshuffle stage
// [batch, C, T, 1] -> [batch, 1, T, C] is NewPermute(0, 3, 2, 1).
type Permute[B tensor.Backend] struct {
	axes []int
}

// NewPermute creates an axis-reordering module.
func NewPermute[B tensor.Backend](axes ...int) *Permute[B] {
	return &Permute[B]{axes: axes}
}

// Forward permutes the input's axes.
func (p *Permute[B]) Forward(input *tensor.Tensor[B]) *tensor.Tensor[B] {
	return input.Transpose(p.axes...)
}

// Parameters returns an empty slice.
func (p *Permute[B]) Parameters() []*Parameter[B] {
	return nil
}

// String returns a string representation of the module.
func (p *Permute[B]) String() string {
	return fmt.Sprintf("Permute(axes=%v)", p.axes)
}

// SqueezeFinalOutput removes trailing singleton axes from classifier
// output: dimension 3 always (it must be 1), and dimension 2 when it is 1.
//
// [batch, classes, 1, 1] -> [batch, classes]
// [batch, classes, T, 1] -> [batch, classes, T]
type SqueezeFinalOutput[B tensor.Backend] struct{}

// NewSqueezeFinalOutput creates the final squeeze stage.
func NewSqueezeFinalOutput[B tensor.Backend]() *SqueezeFinalOutput[B] {
	return &SqueezeFinalOutput[B]{}
}

// Forward removes the trailing singleton axes.
func (s *SqueezeFinalOutput[B]) Forward(input *tensor.Tensor[B]) *tensor.Tensor[B] {
	shape := input.Shape()
	if len(shape) != 4 {
		panic(fmt.Sprintf("squeeze: expected 4D input, got %dD", len(shape)))
	}
	output := input.Squeeze(3)
	if shape[2] == 1 {
		output = output.Squeeze(2)
	}
	return output
}

// Parameters returns an empty slice.
func (s *SqueezeFinalOutput[B]) Parameters() []*Parameter[B] {
	return nil
}
