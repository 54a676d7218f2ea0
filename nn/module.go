// Package nn implements neural network modules for Cortex.
//
// This package provides the building blocks the models package assembles:
//   - Module interface: base interface for all NN components
//   - Parameter: named trainable tensors
//   - Conv2D: 2D convolution with per-axis stride, padding and dilation
//   - BatchNorm2d: batch normalization with running statistics
//   - ELU activation
//   - Pooling and tensor-plumbing modules (Ensure4d, Permute, squeeze)
//   - Sequential: named container for stacking layers
//
// Design inspired by PyTorch's nn.Module but adapted for Go generics.
package nn

import (
	"github.com/cortex-ml/cortex/tensor"
)

// Module is the base interface for all neural network components.
//
// Type parameter B must satisfy the tensor.Backend interface.
type Module[B tensor.Backend] interface {
	// Forward computes the output of the module given an input tensor.
	Forward(input *tensor.Tensor[B]) *tensor.Tensor[B]

	// Parameters returns all trainable parameters of this module,
	// including nested module parameters. Returns an empty slice for
	// modules without trainable parameters.
	Parameters() []*Parameter[B]
}

// Stateful is implemented by modules that can persist their state
// (parameters and buffers) as a flat name -> tensor dictionary.
type Stateful interface {
	// StateDict returns a map of parameter/buffer names to raw tensors.
	StateDict() map[string]*tensor.RawTensor

	// LoadStateDict loads parameters and buffers from a state dictionary.
	LoadStateDict(stateDict map[string]*tensor.RawTensor) error
}

// Container is implemented by modules that own child modules.
// It enables recursive traversal via Apply.
type Container[B tensor.Backend] interface {
	Children() []Module[B]
}

// TrainableMode is implemented by modules whose forward behavior differs
// between training and evaluation (batch normalization, dropout).
type TrainableMode interface {
	SetTraining(training bool)
}

// Apply calls fn on m and then recursively on every descendant module.
// Mirrors the recursive initialization pattern used when a model applies a
// weight-init function after construction.
func Apply[B tensor.Backend](m Module[B], fn func(Module[B])) {
	fn(m)
	if c, ok := m.(Container[B]); ok {
		for _, child := range c.Children() {
			Apply(child, fn)
		}
	}
}

// SetTraining recursively switches m and its descendants between training
// and evaluation mode.
func SetTraining[B tensor.Backend](m Module[B], training bool) {
	Apply(m, func(mod Module[B]) {
		if t, ok := mod.(TrainableMode); ok {
			t.SetTraining(training)
		}
	})
}
