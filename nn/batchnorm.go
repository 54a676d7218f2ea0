package nn

import (
	"fmt"

	"github.com/cortex-ml/cortex/tensor"
)

// BatchNorm2d applies batch normalization over a [N, C, H, W] tensor,
// per channel across (N, H, W):
//
//	y = weight * (x - mean) / sqrt(var + eps) + bias
//
// In training mode batch statistics normalize the input and running
// estimates are updated with the configured momentum; in eval mode the
// running estimates are used, making the layer a fixed affine transform.
type BatchNorm2d[B tensor.Backend] struct {
	numFeatures int
	momentum    float32
	eps         float32
	training    bool

	weight *Parameter[B] // scale (gamma), initialized to ones
	bias   *Parameter[B] // shift (beta), initialized to zeros

	// Running statistics are buffers, not parameters: they are updated by
	// forward passes in training mode, not by optimizers.
	runningMean *tensor.RawTensor
	runningVar  *tensor.RawTensor

	backend B
}

// NewBatchNorm2d creates a new BatchNorm2d layer.
//
// momentum weighs new batch statistics in the running-estimate update
// (running = (1-momentum)*running + momentum*batch). The layer starts in
// training mode with running mean 0 and running variance 1.
func NewBatchNorm2d[B tensor.Backend](numFeatures int, momentum, eps float32, backend B) *BatchNorm2d[B] {
	if numFeatures <= 0 {
		panic(fmt.Sprintf("batchnorm2d: invalid feature count %d", numFeatures))
	}

	runningVar, err := tensor.NewRaw(tensor.Shape{numFeatures})
	if err != nil {
		panic(err)
	}
	for i := range runningVar.Data() {
		runningVar.Data()[i] = 1
	}
	runningMean, err := tensor.NewRaw(tensor.Shape{numFeatures})
	if err != nil {
		panic(err)
	}

	return &BatchNorm2d[B]{
		numFeatures: numFeatures,
		momentum:    momentum,
		eps:         eps,
		training:    true,
		weight:      NewParameter("weight", Ones(tensor.Shape{numFeatures}, backend)),
		bias:        NewParameter("bias", Zeros(tensor.Shape{numFeatures}, backend)),
		runningMean: runningMean,
		runningVar:  runningVar,
		backend:     backend,
	}
}

// Forward applies batch normalization.
//
// Input: [batch, features, height, width], same shape out.
func (bn *BatchNorm2d[B]) Forward(input *tensor.Tensor[B]) *tensor.Tensor[B] {
	raw := bn.backend.BatchNorm2D(
		input.Raw(),
		bn.weight.Tensor().Raw(),
		bn.bias.Tensor().Raw(),
		bn.runningMean,
		bn.runningVar,
		bn.momentum,
		bn.eps,
		bn.training,
	)
	return tensor.New(raw, bn.backend)
}

// Parameters returns the learnable scale and shift.
func (bn *BatchNorm2d[B]) Parameters() []*Parameter[B] {
	return []*Parameter[B]{bn.weight, bn.bias}
}

// SetTraining switches between batch statistics (training) and running
// statistics (eval).
func (bn *BatchNorm2d[B]) SetTraining(training bool) {
	bn.training = training
}

// Training reports whether the layer is in training mode.
func (bn *BatchNorm2d[B]) Training() bool {
	return bn.training
}

// Weight returns the scale parameter.
func (bn *BatchNorm2d[B]) Weight() *Parameter[B] {
	return bn.weight
}

// Bias returns the shift parameter.
func (bn *BatchNorm2d[B]) Bias() *Parameter[B] {
	return bn.bias
}

// RunningMean returns the running mean buffer.
func (bn *BatchNorm2d[B]) RunningMean() *tensor.RawTensor {
	return bn.runningMean
}

// RunningVar returns the running variance buffer.
func (bn *BatchNorm2d[B]) RunningVar() *tensor.RawTensor {
	return bn.runningVar
}

// StateDict returns parameters and running buffers.
func (bn *BatchNorm2d[B]) StateDict() map[string]*tensor.RawTensor {
	return map[string]*tensor.RawTensor{
		"weight":       bn.weight.Tensor().Raw(),
		"bias":         bn.bias.Tensor().Raw(),
		"running_mean": bn.runningMean,
		"running_var":  bn.runningVar,
	}
}

// LoadStateDict loads parameters and running buffers.
func (bn *BatchNorm2d[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	if err := copyInto("weight", bn.weight.Tensor().Raw(), stateDict["weight"]); err != nil {
		return err
	}
	if err := copyInto("bias", bn.bias.Tensor().Raw(), stateDict["bias"]); err != nil {
		return err
	}
	if err := copyInto("running_mean", bn.runningMean, stateDict["running_mean"]); err != nil {
		return err
	}
	return copyInto("running_var", bn.runningVar, stateDict["running_var"])
}

// String returns a string representation of the layer.
func (bn *BatchNorm2d[B]) String() string {
	return fmt.Sprintf("BatchNorm2d(num_features=%d, momentum=%g, eps=%g)", bn.numFeatures, bn.momentum, bn.eps)
}
