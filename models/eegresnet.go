package models

import (
	"fmt"

	"github.com/cortex-ml/cortex/nn"
	"github.com/cortex-ml/cortex/tensor"
)

// Config configures an EEGResNet model.
//
// The zero values of the architecture fields are replaced by the defaults
// from Schirrmeister et al. 2017; use DefaultConfig to also enable the
// split first layer, then fill in the SignalConfig.
type Config[B tensor.Backend] struct {
	SignalConfig

	// FinalPoolLength is the temporal length of the final average pooling
	// window. Zero selects global average pooling over the whole remaining
	// window.
	FinalPoolLength int

	// NFirstFilters is the filter count of the first convolution and the
	// first residual stage. Default 20.
	NFirstFilters int

	// NLayersPerBlock is the number of residual blocks per dilation stage.
	// Default 2.
	NLayersPerBlock int

	// FirstFilterLength is the temporal length of every convolution filter.
	// Must be odd. Default 3.
	FirstFilterLength int

	// Activation constructs the nonlinearity used throughout the network.
	// Default ELU with alpha 1.
	Activation func() nn.Module[B]

	// SplitFirstLayer splits the input convolution into a temporal filter
	// followed by a spatial filter across electrodes. DefaultConfig enables
	// it.
	SplitFirstLayer bool

	// BatchNormMomentum weighs new batch statistics in the running-estimate
	// updates. Default 0.1.
	BatchNormMomentum float32

	// BatchNormEpsilon stabilizes normalization in the residual blocks.
	// Default 1e-4. The batch norm after the input convolution always uses
	// 1e-5.
	BatchNormEpsilon float32

	// ConvWeightInit initializes convolution weights after assembly.
	// Default Kaiming-normal with slope 0.
	ConvWeightInit func(*tensor.Tensor[B])
}

// DefaultConfig returns the architecture defaults from Schirrmeister et
// al. 2017. The caller still has to fill in the SignalConfig.
func DefaultConfig[B tensor.Backend]() Config[B] {
	return Config[B]{
		NFirstFilters:     20,
		NLayersPerBlock:   2,
		FirstFilterLength: 3,
		SplitFirstLayer:   true,
		BatchNormMomentum: 0.1,
		BatchNormEpsilon:  1e-4,
	}
}

// The batch norm after the input convolution uses a fixed epsilon,
// independent of the residual blocks' epsilon.
const inputBNormEpsilon = 1e-5

// EEGResNet is the residual network for EEG decoding from Schirrmeister
// et al. 2017 (doi:10.1002/hbm.23730).
//
// The network stacks an input convolution (optionally split into temporal
// and spatial filters), batch normalization and an activation, then seven
// residual stages whose temporal dilation doubles from stage to stage,
// a final average pooling and a 1x1 convolutional classifier.
//
// Input is [batch, channels, times] or [batch, channels, times, 1];
// output is [batch, outputs] after global pooling, or
// [batch, outputs, times'] when a fixed pool length leaves multiple
// temporal positions.
type EEGResNet[B tensor.Backend] struct {
	config  Config[B]
	stages  *nn.Sequential[B]
	backend B
}

// Legacy parameter names mapped to their current locations, for loading
// state dictionaries written before the classifier moved into final_layer.
var legacyParamMapping = map[string]string{
	"conv_classifier.weight": "final_layer.conv_classifier.weight",
	"conv_classifier.bias":   "final_layer.conv_classifier.bias",
}

// Per-stage schedule: how the temporal dilation grows entering the stage,
// and how the first block of the stage widens the filter count
// (as a widenNum/widenDen ratio).
var residualStages = []struct {
	dilationGrowth int
	widenNum       int
	widenDen       int
}{
	{1, 1, 1},
	{2, 2, 1},
	{2, 3, 2},
	{2, 1, 1},
	{2, 1, 1},
	{2, 1, 1},
	{2, 1, 1},
}

// NewEEGResNet assembles an EEGResNet. The model starts in training mode.
func NewEEGResNet[B tensor.Backend](config Config[B], backend B) (*EEGResNet[B], error) {
	if err := config.SignalConfig.resolve(); err != nil {
		return nil, err
	}
	if config.NFirstFilters == 0 {
		config.NFirstFilters = 20
	}
	if config.NLayersPerBlock == 0 {
		config.NLayersPerBlock = 2
	}
	if config.FirstFilterLength == 0 {
		config.FirstFilterLength = 3
	}
	if config.Activation == nil {
		config.Activation = func() nn.Module[B] { return nn.NewELU[B](1.0) }
	}
	if config.BatchNormMomentum == 0 {
		config.BatchNormMomentum = 0.1
	}
	if config.BatchNormEpsilon == 0 {
		config.BatchNormEpsilon = 1e-4
	}
	if config.ConvWeightInit == nil {
		config.ConvWeightInit = func(w *tensor.Tensor[B]) { nn.KaimingNormal(w, 0) }
	}

	if config.NFirstFilters <= 0 {
		return nil, fmt.Errorf("eegresnet: number of first filters must be positive, got %d", config.NFirstFilters)
	}
	if config.NLayersPerBlock <= 0 {
		return nil, fmt.Errorf("eegresnet: layers per block must be positive, got %d", config.NLayersPerBlock)
	}
	if config.FirstFilterLength%2 != 1 {
		return nil, fmt.Errorf("eegresnet: first filter length must be odd, got %d", config.FirstFilterLength)
	}
	if config.FinalPoolLength < 0 {
		return nil, fmt.Errorf("eegresnet: final pool length must not be negative, got %d", config.FinalPoolLength)
	}
	// Global average pooling spans the whole remaining window, so the
	// window length must be known. A fixed pool length works on inputs of
	// any temporal length.
	if config.FinalPoolLength == 0 && config.NTimes <= 0 {
		return nil, fmt.Errorf("eegresnet: number of time samples is required for automatic pooling")
	}

	stages := nn.NewSequential[B]()
	stages.AddNamed("ensuredims", nn.NewEnsure4d[B]())

	if config.SplitFirstLayer {
		// [batch, C, T, 1] -> [batch, 1, T, C]: the temporal filter runs
		// per electrode, then the spatial filter mixes electrodes.
		stages.AddNamed("dimshuffle", nn.NewPermute[B](0, 3, 2, 1))
		stages.AddNamed("conv_time", nn.NewConv2D(
			1, config.NFirstFilters,
			[2]int{config.FirstFilterLength, 1},
			[2]int{1, 1},
			[2]int{config.FirstFilterLength / 2, 0},
			[2]int{1, 1},
			true,
			backend,
		))
		stages.AddNamed("conv_spat", nn.NewConv2D(
			config.NFirstFilters, config.NFirstFilters,
			[2]int{1, config.NChans},
			[2]int{1, 1},
			[2]int{0, 0},
			[2]int{1, 1},
			false,
			backend,
		))
	} else {
		stages.AddNamed("conv_time", nn.NewConv2D(
			config.NChans, config.NFirstFilters,
			[2]int{config.FirstFilterLength, 1},
			[2]int{1, 1},
			[2]int{config.FirstFilterLength / 2, 0},
			[2]int{1, 1},
			false,
			backend,
		))
	}

	stages.AddNamed("bnorm", nn.NewBatchNorm2d(config.NFirstFilters, config.BatchNormMomentum, inputBNormEpsilon, backend))
	stages.AddNamed("conv_nonlin", config.Activation())

	curDilation := [2]int{1, 1}
	curFilters := config.NFirstFilters
	for iStage, stage := range residualStages {
		curDilation[0] *= stage.dilationGrowth
		outFilters := curFilters * stage.widenNum / stage.widenDen
		for iLayer := 0; iLayer < config.NLayersPerBlock; iLayer++ {
			inFilters := curFilters
			if iLayer > 0 {
				inFilters = outFilters
			}
			block, err := NewResidualBlock(
				inFilters, outFilters,
				curDilation,
				config.FirstFilterLength,
				config.Activation,
				config.BatchNormMomentum,
				config.BatchNormEpsilon,
				backend,
			)
			if err != nil {
				return nil, fmt.Errorf("eegresnet: stage %d layer %d: %w", iStage+1, iLayer, err)
			}
			stages.AddNamed(fmt.Sprintf("res_%d_%d", iStage+1, iLayer), block)
		}
		curFilters = outFilters
	}

	if config.FinalPoolLength == 0 {
		stages.AddNamed("mean_pool", nn.NewGlobalAvgPool2D[B]())
	} else {
		stages.AddNamed("mean_pool", nn.NewAvgPool2DWithConv(
			[2]int{config.FinalPoolLength, 1},
			[2]int{1, 1},
			curDilation,
			backend,
		))
	}

	finalLayer := nn.NewSequential[B]()
	finalLayer.AddNamed("conv_classifier", nn.NewConv2D(
		curFilters, config.NOutputs,
		[2]int{1, 1},
		[2]int{1, 1},
		[2]int{0, 0},
		[2]int{1, 1},
		true,
		backend,
	))
	finalLayer.AddNamed("squeeze", nn.NewSqueezeFinalOutput[B]())
	stages.AddNamed("final_layer", finalLayer)

	model := &EEGResNet[B]{
		config:  config,
		stages:  stages,
		backend: backend,
	}
	model.initWeights()
	return model, nil
}

// initWeights applies the configured convolution initializer to every
// convolution weight, zeroes convolution biases and resets batch norms to
// scale 1, shift 0. The constant averaging filter of AvgPool2DWithConv is
// not a Conv2D layer and stays untouched.
func (m *EEGResNet[B]) initWeights() {
	nn.Apply[B](m.stages, func(mod nn.Module[B]) {
		switch layer := mod.(type) {
		case *nn.Conv2D[B]:
			m.config.ConvWeightInit(layer.Weight().Tensor())
			if layer.Bias() != nil {
				nn.Constant(layer.Bias().Tensor(), 0)
			}
		case *nn.BatchNorm2d[B]:
			nn.Constant(layer.Weight().Tensor(), 1)
			nn.Constant(layer.Bias().Tensor(), 0)
		}
	})
}

// Forward classifies a window of EEG.
//
// Input: [batch, channels, times] or [batch, channels, times, 1].
// Output: [batch, outputs], or [batch, outputs, times'] when a fixed pool
// length leaves more than one temporal position.
func (m *EEGResNet[B]) Forward(input *tensor.Tensor[B]) *tensor.Tensor[B] {
	rank := len(input.Shape())
	if rank != 3 && rank != 4 {
		panic(fmt.Sprintf("eegresnet: expected 3D or 4D input, got %dD", rank))
	}
	return m.stages.Forward(input)
}

// Parameters returns all trainable parameters.
func (m *EEGResNet[B]) Parameters() []*nn.Parameter[B] {
	return m.stages.Parameters()
}

// Children returns the model's stages in execution order.
func (m *EEGResNet[B]) Children() []nn.Module[B] {
	return m.stages.Children()
}

// Config returns the resolved model configuration.
func (m *EEGResNet[B]) Config() Config[B] {
	return m.config
}

// Train puts the model in training mode: batch norms normalize with batch
// statistics and update their running estimates.
func (m *EEGResNet[B]) Train() {
	nn.SetTraining[B](m.stages, true)
}

// Eval puts the model in evaluation mode: batch norms use their running
// estimates, making the forward pass deterministic in the parameters.
func (m *EEGResNet[B]) Eval() {
	nn.SetTraining[B](m.stages, false)
}

// StateDict returns all parameters and buffers keyed by stage-qualified
// names, for example "res_2_0.conv_1.weight" or
// "final_layer.conv_classifier.bias".
func (m *EEGResNet[B]) StateDict() map[string]*tensor.RawTensor {
	return m.stages.StateDict()
}

// LoadStateDict loads parameters and buffers. Legacy names from before the
// classifier moved into final_layer are accepted and remapped.
func (m *EEGResNet[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	remapped := make(map[string]*tensor.RawTensor, len(stateDict))
	for name, raw := range stateDict {
		if target, ok := legacyParamMapping[name]; ok {
			name = target
		}
		remapped[name] = raw
	}
	return m.stages.LoadStateDict(remapped)
}

// ParamMapping returns the legacy-to-current parameter name mapping
// applied by LoadStateDict.
func (m *EEGResNet[B]) ParamMapping() map[string]string {
	mapping := make(map[string]string, len(legacyParamMapping))
	for from, to := range legacyParamMapping {
		mapping[from] = to
	}
	return mapping
}

// String returns a string representation of the model.
func (m *EEGResNet[B]) String() string {
	return fmt.Sprintf("EEGResNet(n_chans=%d, n_outputs=%d, n_times=%d)",
		m.config.NChans, m.config.NOutputs, m.config.NTimes)
}
