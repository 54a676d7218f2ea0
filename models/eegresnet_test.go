package models

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cortex-ml/cortex/backend/cpu"
	"github.com/cortex-ml/cortex/nn"
	"github.com/cortex-ml/cortex/serialization"
	"github.com/cortex-ml/cortex/tensor"
)

func testConfig(nChans, nOutputs, nTimes int) Config[*cpu.CPUBackend] {
	cfg := DefaultConfig[*cpu.CPUBackend]()
	cfg.NChans = nChans
	cfg.NOutputs = nOutputs
	cfg.NTimes = nTimes
	return cfg
}

func TestEEGResNet_ForwardGlobalPool(t *testing.T) {
	backend := cpu.New()
	model, err := NewEEGResNet(testConfig(22, 4, 300), backend)
	require.NoError(t, err)

	input := tensor.Randn(tensor.Shape{2, 22, 300}, backend)
	output := model.Forward(input)

	assert.True(t, output.Shape().Equal(tensor.Shape{2, 4}),
		"output shape = %v", output.Shape())
}

func TestEEGResNet_Forward4DInput(t *testing.T) {
	backend := cpu.New()
	model, err := NewEEGResNet(testConfig(8, 2, 200), backend)
	require.NoError(t, err)

	input := tensor.Randn(tensor.Shape{1, 8, 200, 1}, backend)
	output := model.Forward(input)

	assert.True(t, output.Shape().Equal(tensor.Shape{1, 2}))
}

func TestEEGResNet_ForwardFixedPool(t *testing.T) {
	backend := cpu.New()
	cfg := testConfig(8, 3, 600)
	cfg.FinalPoolLength = 10

	model, err := NewEEGResNet(cfg, backend)
	require.NoError(t, err)

	input := tensor.Randn(tensor.Shape{1, 8, 600}, backend)
	output := model.Forward(input)

	// The pool window spans (10-1)*64+1 samples at the final dilation of
	// 64, leaving 600 - 576 = 24 temporal positions.
	assert.True(t, output.Shape().Equal(tensor.Shape{1, 3, 24}),
		"output shape = %v", output.Shape())
}

func TestEEGResNet_NonSplitFirstLayer(t *testing.T) {
	backend := cpu.New()
	cfg := testConfig(8, 2, 200)
	cfg.SplitFirstLayer = false

	model, err := NewEEGResNet(cfg, backend)
	require.NoError(t, err)

	stateDict := model.StateDict()
	assert.Contains(t, stateDict, "conv_time.weight")
	assert.NotContains(t, stateDict, "conv_time.bias", "non-split conv_time has no bias")
	assert.NotContains(t, stateDict, "conv_spat.weight")

	input := tensor.Randn(tensor.Shape{1, 8, 200}, backend)
	output := model.Forward(input)
	assert.True(t, output.Shape().Equal(tensor.Shape{1, 2}))
}

func TestEEGResNet_FilterProgression(t *testing.T) {
	backend := cpu.New()
	model, err := NewEEGResNet(testConfig(8, 2, 200), backend)
	require.NoError(t, err)

	stateDict := model.StateDict()
	tests := []struct {
		key  string
		want tensor.Shape
	}{
		{"conv_time.weight", tensor.Shape{20, 1, 3, 1}},
		{"conv_spat.weight", tensor.Shape{20, 20, 1, 8}},
		{"res_1_0.conv_1.weight", tensor.Shape{20, 20, 3, 1}},
		{"res_2_0.conv_1.weight", tensor.Shape{40, 20, 3, 1}}, // x2
		{"res_3_0.conv_1.weight", tensor.Shape{60, 40, 3, 1}}, // x1.5
		{"res_4_0.conv_1.weight", tensor.Shape{60, 60, 3, 1}}, // constant from here
		{"res_7_1.conv_1.weight", tensor.Shape{60, 60, 3, 1}},
		{"final_layer.conv_classifier.weight", tensor.Shape{2, 60, 1, 1}},
	}
	for _, tt := range tests {
		raw, ok := stateDict[tt.key]
		require.True(t, ok, "missing %s", tt.key)
		assert.True(t, raw.Shape().Equal(tt.want), "%s shape = %v, want %v", tt.key, raw.Shape(), tt.want)
	}
}

func TestEEGResNet_ConstructionErrors(t *testing.T) {
	backend := cpu.New()

	cfg := testConfig(8, 2, 200)
	cfg.FirstFilterLength = 4
	_, err := NewEEGResNet(cfg, backend)
	assert.Error(t, err, "even filter length must be rejected")

	_, err = NewEEGResNet(testConfig(0, 2, 200), backend)
	assert.Error(t, err, "missing channel count must be rejected")

	cfg = testConfig(8, 2, 200)
	cfg.FinalPoolLength = -1
	_, err = NewEEGResNet(cfg, backend)
	assert.Error(t, err, "negative pool length must be rejected")
}

func TestEEGResNet_AutoPoolRequiresNTimes(t *testing.T) {
	backend := cpu.New()
	cfg := DefaultConfig[*cpu.CPUBackend]()
	cfg.NChans = 8
	cfg.NOutputs = 2

	_, err := NewEEGResNet(cfg, backend)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "time samples")
}

func TestEEGResNet_FixedPoolWithoutNTimes(t *testing.T) {
	backend := cpu.New()
	// A fixed pool length works on any temporal length, so the window
	// length may stay unknown at construction time.
	cfg := DefaultConfig[*cpu.CPUBackend]()
	cfg.NChans = 8
	cfg.NOutputs = 2
	cfg.FinalPoolLength = 10

	model, err := NewEEGResNet(cfg, backend)
	require.NoError(t, err)

	input := tensor.Randn(tensor.Shape{1, 8, 600}, backend)
	output := model.Forward(input)
	assert.True(t, output.Shape().Equal(tensor.Shape{1, 2, 24}),
		"output shape = %v", output.Shape())
}

func TestEEGResNet_InitPostconditions(t *testing.T) {
	backend := cpu.New()
	model, err := NewEEGResNet(testConfig(8, 2, 200), backend)
	require.NoError(t, err)

	nn.Apply[*cpu.CPUBackend](model, func(mod nn.Module[*cpu.CPUBackend]) {
		switch layer := mod.(type) {
		case *nn.Conv2D[*cpu.CPUBackend]:
			if layer.Bias() != nil {
				for _, v := range layer.Bias().Tensor().Data() {
					assert.Equal(t, float32(0), v, "conv bias not zeroed")
				}
			}
			// Kaiming init leaves no weight tensor all-zero.
			var nonZero bool
			for _, v := range layer.Weight().Tensor().Data() {
				if v != 0 {
					nonZero = true
					break
				}
			}
			assert.True(t, nonZero, "conv weight left at zero")
		case *nn.BatchNorm2d[*cpu.CPUBackend]:
			for _, v := range layer.Weight().Tensor().Data() {
				assert.Equal(t, float32(1), v, "batch norm scale not one")
			}
			for _, v := range layer.Bias().Tensor().Data() {
				assert.Equal(t, float32(0), v, "batch norm shift not zero")
			}
		}
	})
}

func TestEEGResNet_EvalDeterministic(t *testing.T) {
	backend := cpu.New()
	model, err := NewEEGResNet(testConfig(8, 2, 200), backend)
	require.NoError(t, err)
	model.Eval()

	input := tensor.Randn(tensor.Shape{1, 8, 200}, backend)
	first := model.Forward(input)
	second := model.Forward(input)

	assert.Equal(t, first.Data(), second.Data())
}

func TestEEGResNet_TrainUpdatesRunningStats(t *testing.T) {
	backend := cpu.New()
	model, err := NewEEGResNet(testConfig(8, 2, 200), backend)
	require.NoError(t, err)
	model.Train()

	before := model.StateDict()["bnorm.running_mean"].Clone()
	model.Forward(tensor.Randn(tensor.Shape{2, 8, 200}, backend))
	after := model.StateDict()["bnorm.running_mean"]

	assert.NotEqual(t, before.Data(), after.Data(), "training forward must update running statistics")
}

func TestEEGResNet_StateDictRoundTripThroughFile(t *testing.T) {
	backend := cpu.New()
	src, err := NewEEGResNet(testConfig(8, 2, 200), backend)
	require.NoError(t, err)
	src.Eval()

	path := filepath.Join(t.TempDir(), "eegresnet.cortex")
	require.NoError(t, serialization.SaveStateDict(path, src.StateDict(), "EEGResNet", nil))

	loaded, err := serialization.LoadStateDict(path)
	require.NoError(t, err)

	dst, err := NewEEGResNet(testConfig(8, 2, 200), backend)
	require.NoError(t, err)
	require.NoError(t, dst.LoadStateDict(loaded))
	dst.Eval()

	input := tensor.Randn(tensor.Shape{1, 8, 200}, backend)
	assert.Equal(t, src.Forward(input).Data(), dst.Forward(input).Data())
}

func TestEEGResNet_LegacyParamMapping(t *testing.T) {
	backend := cpu.New()
	src, err := NewEEGResNet(testConfig(8, 2, 200), backend)
	require.NoError(t, err)

	// Rewrite the classifier keys to their legacy names.
	stateDict := src.StateDict()
	legacy := make(map[string]*tensor.RawTensor, len(stateDict))
	for name, raw := range stateDict {
		switch name {
		case "final_layer.conv_classifier.weight":
			legacy["conv_classifier.weight"] = raw
		case "final_layer.conv_classifier.bias":
			legacy["conv_classifier.bias"] = raw
		default:
			legacy[name] = raw
		}
	}

	dst, err := NewEEGResNet(testConfig(8, 2, 200), backend)
	require.NoError(t, err)
	require.NoError(t, dst.LoadStateDict(legacy))

	assert.Equal(t,
		stateDict["final_layer.conv_classifier.weight"].Data(),
		dst.StateDict()["final_layer.conv_classifier.weight"].Data())
}

func BenchmarkEEGResNet_Forward(b *testing.B) {
	backend := cpu.New()
	model, err := NewEEGResNet(testConfig(22, 4, 1000), backend)
	if err != nil {
		b.Fatal(err)
	}
	model.Eval()
	input := tensor.Randn(tensor.Shape{1, 22, 1000}, backend)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		model.Forward(input)
	}
}

func TestEEGResNet_WrongRankPanics(t *testing.T) {
	backend := cpu.New()
	model, err := NewEEGResNet(testConfig(8, 2, 200), backend)
	require.NoError(t, err)

	input := tensor.Randn(tensor.Shape{8, 200}, backend)
	assert.Panics(t, func() { model.Forward(input) })
}
