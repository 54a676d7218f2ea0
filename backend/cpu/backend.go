// Package cpu implements the pure-Go CPU backend for Cortex tensors.
package cpu

import (
	"fmt"

	"github.com/cortex-ml/cortex/internal/parallel"
	"github.com/cortex-ml/cortex/tensor"
)

// CPUBackend implements tensor operations on CPU. Heavy kernels
// (convolution, normalization, pooling) fan out over a worker pool.
type CPUBackend struct {
	pcfg parallel.Config
}

// New creates a new CPU backend with default parallelism.
func New() *CPUBackend {
	return &CPUBackend{pcfg: parallel.DefaultConfig()}
}

// NewSequential creates a CPU backend that runs all kernels on the calling
// goroutine. Useful for profiling and debugging.
func NewSequential() *CPUBackend {
	cfg := parallel.DefaultConfig()
	cfg.Enabled = false
	return &CPUBackend{pcfg: cfg}
}

// Name returns the backend name.
func (cpu *CPUBackend) Name() string {
	return "CPU"
}

// Add performs element-wise addition with NumPy-style broadcasting.
func (cpu *CPUBackend) Add(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binaryOp("add", a, b, func(x, y float32) float32 { return x + y })
}

// Mul performs element-wise multiplication with broadcasting.
func (cpu *CPUBackend) Mul(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binaryOp("mul", a, b, func(x, y float32) float32 { return x * y })
}

// MulScalar multiplies every element by a scalar.
func (cpu *CPUBackend) MulScalar(x *tensor.RawTensor, scalar float32) *tensor.RawTensor {
	result, err := tensor.NewRaw(x.Shape())
	if err != nil {
		panic(fmt.Sprintf("mulscalar: %v", err))
	}

	src := x.Data()
	dst := result.Data()
	for i := range src {
		dst[i] = src[i] * scalar
	}
	return result
}

// binaryOp applies op element-wise over a and b, broadcasting as needed.
func (cpu *CPUBackend) binaryOp(name string, a, b *tensor.RawTensor, op func(x, y float32) float32) *tensor.RawTensor {
	outShape, needsBroadcast, err := tensor.BroadcastShapes(a.Shape(), b.Shape())
	if err != nil {
		panic(fmt.Sprintf("%s: %v", name, err))
	}

	result, err := tensor.NewRaw(outShape)
	if err != nil {
		panic(fmt.Sprintf("%s: failed to create result tensor: %v", name, err))
	}

	if !needsBroadcast && a.Shape().Equal(b.Shape()) {
		// Fast path: identical layouts, flat loop.
		aData, bData, dst := a.Data(), b.Data(), result.Data()
		for i := range dst {
			dst[i] = op(aData[i], bData[i])
		}
		return result
	}

	binaryWithBroadcast(result, a, b, outShape, op)
	return result
}

// binaryWithBroadcast walks the output index space and maps each coordinate
// back into a and b, treating missing or size-1 dimensions as stride 0.
func binaryWithBroadcast(result, a, b *tensor.RawTensor, outShape tensor.Shape, op func(x, y float32) float32) {
	outStrides := outShape.ComputeStrides()
	aStrides := broadcastStrides(a.Shape(), outShape)
	bStrides := broadcastStrides(b.Shape(), outShape)

	aData, bData, dst := a.Data(), b.Data(), result.Data()
	for i := range dst {
		aIdx, bIdx := 0, 0
		rem := i
		for d := 0; d < len(outShape); d++ {
			coord := rem / outStrides[d]
			rem %= outStrides[d]
			aIdx += coord * aStrides[d]
			bIdx += coord * bStrides[d]
		}
		dst[i] = op(aData[aIdx], bData[bIdx])
	}
}

// broadcastStrides returns strides for shape aligned to the (longer) output
// shape, with zero strides on broadcast dimensions.
func broadcastStrides(shape, outShape tensor.Shape) []int {
	strides := shape.ComputeStrides()
	aligned := make([]int, len(outShape))
	offset := len(outShape) - len(shape)
	for d := range outShape {
		if d < offset {
			aligned[d] = 0
			continue
		}
		if shape[d-offset] == 1 && outShape[d] != 1 {
			aligned[d] = 0
		} else {
			aligned[d] = strides[d-offset]
		}
	}
	return aligned
}
