package cpu

import (
	"fmt"
	"math"

	"github.com/cortex-ml/cortex/internal/parallel"
	"github.com/cortex-ml/cortex/tensor"
)

// BatchNorm2D normalizes a [N, C, H, W] tensor per channel over (N, H, W):
//
//	y = gamma * (x - mean) / sqrt(var + eps) + beta
//
// In training mode the batch statistics are used for normalization (biased
// variance) and the running buffers are updated in place:
//
//	running = (1 - momentum) * running + momentum * batch
//
// matching the convention where momentum weighs the new observation. The
// running variance update uses the unbiased estimate. In eval mode the
// running buffers are used for normalization and left untouched.
func (cpu *CPUBackend) BatchNorm2D(x, gamma, beta, runningMean, runningVar *tensor.RawTensor,
	momentum, eps float32, training bool) *tensor.RawTensor {
	shape := x.Shape()
	if len(shape) != 4 {
		panic(fmt.Sprintf("batchnorm2d: input must be 4D [N,C,H,W], got %dD", len(shape)))
	}
	n, c, h, w := shape[0], shape[1], shape[2], shape[3]

	for name, t := range map[string]*tensor.RawTensor{
		"gamma": gamma, "beta": beta, "running_mean": runningMean, "running_var": runningVar,
	} {
		if !t.Shape().Equal(tensor.Shape{c}) {
			panic(fmt.Sprintf("batchnorm2d: %s shape %v, expected [%d]", name, t.Shape(), c))
		}
	}

	result, err := tensor.NewRaw(shape)
	if err != nil {
		panic(fmt.Sprintf("batchnorm2d: %v", err))
	}

	src := x.Data()
	dst := result.Data()
	gammaData := gamma.Data()
	betaData := beta.Data()
	meanData := runningMean.Data()
	varData := runningVar.Data()

	plane := h * w
	count := n * plane

	parallel.For(c, func(ci int) {
		var mean, variance float32

		if training {
			// Batch statistics over (N, H, W).
			var sum float64
			for b := 0; b < n; b++ {
				base := b*c*plane + ci*plane
				for i := 0; i < plane; i++ {
					sum += float64(src[base+i])
				}
			}
			mean = float32(sum / float64(count))

			var sqSum float64
			for b := 0; b < n; b++ {
				base := b*c*plane + ci*plane
				for i := 0; i < plane; i++ {
					d := float64(src[base+i] - mean)
					sqSum += d * d
				}
			}
			variance = float32(sqSum / float64(count)) // biased, used for normalization

			meanData[ci] = (1-momentum)*meanData[ci] + momentum*mean
			if count > 1 {
				unbiased := float32(sqSum / float64(count-1))
				varData[ci] = (1-momentum)*varData[ci] + momentum*unbiased
			}
		} else {
			mean = meanData[ci]
			variance = varData[ci]
		}

		invStd := float32(1.0 / math.Sqrt(float64(variance+eps)))
		scale := gammaData[ci] * invStd
		shift := betaData[ci] - mean*scale

		for b := 0; b < n; b++ {
			base := b*c*plane + ci*plane
			for i := 0; i < plane; i++ {
				dst[base+i] = src[base+i]*scale + shift
			}
		}
	}, cpu.pcfg)

	return result
}
