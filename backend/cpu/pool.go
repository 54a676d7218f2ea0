package cpu

import (
	"fmt"

	"github.com/cortex-ml/cortex/internal/parallel"
	"github.com/cortex-ml/cortex/tensor"
)

// GlobalAvgPool2D averages a [N, C, H, W] tensor over its spatial axes,
// producing [N, C, 1, 1]. Equivalent to adaptive average pooling with a
// (1, 1) target.
func (cpu *CPUBackend) GlobalAvgPool2D(x *tensor.RawTensor) *tensor.RawTensor {
	shape := x.Shape()
	if len(shape) != 4 {
		panic(fmt.Sprintf("globalavgpool2d: input must be 4D [N,C,H,W], got %dD", len(shape)))
	}
	n, c, h, w := shape[0], shape[1], shape[2], shape[3]

	result, err := tensor.NewRaw(tensor.Shape{n, c, 1, 1})
	if err != nil {
		panic(fmt.Sprintf("globalavgpool2d: %v", err))
	}

	src := x.Data()
	dst := result.Data()
	plane := h * w

	parallel.ForBatch(n, c, func(b, ci int) {
		base := b*c*plane + ci*plane
		var sum float64
		for i := 0; i < plane; i++ {
			sum += float64(src[base+i])
		}
		dst[b*c+ci] = float32(sum / float64(plane))
	}, cpu.pcfg)

	return result
}
