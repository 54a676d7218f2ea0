package cpu

import (
	"fmt"
	"math"

	"github.com/cortex-ml/cortex/tensor"
)

// ELU applies the exponential linear unit element-wise:
//
//	f(x) = x               if x > 0
//	f(x) = alpha*(e^x - 1) otherwise
func (cpu *CPUBackend) ELU(x *tensor.RawTensor, alpha float32) *tensor.RawTensor {
	result, err := tensor.NewRaw(x.Shape())
	if err != nil {
		panic(fmt.Sprintf("elu: %v", err))
	}

	src := x.Data()
	dst := result.Data()
	for i, v := range src {
		if v > 0 {
			dst[i] = v
		} else {
			dst[i] = alpha * float32(math.Expm1(float64(v)))
		}
	}
	return result
}
