package nn

import (
	"fmt"

	"github.com/cortex-ml/cortex/tensor"
)

// ELU is an exponential linear unit activation module.
//
// Applies the element-wise function:
//
//	f(x) = x                  if x > 0
//	f(x) = alpha*(exp(x) - 1) otherwise
//
// ELU keeps negative outputs bounded at -alpha and has smooth gradients
// around zero, which works well for EEG decoding networks.
type ELU[B tensor.Backend] struct {
	alpha float32
}

// NewELU creates a new ELU activation module. The standard alpha is 1.0.
func NewELU[B tensor.Backend](alpha float32) *ELU[B] {
	return &ELU[B]{alpha: alpha}
}

// Forward applies the ELU activation.
func (e *ELU[B]) Forward(input *tensor.Tensor[B]) *tensor.Tensor[B] {
	backend := input.Backend()
	return tensor.New(backend.ELU(input.Raw(), e.alpha), backend)
}

// Parameters returns an empty slice (ELU has no trainable parameters).
func (e *ELU[B]) Parameters() []*Parameter[B] {
	return nil
}

// Alpha returns the saturation constant.
func (e *ELU[B]) Alpha() float32 {
	return e.alpha
}

// String returns a string representation of the module.
func (e *ELU[B]) String() string {
	return fmt.Sprintf("ELU(alpha=%g)", e.alpha)
}
