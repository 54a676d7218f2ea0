package tensor

// Backend defines the interface compute backends must implement.
// Backends handle the actual computation for tensor operations.
//
// Cortex ships a pure-Go CPU backend (backend/cpu). The interface exists so
// that models and layers stay independent of how the kernels are executed.
//
// Convolution and pooling parameters are given as [2]int pairs, ordered
// (height, width). For EEG tensors laid out as [batch, filters, time,
// channels] the first element is the temporal axis.
type Backend interface {
	// Element-wise operations (NumPy-style broadcasting).
	Add(a, b *RawTensor) *RawTensor
	Mul(a, b *RawTensor) *RawTensor
	MulScalar(x *RawTensor, scalar float32) *RawTensor

	// Conv2D performs 2D convolution with independent per-axis stride,
	// zero-padding and dilation.
	// Input [N, C_in, H, W], kernel [C_out, C_in, K_h, K_w].
	Conv2D(input, kernel *RawTensor, stride, padding, dilation [2]int) *RawTensor

	// ELU applies the exponential linear unit element-wise:
	// x if x > 0, else alpha*(exp(x)-1).
	ELU(x *RawTensor, alpha float32) *RawTensor

	// BatchNorm2D normalizes [N, C, H, W] per channel over (N, H, W).
	// In training mode batch statistics are used and the running buffers are
	// updated in place; in eval mode the running buffers are used.
	BatchNorm2D(x, gamma, beta, runningMean, runningVar *RawTensor,
		momentum, eps float32, training bool) *RawTensor

	// GlobalAvgPool2D averages [N, C, H, W] over the spatial axes,
	// producing [N, C, 1, 1].
	GlobalAvgPool2D(x *RawTensor) *RawTensor

	// Shape operations.
	Reshape(t *RawTensor, newShape Shape) *RawTensor
	Transpose(t *RawTensor, axes ...int) *RawTensor
	Cat(tensors []*RawTensor, dim int) *RawTensor
	Unsqueeze(x *RawTensor, dim int) *RawTensor
	Squeeze(x *RawTensor, dim int) *RawTensor

	// Metadata.
	Name() string
}
