// Package tensor provides the float32 tensor core for Cortex.
//
// Tensors are the fundamental data structure of the library. This package
// provides:
//   - Shape with row-major strides and NumPy-style broadcasting rules
//   - RawTensor, the low-level flat buffer used by backends
//   - Tensor[B], the typed handle bound to a computation backend
//   - The Backend interface implemented by backend/cpu
//
// Basic usage:
//
//	backend := cpu.New()
//	x := tensor.Zeros(tensor.Shape{2, 3}, backend)
//	y := tensor.Ones(tensor.Shape{2, 3}, backend)
//	z := x.Add(y)
package tensor
