package cpu

import (
	"fmt"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"

	"github.com/cortex-ml/cortex/internal/parallel"
	"github.com/cortex-ml/cortex/tensor"
)

// Conv2D performs 2D convolution using the im2col algorithm.
//
// Input shape:  [N, C_in, H, W]
// Kernel shape: [C_out, C_in, K_h, K_w]
// Output shape: [N, C_out, H_out, W_out]
//
// stride, padding and dilation are (height, width) pairs, so the two axes
// are controlled independently. Output dimensions:
//
//	out = (in + 2*pad - dil*(k-1) - 1) / stride + 1
//
// Algorithm:
//  1. Transform input patches into rows of a column matrix (im2col),
//     parallelized over output positions.
//  2. Multiply the flattened kernel against the column matrix with
//     blas32.Gemm.
//  3. Rearrange the [C_out, N*H_out*W_out] product into NCHW layout.
//
// Im2col converts convolution into a single matrix multiplication, which is
// cache-friendly and delegates the hot loop to BLAS.
func (cpu *CPUBackend) Conv2D(input, kernel *tensor.RawTensor, stride, padding, dilation [2]int) *tensor.RawTensor {
	inputShape := input.Shape()
	kernelShape := kernel.Shape()

	if len(inputShape) != 4 {
		panic(fmt.Sprintf("conv2d: input must be 4D [N,C,H,W], got %dD", len(inputShape)))
	}
	if len(kernelShape) != 4 {
		panic(fmt.Sprintf("conv2d: kernel must be 4D [C_out,C_in,K_h,K_w], got %dD", len(kernelShape)))
	}

	n := inputShape[0]
	cIn := inputShape[1]
	h := inputShape[2]
	w := inputShape[3]
	cOut := kernelShape[0]
	kh := kernelShape[2]
	kw := kernelShape[3]

	if cIn != kernelShape[1] {
		panic(fmt.Sprintf("conv2d: input channels %d != kernel channels %d", cIn, kernelShape[1]))
	}
	for _, v := range [][2]int{stride, dilation} {
		if v[0] <= 0 || v[1] <= 0 {
			panic(fmt.Sprintf("conv2d: stride and dilation must be positive, got stride=%v dilation=%v", stride, dilation))
		}
	}
	if padding[0] < 0 || padding[1] < 0 {
		panic(fmt.Sprintf("conv2d: negative padding %v", padding))
	}

	hOut := (h+2*padding[0]-dilation[0]*(kh-1)-1)/stride[0] + 1
	wOut := (w+2*padding[1]-dilation[1]*(kw-1)-1)/stride[1] + 1
	if hOut <= 0 || wOut <= 0 {
		panic(fmt.Sprintf("conv2d: invalid output dimensions: out_h=%d, out_w=%d (check kernel/stride/padding/dilation)", hOut, wOut))
	}

	output, err := tensor.NewRaw(tensor.Shape{n, cOut, hOut, wOut})
	if err != nil {
		panic(fmt.Sprintf("conv2d: failed to create output tensor: %v", err))
	}

	// Step 1: im2col.
	// colBuf: [N * H_out * W_out, C_in * K_h * K_w]
	colWidth := cIn * kh * kw
	colHeight := n * hOut * wOut
	colBuf := make([]float32, colHeight*colWidth)

	im2col(colBuf, input.Data(), im2colDims{
		n: n, c: cIn, h: h, w: w,
		kh: kh, kw: kw, hOut: hOut, wOut: wOut,
		stride: stride, padding: padding, dilation: dilation,
	}, cpu.pcfg)

	// Step 2: gemm. The kernel buffer is already [C_out, C_in*K_h*K_w] in
	// row-major layout, so result[i, j] = sum_k kernel[i, k] * colBuf[j, k]
	// is A @ B^T.
	prod := make([]float32, cOut*colHeight)
	blas32.Gemm(blas.NoTrans, blas.Trans, 1,
		blas32.General{Rows: cOut, Cols: colWidth, Stride: colWidth, Data: kernel.Data()},
		blas32.General{Rows: colHeight, Cols: colWidth, Stride: colWidth, Data: colBuf},
		0,
		blas32.General{Rows: cOut, Cols: colHeight, Stride: colHeight, Data: prod})

	// Step 3: rearrange [C_out, N*H_out*W_out] -> [N, C_out, H_out, W_out].
	outData := output.Data()
	plane := hOut * wOut
	parallel.ForBatch(n, cOut, func(b, c int) {
		src := prod[c*colHeight+b*plane:]
		dst := outData[b*cOut*plane+c*plane:]
		copy(dst[:plane], src[:plane])
	}, cpu.pcfg)

	return output
}

type im2colDims struct {
	n, c, h, w      int
	kh, kw          int
	hOut, wOut      int
	stride, padding [2]int
	dilation        [2]int
}

// im2col fills colBuf so that each row holds the (zero-padded) input patch
// for one output position, flattened as [c, kh, kw].
func im2col(colBuf, inputData []float32, d im2colDims, pcfg parallel.Config) {
	colWidth := d.c * d.kh * d.kw

	parallel.For(d.n*d.hOut*d.wOut, func(colIdx int) {
		outW := colIdx % d.wOut
		outH := (colIdx / d.wOut) % d.hOut
		n := colIdx / (d.wOut * d.hOut)

		hStart := outH*d.stride[0] - d.padding[0]
		wStart := outW*d.stride[1] - d.padding[1]

		bufIdx := colIdx * colWidth
		for c := 0; c < d.c; c++ {
			channelBase := n*d.c*d.h*d.w + c*d.h*d.w
			for kh := 0; kh < d.kh; kh++ {
				h := hStart + kh*d.dilation[0]
				for kw := 0; kw < d.kw; kw++ {
					w := wStart + kw*d.dilation[1]
					if h >= 0 && h < d.h && w >= 0 && w < d.w {
						colBuf[bufIdx] = inputData[channelBase+h*d.w+w]
					} else {
						colBuf[bufIdx] = 0
					}
					bufIdx++
				}
			}
		}
	}, pcfg)
}
