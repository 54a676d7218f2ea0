package cpu

import (
	"math"
	"testing"

	"github.com/cortex-ml/cortex/tensor"
)

func TestBatchNorm2D_Training(t *testing.T) {
	backend := New()

	x := mustRaw(t, []float32{1, 2, 3, 4}, tensor.Shape{1, 1, 1, 4})
	gamma := mustRaw(t, []float32{1}, tensor.Shape{1})
	beta := mustRaw(t, []float32{0}, tensor.Shape{1})
	runningMean := mustRaw(t, []float32{0}, tensor.Shape{1})
	runningVar := mustRaw(t, []float32{1}, tensor.Shape{1})

	output := backend.BatchNorm2D(x, gamma, beta, runningMean, runningVar, 0.1, 1e-5, true)

	// mean = 2.5, biased var = 1.25, so y = (x - 2.5) / sqrt(1.25).
	want := []float32{-1.3416, -0.4472, 0.4472, 1.3416}
	assertClose(t, output.Data(), want, 1e-3)

	// Running buffers blend in the batch statistics with momentum 0.1;
	// the variance update uses the unbiased estimate 5/3.
	if got := runningMean.Data()[0]; math.Abs(float64(got-0.25)) > 1e-5 {
		t.Errorf("running mean = %v, want 0.25", got)
	}
	if got := runningVar.Data()[0]; math.Abs(float64(got)-(0.9+0.1*5.0/3.0)) > 1e-5 {
		t.Errorf("running var = %v, want %v", got, 0.9+0.1*5.0/3.0)
	}
}

func TestBatchNorm2D_Eval(t *testing.T) {
	backend := New()

	x := mustRaw(t, []float32{1, 2, 3, 4}, tensor.Shape{1, 1, 1, 4})
	gamma := mustRaw(t, []float32{2}, tensor.Shape{1})
	beta := mustRaw(t, []float32{1}, tensor.Shape{1})
	runningMean := mustRaw(t, []float32{2}, tensor.Shape{1})
	runningVar := mustRaw(t, []float32{4}, tensor.Shape{1})

	output := backend.BatchNorm2D(x, gamma, beta, runningMean, runningVar, 0.1, 0, false)

	// y = 2 * (x - 2) / sqrt(4) + 1 = x - 1.
	assertClose(t, output.Data(), []float32{0, 1, 2, 3}, 1e-5)

	// Eval mode leaves the buffers untouched.
	if runningMean.Data()[0] != 2 || runningVar.Data()[0] != 4 {
		t.Errorf("eval mode modified running buffers: mean=%v var=%v",
			runningMean.Data()[0], runningVar.Data()[0])
	}
}

func TestBatchNorm2D_PerChannel(t *testing.T) {
	backend := New()

	// Two channels with different distributions; each must be normalized
	// with its own statistics.
	x := mustRaw(t, []float32{
		1, 3, // channel 0: mean 2
		10, 30, // channel 1: mean 20
	}, tensor.Shape{1, 2, 1, 2})
	gamma := mustRaw(t, []float32{1, 1}, tensor.Shape{2})
	beta := mustRaw(t, []float32{0, 0}, tensor.Shape{2})
	runningMean := mustRaw(t, []float32{0, 0}, tensor.Shape{2})
	runningVar := mustRaw(t, []float32{1, 1}, tensor.Shape{2})

	output := backend.BatchNorm2D(x, gamma, beta, runningMean, runningVar, 0.1, 1e-5, true)

	want := []float32{-1, 1, -1, 1}
	assertClose(t, output.Data(), want, 1e-3)
}

func TestBatchNorm2D_WrongRankPanics(t *testing.T) {
	backend := New()
	x := mustRaw(t, []float32{1, 2}, tensor.Shape{1, 2})
	scalar := mustRaw(t, []float32{1, 1}, tensor.Shape{2})

	defer func() {
		if recover() == nil {
			t.Error("2D input did not panic")
		}
	}()
	backend.BatchNorm2D(x, scalar, scalar, scalar, scalar, 0.1, 1e-5, true)
}
