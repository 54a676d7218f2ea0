// Package models implements neural network architectures for EEG decoding.
package models

import (
	"fmt"
)

// SignalConfig describes the EEG recordings a model is built for: how many
// electrode channels, how many output classes, and how many time samples
// per input window.
//
// NChans and NTimes can be given directly or derived: NChans from the
// ChsInfo channel descriptions, NTimes from InputWindowSeconds and SFreq.
// Giving both a direct value and its source is allowed only when they
// agree.
type SignalConfig struct {
	// NChans is the number of EEG channels.
	NChans int

	// NOutputs is the number of model outputs, typically the number of
	// classes to predict.
	NOutputs int

	// NTimes is the number of time samples per input window. May be left
	// zero (unknown) for models that do not need it at construction time.
	NTimes int

	// ChsInfo optionally names the recording's channels. When set, NChans
	// is derived from its length.
	ChsInfo []string

	// InputWindowSeconds is the input window length in seconds. Together
	// with SFreq it determines NTimes.
	InputWindowSeconds float64

	// SFreq is the sampling frequency in Hz. Defaults to 250 when an
	// input window is given without a frequency.
	SFreq float64
}

const defaultSFreq = 250

// resolve fills derivable fields and validates consistency.
func (c *SignalConfig) resolve() error {
	if len(c.ChsInfo) > 0 {
		if c.NChans != 0 && c.NChans != len(c.ChsInfo) {
			return fmt.Errorf("n_chans %d contradicts %d channel descriptions", c.NChans, len(c.ChsInfo))
		}
		c.NChans = len(c.ChsInfo)
	}

	if c.InputWindowSeconds > 0 {
		if c.SFreq == 0 {
			c.SFreq = defaultSFreq
		}
		derived := int(c.InputWindowSeconds * c.SFreq)
		if c.NTimes != 0 && c.NTimes != derived {
			return fmt.Errorf("n_times %d contradicts input_window_seconds %g * sfreq %g = %d",
				c.NTimes, c.InputWindowSeconds, c.SFreq, derived)
		}
		c.NTimes = derived
	}

	if c.NChans <= 0 {
		return fmt.Errorf("number of channels must be positive, got %d", c.NChans)
	}
	if c.NOutputs <= 0 {
		return fmt.Errorf("number of outputs must be positive, got %d", c.NOutputs)
	}
	// NTimes may stay zero (unknown): models that do not need the window
	// length up front accept inputs of any temporal length.
	if c.NTimes < 0 {
		return fmt.Errorf("number of time samples must not be negative, got %d", c.NTimes)
	}
	return nil
}
