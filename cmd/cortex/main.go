// Package main provides the Cortex CLI.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/cortex-ml/cortex/backend/cpu"
	"github.com/cortex-ml/cortex/models"
	"github.com/cortex-ml/cortex/serialization"
	"github.com/cortex-ml/cortex/tensor"
)

const version = "v0.1.0-dev"

func main() {
	if len(os.Args) > 1 && os.Args[1] == "version" {
		fmt.Printf("Cortex %s\n", version)
		return
	}

	nChans := flag.Int("chans", 22, "number of EEG channels")
	nOutputs := flag.Int("outputs", 4, "number of output classes")
	nTimes := flag.Int("times", 1000, "time samples per input window")
	batch := flag.Int("batch", 2, "batch size of the demo window")
	save := flag.String("save", "", "optional path to write the model state to")
	flag.Parse()

	if err := run(*nChans, *nOutputs, *nTimes, *batch, *save); err != nil {
		fmt.Fprintf(os.Stderr, "cortex: %v\n", err)
		os.Exit(1)
	}
}

func run(nChans, nOutputs, nTimes, batch int, save string) error {
	backend := cpu.New()

	config := models.DefaultConfig[*cpu.CPUBackend]()
	config.NChans = nChans
	config.NOutputs = nOutputs
	config.NTimes = nTimes

	model, err := models.NewEEGResNet(config, backend)
	if err != nil {
		return err
	}
	model.Eval()

	fmt.Printf("Cortex %s\n", version)
	fmt.Printf("Model: %v\n", model)

	window := tensor.Randn(tensor.Shape{batch, nChans, nTimes}, backend)
	output := model.Forward(window)
	fmt.Printf("Input:  %v\n", window.Shape())
	fmt.Printf("Output: %v\n", output.Shape())
	for i := 0; i < batch; i++ {
		scores := make([]float32, nOutputs)
		for j := 0; j < nOutputs; j++ {
			scores[j] = output.At(i, j)
		}
		fmt.Printf("  window %d scores: %v\n", i, scores)
	}

	if save != "" {
		if err := serialization.SaveStateDict(save, model.StateDict(), "EEGResNet", nil); err != nil {
			return fmt.Errorf("failed to save model: %w", err)
		}
		fmt.Printf("Saved state to %s\n", save)
	}
	return nil
}
