package nn

import (
	"fmt"
	"strings"

	"github.com/cortex-ml/cortex/tensor"
)

// Sequential chains modules, feeding each module's output to the next.
// Every child has a name; unnamed additions get a positional name ("0",
// "1", ...). Names become state-dict prefixes, so a conv added as
// "conv_time" stores its weight under "conv_time.weight".
type Sequential[B tensor.Backend] struct {
	names   []string
	modules []Module[B]
}

// NewSequential creates an empty sequential container.
func NewSequential[B tensor.Backend]() *Sequential[B] {
	return &Sequential[B]{}
}

// Add appends a module under a positional name and returns the container
// for chaining.
func (s *Sequential[B]) Add(module Module[B]) *Sequential[B] {
	return s.AddNamed(fmt.Sprintf("%d", len(s.modules)), module)
}

// AddNamed appends a module under the given name and returns the container
// for chaining.
func (s *Sequential[B]) AddNamed(name string, module Module[B]) *Sequential[B] {
	if module == nil {
		panic("sequential: cannot add nil module")
	}
	for _, existing := range s.names {
		if existing == name {
			panic(fmt.Sprintf("sequential: duplicate module name %q", name))
		}
	}
	s.names = append(s.names, name)
	s.modules = append(s.modules, module)
	return s
}

// Get returns the child registered under name, or nil.
func (s *Sequential[B]) Get(name string) Module[B] {
	for i, n := range s.names {
		if n == name {
			return s.modules[i]
		}
	}
	return nil
}

// Len returns the number of child modules.
func (s *Sequential[B]) Len() int {
	return len(s.modules)
}

// Forward runs the input through every module in order.
func (s *Sequential[B]) Forward(input *tensor.Tensor[B]) *tensor.Tensor[B] {
	output := input
	for _, module := range s.modules {
		output = module.Forward(output)
	}
	return output
}

// Parameters returns the parameters of all child modules.
func (s *Sequential[B]) Parameters() []*Parameter[B] {
	var params []*Parameter[B]
	for _, module := range s.modules {
		params = append(params, module.Parameters()...)
	}
	return params
}

// Children returns the child modules in execution order.
func (s *Sequential[B]) Children() []Module[B] {
	return s.modules
}

// StateDict collects the state of every stateful child, with keys prefixed
// by the child's name.
func (s *Sequential[B]) StateDict() map[string]*tensor.RawTensor {
	stateDict := make(map[string]*tensor.RawTensor)
	for i, module := range s.modules {
		stateful, ok := module.(Stateful)
		if !ok {
			continue
		}
		for key, value := range stateful.StateDict() {
			stateDict[s.names[i]+"."+key] = value
		}
	}
	return stateDict
}

// LoadStateDict distributes prefixed entries to the stateful children.
func (s *Sequential[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	for i, module := range s.modules {
		stateful, ok := module.(Stateful)
		if !ok {
			continue
		}
		prefix := s.names[i] + "."
		sub := make(map[string]*tensor.RawTensor)
		for key, value := range stateDict {
			if strings.HasPrefix(key, prefix) {
				sub[strings.TrimPrefix(key, prefix)] = value
			}
		}
		if err := stateful.LoadStateDict(sub); err != nil {
			return fmt.Errorf("module %q: %w", s.names[i], err)
		}
	}
	return nil
}

// String returns a string representation of the container.
func (s *Sequential[B]) String() string {
	var sb strings.Builder
	sb.WriteString("Sequential(\n")
	for i, module := range s.modules {
		sb.WriteString(fmt.Sprintf("  (%s): %v\n", s.names[i], module))
	}
	sb.WriteString(")")
	return sb.String()
}
