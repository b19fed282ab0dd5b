package camera

import (
	"fmt"
	"slices"
	"sync"
)

// PipelineHandler claims devices from the enumerator and turns them into
// cameras.
type PipelineHandler interface {
	// Match tries to claim one device group. On success it registers the
	// resulting cameras with Manager.AddCamera and returns true.
	Match(e Enumerator) bool
}

// PipelineHandlerFactory creates pipeline handlers of one kind.
type PipelineHandlerFactory struct {
	Name   string
	Create func(m *Manager) PipelineHandler
}

var (
	factories   []PipelineHandlerFactory
	factoriesMu sync.RWMutex
)

// RegisterPipelineHandler adds a factory to the process-wide registry.
// It should be called from package init() functions; registration order
// is matching order. Registering a name twice panics.
func RegisterPipelineHandler(f PipelineHandlerFactory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()

	if f.Create == nil {
		panic(fmt.Sprintf("camera: pipeline handler %q has no Create func", f.Name))
	}
	if slices.ContainsFunc(factories, func(x PipelineHandlerFactory) bool { return x.Name == f.Name }) {
		panic(fmt.Sprintf("camera: pipeline handler %q registered twice", f.Name))
	}
	factories = append(factories, f)
}

// PipelineHandlerFactories returns the registered factories in
// registration order.
func PipelineHandlerFactories() []PipelineHandlerFactory {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	return slices.Clone(factories)
}

// orderFactories restricts all to the names in order, in that order. An
// empty order keeps all. Unknown names are returned separately.
func orderFactories(all []PipelineHandlerFactory, order []string) ([]PipelineHandlerFactory, []string) {
	if len(order) == 0 {
		return all, nil
	}
	var selected []PipelineHandlerFactory
	var unknown []string
	for _, name := range order {
		i := slices.IndexFunc(all, func(f PipelineHandlerFactory) bool { return f.Name == name })
		if i < 0 {
			unknown = append(unknown, name)
			continue
		}
		selected = append(selected, all[i])
	}
	return selected, unknown
}
