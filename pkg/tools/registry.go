package tools

import (
	"sync"

	"github.com/invopop/jsonschema"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/RhineAGI/rhine/pkg/schema"
)

// Definition describes one registered tool the way the completion endpoint
// expects it: name, free-text description, and a JSON schema for its
// arguments.
type Definition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

type registeredTool struct {
	definition Definition
	fn         schema.Callable
}

// Registry maps tool names to callables. It is populated during startup and
// treated as read-only during dispatch; the lock only guards against a
// misbehaving late registration.
type Registry struct {
	mu        sync.RWMutex
	tools     map[string]registeredTool
	order     []string
	reflector *jsonschema.Reflector
}

func NewRegistry() *Registry {
	return &Registry{
		tools:     make(map[string]registeredTool),
		reflector: &jsonschema.Reflector{DoNotReference: true},
	}
}

// Register adds a tool function under the given name, deriving the argument
// schema from the function signature by reflection. Registering the same
// name twice replaces the previous definition.
func (r *Registry) Register(name string, description string, fn schema.Callable) error {
	paramSchema, err := schema.FunctionParametersSchema(r.reflector, fn)
	if err != nil {
		return errors.Wrapf(err, "failed to generate schema for tool %s", name)
	}

	params, err := schema.ToMap(paramSchema)
	if err != nil {
		return errors.Wrapf(err, "failed to convert schema for tool %s", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; !exists {
		r.order = append(r.order, name)
	}
	r.tools[name] = registeredTool{
		definition: Definition{
			Name:        name,
			Description: description,
			Parameters:  params,
		},
		fn: fn,
	}

	log.Debug().Str("tool", name).Msg("registered tool")

	return nil
}

// Call invokes the named tool with JSON-shaped arguments and returns its
// first return value. A function returning (T, error) propagates the error.
func (r *Registry) Call(name string, args interface{}) (interface{}, error) {
	r.mu.RLock()
	tool, exists := r.tools[name]
	r.mu.RUnlock()

	if !exists {
		return nil, errors.Errorf("tool %q not found", name)
	}

	results, err := schema.CallFunctionFromJSON(tool.fn, args)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to execute tool %s", name)
	}

	switch len(results) {
	case 0:
		return nil, nil
	case 1:
		return results[0].Interface(), nil
	default:
		// (value, error) convention
		if errVal, ok := results[len(results)-1].Interface().(error); ok && errVal != nil {
			return nil, errVal
		}
		return results[0].Interface(), nil
	}
}

// Has reports whether a tool with the given name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.tools[name]
	return exists
}

// Definitions returns the registered tool definitions in registration order.
func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ret := make([]Definition, 0, len(r.order))
	for _, name := range r.order {
		ret = append(ret, r.tools[name].definition)
	}
	return ret
}

// Names returns the names of all registered tools in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]string(nil), r.order...)
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.tools)
}

var defaultRegistry = NewRegistry()

// Default returns the process-wide registry consulted during tool dispatch.
func Default() *Registry {
	return defaultRegistry
}

// Register adds a tool to the process-wide registry.
func Register(name string, description string, fn schema.Callable) error {
	return defaultRegistry.Register(name, description, fn)
}
