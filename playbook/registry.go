package playbook

import (
	"context"
	"fmt"
	"sort"
	"sync"

	exprlang "github.com/expr-lang/expr"
	exprvm "github.com/expr-lang/expr/vm"

	"github.com/xraph/steward"
)

// Func is the playbook entry point. It receives the run, reads
// run.Params, does its work and records findings on the run.
type Func func(ctx context.Context, run *Run) error

// Definition declares a playbook.
type Definition struct {
	// Name uniquely identifies the playbook.
	Name string

	// Func executes the playbook.
	Func Func

	// When is an optional condition expression evaluated against the
	// run parameters (bound as "params"). When it evaluates to false
	// the run is rejected with steward.ErrConditionFailed. Compiled
	// once at registration.
	When string
}

type entry struct {
	def  Definition
	when *exprvm.Program
}

// Registry holds registered playbooks by name.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// NewRegistry creates an empty playbook registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Register adds a playbook definition. Registering a name twice or a
// definition without a function is an error. The When expression, if
// present, is compiled here so a bad expression fails fast.
func (r *Registry) Register(def Definition) error {
	if def.Name == "" {
		return fmt.Errorf("playbook: register: name is required")
	}
	if def.Func == nil {
		return fmt.Errorf("playbook: register %s: func is required", def.Name)
	}

	e := &entry{def: def}
	if def.When != "" {
		prog, err := exprlang.Compile(def.When,
			exprlang.Env(map[string]any{"params": map[string]string{}}),
			exprlang.AsBool(),
		)
		if err != nil {
			return fmt.Errorf("playbook: register %s: compile condition: %w", def.Name, err)
		}
		e.when = prog
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[def.Name]; exists {
		return fmt.Errorf("playbook: register %s: %w", def.Name, steward.ErrDuplicatePlaybook)
	}
	r.entries[def.Name] = e
	return nil
}

// MustRegister is like Register but panics on error. Use for static
// registration at startup.
func (r *Registry) MustRegister(def Definition) {
	if err := r.Register(def); err != nil {
		panic(err)
	}
}

// Get returns the definition for name.
func (r *Registry) Get(name string) (Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return Definition{}, fmt.Errorf("playbook: %s: %w", name, steward.ErrPlaybookNotFound)
	}
	return e.def, nil
}

// Has reports whether a playbook with the given name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[name]
	return ok
}

// Names returns the registered playbook names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Allowed evaluates the playbook's condition against the run params.
// Playbooks without a condition always run. A condition error or a
// false result rejects the run with steward.ErrConditionFailed.
func (r *Registry) Allowed(name string, params map[string]string) error {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("playbook: %s: %w", name, steward.ErrPlaybookNotFound)
	}
	if e.when == nil {
		return nil
	}

	if params == nil {
		params = map[string]string{}
	}
	out, err := exprlang.Run(e.when, map[string]any{"params": params})
	if err != nil {
		return fmt.Errorf("playbook: %s: evaluate condition: %w", name, err)
	}
	if allowed, _ := out.(bool); !allowed {
		return fmt.Errorf("playbook: %s: %w", name, steward.ErrConditionFailed)
	}
	return nil
}
