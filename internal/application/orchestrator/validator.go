package orchestrator

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

var (
	// ErrMissingDependency marks a module depending on an unregistered module
	ErrMissingDependency = errors.New("missing dependency")

	// ErrCircularDependency marks a module that is part of a dependency cycle
	ErrCircularDependency = errors.New("circular dependency")
)

// Validator checks module dependency graphs
type Validator struct{}

// NewValidator creates a new dependency validator
func NewValidator() *Validator {
	return &Validator{}
}

// Validate inspects a graph of module name → dependency names and returns an
// error for every module that can never be initialized because it depends on
// an unregistered module or sits on a dependency cycle. Modules that merely
// depend on such a module are left to the initialization passes.
func (v *Validator) Validate(graph map[string][]string) map[string]error {
	problems := make(map[string]error)

	names := make([]string, 0, len(graph))
	for name := range graph {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		for _, dep := range graph[name] {
			if _, ok := graph[dep]; !ok {
				problems[name] = fmt.Errorf("module %q depends on unregistered module %q: %w",
					name, dep, ErrMissingDependency)
				break
			}
		}
	}

	for _, cycle := range findCycles(names, graph) {
		err := fmt.Errorf("%w among %s", ErrCircularDependency, strings.Join(cycle, ", "))
		for _, name := range cycle {
			if _, ok := problems[name]; !ok {
				problems[name] = err
			}
		}
	}

	return problems
}

// findCycles returns the strongly connected components that form cycles,
// each sorted by name. Edges to unknown modules are ignored.
func findCycles(names []string, graph map[string][]string) [][]string {
	t := &tarjan{
		graph:   graph,
		index:   make(map[string]int, len(names)),
		lowlink: make(map[string]int, len(names)),
		onStack: make(map[string]bool, len(names)),
	}
	for _, name := range names {
		if _, seen := t.index[name]; !seen {
			t.visit(name)
		}
	}
	return t.cycles
}

type tarjan struct {
	graph   map[string][]string
	counter int
	index   map[string]int
	lowlink map[string]int
	onStack map[string]bool
	stack   []string
	cycles  [][]string
}

func (t *tarjan) visit(name string) {
	t.index[name] = t.counter
	t.lowlink[name] = t.counter
	t.counter++
	t.stack = append(t.stack, name)
	t.onStack[name] = true

	selfLoop := false
	for _, dep := range t.graph[name] {
		if _, known := t.graph[dep]; !known {
			continue
		}
		if dep == name {
			selfLoop = true
		}
		if _, seen := t.index[dep]; !seen {
			t.visit(dep)
			t.lowlink[name] = min(t.lowlink[name], t.lowlink[dep])
		} else if t.onStack[dep] {
			t.lowlink[name] = min(t.lowlink[name], t.index[dep])
		}
	}

	if t.lowlink[name] != t.index[name] {
		return
	}

	var component []string
	for {
		top := t.stack[len(t.stack)-1]
		t.stack = t.stack[:len(t.stack)-1]
		t.onStack[top] = false
		component = append(component, top)
		if top == name {
			break
		}
	}
	if len(component) > 1 || selfLoop {
		slices.Sort(component)
		t.cycles = append(t.cycles, component)
	}
}
