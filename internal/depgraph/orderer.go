// Package depgraph orders object types for restore so that referenced
// parents are created before the children that point at them.
package depgraph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/yourbasic/graph"

	"github.com/orgctl/orgctl/internal/metadata"
)

// priorityObjects are platform types nearly everything implicitly depends
// on. They are force-ordered first, in this order, regardless of graph
// position.
var priorityObjects = []string{
	"User",
	"RecordType",
	"BusinessHours",
	"Organization",
	"UserRole",
	"Profile",
	"PermissionSet",
	"Group",
}

// Orderer computes restore order over a set of object types.
type Orderer struct {
	meta *metadata.Cache
	log  func(string)
}

// NewOrderer creates an orderer. The log sink receives warnings about
// skipped cycle edges; it may be nil.
func NewOrderer(meta *metadata.Cache, log func(string)) *Orderer {
	if log == nil {
		log = func(string) {}
	}
	return &Orderer{meta: meta, log: log}
}

// buildGraph returns, per type, the set of types it depends on. An edge
// exists when a required relationship field references a type that is also
// in the restore set. Self-references are ignored.
func (o *Orderer) buildGraph(objectNames []string) (map[string]map[string]bool, error) {
	inSet := make(map[string]bool, len(objectNames))
	for _, name := range objectNames {
		inSet[name] = true
	}

	deps := make(map[string]map[string]bool, len(objectNames))
	for _, name := range objectNames {
		deps[name] = make(map[string]bool)
		md, err := o.meta.Describe(name)
		if err != nil {
			return nil, err
		}
		for _, rel := range md.RelationshipFields {
			if !rel.Required() {
				continue
			}
			for _, referenced := range rel.ReferenceTo {
				if referenced != name && inSet[referenced] {
					deps[name][referenced] = true
				}
			}
		}
	}
	return deps, nil
}

// OrderForRestore returns the object types sorted so that every type
// appears after the types it depends on. Priority platform types come
// first. Cycles never fail the ordering: the closing edge is skipped and a
// warning is logged.
func (o *Orderer) OrderForRestore(objectNames []string) ([]string, error) {
	deps, err := o.buildGraph(objectNames)
	if err != nil {
		return nil, err
	}

	inSet := make(map[string]bool, len(objectNames))
	for _, name := range objectNames {
		inSet[name] = true
	}

	var ordered []string
	visited := make(map[string]bool)
	onPath := make(map[string]bool)

	var visit func(name string)
	visit = func(name string) {
		if visited[name] {
			return
		}
		if onPath[name] {
			o.log(fmt.Sprintf("Warning: circular dependency detected at %s, using best-effort order", name))
			return
		}
		onPath[name] = true
		parents := sortedKeys(deps[name])
		for _, parent := range parents {
			visit(parent)
		}
		onPath[name] = false
		visited[name] = true
		ordered = append(ordered, name)
	}

	for _, name := range priorityObjects {
		if inSet[name] {
			visit(name)
		}
	}

	remaining := make([]string, 0, len(objectNames))
	for _, name := range objectNames {
		if !visited[name] {
			remaining = append(remaining, name)
		}
	}
	sort.Strings(remaining)
	for _, name := range remaining {
		visit(name)
	}

	return ordered, nil
}

// GroupForParallelProcessing partitions the types into ordered levels.
// Every member of a level has no unmet dependency within the remaining
// set, so members of one level can be restored concurrently. A cyclic
// remainder that can make no progress becomes one final level with a
// warning.
func (o *Orderer) GroupForParallelProcessing(objectNames []string) ([][]string, error) {
	deps, err := o.buildGraph(objectNames)
	if err != nil {
		return nil, err
	}

	done := make(map[string]bool, len(objectNames))
	remaining := make([]string, len(objectNames))
	copy(remaining, objectNames)
	sort.Strings(remaining)

	var levels [][]string
	for len(remaining) > 0 {
		var level, next []string
		for _, name := range remaining {
			satisfied := true
			for parent := range deps[name] {
				if !done[parent] {
					satisfied = false
					break
				}
			}
			if satisfied {
				level = append(level, name)
			} else {
				next = append(next, name)
			}
		}

		if len(level) == 0 {
			o.log(fmt.Sprintf("Warning: circular dependency among %s, restoring as one group", strings.Join(next, ", ")))
			levels = append(levels, next)
			break
		}

		for _, name := range level {
			done[name] = true
		}
		levels = append(levels, level)
		remaining = next
	}

	return levels, nil
}

// ValidateOrder checks that an ordering satisfies every dependency edge.
// Violations are returned as human-readable descriptions; an empty slice
// means the order is safe.
func (o *Orderer) ValidateOrder(ordered []string) ([]string, error) {
	deps, err := o.buildGraph(ordered)
	if err != nil {
		return nil, err
	}

	position := make(map[string]int, len(ordered))
	for i, name := range ordered {
		position[name] = i
	}

	var violations []string
	for _, name := range ordered {
		for parent := range deps[name] {
			if position[parent] > position[name] {
				violations = append(violations, fmt.Sprintf("%s is restored before its dependency %s", name, parent))
			}
		}
	}
	sort.Strings(violations)
	return violations, nil
}

// CyclicComponents reports the strongly connected components with more
// than one member, i.e. the groups of types that mutually depend on each
// other. Used by order/preview output to explain best-effort ordering.
func (o *Orderer) CyclicComponents(objectNames []string) ([][]string, error) {
	deps, err := o.buildGraph(objectNames)
	if err != nil {
		return nil, err
	}

	names := make([]string, len(objectNames))
	copy(names, objectNames)
	sort.Strings(names)
	index := make(map[string]int, len(names))
	for i, name := range names {
		index[name] = i
	}

	g := graph.New(len(names))
	for name, parents := range deps {
		for parent := range parents {
			g.Add(index[name], index[parent])
		}
	}

	var cycles [][]string
	for _, component := range graph.StrongComponents(g) {
		if len(component) < 2 {
			continue
		}
		members := make([]string, 0, len(component))
		for _, v := range component {
			members = append(members, names[v])
		}
		sort.Strings(members)
		cycles = append(cycles, members)
	}
	sort.Slice(cycles, func(i, j int) bool { return cycles[i][0] < cycles[j][0] })
	return cycles, nil
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
