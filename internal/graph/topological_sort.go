package graph

import (
	"fmt"
	"slices"
	"strings"
)

type Node interface {
	GetName() string
	GetDependencies() []string
}

// TopologicalSort orders nodes so every node follows its dependencies.
// Independent nodes come out in name order, so the result is stable across
// runs.
func TopologicalSort(nodes map[string]Node) ([]string, error) {
	if err := ValidateGraph(nodes); err != nil {
		return nil, err
	}

	visited := make(map[string]bool)
	var path []string
	result := make([]string, 0, len(nodes))

	var visit func(string) error
	visit = func(name string) error {
		if visited[name] {
			return nil
		}
		if i := slices.Index(path, name); i >= 0 {
			cycle := append(slices.Clone(path[i:]), name)
			return fmt.Errorf("dependency cycle: %s", strings.Join(cycle, " -> "))
		}

		path = append(path, name)
		deps := slices.Clone(nodes[name].GetDependencies())
		slices.Sort(deps)
		for _, dep := range deps {
			if err := visit(dep); err != nil {
				return err
			}
		}
		path = path[:len(path)-1]

		visited[name] = true
		result = append(result, name)
		return nil
	}

	names := make([]string, 0, len(nodes))
	for name := range nodes {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		if err := visit(name); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func ValidateGraph(nodes map[string]Node) error {
	for name, node := range nodes {
		for _, dep := range node.GetDependencies() {
			if _, exists := nodes[dep]; !exists {
				return fmt.Errorf("%s depends on unknown component %s", name, dep)
			}
		}
	}
	return nil
}
