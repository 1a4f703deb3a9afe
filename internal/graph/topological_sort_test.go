package graph

import (
	"reflect"
	"strings"
	"testing"
)

type node struct {
	name string
	deps []string
}

func (n node) GetName() string           { return n.name }
func (n node) GetDependencies() []string { return n.deps }

func graphOf(nodes ...node) map[string]Node {
	m := make(map[string]Node, len(nodes))
	for _, n := range nodes {
		m[n.name] = n
	}
	return m
}

func TestTopologicalSort(t *testing.T) {
	order, err := TopologicalSort(graphOf(
		node{name: "server", deps: []string{"storage"}},
		node{name: "storage"},
		node{name: "platforms"},
		node{name: "notify"},
	))
	if err != nil {
		t.Fatalf("TopologicalSort() error = %v", err)
	}

	want := []string{"notify", "platforms", "storage", "server"}
	if !reflect.DeepEqual(order, want) {
		t.Errorf("order = %v, want %v", order, want)
	}
}

func TestTopologicalSortCycle(t *testing.T) {
	_, err := TopologicalSort(graphOf(
		node{name: "a", deps: []string{"b"}},
		node{name: "b", deps: []string{"a"}},
	))
	if err == nil || !strings.Contains(err.Error(), "a -> b -> a") {
		t.Errorf("error = %v, want cycle a -> b -> a", err)
	}
}

func TestValidateGraphUnknownDependency(t *testing.T) {
	err := ValidateGraph(graphOf(node{name: "server", deps: []string{"storage"}}))
	if err == nil {
		t.Fatal("expected error for unknown dependency")
	}
}
