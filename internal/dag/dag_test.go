package dag

import (
	"errors"
	"slices"
	"testing"
)

// nodeSpec is (id, rank, predecessor...).
type nodeSpec struct {
	id    string
	rank  int
	preds []string
}

func buildDAG(t *testing.T, specs []nodeSpec) *DAG {
	t.Helper()
	d := New()
	for _, s := range specs {
		if err := d.AddNode(s.id, s.rank); err != nil {
			t.Fatalf("AddNode(%q): %v", s.id, err)
		}
	}
	for _, s := range specs {
		for _, p := range s.preds {
			if err := d.AddEdge(s.id, p); err != nil {
				t.Fatalf("AddEdge(%q, %q): %v", s.id, p, err)
			}
		}
	}
	return d
}

// validTopologicalOrder checks that every predecessor appears before its
// dependant in the ordering.
func validTopologicalOrder(d *DAG, order []string) bool {
	pos := make(map[string]int, len(order))
	for i, id := range order {
		pos[id] = i
	}
	for id, preds := range d.adjacency {
		for p := range preds {
			if pos[p] >= pos[id] {
				return false
			}
		}
	}
	return true
}

func TestNew(t *testing.T) {
	t.Parallel()
	got, err := New().TopologicalSort()
	if err != nil || len(got) != 0 {
		t.Errorf("new DAG sorts to %v, %v; want empty", got, err)
	}
}

func TestAddNode(t *testing.T) {
	t.Parallel()

	t.Run("basic add", func(t *testing.T) {
		t.Parallel()
		d := New()
		if err := d.AddNode("registration", 0); err != nil {
			t.Fatalf("AddNode: %v", err)
		}
		n := d.Node("registration")
		if n == nil {
			t.Fatal("Node(registration) returned nil")
		}
		if n.Rank != 0 {
			t.Errorf("Rank = %d, want 0", n.Rank)
		}
	})

	t.Run("duplicate", func(t *testing.T) {
		t.Parallel()
		d := New()
		_ = d.AddNode("a", 0)
		if err := d.AddNode("a", 1); !errors.Is(err, ErrDuplicateNode) {
			t.Errorf("AddNode duplicate err = %v, want ErrDuplicateNode", err)
		}
	})
}

func TestAddEdge(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		from    string
		to      string
		wantErr error
	}{
		{"self edge", "a", "a", ErrSelfEdge},
		{"missing from", "x", "a", ErrNodeNotFound},
		{"missing to", "a", "x", ErrNodeNotFound},
		{"cycle", "a", "b", ErrCycle},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d := buildDAG(t, []nodeSpec{{"a", 0, nil}, {"b", 1, []string{"a"}}})
			if err := d.AddEdge(tt.from, tt.to); !errors.Is(err, tt.wantErr) {
				t.Errorf("AddEdge(%q, %q) err = %v, want %v", tt.from, tt.to, err, tt.wantErr)
			}
		})
	}

	t.Run("repeated edge is a no-op", func(t *testing.T) {
		t.Parallel()
		d := buildDAG(t, []nodeSpec{{"a", 0, nil}, {"b", 1, []string{"a"}}})
		if err := d.AddEdge("b", "a"); err != nil {
			t.Errorf("AddEdge repeat: %v", err)
		}
	})
}

func TestTopologicalSort_Linear(t *testing.T) {
	t.Parallel()
	d := buildDAG(t, []nodeSpec{
		{"registration", 0, nil},
		{"submission", 1, []string{"registration"}},
		{"review", 2, []string{"submission"}},
		{"appeals", 3, []string{"review"}},
	})
	got, err := d.TopologicalSort()
	if err != nil {
		t.Fatalf("TopologicalSort: %v", err)
	}
	want := []string{"registration", "submission", "review", "appeals"}
	if !slices.Equal(got, want) {
		t.Errorf("TopologicalSort = %v, want %v", got, want)
	}
}

func TestTopologicalSort_OutOfOrderAuthoring(t *testing.T) {
	t.Parallel()
	// Submission is authored before its predecessor.
	d := buildDAG(t, []nodeSpec{
		{"submission", 0, []string{"registration"}},
		{"registration", 1, nil},
		{"review", 2, []string{"submission"}},
	})
	got, err := d.TopologicalSort()
	if err != nil {
		t.Fatalf("TopologicalSort: %v", err)
	}
	if !validTopologicalOrder(d, got) {
		t.Errorf("invalid order %v", got)
	}
	want := []string{"registration", "submission", "review"}
	if !slices.Equal(got, want) {
		t.Errorf("TopologicalSort = %v, want %v", got, want)
	}
}

func TestTopologicalSort_RankTiebreak(t *testing.T) {
	t.Parallel()
	// Two independent chains interleave by rank.
	d := buildDAG(t, []nodeSpec{
		{"a", 0, nil},
		{"c", 1, nil},
		{"b", 2, []string{"a"}},
		{"d", 3, []string{"c"}},
	})
	got, err := d.TopologicalSort()
	if err != nil {
		t.Fatalf("TopologicalSort: %v", err)
	}
	want := []string{"a", "c", "b", "d"}
	if !slices.Equal(got, want) {
		t.Errorf("TopologicalSort = %v, want %v", got, want)
	}
}

func TestTopologicalSort_Empty(t *testing.T) {
	t.Parallel()
	got, err := New().TopologicalSort()
	if err != nil {
		t.Fatalf("TopologicalSort: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("TopologicalSort = %v, want empty", got)
	}
}
