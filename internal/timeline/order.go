package timeline

import (
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/topcoder-platform/challenge-api-v6-sub000/internal/catalog"
	"github.com/topcoder-platform/challenge-api-v6-sub000/internal/dag"
	"github.com/topcoder-platform/challenge-api-v6-sub000/internal/phase"
)

// firstByPhase maps each phase id to the index of its first instance. Later
// instances of the same phase (iterative rounds) never anchor a dependant.
func firstByPhase(list []phase.Instance) map[string]int {
	m := make(map[string]int, len(list))
	for i, in := range list {
		if _, ok := m[in.PhaseID]; !ok {
			m[in.PhaseID] = i
		}
	}
	return m
}

// chainOrder returns the indexes of list in an order where every predecessor
// precedes its dependants; list order breaks ties. Predecessors that match no
// sibling are ignored here and reported by the passes.
func chainOrder(list []phase.Instance) ([]int, error) {
	first := firstByPhase(list)
	d := dag.New()
	for i := range list {
		if err := d.AddNode(strconv.Itoa(i), i); err != nil {
			return nil, err
		}
	}
	for i, in := range list {
		if in.IsRoot() {
			continue
		}
		j, ok := first[in.Predecessor]
		if !ok || j == i {
			continue
		}
		if err := d.AddEdge(strconv.Itoa(i), strconv.Itoa(j)); err != nil {
			if errors.Is(err, dag.ErrCycle) {
				return nil, phase.BadRequest(phase.ErrPredecessorCycle,
					fmt.Sprintf("%s -> %s", in.Name, list[j].Name))
			}
			return nil, err
		}
	}

	ids, err := d.TopologicalSort()
	if err != nil {
		return nil, phase.BadRequest(phase.ErrPredecessorCycle, err.Error())
	}
	order := make([]int, len(ids))
	for k, id := range ids {
		order[k], _ = strconv.Atoi(id)
	}
	return order, nil
}

// templateOrder returns a copy of list sorted by each phase's position in the
// template. Persisted phases usually arrive sorted by date, which would pick
// the wrong first root. Phases missing from the template keep their relative
// order at the end.
func templateOrder(list []phase.Instance, tpl *catalog.Resolved) []phase.Instance {
	out := phase.CloneAll(list)
	sort.SliceStable(out, func(i, j int) bool {
		ri, iok := tpl.Rank(out[i].PhaseID)
		rj, jok := tpl.Rank(out[j].PhaseID)
		switch {
		case iok && jok:
			return ri < rj
		case iok:
			return true
		default:
			return false
		}
	})
	return out
}
