package lifecycle

import "github.com/topcoder-platform/challenge-api-v6-sub000/internal/phase"

// Deletion is the outcome of removing one phase from a challenge.
type Deletion struct {
	// UpdatedSiblings holds only the siblings whose predecessor changed.
	UpdatedSiblings []phase.Instance `json:"updatedSiblings"`
	DeletedID       string           `json:"deletedId"`
}

// DeletePhase re-links every sibling chained to instance onto instance's own
// predecessor. When another instance of the same phase remains (a later
// iterative round), only siblings naming this instance's id are re-linked.
// The caller deletes the instance and its constraints in the same
// transaction that saves the updated siblings.
func DeletePhase(instance phase.Instance, siblings []phase.Instance) Deletion {
	phaseRemains := false
	for _, s := range siblings {
		if s.ID != instance.ID && s.PhaseID == instance.PhaseID {
			phaseRemains = true
			break
		}
	}

	var updated []phase.Instance
	for _, s := range siblings {
		if s.ID == instance.ID || s.IsRoot() {
			continue
		}
		if s.Predecessor != instance.ID && (phaseRemains || s.Predecessor != instance.PhaseID) {
			continue
		}
		next := s.Clone()
		next.Predecessor = instance.Predecessor
		updated = append(updated, next)
	}
	return Deletion{UpdatedSiblings: updated, DeletedID: instance.ID}
}
