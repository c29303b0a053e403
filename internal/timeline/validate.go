package timeline

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/topcoder-platform/challenge-api-v6-sub000/internal/phase"
)

// ValidateOverrides rejects overrides that reference phase ids missing from
// the catalog, listing all of them in one error.
func ValidateOverrides(ctx context.Context, c Catalog, overrides phase.Overrides) error {
	if len(overrides) == 0 {
		return nil
	}
	defs, err := c.Definitions(ctx)
	if err != nil {
		return err
	}
	var unknown []string
	for _, ov := range overrides {
		if _, ok := defs[ov.PhaseID]; !ok && !slices.Contains(unknown, ov.PhaseID) {
			unknown = append(unknown, ov.PhaseID)
		}
	}
	if len(unknown) > 0 {
		return phase.BadRequest(phase.ErrUnknownPhase, fmt.Sprintf("[%s]", strings.Join(unknown, ", ")))
	}
	return validateDurations(overrides)
}
