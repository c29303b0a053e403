package phase

import (
	"encoding/json"
	"errors"
	"io"
	"strings"
	"time"
)

// Override is a caller-supplied adjustment for one template phase, keyed by
// phase definition id. Nil fields are "not supplied"; a nil Constraints slice
// leaves the existing constraints untouched.
type Override struct {
	PhaseID        string       `json:"phaseId"`
	Duration       *int64       `json:"duration,omitempty"`
	Constraints    []Constraint `json:"constraints,omitempty"`
	ScheduledStart *time.Time   `json:"scheduledStartDate,omitempty"`
}

// Overrides is a sparse list of per-phase overrides.
type Overrides []Override

// For returns the first override for phaseID.
func (o Overrides) For(phaseID string) (Override, bool) {
	for _, ov := range o {
		if ov.PhaseID == phaseID {
			return ov, true
		}
	}
	return Override{}, false
}

// Patch is a direct partial update of a single phase instance.
type Patch struct {
	PhaseID        *string      `json:"phaseId,omitempty"`
	Predecessor    *string      `json:"predecessor,omitempty"`
	IsOpen         *bool        `json:"isOpen,omitempty"`
	Duration       *int64       `json:"duration,omitempty"`
	ScheduledStart *time.Time   `json:"scheduledStartDate,omitempty"`
	ScheduledEnd   *time.Time   `json:"scheduledEndDate,omitempty"`
	ActualStart    *time.Time   `json:"actualStartDate,omitempty"`
	ActualEnd      *time.Time   `json:"actualEndDate,omitempty"`
	Constraints    []Constraint `json:"constraints,omitempty"`
}

// DecodePatch reads a JSON patch, rejecting fields the engine does not know.
func DecodePatch(r io.Reader) (Patch, error) {
	var p Patch
	if err := decodeStrict(r, &p); err != nil {
		return Patch{}, err
	}
	return p, nil
}

// DecodeOverrides reads a JSON array of overrides.
func DecodeOverrides(r io.Reader) (Overrides, error) {
	var o Overrides
	if err := decodeStrict(r, &o); err != nil {
		return nil, err
	}
	return o, nil
}

func decodeStrict(r io.Reader, v any) error {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return BadRequest(ErrMalformed, "empty payload")
		}
		// encoding/json reports unknown fields only through the message text.
		if strings.HasPrefix(err.Error(), "json: unknown field") {
			return BadRequest(ErrUnknownField, strings.TrimPrefix(err.Error(), "json: unknown field "))
		}
		return BadRequest(ErrMalformed, err.Error())
	}
	return nil
}
