package types

import (
	"fmt"
	"strings"
)

// UnitError represents a failure while submitting or confirming one atomic
// unit of a liquidation.
type UnitError struct {
	Unit      int      // 1-based position of the unit in the attempt
	Steps     []string // step names bundled in the unit
	Stage     string   // UnitStageSubmit or UnitStageConfirm
	Signature string   // set when the transaction reached the network
	Err       error
}

// Unit failure stages.
const (
	UnitStageSubmit  = "submit"
	UnitStageConfirm = "confirm"
)

func (e *UnitError) Error() string {
	steps := strings.Join(e.Steps, "+")
	if e.Signature != "" {
		return fmt.Sprintf("unit %d (%s) %s failed (sig: %s): %v", e.Unit, steps, e.Stage, e.Signature, e.Err)
	}

	return fmt.Sprintf("unit %d (%s) %s failed: %v", e.Unit, steps, e.Stage, e.Err)
}

func (e *UnitError) Unwrap() error {
	return e.Err
}
