package constants

// Phase is a state of the workflow run state machine.
type Phase string

// Stable values (stored in the run journal as-is).
const (
	PhaseLoad           Phase = "LOAD"
	PhaseSelectEligible Phase = "SELECT_ELIGIBLE"
	PhaseBuildPayloads  Phase = "BUILD_PAYLOADS"
	PhaseSubmit         Phase = "SUBMIT"
	PhasePersist        Phase = "PERSIST"
	PhaseWait           Phase = "WAIT"
	PhasePollResolve    Phase = "POLL_RESOLVE"
	PhaseDone           Phase = "DONE"  // terminal success
	PhaseAbort          Phase = "ABORT" // terminal failure
)

// Terminal reports whether no further phase can follow p.
func (p Phase) Terminal() bool {
	return p == PhaseDone || p == PhaseAbort
}

// MalformedPolicy decides what a run does with a row that cannot be built into a payload.
type MalformedPolicy string

const (
	MalformedSkip  MalformedPolicy = "skip"
	MalformedAbort MalformedPolicy = "abort"
)

// ParseMalformedPolicy falls back to MalformedSkip for unknown values.
func ParseMalformedPolicy(s string) MalformedPolicy {
	if MalformedPolicy(s) == MalformedAbort {
		return MalformedAbort
	}
	return MalformedSkip
}
