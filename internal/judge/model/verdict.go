package model

import "fmt"

// Verdict is the judging status of a submission.
// The zero value is VerdictPending.
type Verdict int

const (
	VerdictPending Verdict = iota
	VerdictJudging
	VerdictAccepted
	VerdictWrongAnswer
	VerdictTimeLimitExceeded
	VerdictRuntimeError
)

// Code returns the stored two/three letter code.
func (v Verdict) Code() string {
	switch v {
	case VerdictPending:
		return "PD"
	case VerdictJudging:
		return "RJ"
	case VerdictAccepted:
		return "AC"
	case VerdictWrongAnswer:
		return "WA"
	case VerdictTimeLimitExceeded:
		return "TLE"
	case VerdictRuntimeError:
		return "RE"
	default:
		return fmt.Sprintf("Verdict(%d)", int(v))
	}
}

func (v Verdict) String() string {
	switch v {
	case VerdictPending:
		return "Pending"
	case VerdictJudging:
		return "Judging"
	case VerdictAccepted:
		return "Accepted"
	case VerdictWrongAnswer:
		return "WrongAnswer"
	case VerdictTimeLimitExceeded:
		return "TimeLimitExceeded"
	case VerdictRuntimeError:
		return "RuntimeError"
	default:
		return fmt.Sprintf("Verdict(%d)", int(v))
	}
}

// ParseVerdict maps a stored code back to a Verdict.
func ParseVerdict(code string) (Verdict, error) {
	switch code {
	case "PD":
		return VerdictPending, nil
	case "RJ":
		return VerdictJudging, nil
	case "AC":
		return VerdictAccepted, nil
	case "WA":
		return VerdictWrongAnswer, nil
	case "TLE":
		return VerdictTimeLimitExceeded, nil
	case "RE":
		return VerdictRuntimeError, nil
	default:
		return VerdictPending, fmt.Errorf("unknown verdict code %q", code)
	}
}

// IsTerminal reports whether v is a final verdict.
func (v Verdict) IsTerminal() bool {
	switch v {
	case VerdictAccepted, VerdictWrongAnswer, VerdictTimeLimitExceeded, VerdictRuntimeError:
		return true
	default:
		return false
	}
}

// CanTransition reports whether a submission may move from v to next.
// Allowed: Pending -> Judging, Judging -> any terminal verdict.
func (v Verdict) CanTransition(next Verdict) bool {
	switch v {
	case VerdictPending:
		return next == VerdictJudging
	case VerdictJudging:
		return next.IsTerminal()
	default:
		return false
	}
}

// MarshalText stores the verdict as its code.
func (v Verdict) MarshalText() ([]byte, error) {
	return []byte(v.Code()), nil
}

// UnmarshalText parses a verdict code.
func (v *Verdict) UnmarshalText(text []byte) error {
	parsed, err := ParseVerdict(string(text))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
