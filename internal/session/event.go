package session

import (
	"strings"

	"github.com/park285/cubetimer/internal/domain"
	"github.com/park285/cubetimer/internal/timer"
)

type EventType string

const (
	EventState           EventType = "state"
	EventScramble        EventType = "scramble"
	EventRecord          EventType = "record"
	EventSolveSaved      EventType = "solve_saved"
	EventSolveSaveFailed EventType = "solve_save_failed"
	EventSolveDeleted    EventType = "solve_deleted"
	EventError           EventType = "error"
)

// Event is what a controller tells its UI shell. Only the fields relevant
// to Type are set.
type Event struct {
	Type     EventType
	OwnerID  string
	State    *timer.Snapshot
	Scramble string
	Record   *domain.RecordEvent
	Solve    *domain.Solve
	Message  string
	Err      error
}

// PenaltyChoice is the verdict given while the timer is stopped.
type PenaltyChoice string

const (
	ChoiceOK      PenaltyChoice = "ok"
	ChoicePlusTwo PenaltyChoice = "+2"
	ChoiceDNF     PenaltyChoice = "DNF"
)

func ParseChoice(s string) (PenaltyChoice, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ok", "none", "":
		return ChoiceOK, true
	case "+2", "plus_two", "plus2":
		return ChoicePlusTwo, true
	case "dnf":
		return ChoiceDNF, true
	}
	return ChoiceOK, false
}

func (c PenaltyChoice) penalty() domain.Penalty {
	switch c {
	case ChoicePlusTwo:
		return domain.PenaltyPlusTwo
	case ChoiceDNF:
		return domain.PenaltyDNF
	default:
		return domain.PenaltyNone
	}
}
