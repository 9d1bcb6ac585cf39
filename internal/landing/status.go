package landing

type Status int

const (
	StatusWaitingForDisplay Status = iota
	StatusWaitingForParticipant
	StatusOccupied
	StatusInconsistent
)

// StatusFor classifies the server from the number of connected clients per
// role. It holds no state; callers re-evaluate it on every decision. More
// than one client of a role is always Inconsistent.
func StatusFor(displays, participants int) Status {
	switch {
	case displays > 1 || participants > 1:
		return StatusInconsistent
	case displays == 0:
		return StatusWaitingForDisplay
	case participants == 0:
		return StatusWaitingForParticipant
	default:
		return StatusOccupied
	}
}

func (s Status) String() string {
	switch s {
	case StatusWaitingForDisplay:
		return "waiting_for_display"
	case StatusWaitingForParticipant:
		return "waiting_for_participant"
	case StatusOccupied:
		return "occupied"
	default:
		return "inconsistent"
	}
}
