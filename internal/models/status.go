package models

// Status is the lifecycle state of an order.
type Status string

const (
	StatusDraft              Status = "DRAFT"
	StatusPending            Status = "PENDING"
	StatusSyncing            Status = "SYNCING"
	StatusCompleted          Status = "COMPLETED"
	StatusCompletedWarehouse Status = "COMPLETED_WAREHOUSE"
	StatusError              Status = "ERROR"
)

// validNext encodes the legal forward edges. ERROR -> PENDING is the only
// backward edge (manual retry).
var validNext = map[Status]map[Status]bool{
	StatusDraft:              {StatusPending: true, StatusCompletedWarehouse: true},
	StatusPending:            {StatusSyncing: true, StatusCompletedWarehouse: true},
	StatusSyncing:            {StatusCompleted: true, StatusError: true},
	StatusError:              {StatusPending: true},
	StatusCompleted:          {},
	StatusCompletedWarehouse: {},
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

// Editable reports whether an order in this status may still be edited
// or deleted locally.
func (s Status) Editable() bool {
	return s == StatusDraft || s == StatusPending || s == StatusError
}

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return len(validNext[s]) == 0
}
