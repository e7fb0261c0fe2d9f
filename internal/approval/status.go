package approval

import "onereply/api/internal/store"

// OverallStatus is the coarse progress of a ticket's review.
type OverallStatus string

const (
	OverallDraft      OverallStatus = "draft"
	OverallInProgress OverallStatus = "in_progress"
	OverallCompleted  OverallStatus = "completed"
)

// AggregateDepartmentStatus folds the statuses of one department's sections.
// The checks run in this order: every section approved, locked or omitted
// gives approved; otherwise any annotated gives annotated; otherwise any
// omitted gives omitted; otherwise pending. A department with no sections is
// pending.
func AggregateDepartmentStatus(sections []store.Section, department string) store.SectionStatus {
	statuses := make([]store.SectionStatus, 0, len(sections))
	for _, section := range sections {
		if section.Department == department {
			statuses = append(statuses, section.Status)
		}
	}
	if len(statuses) == 0 {
		return store.SectionPending
	}

	cleared := true
	anyAnnotated := false
	anyOmitted := false
	for _, status := range statuses {
		switch status {
		case store.SectionApproved, store.SectionLocked:
		case store.SectionOmitted:
			anyOmitted = true
		case store.SectionAnnotated:
			anyAnnotated = true
			cleared = false
		default:
			cleared = false
		}
	}
	switch {
	case cleared:
		return store.SectionApproved
	case anyAnnotated:
		return store.SectionAnnotated
	case anyOmitted:
		return store.SectionOmitted
	default:
		return store.SectionPending
	}
}

// DepartmentStatuses aggregates every in-scope department of ticket.
func DepartmentStatuses(ticket store.Ticket, sections []store.Section) map[string]store.SectionStatus {
	out := make(map[string]store.SectionStatus, len(ticket.Departments))
	for _, department := range ticket.Departments {
		out[department] = AggregateDepartmentStatus(sections, department)
	}
	return out
}

// TicketApprovable reports whether the ticket may be assembled. Under gating
// mode all, every in-scope department must be approved or omitted; under
// first, one is enough. A ticket with no departments in scope is never
// approvable.
func TicketApprovable(ticket store.Ticket, sections []store.Section) bool {
	if len(ticket.Departments) == 0 {
		return false
	}
	cleared := 0
	for _, department := range ticket.Departments {
		switch AggregateDepartmentStatus(sections, department) {
		case store.SectionApproved, store.SectionOmitted:
			cleared++
		}
	}
	if ticket.GatingMode == store.GatingFirst {
		return cleared > 0
	}
	return cleared == len(ticket.Departments)
}

// Overall reports draft when nothing is approved, completed when every
// section is approved and in_progress otherwise.
func Overall(sections []store.Section) OverallStatus {
	if len(sections) == 0 {
		return OverallDraft
	}
	approved := 0
	for _, section := range sections {
		if section.Status == store.SectionApproved {
			approved++
		}
	}
	switch {
	case approved == len(sections):
		return OverallCompleted
	case approved > 0:
		return OverallInProgress
	default:
		return OverallDraft
	}
}

// CanTransition reports whether a section may move from one status to
// another. Pending and annotated sections may move to any other status.
// Approved, locked and omitted sections only go back to pending, through a
// reject. Staying in place is always allowed.
func CanTransition(from, to store.SectionStatus) bool {
	if !to.Valid() {
		return false
	}
	if from == to {
		return true
	}
	switch from {
	case store.SectionPending:
		return true
	case store.SectionAnnotated:
		return to != store.SectionPending
	case store.SectionApproved, store.SectionLocked, store.SectionOmitted:
		return to == store.SectionPending
	default:
		return false
	}
}

// EventFor classifies a status change. Omission is recorded as an annotation
// event; a return to pending is recorded as a reopen.
func EventFor(to store.SectionStatus) store.EventType {
	switch to {
	case store.SectionApproved:
		return store.EventSectionApproved
	case store.SectionLocked:
		return store.EventSectionLocked
	case store.SectionPending:
		return store.EventSectionReopened
	default:
		return store.EventSectionAnnotated
	}
}
