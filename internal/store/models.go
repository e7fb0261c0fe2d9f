package store

import (
	"time"

	"onereply/api/internal/atoms"
)

type SectionStatus string

const (
	SectionPending   SectionStatus = "pending"
	SectionAnnotated SectionStatus = "annotated"
	SectionApproved  SectionStatus = "approved"
	SectionLocked    SectionStatus = "locked"
	SectionOmitted   SectionStatus = "omitted"
)

func (s SectionStatus) Valid() bool {
	switch s {
	case SectionPending, SectionAnnotated, SectionApproved, SectionLocked, SectionOmitted:
		return true
	default:
		return false
	}
}

type GatingMode string

const (
	GatingAll   GatingMode = "all"
	GatingFirst GatingMode = "first"
)

type TicketStatus string

const (
	TicketDrafting  TicketStatus = "drafting"
	TicketReviewing TicketStatus = "reviewing"
	TicketReady     TicketStatus = "ready"
	TicketAssembled TicketStatus = "assembled"
)

type EventType string

const (
	EventCreated          EventType = "created"
	EventDraftGenerated   EventType = "draft_generated"
	EventSectionAnnotated EventType = "section_annotated"
	EventSectionApproved  EventType = "section_approved"
	EventSectionLocked    EventType = "section_locked"
	EventSectionReopened  EventType = "section_reopened"
	EventTicketAssembled  EventType = "ticket_assembled"
	EventTicketDeleted    EventType = "ticket_deleted"
)

type Ticket struct {
	ID          string       `json:"id"`
	Subject     string       `json:"subject"`
	Requester   string       `json:"requester"`
	Body        string       `json:"body"`
	Departments []string     `json:"departments"`
	GatingMode  GatingMode   `json:"gatingMode"`
	Status      TicketStatus `json:"status"`
	ReplyCommit string       `json:"replyCommit,omitempty"`
	AssembledAt *time.Time   `json:"assembledAt,omitempty"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

// InScope reports whether department is one of the ticket's departments.
func (t Ticket) InScope(department string) bool {
	for _, d := range t.Departments {
		if d == department {
			return true
		}
	}
	return false
}

// Section is owned by exactly one ticket through TicketID.
type Section struct {
	ID          string           `json:"id"`
	TicketID    string           `json:"ticketId"`
	Department  string           `json:"department"`
	TopicKey    atoms.TopicKey   `json:"sectionKey"`
	Title       string           `json:"title"`
	Content     string           `json:"content"`
	Atoms       atoms.DraftAtoms `json:"atoms"`
	Status      SectionStatus    `json:"status"`
	Annotations []string         `json:"annotations"`
	Order       int              `json:"order"`
	CreatedAt   time.Time        `json:"createdAt"`
	UpdatedAt   time.Time        `json:"updatedAt"`
}

// Clone returns a copy that shares no slices with s.
func (s Section) Clone() Section {
	out := s
	out.Annotations = append([]string(nil), s.Annotations...)
	out.Atoms = cloneAtoms(s.Atoms)
	return out
}

func cloneAtoms(a atoms.DraftAtoms) atoms.DraftAtoms {
	out := atoms.DraftAtoms{
		Situation: atoms.Situation{
			Understanding: append([]string(nil), a.Situation.Understanding...),
			PropertyFacts: append([]atoms.PropertyFact(nil), a.Situation.PropertyFacts...),
		},
		Guidance: atoms.Guidance{
			Recommendations: append([]string(nil), a.Guidance.Recommendations...),
			Citations:       append([]atoms.Citation(nil), a.Guidance.Citations...),
		},
		NextSteps: atoms.NextSteps{
			Followups: append([]string(nil), a.NextSteps.Followups...),
			Actions:   append([]string(nil), a.NextSteps.Actions...),
		},
	}
	return out.Normalize()
}

// EventLog is an append-only audit record.
type EventLog struct {
	ID         string         `json:"id"`
	TicketID   string         `json:"ticketId"`
	SectionID  string         `json:"sectionId,omitempty"`
	Department string         `json:"department,omitempty"`
	TopicKey   atoms.TopicKey `json:"sectionKey,omitempty"`
	Type       EventType      `json:"type"`
	Actor      string         `json:"actor,omitempty"`
	Detail     string         `json:"detail,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
}

type TicketFilter struct {
	Status     TicketStatus
	Department string
	Limit      int
}

// Reply is the stored, rendered outcome of assembling a ticket.
type Reply struct {
	TicketID    string           `json:"ticketId"`
	Situation   string           `json:"situation"`
	Guidance    string           `json:"guidance"`
	NextSteps   string           `json:"nextsteps"`
	Atoms       atoms.DraftAtoms `json:"atoms"`
	CommitHash  string           `json:"commitHash,omitempty"`
	AssembledAt time.Time        `json:"assembledAt"`
}
