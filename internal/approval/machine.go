// Package approval owns the section status lifecycle of a ticket: status
// changes with their audit events, department and ticket aggregation, and
// first-responder gating across departments.
package approval

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"onereply/api/internal/atoms"
	"onereply/api/internal/store"
	"onereply/api/internal/util"
)

var (
	ErrSectionNotFound   = errors.New("section not found")
	ErrTicketNotFound    = errors.New("ticket not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrTicketAssembled   = errors.New("ticket is assembled")
)

// Repository is the storage the machine reads and mutates. CommitSection
// must persist the section and its event, when present, atomically.
type Repository interface {
	GetTicket(ctx context.Context, ticketID string) (store.Ticket, error)
	GetSection(ctx context.Context, sectionID string) (store.Section, error)
	ListTicketSections(ctx context.Context, ticketID string) ([]store.Section, error)
	CommitSection(ctx context.Context, section store.Section, event *store.EventLog) error
}

// Publisher receives events once they are committed.
type Publisher interface {
	Publish(ctx context.Context, event store.EventLog)
}

// SectionUpdate is a partial update. Nil fields are left unchanged.
// AddAnnotation is appended to the existing annotations when non-empty.
type SectionUpdate struct {
	Content       *string
	Status        *store.SectionStatus
	Annotations   *[]string
	AddAnnotation string
	Atoms         *atoms.DraftAtoms
	Order         *int
	Actor         string
	Detail        string
}

type Machine struct {
	repo      Repository
	locker    Locker
	publisher Publisher
	logger    *zap.Logger
	now       func() time.Time
}

type Option func(*Machine)

func WithClock(now func() time.Time) Option {
	return func(m *Machine) {
		m.now = now
	}
}

func NewMachine(repo Repository, locker Locker, publisher Publisher, logger *zap.Logger, opts ...Option) *Machine {
	if locker == nil {
		locker = NewLocalLocker()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Machine{
		repo:      repo,
		locker:    locker,
		publisher: publisher,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func ticketLockKey(ticketID string) string {
	return "ticket:" + ticketID
}

// WithTicketLock runs fn while holding the ticket's lock. fn must not call
// back into locking Machine methods for the same ticket.
func (m *Machine) WithTicketLock(ctx context.Context, ticketID string, fn func() error) error {
	return m.withTicketLock(ctx, ticketID, fn)
}

func (m *Machine) withTicketLock(ctx context.Context, ticketID string, fn func() error) error {
	unlock, err := m.locker.Lock(ctx, ticketLockKey(ticketID))
	if err != nil {
		return fmt.Errorf("lock ticket %s: %w", ticketID, err)
	}
	defer unlock()
	return fn()
}

func (m *Machine) loadSection(ctx context.Context, sectionID string) (store.Section, error) {
	section, err := m.repo.GetSection(ctx, sectionID)
	if errors.Is(err, store.ErrNotFound) {
		return store.Section{}, ErrSectionNotFound
	}
	if err != nil {
		return store.Section{}, fmt.Errorf("get section: %w", err)
	}
	return section, nil
}

func (m *Machine) loadTicket(ctx context.Context, ticketID string) (store.Ticket, error) {
	ticket, err := m.repo.GetTicket(ctx, ticketID)
	if errors.Is(err, store.ErrNotFound) {
		return store.Ticket{}, ErrTicketNotFound
	}
	if err != nil {
		return store.Ticket{}, fmt.Errorf("get ticket: %w", err)
	}
	return ticket, nil
}

// UpdateSection applies update under the ticket lock. A status change is
// committed together with exactly one event. Unknown ids return
// ErrSectionNotFound.
func (m *Machine) UpdateSection(ctx context.Context, sectionID string, update SectionUpdate) (store.Section, error) {
	section, err := m.loadSection(ctx, sectionID)
	if err != nil {
		return store.Section{}, err
	}

	var updated store.Section
	err = m.withTicketLock(ctx, section.TicketID, func() error {
		var err error
		updated, err = m.updateLocked(ctx, sectionID, update)
		return err
	})
	return updated, err
}

// Approve approves a section and, under first gating, locks the other
// departments' pending sections, all within one ticket lock.
func (m *Machine) Approve(ctx context.Context, sectionID, actor string) (store.Section, []store.Section, error) {
	section, err := m.loadSection(ctx, sectionID)
	if err != nil {
		return store.Section{}, nil, err
	}

	var (
		approved store.Section
		locked   []store.Section
	)
	status := store.SectionApproved
	err = m.withTicketLock(ctx, section.TicketID, func() error {
		var err error
		approved, err = m.updateLocked(ctx, sectionID, SectionUpdate{Status: &status, Actor: actor})
		if err != nil {
			return err
		}
		locked, err = m.applyGatingLocked(ctx, approved.TicketID, approved.Department, actor)
		return err
	})
	return approved, locked, err
}

func (m *Machine) Annotate(ctx context.Context, sectionID, note, actor string) (store.Section, error) {
	status := store.SectionAnnotated
	return m.UpdateSection(ctx, sectionID, SectionUpdate{Status: &status, AddAnnotation: note, Actor: actor, Detail: note})
}

func (m *Machine) Omit(ctx context.Context, sectionID, note, actor string) (store.Section, error) {
	status := store.SectionOmitted
	detail := "section omitted"
	if note != "" {
		detail = "section omitted: " + note
	}
	return m.UpdateSection(ctx, sectionID, SectionUpdate{Status: &status, AddAnnotation: note, Actor: actor, Detail: detail})
}

func (m *Machine) Lock(ctx context.Context, sectionID, actor string) (store.Section, error) {
	status := store.SectionLocked
	return m.UpdateSection(ctx, sectionID, SectionUpdate{Status: &status, Actor: actor})
}

// Reject returns a section to pending so it can be revised and reviewed again.
func (m *Machine) Reject(ctx context.Context, sectionID, note, actor string) (store.Section, error) {
	status := store.SectionPending
	return m.UpdateSection(ctx, sectionID, SectionUpdate{Status: &status, AddAnnotation: note, Actor: actor, Detail: note})
}

func (m *Machine) updateLocked(ctx context.Context, sectionID string, update SectionUpdate) (store.Section, error) {
	section, err := m.loadSection(ctx, sectionID)
	if err != nil {
		return store.Section{}, err
	}

	ticket, err := m.loadTicket(ctx, section.TicketID)
	if err != nil {
		return store.Section{}, err
	}
	if ticket.Status == store.TicketAssembled {
		return store.Section{}, ErrTicketAssembled
	}

	previous := section.Status
	if update.Status != nil && !CanTransition(previous, *update.Status) {
		return store.Section{}, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, previous, *update.Status)
	}

	if update.Content != nil {
		section.Content = *update.Content
	}
	if update.Atoms != nil {
		section.Atoms = update.Atoms.Normalize()
	}
	if update.Order != nil {
		section.Order = *update.Order
	}
	if update.Annotations != nil {
		section.Annotations = append([]string{}, (*update.Annotations)...)
	}
	if update.AddAnnotation != "" {
		section.Annotations = append(section.Annotations, update.AddAnnotation)
	}
	if update.Status != nil {
		section.Status = *update.Status
	}
	now := m.now()
	section.UpdatedAt = now

	var event *store.EventLog
	if section.Status != previous {
		event = &store.EventLog{
			ID:         util.NewID("evt"),
			TicketID:   section.TicketID,
			SectionID:  section.ID,
			Department: section.Department,
			TopicKey:   section.TopicKey,
			Type:       EventFor(section.Status),
			Actor:      update.Actor,
			Detail:     transitionDetail(previous, section.Status, update.Detail),
			CreatedAt:  now,
		}
	}

	if err := m.repo.CommitSection(ctx, section, event); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.Section{}, ErrSectionNotFound
		}
		return store.Section{}, fmt.Errorf("commit section: %w", err)
	}

	if event != nil {
		m.logger.Info("section status changed",
			zap.String("ticket_id", section.TicketID),
			zap.String("section_id", section.ID),
			zap.String("department", section.Department),
			zap.String("from", string(previous)),
			zap.String("to", string(section.Status)),
		)
		if m.publisher != nil {
			m.publisher.Publish(ctx, *event)
		}
	}
	return section, nil
}

func transitionDetail(from, to store.SectionStatus, detail string) string {
	if detail != "" {
		return detail
	}
	return fmt.Sprintf("status changed from %s to %s", from, to)
}

// ApplyGating locks every other in-scope department's pending sections once
// department has an approved section. It does nothing unless the ticket uses
// first gating. The newly locked sections are returned.
func (m *Machine) ApplyGating(ctx context.Context, ticketID, department string) ([]store.Section, error) {
	var locked []store.Section
	err := m.withTicketLock(ctx, ticketID, func() error {
		var err error
		locked, err = m.applyGatingLocked(ctx, ticketID, department, "")
		return err
	})
	return locked, err
}

func (m *Machine) applyGatingLocked(ctx context.Context, ticketID, department, actor string) ([]store.Section, error) {
	ticket, err := m.loadTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.GatingMode != store.GatingFirst {
		return nil, nil
	}

	sections, err := m.repo.ListTicketSections(ctx, ticketID)
	if err != nil {
		return nil, fmt.Errorf("list sections: %w", err)
	}
	cleared := false
	for _, section := range sections {
		if section.Department == department && section.Status == store.SectionApproved {
			cleared = true
			break
		}
	}
	if !cleared {
		return nil, nil
	}

	lockedStatus := store.SectionLocked
	locked := make([]store.Section, 0)
	for _, section := range sections {
		if section.Department == department || section.Status != store.SectionPending {
			continue
		}
		if len(ticket.Departments) > 0 && !ticket.InScope(section.Department) {
			continue
		}
		updated, err := m.updateLocked(ctx, section.ID, SectionUpdate{
			Status: &lockedStatus,
			Actor:  actor,
			Detail: "locked after " + department + " approval",
		})
		if err != nil {
			return locked, err
		}
		locked = append(locked, updated)
	}
	return locked, nil
}

// DepartmentStatus is recomputed from storage on every call.
func (m *Machine) DepartmentStatus(ctx context.Context, ticketID, department string) (store.SectionStatus, error) {
	sections, err := m.repo.ListTicketSections(ctx, ticketID)
	if err != nil {
		return "", fmt.Errorf("list sections: %w", err)
	}
	return AggregateDepartmentStatus(sections, department), nil
}

func (m *Machine) CanApproveTicket(ctx context.Context, ticketID string) (bool, error) {
	ticket, err := m.loadTicket(ctx, ticketID)
	if err != nil {
		return false, err
	}
	sections, err := m.repo.ListTicketSections(ctx, ticketID)
	if err != nil {
		return false, fmt.Errorf("list sections: %w", err)
	}
	return TicketApprovable(ticket, sections), nil
}

// Summary is a point-in-time view of a ticket's review progress.
type Summary struct {
	Departments map[string]store.SectionStatus `json:"departments"`
	CanApprove  bool                           `json:"canApprove"`
	Overall     OverallStatus                  `json:"overall"`
}

func (m *Machine) Summarize(ctx context.Context, ticketID string) (Summary, error) {
	ticket, err := m.loadTicket(ctx, ticketID)
	if err != nil {
		return Summary{}, err
	}
	sections, err := m.repo.ListTicketSections(ctx, ticketID)
	if err != nil {
		return Summary{}, fmt.Errorf("list sections: %w", err)
	}
	return Summary{
		Departments: DepartmentStatuses(ticket, sections),
		CanApprove:  TicketApprovable(ticket, sections),
		Overall:     Overall(sections),
	}, nil
}
