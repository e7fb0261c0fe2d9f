package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore keeps tickets, sections and events in process. Sections and
// events are owned by their ticket: deleting the ticket drops both.
type MemoryStore struct {
	mu       sync.RWMutex
	tickets  map[string]Ticket
	sections map[string]Section
	byTicket map[string][]string
	events   map[string][]EventLog
	replies  map[string]Reply
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tickets:  make(map[string]Ticket),
		sections: make(map[string]Section),
		byTicket: make(map[string][]string),
		events:   make(map[string][]EventLog),
		replies:  make(map[string]Reply),
	}
}

func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

func (s *MemoryStore) CreateTicket(_ context.Context, ticket Ticket, event *EventLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tickets[ticket.ID]; exists {
		return fmt.Errorf("insert ticket %s: already exists", ticket.ID)
	}
	ticket.Departments = append([]string(nil), ticket.Departments...)
	s.tickets[ticket.ID] = ticket
	if event != nil {
		s.events[ticket.ID] = append(s.events[ticket.ID], *event)
	}
	return nil
}

func (s *MemoryStore) GetTicket(_ context.Context, ticketID string) (Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ticket, ok := s.tickets[ticketID]
	if !ok {
		return Ticket{}, ErrNotFound
	}
	ticket.Departments = append([]string(nil), ticket.Departments...)
	return ticket, nil
}

func (s *MemoryStore) ListTickets(_ context.Context, filter TicketFilter) ([]Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tickets := make([]Ticket, 0, len(s.tickets))
	for _, ticket := range s.tickets {
		if filter.Status != "" && ticket.Status != filter.Status {
			continue
		}
		if filter.Department != "" && !ticket.InScope(filter.Department) {
			continue
		}
		ticket.Departments = append([]string(nil), ticket.Departments...)
		tickets = append(tickets, ticket)
	}
	sort.Slice(tickets, func(i, j int) bool {
		if !tickets[i].CreatedAt.Equal(tickets[j].CreatedAt) {
			return tickets[i].CreatedAt.After(tickets[j].CreatedAt)
		}
		return tickets[i].ID < tickets[j].ID
	})
	if filter.Limit > 0 && len(tickets) > filter.Limit {
		tickets = tickets[:filter.Limit]
	}
	return tickets, nil
}

func (s *MemoryStore) UpdateTicket(_ context.Context, ticket Ticket, event *EventLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tickets[ticket.ID]; !ok {
		return ErrNotFound
	}
	ticket.Departments = append([]string(nil), ticket.Departments...)
	s.tickets[ticket.ID] = ticket
	if event != nil {
		s.events[ticket.ID] = append(s.events[ticket.ID], *event)
	}
	return nil
}

func (s *MemoryStore) DeleteTicket(_ context.Context, ticketID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tickets[ticketID]; !ok {
		return ErrNotFound
	}
	for _, sectionID := range s.byTicket[ticketID] {
		delete(s.sections, sectionID)
	}
	delete(s.byTicket, ticketID)
	delete(s.events, ticketID)
	delete(s.replies, ticketID)
	delete(s.tickets, ticketID)
	return nil
}

func (s *MemoryStore) InsertSections(_ context.Context, sections []Section, events []EventLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, section := range sections {
		if _, ok := s.tickets[section.TicketID]; !ok {
			return fmt.Errorf("insert section %s: ticket %s: %w", section.ID, section.TicketID, ErrNotFound)
		}
		if _, exists := s.sections[section.ID]; exists {
			return fmt.Errorf("insert section %s: already exists", section.ID)
		}
	}
	for _, section := range sections {
		s.sections[section.ID] = section.Clone()
		s.byTicket[section.TicketID] = append(s.byTicket[section.TicketID], section.ID)
	}
	for _, event := range events {
		s.events[event.TicketID] = append(s.events[event.TicketID], event)
	}
	return nil
}

func (s *MemoryStore) GetSection(_ context.Context, sectionID string) (Section, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	section, ok := s.sections[sectionID]
	if !ok {
		return Section{}, ErrNotFound
	}
	return section.Clone(), nil
}

func (s *MemoryStore) ListTicketSections(_ context.Context, ticketID string) ([]Section, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byTicket[ticketID]
	sections := make([]Section, 0, len(ids))
	for _, id := range ids {
		sections = append(sections, s.sections[id].Clone())
	}
	SortSections(sections)
	return sections, nil
}

// ListSectionsByStatus scans every ticket; department may be empty.
func (s *MemoryStore) ListSectionsByStatus(_ context.Context, department string, status SectionStatus) ([]Section, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sections := make([]Section, 0)
	for _, section := range s.sections {
		if section.Status != status {
			continue
		}
		if department != "" && section.Department != department {
			continue
		}
		sections = append(sections, section.Clone())
	}
	sort.SliceStable(sections, func(i, j int) bool {
		if !sections[i].CreatedAt.Equal(sections[j].CreatedAt) {
			return sections[i].CreatedAt.Before(sections[j].CreatedAt)
		}
		return sections[i].ID < sections[j].ID
	})
	return sections, nil
}

// CommitSection replaces the stored section and appends event, if any, in
// one step.
func (s *MemoryStore) CommitSection(_ context.Context, section Section, event *EventLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.sections[section.ID]
	if !ok {
		return ErrNotFound
	}
	if existing.TicketID != section.TicketID {
		return fmt.Errorf("commit section %s: ticket ownership cannot change", section.ID)
	}
	s.sections[section.ID] = section.Clone()
	if event != nil {
		s.events[section.TicketID] = append(s.events[section.TicketID], *event)
	}
	return nil
}

func (s *MemoryStore) AppendEvent(_ context.Context, event EventLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tickets[event.TicketID]; !ok {
		return ErrNotFound
	}
	s.events[event.TicketID] = append(s.events[event.TicketID], event)
	return nil
}

func (s *MemoryStore) ListEvents(_ context.Context, ticketID string) ([]EventLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]EventLog{}, s.events[ticketID]...), nil
}

func (s *MemoryStore) SaveReply(_ context.Context, reply Reply) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tickets[reply.TicketID]; !ok {
		return ErrNotFound
	}
	s.replies[reply.TicketID] = reply
	return nil
}

func (s *MemoryStore) GetReply(_ context.Context, ticketID string) (Reply, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	reply, ok := s.replies[ticketID]
	if !ok {
		return Reply{}, ErrNotFound
	}
	return reply, nil
}
