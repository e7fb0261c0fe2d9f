package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"onereply/api/internal/atoms"
)

func seedMemoryTicket(t *testing.T, s *MemoryStore, id string, created time.Time, departments ...string) {
	t.Helper()
	require.NoError(t, s.CreateTicket(context.Background(), Ticket{
		ID:          id,
		Subject:     "subject " + id,
		Departments: departments,
		GatingMode:  GatingAll,
		Status:      TicketDrafting,
		CreatedAt:   created,
		UpdatedAt:   created,
	}, &EventLog{ID: "evt_" + id, TicketID: id, Type: EventCreated, CreatedAt: created}))
}

func TestMemoryStoreListTicketsFilters(t *testing.T) {
	s := NewMemoryStore()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	seedMemoryTicket(t, s, "t1", base, "planning")
	seedMemoryTicket(t, s, "t2", base.Add(time.Hour), "planning", "dpw")
	seedMemoryTicket(t, s, "t3", base.Add(2*time.Hour), "health")

	all, err := s.ListTickets(context.Background(), TicketFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "t3", all[0].ID)

	planning, err := s.ListTickets(context.Background(), TicketFilter{Department: "planning", Limit: 1})
	require.NoError(t, err)
	require.Len(t, planning, 1)
	assert.Equal(t, "t2", planning[0].ID)
}

func TestMemoryStoreSectionsAreIsolatedCopies(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()
	seedMemoryTicket(t, s, "t1", now, "dpw")

	section := Section{ID: "s1", TicketID: "t1", Department: "dpw", TopicKey: atoms.TopicSituation, Atoms: atoms.Empty(), Status: SectionPending, Annotations: []string{"a"}}
	require.NoError(t, s.InsertSections(ctx, []Section{section}, nil))

	section.Annotations[0] = "mutated"
	loaded, err := s.GetSection(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, loaded.Annotations)

	loaded.Annotations = append(loaded.Annotations, "b")
	again, err := s.GetSection(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, again.Annotations, 1)
}

func TestMemoryStoreListTicketSectionsOrdering(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()
	seedMemoryTicket(t, s, "t1", now, "dpw")

	require.NoError(t, s.InsertSections(ctx, []Section{
		{ID: "c", TicketID: "t1", Order: 2, CreatedAt: now},
		{ID: "b", TicketID: "t1", Order: 1, CreatedAt: now.Add(time.Second)},
		{ID: "a", TicketID: "t1", Order: 1, CreatedAt: now.Add(time.Second)},
	}, nil))

	sections, err := s.ListTicketSections(ctx, "t1")
	require.NoError(t, err)
	ids := []string{sections[0].ID, sections[1].ID, sections[2].ID}
	assert.Equal(t, []string{"a", "b", "c"}, ids)
}

func TestMemoryStoreCommitSectionKeepsOwnership(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()
	seedMemoryTicket(t, s, "t1", now, "dpw")
	seedMemoryTicket(t, s, "t2", now, "dpw")
	require.NoError(t, s.InsertSections(ctx, []Section{{ID: "s1", TicketID: "t1", Status: SectionPending}}, nil))

	err := s.CommitSection(ctx, Section{ID: "s1", TicketID: "t2", Status: SectionApproved}, nil)
	require.Error(t, err)

	err = s.CommitSection(ctx, Section{ID: "missing", TicketID: "t1"}, nil)
	assert.True(t, errors.Is(err, ErrNotFound))

	event := EventLog{ID: "e1", TicketID: "t1", SectionID: "s1", Type: EventSectionApproved}
	require.NoError(t, s.CommitSection(ctx, Section{ID: "s1", TicketID: "t1", Status: SectionApproved}, &event))

	events, err := s.ListEvents(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, EventSectionApproved, events[1].Type)
}

func TestMemoryStoreDeleteCascades(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	seedMemoryTicket(t, s, "t1", time.Now(), "dpw")
	require.NoError(t, s.InsertSections(ctx, []Section{{ID: "s1", TicketID: "t1", Status: SectionPending}}, nil))
	require.NoError(t, s.SaveReply(ctx, Reply{TicketID: "t1", Situation: "x"}))

	require.NoError(t, s.DeleteTicket(ctx, "t1"))

	_, err := s.GetSection(ctx, "s1")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.GetReply(ctx, "t1")
	assert.ErrorIs(t, err, ErrNotFound)
	events, err := s.ListEvents(ctx, "t1")
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.ErrorIs(t, s.DeleteTicket(ctx, "t1"), ErrNotFound)
}

func TestMemoryStoreInsertSectionsRequiresTicket(t *testing.T) {
	s := NewMemoryStore()
	err := s.InsertSections(context.Background(), []Section{{ID: "s1", TicketID: "nope"}}, nil)
	assert.ErrorIs(t, err, ErrNotFound)
}
