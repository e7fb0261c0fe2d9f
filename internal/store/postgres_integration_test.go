package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"onereply/api/internal/atoms"
)

func openTestDatabase(t *testing.T) (*sql.DB, context.Context) {
	t.Helper()
	dsn := strings.TrimSpace(os.Getenv("ONEREPLY_TEST_DATABASE_URL"))
	if dsn == "" {
		t.Skip("ONEREPLY_TEST_DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	t.Cleanup(cancel)

	db, err := Open(ctx, dsn, DefaultPoolOptions())
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if _, err := db.ExecContext(ctx, `DROP SCHEMA IF EXISTS public CASCADE; CREATE SCHEMA public;`); err != nil {
		t.Fatalf("reset schema: %v", err)
	}
	if err := ApplyMigrations(ctx, db, os.DirFS(filepath.Join("..", "..", "db", "migrations"))); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return db, ctx
}

func TestMigrationsRoundTripPostgres(t *testing.T) {
	db, ctx := openTestDatabase(t)
	fsys := os.DirFS(filepath.Join("..", "..", "db", "migrations"))

	if err := RollbackMigrations(ctx, db, fsys); err != nil {
		t.Fatalf("rollback migrations: %v", err)
	}
	if err := ApplyMigrations(ctx, db, fsys); err != nil {
		t.Fatalf("apply migrations (pass 2): %v", err)
	}
}

func TestPostgresStoreTicketLifecycle(t *testing.T) {
	db, ctx := openTestDatabase(t)
	s := NewPostgresStore(db)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	ticket := Ticket{
		ID:          "tkt_1",
		Subject:     "Apron permit",
		Body:        "Can I widen my driveway apron?",
		Departments: []string{"planning", "dpw"},
		GatingMode:  GatingAll,
		Status:      TicketDrafting,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.CreateTicket(ctx, ticket, &EventLog{ID: "evt_1", TicketID: "tkt_1", Type: EventCreated, CreatedAt: now}); err != nil {
		t.Fatalf("create ticket: %v", err)
	}

	loaded, err := s.GetTicket(ctx, "tkt_1")
	if err != nil {
		t.Fatalf("get ticket: %v", err)
	}
	if len(loaded.Departments) != 2 || loaded.Departments[1] != "dpw" {
		t.Fatalf("unexpected departments: %v", loaded.Departments)
	}

	filtered, err := s.ListTickets(ctx, TicketFilter{Department: "dpw"})
	if err != nil {
		t.Fatalf("list tickets: %v", err)
	}
	if len(filtered) != 1 {
		t.Fatalf("expected one ticket in dpw scope, got %d", len(filtered))
	}

	section := Section{
		ID:         "sec_1",
		TicketID:   "tkt_1",
		Department: "dpw",
		TopicKey:   atoms.TopicGuidance,
		Title:      "Guidance",
		Content:    "<h3>Guidance</h3>",
		Atoms:      atoms.Empty(),
		Status:     SectionPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	section.Atoms.Guidance.Recommendations = []string{"Apply for a curb cut permit"}
	if err := s.InsertSections(ctx, []Section{section}, nil); err != nil {
		t.Fatalf("insert sections: %v", err)
	}

	section.Status = SectionApproved
	section.Annotations = []string{"checked"}
	event := EventLog{ID: "evt_2", TicketID: "tkt_1", SectionID: "sec_1", Department: "dpw", Type: EventSectionApproved, CreatedAt: now.Add(time.Minute)}
	if err := s.CommitSection(ctx, section, &event); err != nil {
		t.Fatalf("commit section: %v", err)
	}

	stored, err := s.GetSection(ctx, "sec_1")
	if err != nil {
		t.Fatalf("get section: %v", err)
	}
	if stored.Status != SectionApproved || len(stored.Annotations) != 1 {
		t.Fatalf("unexpected section: %+v", stored)
	}
	if got := stored.Atoms.Guidance.Recommendations; len(got) != 1 || got[0] != "Apply for a curb cut permit" {
		t.Fatalf("unexpected atoms: %+v", stored.Atoms)
	}

	approved, err := s.ListSectionsByStatus(ctx, "dpw", SectionApproved)
	if err != nil {
		t.Fatalf("list by status: %v", err)
	}
	if len(approved) != 1 {
		t.Fatalf("expected one approved section, got %d", len(approved))
	}

	if err := s.SaveReply(ctx, Reply{TicketID: "tkt_1", Guidance: "Apply for a permit", Atoms: stored.Atoms, AssembledAt: now}); err != nil {
		t.Fatalf("save reply: %v", err)
	}

	if err := s.DeleteTicket(ctx, "tkt_1"); err != nil {
		t.Fatalf("delete ticket: %v", err)
	}
	if _, err := s.GetSection(ctx, "sec_1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected section to cascade, got %v", err)
	}
	if _, err := s.GetReply(ctx, "tkt_1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected reply to cascade, got %v", err)
	}
}

func TestEventLogsRejectUpdates(t *testing.T) {
	db, ctx := openTestDatabase(t)
	s := NewPostgresStore(db)
	now := time.Now().UTC()

	if err := s.CreateTicket(ctx, Ticket{ID: "tkt_a", Subject: "s", GatingMode: GatingAll, Status: TicketDrafting, CreatedAt: now, UpdatedAt: now},
		&EventLog{ID: "evt_a", TicketID: "tkt_a", Type: EventCreated, CreatedAt: now}); err != nil {
		t.Fatalf("create ticket: %v", err)
	}

	_, err := db.ExecContext(ctx, `UPDATE event_logs SET detail='rewritten' WHERE id='evt_a'`)
	if err == nil {
		t.Fatal("expected update to be rejected")
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "55000" {
		t.Fatalf("expected SQLSTATE 55000, got %v", err)
	}
}
