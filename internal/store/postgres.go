package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"onereply/api/internal/atoms"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const ticketColumns = `id, subject, requester, body, departments, gating_mode, status, reply_commit, assembled_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTicket(row rowScanner) (Ticket, error) {
	var (
		ticket      Ticket
		departments pgtype.FlatArray[string]
		gatingMode  string
		status      string
		assembledAt sql.NullTime
	)
	m := pgtype.NewMap()
	if err := row.Scan(
		&ticket.ID,
		&ticket.Subject,
		&ticket.Requester,
		&ticket.Body,
		m.SQLScanner(&departments),
		&gatingMode,
		&status,
		&ticket.ReplyCommit,
		&assembledAt,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	); err != nil {
		return Ticket{}, err
	}
	ticket.Departments = append([]string{}, departments...)
	ticket.GatingMode = GatingMode(gatingMode)
	ticket.Status = TicketStatus(status)
	if assembledAt.Valid {
		at := assembledAt.Time
		ticket.AssembledAt = &at
	}
	return ticket, nil
}

func (s *PostgresStore) CreateTicket(ctx context.Context, ticket Ticket, event *EventLog) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create ticket tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO tickets (id, subject, requester, body, departments, gating_mode, status, reply_commit, assembled_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, ticket.ID, ticket.Subject, ticket.Requester, ticket.Body, departmentsArray(ticket.Departments),
		string(ticket.GatingMode), string(ticket.Status), ticket.ReplyCommit, nullTime(ticket.AssembledAt),
		ticket.CreatedAt, ticket.UpdatedAt); err != nil {
		return fmt.Errorf("insert ticket: %w", err)
	}
	if event != nil {
		if err := insertEvent(ctx, tx, *event); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create ticket: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetTicket(ctx context.Context, ticketID string) (Ticket, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id=$1`, ticketID)
	ticket, err := scanTicket(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Ticket{}, ErrNotFound
	}
	if err != nil {
		return Ticket{}, fmt.Errorf("get ticket: %w", err)
	}
	return ticket, nil
}

func (s *PostgresStore) ListTickets(ctx context.Context, filter TicketFilter) ([]Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE 1=1`
	args := make([]any, 0, 3)
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.Department != "" {
		args = append(args, filter.Department)
		query += fmt.Sprintf(" AND $%d = ANY(departments)", len(args))
	}
	query += " ORDER BY created_at DESC, id ASC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	defer rows.Close()

	tickets := make([]Ticket, 0)
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ticket: %w", err)
		}
		tickets = append(tickets, ticket)
	}
	return tickets, rows.Err()
}

func (s *PostgresStore) UpdateTicket(ctx context.Context, ticket Ticket, event *EventLog) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update ticket tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		UPDATE tickets
		SET subject=$2, requester=$3, body=$4, departments=$5, gating_mode=$6, status=$7,
		    reply_commit=$8, assembled_at=$9, updated_at=$10
		WHERE id=$1
	`, ticket.ID, ticket.Subject, ticket.Requester, ticket.Body, departmentsArray(ticket.Departments),
		string(ticket.GatingMode), string(ticket.Status), ticket.ReplyCommit, nullTime(ticket.AssembledAt), ticket.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update ticket: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	if event != nil {
		if err := insertEvent(ctx, tx, *event); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit update ticket: %w", err)
	}
	return nil
}

// DeleteTicket removes the ticket; sections, events and the stored reply go
// with it through ON DELETE CASCADE.
func (s *PostgresStore) DeleteTicket(ctx context.Context, ticketID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM tickets WHERE id=$1`, ticketID)
	if err != nil {
		return fmt.Errorf("delete ticket: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

const sectionColumns = `id, ticket_id, department, topic_key, title, content, atoms, status, annotations, sort_order, created_at, updated_at`

func scanSection(row rowScanner) (Section, error) {
	var (
		section     Section
		topicKey    string
		status      string
		atomsJSON   []byte
		annotations []byte
	)
	if err := row.Scan(
		&section.ID,
		&section.TicketID,
		&section.Department,
		&topicKey,
		&section.Title,
		&section.Content,
		&atomsJSON,
		&status,
		&annotations,
		&section.Order,
		&section.CreatedAt,
		&section.UpdatedAt,
	); err != nil {
		return Section{}, err
	}
	section.TopicKey = atoms.TopicKey(topicKey)
	section.Status = SectionStatus(status)
	section.Atoms = atoms.Empty()
	if len(atomsJSON) > 0 {
		if err := json.Unmarshal(atomsJSON, &section.Atoms); err != nil {
			return Section{}, fmt.Errorf("decode atoms: %w", err)
		}
	}
	section.Annotations = []string{}
	if len(annotations) > 0 {
		if err := json.Unmarshal(annotations, &section.Annotations); err != nil {
			return Section{}, fmt.Errorf("decode annotations: %w", err)
		}
	}
	return section, nil
}

func (s *PostgresStore) InsertSections(ctx context.Context, sections []Section, events []EventLog) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert sections tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, section := range sections {
		atomsJSON, annotationsJSON, err := encodeSection(section)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO sections (id, ticket_id, department, topic_key, title, content, atoms, status, annotations, sort_order, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8, $9::jsonb, $10, $11, $12)
		`, section.ID, section.TicketID, section.Department, string(section.TopicKey), section.Title, section.Content,
			atomsJSON, string(section.Status), annotationsJSON, section.Order, section.CreatedAt, section.UpdatedAt); err != nil {
			return fmt.Errorf("insert section %s: %w", section.ID, err)
		}
	}
	for _, event := range events {
		if err := insertEvent(ctx, tx, event); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit insert sections: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetSection(ctx context.Context, sectionID string) (Section, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sectionColumns+` FROM sections WHERE id=$1`, sectionID)
	section, err := scanSection(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Section{}, ErrNotFound
	}
	if err != nil {
		return Section{}, fmt.Errorf("get section: %w", err)
	}
	return section, nil
}

func (s *PostgresStore) ListTicketSections(ctx context.Context, ticketID string) ([]Section, error) {
	return s.querySections(ctx, `
		SELECT `+sectionColumns+` FROM sections
		WHERE ticket_id=$1
		ORDER BY sort_order ASC, created_at ASC, id ASC
	`, ticketID)
}

func (s *PostgresStore) ListSectionsByStatus(ctx context.Context, department string, status SectionStatus) ([]Section, error) {
	return s.querySections(ctx, `
		SELECT `+sectionColumns+` FROM sections
		WHERE status=$1 AND ($2 = '' OR department=$2)
		ORDER BY created_at ASC, id ASC
	`, string(status), department)
}

func (s *PostgresStore) querySections(ctx context.Context, query string, args ...any) ([]Section, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sections: %w", err)
	}
	defer rows.Close()

	sections := make([]Section, 0)
	for rows.Next() {
		section, err := scanSection(rows)
		if err != nil {
			return nil, fmt.Errorf("scan section: %w", err)
		}
		sections = append(sections, section)
	}
	return sections, rows.Err()
}

// CommitSection writes the section and its event in one transaction. The
// section row is locked first so concurrent commits to it serialise.
func (s *PostgresStore) CommitSection(ctx context.Context, section Section, event *EventLog) error {
	atomsJSON, annotationsJSON, err := encodeSection(section)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin commit section tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var ticketID string
	err = tx.QueryRowContext(ctx, `SELECT ticket_id FROM sections WHERE id=$1 FOR UPDATE`, section.ID).Scan(&ticketID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("lock section: %w", err)
	}
	if ticketID != section.TicketID {
		return fmt.Errorf("commit section %s: ticket ownership cannot change", section.ID)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE sections
		SET title=$2, content=$3, atoms=$4::jsonb, status=$5, annotations=$6::jsonb, sort_order=$7, updated_at=$8
		WHERE id=$1
	`, section.ID, section.Title, section.Content, atomsJSON, string(section.Status), annotationsJSON, section.Order, section.UpdatedAt); err != nil {
		return fmt.Errorf("update section: %w", err)
	}
	if event != nil {
		if err := insertEvent(ctx, tx, *event); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit section: %w", err)
	}
	return nil
}

func (s *PostgresStore) AppendEvent(ctx context.Context, event EventLog) error {
	return insertEvent(ctx, s.db, event)
}

func (s *PostgresStore) ListEvents(ctx context.Context, ticketID string) ([]EventLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ticket_id, section_id, department, topic_key, event_type, actor, detail, created_at
		FROM event_logs
		WHERE ticket_id=$1
		ORDER BY created_at ASC, id ASC
	`, ticketID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	events := make([]EventLog, 0)
	for rows.Next() {
		var (
			event     EventLog
			topicKey  string
			eventType string
		)
		if err := rows.Scan(&event.ID, &event.TicketID, &event.SectionID, &event.Department, &topicKey, &eventType, &event.Actor, &event.Detail, &event.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		event.TopicKey = atoms.TopicKey(topicKey)
		event.Type = EventType(eventType)
		events = append(events, event)
	}
	return events, rows.Err()
}

func (s *PostgresStore) SaveReply(ctx context.Context, reply Reply) error {
	atomsJSON, err := json.Marshal(reply.Atoms)
	if err != nil {
		return fmt.Errorf("encode reply atoms: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO ticket_replies (ticket_id, situation, guidance, next_steps, atoms, commit_hash, assembled_at)
		VALUES ($1, $2, $3, $4, $5::jsonb, $6, $7)
		ON CONFLICT (ticket_id) DO UPDATE
		SET situation=EXCLUDED.situation, guidance=EXCLUDED.guidance, next_steps=EXCLUDED.next_steps,
		    atoms=EXCLUDED.atoms, commit_hash=EXCLUDED.commit_hash, assembled_at=EXCLUDED.assembled_at
	`, reply.TicketID, reply.Situation, reply.Guidance, reply.NextSteps, string(atomsJSON), reply.CommitHash, reply.AssembledAt); err != nil {
		return fmt.Errorf("save reply: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetReply(ctx context.Context, ticketID string) (Reply, error) {
	var (
		reply     Reply
		atomsJSON []byte
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT ticket_id, situation, guidance, next_steps, atoms, commit_hash, assembled_at
		FROM ticket_replies WHERE ticket_id=$1
	`, ticketID).Scan(&reply.TicketID, &reply.Situation, &reply.Guidance, &reply.NextSteps, &atomsJSON, &reply.CommitHash, &reply.AssembledAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Reply{}, ErrNotFound
	}
	if err != nil {
		return Reply{}, fmt.Errorf("get reply: %w", err)
	}
	reply.Atoms = atoms.Empty()
	if len(atomsJSON) > 0 {
		if err := json.Unmarshal(atomsJSON, &reply.Atoms); err != nil {
			return Reply{}, fmt.Errorf("decode reply atoms: %w", err)
		}
	}
	return reply, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertEvent(ctx context.Context, db execer, event EventLog) error {
	if _, err := db.ExecContext(ctx, `
		INSERT INTO event_logs (id, ticket_id, section_id, department, topic_key, event_type, actor, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, event.ID, event.TicketID, event.SectionID, event.Department, string(event.TopicKey), string(event.Type),
		event.Actor, event.Detail, event.CreatedAt); err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func encodeSection(section Section) (string, string, error) {
	atomsJSON, err := json.Marshal(section.Atoms)
	if err != nil {
		return "", "", fmt.Errorf("encode atoms: %w", err)
	}
	annotations := section.Annotations
	if annotations == nil {
		annotations = []string{}
	}
	annotationsJSON, err := json.Marshal(annotations)
	if err != nil {
		return "", "", fmt.Errorf("encode annotations: %w", err)
	}
	return string(atomsJSON), string(annotationsJSON), nil
}

// departmentsArray renders a Postgres text[] literal.
func departmentsArray(departments []string) string {
	quoted := make([]string, 0, len(departments))
	for _, department := range departments {
		escaped := strings.ReplaceAll(strings.ReplaceAll(department, `\`, `\\`), `"`, `\"`)
		quoted = append(quoted, `"`+escaped+`"`)
	}
	return "{" + strings.Join(quoted, ",") + "}"
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
