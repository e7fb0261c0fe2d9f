package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher over the generated tsvector columns on tickets
// and ticket_replies.
type PgFTS struct {
	db *sql.DB
}

func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy is always true; the service does not run without its database.
func (p *PgFTS) Healthy() bool {
	return true
}

func (p *PgFTS) Search(ctx context.Context, q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	tsQuery := "plainto_tsquery('english', $1)"
	args := []any{q.Text}
	departmentFilter := ""
	if q.FilterDepartment != "" {
		args = append(args, q.FilterDepartment)
		departmentFilter = " AND $2 = ANY(t.departments)"
	}

	var subQueries []string
	if q.FilterType == "" || q.FilterType == ResultTicket {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'ticket'::text AS type, t.id, t.subject AS title,
				ts_headline('english', coalesce(t.body, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				t.status,
				ts_rank(t.search_vector, %s) AS rank
			FROM tickets t
			WHERE t.search_vector @@ %s%s`, tsQuery, tsQuery, tsQuery, departmentFilter))
	}
	if q.FilterType == "" || q.FilterType == ResultReply {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'reply'::text AS type, r.ticket_id, t.subject AS title,
				ts_headline('english', r.situation || ' ' || r.guidance || ' ' || r.next_steps, %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				t.status,
				ts_rank(r.search_vector, %s) AS rank
			FROM ticket_replies r
			JOIN tickets t ON t.id = r.ticket_id
			WHERE r.search_vector @@ %s%s`, tsQuery, tsQuery, tsQuery, departmentFilter))
	}
	if len(subQueries) == 0 {
		return nil, 0, nil
	}

	union := strings.Join(subQueries, " UNION ALL ")
	var total int
	if err := p.db.QueryRowContext(ctx, fmt.Sprintf("SELECT count(*) FROM (%s) sub", union), args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, fmt.Sprintf(`SELECT type, id, title, snippet, status
		FROM (%s) sub
		ORDER BY rank DESC, id ASC
		LIMIT %d OFFSET %d`, union, normalizeLimit(q.Limit), offset), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var (
			r   Result
			typ string
		)
		if err := rows.Scan(&typ, &r.TicketID, &r.Title, &r.Snippet, &r.Status); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Type = ResultType(typ)
		results = append(results, r)
	}
	return results, total, rows.Err()
}

// LoadAllRecords returns every ticket and assembled reply for a full reindex.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]TicketRecord, []ReplyRecord, error) {
	ticketRows, err := p.db.QueryContext(ctx, `
		SELECT id, subject, body, array_to_string(departments, ','), status FROM tickets
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load tickets: %w", err)
	}
	defer ticketRows.Close()

	tickets := make([]TicketRecord, 0)
	for ticketRows.Next() {
		var (
			t           TicketRecord
			departments string
		)
		if err := ticketRows.Scan(&t.ID, &t.Subject, &t.Body, &departments, &t.Status); err != nil {
			return nil, nil, fmt.Errorf("scan ticket: %w", err)
		}
		t.Departments = splitDepartments(departments)
		tickets = append(tickets, t)
	}
	if err := ticketRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate tickets: %w", err)
	}

	replyRows, err := p.db.QueryContext(ctx, `
		SELECT r.ticket_id, t.subject, r.situation, r.guidance, r.next_steps, array_to_string(t.departments, ',')
		FROM ticket_replies r
		JOIN tickets t ON t.id = r.ticket_id
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load replies: %w", err)
	}
	defer replyRows.Close()

	replies := make([]ReplyRecord, 0)
	for replyRows.Next() {
		var (
			r           ReplyRecord
			departments string
		)
		if err := replyRows.Scan(&r.ID, &r.Subject, &r.Situation, &r.Guidance, &r.NextSteps, &departments); err != nil {
			return nil, nil, fmt.Errorf("scan reply: %w", err)
		}
		r.Departments = splitDepartments(departments)
		replies = append(replies, r)
	}
	if err := replyRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate replies: %w", err)
	}
	return tickets, replies, nil
}

func splitDepartments(joined string) []string {
	if joined == "" {
		return []string{}
	}
	return strings.Split(joined, ",")
}
