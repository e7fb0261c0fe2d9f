package search

import (
	"context"
	"sort"
	"strings"
	"sync"

	"onereply/api/internal/similarity"
)

// MemoryIndex ranks records by token overlap with the query. It backs
// search when neither Meilisearch nor Postgres is configured.
type MemoryIndex struct {
	mu      sync.RWMutex
	tickets map[string]TicketRecord
	replies map[string]ReplyRecord
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		tickets: make(map[string]TicketRecord),
		replies: make(map[string]ReplyRecord),
	}
}

func (m *MemoryIndex) Healthy() bool {
	return true
}

func (m *MemoryIndex) IndexTickets(tickets []TicketRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range tickets {
		m.tickets[t.ID] = t
	}
}

func (m *MemoryIndex) IndexReplies(replies []ReplyRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range replies {
		m.replies[r.ID] = r
	}
}

func (m *MemoryIndex) DeleteTicket(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tickets, id)
	delete(m.replies, id)
}

type scored struct {
	result Result
	score  float64
}

func (m *MemoryIndex) Search(_ context.Context, q Query) ([]Result, int, error) {
	queryTokens := similarity.Tokens(q.Text)
	if len(queryTokens) == 0 {
		return nil, 0, nil
	}

	m.mu.RLock()
	hits := make([]scored, 0)
	if q.FilterType == "" || q.FilterType == ResultTicket {
		for _, t := range m.tickets {
			if !inDepartment(t.Departments, q.FilterDepartment) {
				continue
			}
			if score := coverage(queryTokens, t.Subject+" "+t.Body); score > 0 {
				hits = append(hits, scored{result: Result{Type: ResultTicket, TicketID: t.ID, Title: t.Subject, Snippet: snippet(t.Body), Status: t.Status}, score: score})
			}
		}
	}
	if q.FilterType == "" || q.FilterType == ResultReply {
		for _, r := range m.replies {
			if !inDepartment(r.Departments, q.FilterDepartment) {
				continue
			}
			text := strings.Join([]string{r.Subject, r.Situation, r.Guidance, r.NextSteps}, " ")
			if score := coverage(queryTokens, text); score > 0 {
				hits = append(hits, scored{result: Result{Type: ResultReply, TicketID: r.ID, Title: r.Subject, Snippet: snippet(r.Guidance)}, score: score})
			}
		}
	}
	m.mu.RUnlock()

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		if hits[i].result.TicketID != hits[j].result.TicketID {
			return hits[i].result.TicketID < hits[j].result.TicketID
		}
		return hits[i].result.Type < hits[j].result.Type
	})

	total := len(hits)
	start := q.Offset
	if start < 0 || start > total {
		start = total
	}
	end := start + normalizeLimit(q.Limit)
	if end > total {
		end = total
	}
	results := make([]Result, 0, end-start)
	for _, hit := range hits[start:end] {
		results = append(results, hit.result)
	}
	return results, total, nil
}

// coverage is the share of query tokens present in text.
func coverage(queryTokens []string, text string) float64 {
	present := make(map[string]struct{})
	for _, token := range similarity.Tokens(text) {
		present[token] = struct{}{}
	}
	seen := make(map[string]struct{}, len(queryTokens))
	matched := 0
	for _, token := range queryTokens {
		if _, dup := seen[token]; dup {
			continue
		}
		seen[token] = struct{}{}
		if _, ok := present[token]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(seen))
}

func inDepartment(departments []string, department string) bool {
	if department == "" {
		return true
	}
	for _, d := range departments {
		if d == department {
			return true
		}
	}
	return false
}

func snippet(text string) string {
	const max = 160
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max]) + "…"
}
