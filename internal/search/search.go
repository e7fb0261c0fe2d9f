package search

import "context"

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultTicket ResultType = "ticket"
	ResultReply  ResultType = "reply"
)

type Result struct {
	Type     ResultType `json:"type"`
	TicketID string     `json:"ticketId"`
	Title    string     `json:"title"`
	Snippet  string     `json:"snippet"`
	Status   string     `json:"status,omitempty"`
}

type Query struct {
	Text             string
	FilterType       ResultType // empty = all types
	FilterDepartment string
	Limit            int
	Offset           int
}

type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

type Searcher interface {
	Search(ctx context.Context, q Query) ([]Result, int, error)
	Healthy() bool
}

type TicketRecord struct {
	ID          string   `json:"id"`
	Subject     string   `json:"subject"`
	Body        string   `json:"body"`
	Departments []string `json:"departments"`
	Status      string   `json:"status"`
}

// ReplyRecord is an assembled reply; its id is the ticket id.
type ReplyRecord struct {
	ID          string   `json:"id"`
	Subject     string   `json:"subject"`
	Situation   string   `json:"situation"`
	Guidance    string   `json:"guidance"`
	NextSteps   string   `json:"nextsteps"`
	Departments []string `json:"departments"`
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	return limit
}
