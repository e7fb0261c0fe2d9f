package search

import (
	"context"

	"go.uber.org/zap"
)

// Service tries Meilisearch first, then Postgres full-text search, then the
// in-process index.
type Service struct {
	meili  *Meili
	pgfts  *PgFTS
	memory *MemoryIndex
	logger *zap.Logger
}

// NewService creates a search service. meili and pgfts may be nil.
func NewService(meili *Meili, pgfts *PgFTS, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{meili: meili, pgfts: pgfts, memory: NewMemoryIndex(), logger: logger.Named("search")}
}

func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(ctx, q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		s.logger.Warn("meilisearch failed, falling back", zap.Error(err))
	}

	if s.pgfts != nil {
		results, total, err := s.pgfts.Search(ctx, q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		s.logger.Error("pgfts search failed", zap.Error(err))
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}

	results, total, _ := s.memory.Search(ctx, q)
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexTicket records the ticket locally and pushes it to Meilisearch in
// the background.
func (s *Service) IndexTicket(t TicketRecord) {
	s.memory.IndexTickets([]TicketRecord{t})
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexTickets([]TicketRecord{t}); err != nil {
			s.logger.Warn("index ticket", zap.String("ticket_id", t.ID), zap.Error(err))
		}
	}()
}

func (s *Service) IndexReply(r ReplyRecord) {
	s.memory.IndexReplies([]ReplyRecord{r})
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexReplies([]ReplyRecord{r}); err != nil {
			s.logger.Warn("index reply", zap.String("ticket_id", r.ID), zap.Error(err))
		}
	}()
}

func (s *Service) DeleteTicket(id string) {
	s.memory.DeleteTicket(id)
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteTicket(id); err != nil {
			s.logger.Warn("delete ticket from index", zap.String("ticket_id", id), zap.Error(err))
		}
	}()
}

// ReindexAllFromPG pushes every stored ticket and reply into Meilisearch.
func (s *Service) ReindexAllFromPG(ctx context.Context) {
	if s.meili == nil || !s.meili.Healthy() || s.pgfts == nil {
		return
	}
	tickets, replies, err := s.pgfts.LoadAllRecords(ctx)
	if err != nil {
		s.logger.Error("reindex load failed", zap.Error(err))
		return
	}
	if err := s.meili.IndexTickets(tickets); err != nil {
		s.logger.Warn("reindex tickets", zap.Error(err))
	}
	if err := s.meili.IndexReplies(replies); err != nil {
		s.logger.Warn("reindex replies", zap.Error(err))
	}
	s.logger.Info("reindexed search", zap.Int("tickets", len(tickets)), zap.Int("replies", len(replies)))
}

func (s *Service) Close() {
	if s.meili != nil {
		s.meili.Close()
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
