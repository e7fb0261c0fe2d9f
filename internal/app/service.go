package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"onereply/api/internal/approval"
	"onereply/api/internal/atoms"
	"onereply/api/internal/consolidate"
	"onereply/api/internal/departments"
	"onereply/api/internal/export"
	"onereply/api/internal/gitrepo"
	"onereply/api/internal/intake"
	"onereply/api/internal/normalize"
	"onereply/api/internal/search"
	"onereply/api/internal/splitter"
	"onereply/api/internal/store"
	"onereply/api/internal/util"
)

type dataStore interface {
	approval.Repository
	Ping(ctx context.Context) error
	CreateTicket(ctx context.Context, ticket store.Ticket, event *store.EventLog) error
	ListTickets(ctx context.Context, filter store.TicketFilter) ([]store.Ticket, error)
	UpdateTicket(ctx context.Context, ticket store.Ticket, event *store.EventLog) error
	DeleteTicket(ctx context.Context, ticketID string) error
	InsertSections(ctx context.Context, sections []store.Section, events []store.EventLog) error
	ListSectionsByStatus(ctx context.Context, department string, status store.SectionStatus) ([]store.Section, error)
	AppendEvent(ctx context.Context, event store.EventLog) error
	ListEvents(ctx context.Context, ticketID string) ([]store.EventLog, error)
	SaveReply(ctx context.Context, reply store.Reply) error
	GetReply(ctx context.Context, ticketID string) (store.Reply, error)
}

type replyHistory interface {
	EnsureTicketRepo(ticketID, subject, author string) error
	RecordDraft(ticketID, department string, content gitrepo.Content, author string) (gitrepo.CommitInfo, error)
	CommitReply(ticketID string, content gitrepo.Content, author, message string) (gitrepo.CommitInfo, error)
	GetHeadReply(ticketID string) (gitrepo.Content, gitrepo.CommitInfo, error)
	GetReplyByHash(ticketID, hash string) (gitrepo.Content, error)
	History(ticketID, branchName string, limit int) ([]gitrepo.CommitInfo, error)
	TagAssembled(ticketID, hash string) error
	Remove(ticketID string) error
}

// Deps wires a Service. Store is required; everything else falls back to an
// in-process default when left empty.
type Deps struct {
	Store          dataStore
	Git            replyHistory
	Locker         approval.Locker
	Publisher      approval.Publisher
	Departments    *departments.Registry
	Policy         *consolidate.Policy
	Search         *search.Service
	ExportOptions  []export.Option
	AllowedSenders []string
	Logger         *zap.Logger
}

type Service struct {
	store          dataStore
	git            replyHistory
	machine        *approval.Machine
	consolidator   *consolidate.Consolidator
	departments    *departments.Registry
	search         *search.Service
	exporter       *export.Service
	publisher      approval.Publisher
	deduper        *intake.Deduper
	allowedSenders []string
	logger         *zap.Logger
	now            func() time.Time
}

func New(deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	registry := deps.Departments
	if registry == nil {
		registry = departments.Default()
	}
	searchSvc := deps.Search
	if searchSvc == nil {
		searchSvc = search.NewService(nil, nil, logger)
	}
	var consolidateOpts []consolidate.Option
	if deps.Policy != nil {
		consolidateOpts = append(consolidateOpts, consolidate.WithPolicy(*deps.Policy))
	}

	s := &Service{
		store:          deps.Store,
		git:            deps.Git,
		machine:        approval.NewMachine(deps.Store, deps.Locker, deps.Publisher, logger.Named("approval")),
		consolidator:   consolidate.New(registry, consolidateOpts...),
		departments:    registry,
		search:         searchSvc,
		publisher:      deps.Publisher,
		deduper:        intake.NewDeduper(),
		allowedSenders: deps.AllowedSenders,
		logger:         logger,
		now:            func() time.Time { return time.Now().UTC() },
	}
	s.exporter = export.NewService(s, logger.Named("export"), deps.ExportOptions...)
	return s
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) Departments() []departments.Department {
	return s.departments.All()
}

func (s *Service) SuggestDepartments(subject, body string) []string {
	return s.departments.Suggest(subject, body)
}

func (s *Service) publish(ctx context.Context, events ...store.EventLog) {
	if s.publisher == nil {
		return
	}
	for _, event := range events {
		s.publisher.Publish(ctx, event)
	}
}

type CreateTicketInput struct {
	Subject     string           `json:"subject" validate:"required,max=500"`
	Requester   string           `json:"requester" validate:"omitempty,email"`
	Body        string           `json:"body"`
	Departments []string         `json:"departments"`
	GatingMode  store.GatingMode `json:"gatingMode" validate:"omitempty,oneof=all first"`
	Actor       string           `json:"actor"`
}

// CreateTicket stores a new ticket. Without explicit departments the
// registry suggests them from the subject and body.
func (s *Service) CreateTicket(ctx context.Context, input CreateTicketInput) (store.Ticket, error) {
	input.Subject = strings.TrimSpace(input.Subject)
	if err := util.ValidateStruct(input); err != nil {
		return store.Ticket{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
	}

	depts := dedupe(input.Departments)
	if len(depts) == 0 {
		depts = s.departments.Suggest(input.Subject, input.Body)
	}
	for _, dept := range depts {
		if !s.departments.Has(dept) {
			return store.Ticket{}, domainError(http.StatusUnprocessableEntity, "UNKNOWN_DEPARTMENT", "Unknown department", map[string]any{"department": dept})
		}
	}
	gating := input.GatingMode
	if gating == "" {
		gating = store.GatingAll
	}

	now := s.now()
	ticket := store.Ticket{
		ID:          util.NewID("tkt"),
		Subject:     input.Subject,
		Requester:   strings.TrimSpace(input.Requester),
		Body:        input.Body,
		Departments: depts,
		GatingMode:  gating,
		Status:      store.TicketDrafting,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	event := store.EventLog{
		ID:        util.NewID("evt"),
		TicketID:  ticket.ID,
		Type:      store.EventCreated,
		Actor:     input.Actor,
		Detail:    "ticket created for " + strings.Join(depts, ", "),
		CreatedAt: now,
	}
	if err := s.store.CreateTicket(ctx, ticket, &event); err != nil {
		return store.Ticket{}, fmt.Errorf("create ticket: %w", err)
	}

	if s.git != nil {
		if err := s.git.EnsureTicketRepo(ticket.ID, ticket.Subject, input.Actor); err != nil {
			s.logger.Warn("init ticket history", zap.String("ticket_id", ticket.ID), zap.Error(err))
		}
	}
	s.search.IndexTicket(ticketRecord(ticket))
	s.publish(ctx, event)
	s.logger.Info("ticket created", zap.String("ticket_id", ticket.ID), zap.Strings("departments", depts))
	return ticket, nil
}

func (s *Service) GetTicket(ctx context.Context, ticketID string) (store.Ticket, error) {
	ticket, err := s.store.GetTicket(ctx, ticketID)
	if err != nil {
		return store.Ticket{}, err
	}
	return ticket, nil
}

func (s *Service) ListTickets(ctx context.Context, filter store.TicketFilter) ([]store.Ticket, error) {
	tickets, err := s.store.ListTickets(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	return tickets, nil
}

// TicketView is a ticket together with its sections in stable order.
type TicketView struct {
	Ticket   store.Ticket     `json:"ticket"`
	Sections []store.Section  `json:"sections"`
	Status   approval.Summary `json:"status"`
}

func (s *Service) TicketView(ctx context.Context, ticketID string) (TicketView, error) {
	ticket, err := s.store.GetTicket(ctx, ticketID)
	if err != nil {
		return TicketView{}, err
	}
	sections, err := s.store.ListTicketSections(ctx, ticketID)
	if err != nil {
		return TicketView{}, fmt.Errorf("list sections: %w", err)
	}
	return TicketView{
		Ticket:   ticket,
		Sections: sections,
		Status: approval.Summary{
			Departments: approval.DepartmentStatuses(ticket, sections),
			CanApprove:  approval.TicketApprovable(ticket, sections),
			Overall:     approval.Overall(sections),
		},
	}, nil
}

// DeleteTicket removes the ticket with its sections, events, reply and
// history.
func (s *Service) DeleteTicket(ctx context.Context, ticketID string) error {
	if err := s.store.DeleteTicket(ctx, ticketID); err != nil {
		return err
	}
	if s.git != nil {
		if err := s.git.Remove(ticketID); err != nil {
			s.logger.Warn("remove ticket history", zap.String("ticket_id", ticketID), zap.Error(err))
		}
	}
	s.search.DeleteTicket(ticketID)
	s.logger.Info("ticket deleted", zap.String("ticket_id", ticketID))
	return nil
}

type DraftInput struct {
	Department string `json:"department" validate:"required"`
	Content    string `json:"content" validate:"required"`
	Actor      string `json:"actor"`
}

// AddDraft splits a department's generated document into topic sections
// and stores them as pending.
func (s *Service) AddDraft(ctx context.Context, ticketID string, input DraftInput) ([]store.Section, error) {
	if err := util.ValidateStruct(input); err != nil {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
	}
	if _, err := s.scopedTicket(ctx, ticketID, input.Department); err != nil {
		return nil, err
	}

	doc := normalize.Content(input.Content)
	parts := splitter.Split(doc, input.Department)
	if len(parts) == 0 {
		return nil, domainError(http.StatusUnprocessableEntity, "EMPTY_DRAFT", "Draft has no content", nil)
	}

	now := s.now()
	sections := make([]store.Section, 0, len(parts))
	events := make([]store.EventLog, 0, len(parts))
	for _, part := range parts {
		section := store.Section{
			ID:          util.NewID("sec"),
			TicketID:    ticketID,
			Department:  input.Department,
			TopicKey:    part.TopicKey,
			Title:       part.Title,
			Content:     part.Content,
			Atoms:       part.Atoms.Normalize(),
			Status:      store.SectionPending,
			Annotations: []string{},
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		sections = append(sections, section)
		events = append(events, store.EventLog{
			ID:         util.NewID("evt"),
			TicketID:   ticketID,
			SectionID:  section.ID,
			Department: section.Department,
			TopicKey:   section.TopicKey,
			Type:       store.EventDraftGenerated,
			Actor:      input.Actor,
			Detail:     "draft generated for " + section.TopicKey.Title(),
			CreatedAt:  now,
		})
	}
	ticket, err := s.insertSections(ctx, ticketID, input.Department, sections, events)
	if err != nil {
		return nil, err
	}

	s.recordDraft(ticket, input.Department, sections, input.Actor)
	s.publish(ctx, events...)
	s.refreshTicketStatus(ctx, ticketID)
	s.logger.Info("draft added",
		zap.String("ticket_id", ticketID),
		zap.String("department", input.Department),
		zap.Int("sections", len(sections)),
		zap.Bool("well_formed", splitter.IsWellFormed(doc)),
	)
	return sections, nil
}

type ManualSectionInput struct {
	Department string         `json:"department" validate:"required"`
	TopicKey   atoms.TopicKey `json:"sectionKey" validate:"required,oneof=situation guidance nextsteps"`
	Content    string         `json:"content" validate:"required"`
	Actor      string         `json:"actor"`
}

// AddManualSection stores a hand-written section. Its atoms are parsed from
// the templated plain-text layout.
func (s *Service) AddManualSection(ctx context.Context, ticketID string, input ManualSectionInput) (store.Section, error) {
	if err := util.ValidateStruct(input); err != nil {
		return store.Section{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
	}
	if _, err := s.scopedTicket(ctx, ticketID, input.Department); err != nil {
		return store.Section{}, err
	}

	now := s.now()
	section := store.Section{
		ID:          util.NewID("sec"),
		TicketID:    ticketID,
		Department:  input.Department,
		TopicKey:    input.TopicKey,
		Title:       input.TopicKey.Title(),
		Content:     input.Content,
		Atoms:       splitter.ParseManual(input.Content, input.TopicKey),
		Status:      store.SectionPending,
		Annotations: []string{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	event := store.EventLog{
		ID:         util.NewID("evt"),
		TicketID:   ticketID,
		SectionID:  section.ID,
		Department: section.Department,
		TopicKey:   section.TopicKey,
		Type:       store.EventDraftGenerated,
		Actor:      input.Actor,
		Detail:     "manual section added",
		CreatedAt:  now,
	}
	sections := []store.Section{section}
	ticket, err := s.insertSections(ctx, ticketID, input.Department, sections, []store.EventLog{event})
	if err != nil {
		return store.Section{}, err
	}
	section = sections[0]
	s.recordDraft(ticket, input.Department, sections, input.Actor)
	s.publish(ctx, event)
	s.refreshTicketStatus(ctx, ticketID)
	return section, nil
}

// insertSections appends sections after the ticket's existing ones. The
// scope check and ordering run under the ticket lock so concurrent drafts
// get distinct order indexes and cannot land on an assembled ticket.
func (s *Service) insertSections(ctx context.Context, ticketID, department string, sections []store.Section, events []store.EventLog) (store.Ticket, error) {
	var ticket store.Ticket
	err := s.machine.WithTicketLock(ctx, ticketID, func() error {
		var err error
		ticket, err = s.scopedTicket(ctx, ticketID, department)
		if err != nil {
			return err
		}
		existing, err := s.store.ListTicketSections(ctx, ticketID)
		if err != nil {
			return fmt.Errorf("list sections: %w", err)
		}
		next := 0
		for _, section := range existing {
			if section.Order >= next {
				next = section.Order + 1
			}
		}
		for i := range sections {
			sections[i].Order = next + i
		}
		if err := s.store.InsertSections(ctx, sections, events); err != nil {
			return fmt.Errorf("insert sections: %w", err)
		}
		return nil
	})
	return ticket, err
}

func (s *Service) scopedTicket(ctx context.Context, ticketID, department string) (store.Ticket, error) {
	ticket, err := s.store.GetTicket(ctx, ticketID)
	if err != nil {
		return store.Ticket{}, err
	}
	if ticket.Status == store.TicketAssembled {
		return store.Ticket{}, domainError(http.StatusConflict, "TICKET_ASSEMBLED", "Ticket reply is already assembled", nil)
	}
	if len(ticket.Departments) > 0 && !ticket.InScope(department) {
		return store.Ticket{}, domainError(http.StatusUnprocessableEntity, "DEPARTMENT_OUT_OF_SCOPE", "Department is not assigned to this ticket", map[string]any{"department": department})
	}
	return ticket, nil
}

func (s *Service) recordDraft(ticket store.Ticket, department string, sections []store.Section, actor string) {
	if s.git == nil {
		return
	}
	content := gitrepo.Content{Subject: ticket.Subject, Atoms: atoms.Empty()}
	for _, section := range sections {
		switch section.TopicKey {
		case atoms.TopicSituation:
			content.Situation = section.Content
			content.Atoms.Situation = section.Atoms.Situation
		case atoms.TopicGuidance:
			content.Guidance = section.Content
			content.Atoms.Guidance = section.Atoms.Guidance
		case atoms.TopicNextSteps:
			content.NextSteps = section.Content
			content.Atoms.NextSteps = section.Atoms.NextSteps
		}
	}
	if _, err := s.git.RecordDraft(ticket.ID, department, content, actor); err != nil {
		s.logger.Warn("record draft", zap.String("ticket_id", ticket.ID), zap.String("department", department), zap.Error(err))
	}
}

// refreshTicketStatus moves an unassembled ticket between reviewing and
// ready as its sections change.
func (s *Service) refreshTicketStatus(ctx context.Context, ticketID string) {
	var (
		ticket  store.Ticket
		changed bool
	)
	err := s.machine.WithTicketLock(ctx, ticketID, func() error {
		var err error
		ticket, err = s.store.GetTicket(ctx, ticketID)
		if err != nil || ticket.Status == store.TicketAssembled {
			return err
		}
		sections, err := s.store.ListTicketSections(ctx, ticketID)
		if err != nil {
			return fmt.Errorf("list sections: %w", err)
		}
		next := store.TicketReviewing
		if approval.TicketApprovable(ticket, sections) {
			next = store.TicketReady
		}
		if next == ticket.Status {
			return nil
		}
		ticket.Status = next
		ticket.UpdatedAt = s.now()
		if err := s.store.UpdateTicket(ctx, ticket, nil); err != nil {
			return fmt.Errorf("update ticket: %w", err)
		}
		changed = true
		return nil
	})
	if err != nil {
		s.logger.Warn("refresh ticket status", zap.String("ticket_id", ticketID), zap.Error(err))
		return
	}
	if changed {
		s.search.IndexTicket(ticketRecord(ticket))
	}
}

type SectionPatch struct {
	Content     *string              `json:"content"`
	Status      *store.SectionStatus `json:"status"`
	Annotations *[]string            `json:"annotations"`
	Atoms       *atoms.DraftAtoms    `json:"atoms"`
	Order       *int                 `json:"order"`
	Actor       string               `json:"actor"`
}

func (s *Service) UpdateSection(ctx context.Context, sectionID string, patch SectionPatch) (store.Section, error) {
	if patch.Status != nil && !patch.Status.Valid() {
		return store.Section{}, domainError(http.StatusUnprocessableEntity, "INVALID_STATUS", "Unknown section status", map[string]any{"status": *patch.Status})
	}
	section, err := s.machine.UpdateSection(ctx, sectionID, approval.SectionUpdate{
		Content:     patch.Content,
		Status:      patch.Status,
		Annotations: patch.Annotations,
		Atoms:       patch.Atoms,
		Order:       patch.Order,
		Actor:       patch.Actor,
	})
	if err != nil {
		return store.Section{}, err
	}
	if patch.Status != nil && *patch.Status == store.SectionApproved {
		if _, err := s.machine.ApplyGating(ctx, section.TicketID, section.Department); err != nil {
			return store.Section{}, err
		}
	}
	s.refreshTicketStatus(ctx, section.TicketID)
	return section, nil
}

// ApproveResult carries the approved section and any sections that first
// gating locked as a consequence.
type ApproveResult struct {
	Section store.Section   `json:"section"`
	Locked  []store.Section `json:"locked"`
}

func (s *Service) Approve(ctx context.Context, sectionID, actor string) (ApproveResult, error) {
	section, locked, err := s.machine.Approve(ctx, sectionID, actor)
	if err != nil {
		return ApproveResult{}, err
	}
	if locked == nil {
		locked = []store.Section{}
	}
	s.refreshTicketStatus(ctx, section.TicketID)
	return ApproveResult{Section: section, Locked: locked}, nil
}

func (s *Service) Annotate(ctx context.Context, sectionID, note, actor string) (store.Section, error) {
	if strings.TrimSpace(note) == "" {
		return store.Section{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Annotation note is required", nil)
	}
	return s.afterSectionChange(ctx)(s.machine.Annotate(ctx, sectionID, note, actor))
}

func (s *Service) Omit(ctx context.Context, sectionID, note, actor string) (store.Section, error) {
	return s.afterSectionChange(ctx)(s.machine.Omit(ctx, sectionID, note, actor))
}

func (s *Service) Lock(ctx context.Context, sectionID, actor string) (store.Section, error) {
	return s.afterSectionChange(ctx)(s.machine.Lock(ctx, sectionID, actor))
}

func (s *Service) Reject(ctx context.Context, sectionID, note, actor string) (store.Section, error) {
	return s.afterSectionChange(ctx)(s.machine.Reject(ctx, sectionID, note, actor))
}

func (s *Service) afterSectionChange(ctx context.Context) func(store.Section, error) (store.Section, error) {
	return func(section store.Section, err error) (store.Section, error) {
		if err != nil {
			return store.Section{}, err
		}
		s.refreshTicketStatus(ctx, section.TicketID)
		return section, nil
	}
}

func (s *Service) Status(ctx context.Context, ticketID string) (approval.Summary, error) {
	return s.machine.Summarize(ctx, ticketID)
}

// Preview is the consolidated reply as it would be assembled right now.
type Preview struct {
	TicketID string                    `json:"ticketId"`
	Atoms    atoms.DraftAtoms          `json:"atoms"`
	Rendered map[atoms.TopicKey]string `json:"rendered"`
	Approved int                       `json:"approvedSections"`
}

func (s *Service) Consolidated(ctx context.Context, ticketID string) (Preview, error) {
	if _, err := s.store.GetTicket(ctx, ticketID); err != nil {
		return Preview{}, err
	}
	sections, err := s.store.ListTicketSections(ctx, ticketID)
	if err != nil {
		return Preview{}, fmt.Errorf("list sections: %w", err)
	}
	return s.preview(ticketID, sections), nil
}

func (s *Service) preview(ticketID string, sections []store.Section) Preview {
	unified := s.consolidator.Consolidate(sections)
	approved := 0
	for _, section := range sections {
		if section.Status == store.SectionApproved {
			approved++
		}
	}
	return Preview{
		TicketID: ticketID,
		Atoms:    unified,
		Rendered: consolidate.RenderAll(unified),
		Approved: approved,
	}
}

// Assemble consolidates every approved section into the ticket's reply,
// commits it to history and marks the ticket assembled. The ticket must be
// approvable and not yet assembled. The check, consolidation and commit
// hold the ticket lock, so no section changes in between.
func (s *Service) Assemble(ctx context.Context, ticketID, actor string) (store.Reply, error) {
	var (
		ticket store.Ticket
		reply  store.Reply
		event  store.EventLog
	)
	err := s.machine.WithTicketLock(ctx, ticketID, func() error {
		var err error
		ticket, err = s.store.GetTicket(ctx, ticketID)
		if err != nil {
			return err
		}
		if ticket.Status == store.TicketAssembled {
			return domainError(http.StatusConflict, "TICKET_ASSEMBLED", "Ticket reply is already assembled", nil)
		}
		sections, err := s.store.ListTicketSections(ctx, ticketID)
		if err != nil {
			return fmt.Errorf("list sections: %w", err)
		}
		if !approval.TicketApprovable(ticket, sections) {
			return domainError(http.StatusConflict, "NOT_APPROVABLE", "Every department must finish review before assembly", approval.DepartmentStatuses(ticket, sections))
		}

		preview := s.preview(ticketID, sections)
		now := s.now()
		reply = store.Reply{
			TicketID:    ticketID,
			Situation:   preview.Rendered[atoms.TopicSituation],
			Guidance:    preview.Rendered[atoms.TopicGuidance],
			NextSteps:   preview.Rendered[atoms.TopicNextSteps],
			Atoms:       preview.Atoms,
			AssembledAt: now,
		}

		if s.git != nil {
			commit, err := s.git.CommitReply(ticketID, gitrepo.Content{
				Subject:   ticket.Subject,
				Situation: reply.Situation,
				Guidance:  reply.Guidance,
				NextSteps: reply.NextSteps,
				Atoms:     reply.Atoms,
			}, actor, "Assemble reply")
			if err != nil {
				return fmt.Errorf("commit reply: %w", err)
			}
			reply.CommitHash = commit.Hash
			if err := s.git.TagAssembled(ticketID, commit.Hash); err != nil {
				s.logger.Warn("tag assembled reply", zap.String("ticket_id", ticketID), zap.Error(err))
			}
		}

		if err := s.store.SaveReply(ctx, reply); err != nil {
			return fmt.Errorf("save reply: %w", err)
		}
		ticket.Status = store.TicketAssembled
		ticket.ReplyCommit = reply.CommitHash
		ticket.AssembledAt = &now
		ticket.UpdatedAt = now
		event = store.EventLog{
			ID:        util.NewID("evt"),
			TicketID:  ticketID,
			Type:      store.EventTicketAssembled,
			Actor:     actor,
			Detail:    fmt.Sprintf("reply assembled from %d approved sections", preview.Approved),
			CreatedAt: now,
		}
		if err := s.store.UpdateTicket(ctx, ticket, &event); err != nil {
			return fmt.Errorf("update ticket: %w", err)
		}
		return nil
	})
	if err != nil {
		return store.Reply{}, err
	}

	s.search.IndexTicket(ticketRecord(ticket))
	s.search.IndexReply(search.ReplyRecord{
		ID:          ticketID,
		Subject:     ticket.Subject,
		Situation:   reply.Situation,
		Guidance:    reply.Guidance,
		NextSteps:   reply.NextSteps,
		Departments: ticket.Departments,
	})
	s.publish(ctx, event)
	s.logger.Info("reply assembled", zap.String("ticket_id", ticketID), zap.String("commit", reply.CommitHash))
	return reply, nil
}

func (s *Service) Reply(ctx context.Context, ticketID string) (store.Reply, error) {
	return s.store.GetReply(ctx, ticketID)
}

// History lists reply commits. An empty department lists assembled
// replies on main; otherwise the department's draft branch.
func (s *Service) History(ctx context.Context, ticketID, department string, limit int) ([]gitrepo.CommitInfo, error) {
	if _, err := s.store.GetTicket(ctx, ticketID); err != nil {
		return nil, err
	}
	if s.git == nil {
		return []gitrepo.CommitInfo{}, nil
	}
	branch := ""
	if department != "" {
		branch = gitrepo.DraftBranch(department)
	}
	commits, err := s.git.History(ticketID, branch, limit)
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	return commits, nil
}

// Compare lists the topics that changed between two committed versions
// of a ticket's reply.
func (s *Service) Compare(ctx context.Context, ticketID, from, to string) ([]gitrepo.Change, error) {
	if _, err := s.store.GetTicket(ctx, ticketID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(from) == "" || strings.TrimSpace(to) == "" {
		return nil, domainError(http.StatusBadRequest, "MISSING_VERSION", "from and to are required", nil)
	}
	if s.git == nil {
		return nil, errors.New("reply history is not configured")
	}
	before, err := s.git.GetReplyByHash(ticketID, from)
	if err != nil {
		return nil, domainError(http.StatusNotFound, "VERSION_NOT_FOUND", "version not found", map[string]string{"version": from})
	}
	after, err := s.git.GetReplyByHash(ticketID, to)
	if err != nil {
		return nil, domainError(http.StatusNotFound, "VERSION_NOT_FOUND", "version not found", map[string]string{"version": to})
	}
	return gitrepo.Diff(before, after), nil
}

func (s *Service) Events(ctx context.Context, ticketID string) ([]store.EventLog, error) {
	if _, err := s.store.GetTicket(ctx, ticketID); err != nil {
		return nil, err
	}
	events, err := s.store.ListEvents(ctx, ticketID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return events, nil
}

// ExportDocument loads the reply to print. "latest" or an empty version is
// the stored reply; anything else is a commit hash in the ticket history.
func (s *Service) ExportDocument(ctx context.Context, ticketID, version string) (export.Document, error) {
	ticket, err := s.store.GetTicket(ctx, ticketID)
	if err != nil {
		return export.Document{}, err
	}
	doc := export.Document{
		TicketID:    ticket.ID,
		Subject:     ticket.Subject,
		Requester:   ticket.Requester,
		Departments: s.departmentNames(ticket.Departments),
	}

	if version == "" || version == "latest" {
		reply, err := s.store.GetReply(ctx, ticketID)
		if err != nil {
			return export.Document{}, err
		}
		doc.Situation, doc.Guidance, doc.NextSteps = reply.Situation, reply.Guidance, reply.NextSteps
		doc.CommitHash, doc.AssembledAt = reply.CommitHash, reply.AssembledAt
		return doc, nil
	}

	if s.git == nil {
		return export.Document{}, errors.New("reply history is not configured")
	}
	content, err := s.git.GetReplyByHash(ticketID, version)
	if err != nil {
		return export.Document{}, err
	}
	doc.Situation, doc.Guidance, doc.NextSteps = content.Situation, content.Guidance, content.NextSteps
	doc.CommitHash = version
	if ticket.AssembledAt != nil {
		doc.AssembledAt = *ticket.AssembledAt
	}
	return doc, nil
}

func (s *Service) Export(ctx context.Context, req export.Request) (*export.Result, error) {
	if _, err := s.store.GetTicket(ctx, req.TicketID); err != nil {
		return nil, err
	}
	return s.exporter.Export(ctx, req)
}

func (s *Service) departmentNames(keys []string) []string {
	names := make([]string, 0, len(keys))
	for _, key := range keys {
		names = append(names, s.departments.Name(key))
	}
	return names
}

// NextForReview returns the oldest pending section of department across
// unassembled tickets, or false when the queue is empty.
func (s *Service) NextForReview(ctx context.Context, department string) (store.Section, bool, error) {
	if department == "" {
		return store.Section{}, false, domainError(http.StatusBadRequest, "MISSING_DEPARTMENT", "department is required", nil)
	}
	pending, err := s.store.ListSectionsByStatus(ctx, department, store.SectionPending)
	if err != nil {
		return store.Section{}, false, fmt.Errorf("list pending sections: %w", err)
	}
	for _, section := range pending {
		ticket, err := s.store.GetTicket(ctx, section.TicketID)
		if err != nil || ticket.Status == store.TicketAssembled {
			continue
		}
		return section, true, nil
	}
	return store.Section{}, false, nil
}

func (s *Service) Search(ctx context.Context, q search.Query) search.Response {
	return s.search.Search(ctx, q)
}

// IntakeResult reports what happened to an inbound message.
type IntakeResult struct {
	Ticket    *store.Ticket `json:"ticket,omitempty"`
	Duplicate bool          `json:"duplicate"`
}

// Intake turns an inbound email into a ticket. Messages seen before are
// acknowledged without creating another ticket.
func (s *Service) Intake(ctx context.Context, msg intake.Message) (IntakeResult, error) {
	mapped := intake.MapMessage(msg)
	if !intake.IsAllowedSender(mapped.Requester, s.allowedSenders) {
		return IntakeResult{}, domainError(http.StatusForbidden, "SENDER_NOT_ALLOWED", "Sender domain is not accepted", nil)
	}
	if !s.deduper.Remember(mapped.MessageID) {
		return IntakeResult{Duplicate: true}, nil
	}
	ticket, err := s.CreateTicket(ctx, CreateTicketInput{
		Subject:   mapped.Subject,
		Requester: mapped.Requester,
		Body:      mapped.Body,
		Actor:     "intake",
	})
	if err != nil {
		return IntakeResult{}, err
	}
	return IntakeResult{Ticket: &ticket}, nil
}

func ticketRecord(ticket store.Ticket) search.TicketRecord {
	return search.TicketRecord{
		ID:          ticket.ID,
		Subject:     ticket.Subject,
		Body:        ticket.Body,
		Departments: ticket.Departments,
		Status:      string(ticket.Status),
	}
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}
