package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"sync"
	"time"

	"go.uber.org/zap"

	"onereply/api/internal/departments"
	"onereply/api/internal/store"
)

const defaultQueueSize = 256

type TicketLookup interface {
	GetTicket(ctx context.Context, ticketID string) (store.Ticket, error)
}

type Directory interface {
	Lookup(key string) departments.Department
}

type Config struct {
	// Origin is the base URL review links point at.
	Origin string
	// Webhooks override the registry's Teams URL per department key.
	Webhooks   map[string]string
	Recipients []string
	QueueSize  int
}

// Dispatcher turns committed events into notifications. Drafts ping the
// owning department on Teams; approvals, locks and assembly go out by email.
// Delivery happens on a background worker so callers never wait on the
// network.
type Dispatcher struct {
	cfg       Config
	tickets   TicketLookup
	directory Directory
	teams     *TeamsClient
	mail      MailSender
	logger    *zap.Logger

	queue     chan store.EventLog
	wg        sync.WaitGroup
	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
}

func NewDispatcher(cfg Config, tickets TicketLookup, directory Directory, teams *TeamsClient, mail MailSender, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	d := &Dispatcher{
		cfg:       cfg,
		tickets:   tickets,
		directory: directory,
		teams:     teams,
		mail:      mail,
		logger:    logger.Named("notify"),
		queue:     make(chan store.EventLog, cfg.QueueSize),
	}
	d.wg.Add(1)
	go d.run()
	return d
}

// Publish queues event for delivery. A full queue drops the event.
func (d *Dispatcher) Publish(_ context.Context, event store.EventLog) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}
	select {
	case d.queue <- event:
	default:
		d.logger.Warn("notification queue full, dropping event",
			zap.String("ticket_id", event.TicketID),
			zap.String("event", string(event.Type)))
	}
}

// Close stops accepting events and waits for queued ones to be delivered.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		close(d.queue)
		d.mu.Unlock()
	})
	d.wg.Wait()
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for event := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := d.deliver(ctx, event); err != nil {
			d.logger.Warn("notification failed",
				zap.String("ticket_id", event.TicketID),
				zap.String("department", event.Department),
				zap.String("event", string(event.Type)),
				zap.Error(err))
		}
		cancel()
	}
}

func (d *Dispatcher) deliver(ctx context.Context, event store.EventLog) error {
	switch event.Type {
	case store.EventDraftGenerated:
		return d.notifyDepartment(ctx, event)
	case store.EventSectionApproved, store.EventSectionLocked, store.EventTicketAssembled:
		return d.emailDigest(ctx, event)
	default:
		return nil
	}
}

func (d *Dispatcher) webhookFor(department string) string {
	if url := d.cfg.Webhooks[department]; url != "" {
		return url
	}
	if d.directory == nil {
		return ""
	}
	return d.directory.Lookup(department).TeamsWebhook
}

func (d *Dispatcher) notifyDepartment(ctx context.Context, event store.EventLog) error {
	if d.teams == nil || event.SectionID == "" {
		return nil
	}
	webhook := d.webhookFor(event.Department)
	if webhook == "" {
		d.logger.Debug("no teams webhook for department", zap.String("department", event.Department))
		return nil
	}
	ticket, err := d.tickets.GetTicket(ctx, event.TicketID)
	if err != nil {
		return fmt.Errorf("load ticket: %w", err)
	}
	return d.teams.Send(ctx, webhook, TeamsPayload{
		TicketID:   event.TicketID,
		SectionID:  event.SectionID,
		Department: event.Department,
		Subject:    ticket.Subject,
		Summary:    reviewSummary,
		ReviewURL:  ReviewURL(d.cfg.Origin, event.SectionID),
	})
}

func (d *Dispatcher) recipientsFor(department string) []string {
	recipients := append([]string{}, d.cfg.Recipients...)
	if department != "" && d.directory != nil {
		if email := d.directory.Lookup(department).Email; email != "" {
			recipients = append(recipients, email)
		}
	}
	return recipients
}

func (d *Dispatcher) emailDigest(ctx context.Context, event store.EventLog) error {
	if d.mail == nil {
		return nil
	}
	recipients := d.recipientsFor(event.Department)
	if len(recipients) == 0 {
		return nil
	}
	ticket, err := d.tickets.GetTicket(ctx, event.TicketID)
	if err != nil {
		return fmt.Errorf("load ticket: %w", err)
	}

	departmentName := event.Department
	if d.directory != nil && event.Department != "" {
		departmentName = d.directory.Lookup(event.Department).Name
	}
	body, err := renderDigest(digestData{
		Subject:    ticket.Subject,
		TicketID:   ticket.ID,
		Event:      eventLabel(event.Type),
		Department: departmentName,
		Detail:     event.Detail,
		Actor:      event.Actor,
		At:         event.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("render digest: %w", err)
	}
	return d.mail.Send(recipients, fmt.Sprintf("[OneReply] %s: %s", eventLabel(event.Type), ticket.Subject), body)
}

func eventLabel(t store.EventType) string {
	switch t {
	case store.EventSectionApproved:
		return "Section approved"
	case store.EventSectionLocked:
		return "Section locked"
	case store.EventTicketAssembled:
		return "Reply assembled"
	default:
		return string(t)
	}
}

type digestData struct {
	Subject    string
	TicketID   string
	Event      string
	Department string
	Detail     string
	Actor      string
	At         time.Time
}

var digestTemplate = template.Must(template.New("digest").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #333;">
  <h2>{{.Event}}</h2>
  <p><strong>{{.Subject}}</strong> ({{.TicketID}})</p>
  {{if .Department}}<p>Department: {{.Department}}</p>{{end}}
  {{if .Actor}}<p>By: {{.Actor}}</p>{{end}}
  {{if .Detail}}<p>{{.Detail}}</p>{{end}}
  {{if not .At.IsZero}}<p style="color: #666; font-size: 12px;">{{.At.Format "Jan 2, 2006 15:04 MST"}}</p>{{end}}
</body>
</html>`))

func renderDigest(data digestData) (string, error) {
	var buf bytes.Buffer
	if err := digestTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
