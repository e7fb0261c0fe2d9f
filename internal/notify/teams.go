package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	teamsTimeout  = 10 * time.Second
	reviewSummary = "Approve or annotate your section by EOD."
)

var webhookHosts = []string{"office.com", "outlook.com", "powerplatform.com"}

// TeamsPayload is posted to a department's Teams workflow.
type TeamsPayload struct {
	TicketID   string `json:"ticketId"`
	SectionID  string `json:"sectionId"`
	Department string `json:"dept"`
	Subject    string `json:"subject"`
	Summary    string `json:"summary"`
	ReviewURL  string `json:"reviewUrl"`
}

// ValidateWebhookURL accepts https URLs on Microsoft's webhook hosts.
func ValidateWebhookURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("parse webhook url: %w", err)
	}
	if u.Scheme != "https" {
		return fmt.Errorf("webhook url must use https")
	}
	host := strings.ToLower(u.Hostname())
	for _, allowed := range webhookHosts {
		if host == allowed || strings.HasSuffix(host, "."+allowed) {
			return nil
		}
	}
	return fmt.Errorf("webhook host %q is not a Teams endpoint", host)
}

type TeamsClient struct {
	httpClient *http.Client
	// skipValidation lets tests post to httptest servers.
	skipValidation bool
}

func NewTeamsClient(httpClient *http.Client) *TeamsClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: teamsTimeout}
	}
	return &TeamsClient{httpClient: httpClient}
}

func (c *TeamsClient) Send(ctx context.Context, webhookURL string, payload TeamsPayload) error {
	if !c.skipValidation {
		if err := ValidateWebhookURL(webhookURL); err != nil {
			return err
		}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal teams payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, teamsTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build teams request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("teams webhook for %s: %w", payload.Department, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("teams webhook for %s: HTTP %d - %s", payload.Department, resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	return nil
}

// ReviewURL is the page a reviewer opens for one section.
func ReviewURL(origin, sectionID string) string {
	return strings.TrimRight(origin, "/") + "/review/" + url.PathEscape(sectionID)
}
