// Package opensearch exports run events to an OpenSearch or Elasticsearch
// index, one document per event.
package opensearch

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

	"github.com/loykin/devsrv/internal/history"
)

// DefaultIndex receives run events when no index is named.
const DefaultIndex = "devsrv-runs"

// runDoc is the flat document stored per event, so dashboards can filter on
// server, outcome or trigger without nested mappings.
type runDoc struct {
	Event      history.EventType `json:"event"`
	OccurredAt time.Time         `json:"occurred_at"`
	Server     string            `json:"server"`
	Kind       string            `json:"kind"`
	RunID      string            `json:"run_id"`
	PID        int               `json:"pid"`
	Trigger    string            `json:"trigger"`
	Attempt    int               `json:"attempt"`
	StartedAt  time.Time         `json:"started_at"`
	Outcome    string            `json:"outcome,omitempty"`
	ExitCode   *int              `json:"exit_code,omitempty"`
	Reason     string            `json:"reason,omitempty"`
}

func docFor(e history.Event) runDoc {
	d := runDoc{
		Event:      e.Type,
		OccurredAt: e.OccurredAt,
		Server:     e.Run.Name,
		Kind:       e.Run.Kind,
		RunID:      e.Run.RunID,
		PID:        e.Run.PID,
		Trigger:    e.Run.Trigger,
		Attempt:    e.Run.Attempt,
		StartedAt:  e.Run.StartedAt,
	}
	if e.Type == history.EventExit {
		code := e.Run.ExitCode
		d.Outcome, d.ExitCode, d.Reason = e.Run.Outcome, &code, e.Run.Reason
	}
	return d
}

// Sink writes each run event to {baseURL}/{index}/_doc/{run_id}-{event}.
// The id makes a resent event overwrite its earlier copy.
type Sink struct {
	client  *http.Client
	baseURL string
	index   string
}

// New returns a sink for baseURL. An empty index uses DefaultIndex.
func New(baseURL, index string) *Sink {
	if index == "" {
		index = DefaultIndex
	}
	return &Sink{
		client:  &http.Client{Timeout: 5 * time.Second},
		baseURL: strings.TrimRight(baseURL, "/"),
		index:   index,
	}
}

func (s *Sink) docURL(e history.Event) string {
	u := s.baseURL + "/" + url.PathEscape(s.index) + "/_doc"
	if e.Run.RunID != "" {
		u += "/" + url.PathEscape(e.Run.RunID+"-"+string(e.Type))
	}
	return u
}

// Send indexes one run event.
func (s *Sink) Send(ctx context.Context, e history.Event) error {
	body, err := json.Marshal(docFor(e))
	if err != nil {
		return fmt.Errorf("encode run %s: %w", e.Run.RunID, err)
	}
	method := http.MethodPut
	if e.Run.RunID == "" {
		method = http.MethodPost
	}
	req, err := http.NewRequestWithContext(ctx, method, s.docURL(e), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("index %s event of %s: %w", e.Type, e.Run.Name, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("index %s event of %s into %s: status %d: %s",
			e.Type, e.Run.Name, s.index, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}
