// Package poller runs the best-effort background loop that pulls inbound
// mail from a remote feed and appends it to the store. All writes go through
// the Store, so the poller contends for the same mutation lock as request
// handlers instead of racing them.
package poller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/lettermill/lettermill/internal/common"
	"github.com/lettermill/lettermill/internal/models"
	"github.com/lettermill/lettermill/internal/store"
)

// FeedMessage is one inbound email as published by the feed API.
type FeedMessage struct {
	From       string    `json:"from"`
	To         string    `json:"to"`
	Subject    string    `json:"subject"`
	Body       string    `json:"body"`
	ReceivedAt time.Time `json:"received_at"`
}

type Poller struct {
	store    store.Store
	feedURL  string
	interval time.Duration
	client   *http.Client

	lastFetched time.Time
}

func New(st store.Store, feedURL string, interval time.Duration) *Poller {
	return &Poller{
		store:    st,
		feedURL:  feedURL,
		interval: interval,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		lastFetched: time.Now().Add(-24 * time.Hour),
	}
}

// Run polls until the context is cancelled. A failed poll is logged and the
// loop continues on its fixed interval; it never terminates the process.
func (p *Poller) Run(ctx context.Context) {
	log.Printf("Starting inbound poller: feed=%s interval=%v", p.feedURL, p.interval)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("Inbound poller stopped")
			return
		case <-ticker.C:
			if err := p.pollOnce(ctx); err != nil {
				log.Printf("Error polling inbound feed: %v", err)
			}
		}
	}
}

func (p *Poller) pollOnce(ctx context.Context) error {
	msgs, err := p.fetch(ctx)
	if err != nil {
		return err
	}

	delivered := 0
	for _, fm := range msgs {
		// Only deliver to registered recipients; everything else in the
		// feed is noise.
		if _, err := p.store.GetUser(ctx, fm.To); err != nil {
			if errors.Is(err, common.ErrNotFound) {
				continue
			}
			return err
		}

		_, err := p.store.AddMessage(ctx, models.Message{
			From:      fm.From,
			To:        fm.To,
			Subject:   fm.Subject,
			Body:      fm.Body,
			Folder:    models.FolderInbox,
			CreatedAt: fm.ReceivedAt,
		})
		if err != nil {
			return fmt.Errorf("failed to store inbound message: %w", err)
		}
		delivered++

		if fm.ReceivedAt.After(p.lastFetched) {
			p.lastFetched = fm.ReceivedAt
		}
	}

	if delivered > 0 {
		log.Printf("Inbound poller delivered %d message(s)", delivered)
	}
	return nil
}

func (p *Poller) fetch(ctx context.Context) ([]FeedMessage, error) {
	url := fmt.Sprintf("%s/api/inbound", p.feedURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	q := req.URL.Query()
	q.Set("receivedAfter", p.lastFetched.Format(time.RFC3339))
	req.URL.RawQuery = q.Encode()

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch inbound feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var msgs []FeedMessage
	if err := json.NewDecoder(resp.Body).Decode(&msgs); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return msgs, nil
}
