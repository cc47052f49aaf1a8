package availability

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"courtbot/pkg/logx"
)

// HTTPSource pulls the availability snapshot from a court-aggregation
// endpoint returning a JSON array of slot records.
type HTTPSource struct {
	url    string
	client *http.Client
	log    logx.Logger
}

type slotRecord struct {
	Business string `json:"business"`
	Sport    string `json:"sport"`
	Locality string `json:"locality"`
	Status   string `json:"status"`
	Date     string `json:"date"`
	Timing   string `json:"timing"`
	Price    string `json:"price,omitempty"`
	Booking  string `json:"booking,omitempty"`
}

func NewHTTPSource(url string, timeout time.Duration, log logx.Logger) (*HTTPSource, error) {
	if strings.TrimSpace(url) == "" {
		return nil, errors.New("availability url is empty")
	}
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &HTTPSource{
		url:    url,
		client: &http.Client{Timeout: timeout},
		log:    log,
	}, nil
}

func (s *HTTPSource) Snapshot(ctx context.Context) ([]Slot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("availability fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("availability fetch: unexpected status %d", resp.StatusCode)
	}

	var records []slotRecord
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, fmt.Errorf("availability decode: %w", err)
	}

	slots := make([]Slot, 0, len(records))
	for _, r := range records {
		slots = append(slots, Slot{
			Business: r.Business,
			Sport:    r.Sport,
			Locality: r.Locality,
			Status:   r.Status,
			Date:     r.Date,
			Timing:   r.Timing,
			Price:    r.Price,
			Booking:  r.Booking,
		})
	}
	s.log.Debug("availability snapshot fetched", logx.Int("slots", len(slots)))
	return slots, nil
}
