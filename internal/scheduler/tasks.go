package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

const (
	TagExternalFact = "external_fact"
	TagWellbeing    = "wellbeing_check"

	// FactSource is the source name passed to the fact callback
	FactSource = "Numbers API"

	wellbeingVerifyInterval = 10 * time.Second
)

// ErrEmptyFact is returned when the fact source answers without text
var ErrEmptyFact = errors.New("fact source returned no text")

// DefaultSpecs returns the jobs used when no configuration is available
func DefaultSpecs() []Spec {
	return []Spec{
		{Tag: TagExternalFact, Interval: 6 * time.Hour},
		{Tag: TagWellbeing, Interval: 2 * time.Hour},
	}
}

// FactSink receives a newly fetched fact
type FactSink func(source, info string)

// Verifier re-checks a connection, skipping the check if one ran within minInterval
type Verifier interface {
	Verify(minInterval time.Duration) bool
}

// IntegrityChecker recomputes integrity
type IntegrityChecker interface {
	CheckIntegrity(force bool) int
}

type factResponse struct {
	Text string `json:"text"`
	Type string `json:"type"`
}

// FactFetcher pulls a random fact over HTTP
type FactFetcher struct {
	url    string
	client *http.Client
}

// NewFactFetcher creates a fetcher for url with a per-request timeout
func NewFactFetcher(url string, timeout time.Duration) *FactFetcher {
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &FactFetcher{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// Fetch returns the fact formatted as "[type] text"
func (f *FactFetcher) Fetch(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch fact: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("fact source returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var fr factResponse
	if err := json.NewDecoder(resp.Body).Decode(&fr); err != nil {
		return "", fmt.Errorf("decode fact: %w", err)
	}
	text := strings.TrimSpace(fr.Text)
	if text == "" {
		return "", ErrEmptyFact
	}
	kind := strings.TrimSpace(fr.Type)
	if kind == "" {
		kind = "Trivia"
	} else {
		kind = strings.ToUpper(kind[:1]) + kind[1:]
	}
	return fmt.Sprintf("[%s] %s", kind, text), nil
}

// ExternalFactTask fetches a fact and hands it to sink
func ExternalFactTask(fetcher *FactFetcher, sink FactSink) Func {
	return func(ctx context.Context) error {
		fact, err := fetcher.Fetch(ctx)
		if errors.Is(err, ErrEmptyFact) {
			log.Printf("[Scheduler] Warning: %v", err)
			return nil
		}
		if err != nil {
			return err
		}
		log.Printf("[Scheduler] New fact from %s", FactSource)
		sink(FactSource, fact)
		return nil
	}
}

// WellbeingTask verifies the connection and forces an integrity check
func WellbeingTask(conn Verifier, guard IntegrityChecker) Func {
	return func(ctx context.Context) error {
		if conn != nil {
			if ok := conn.Verify(wellbeingVerifyInterval); !ok {
				log.Printf("[Scheduler] Wellbeing: connection not available")
			}
		}
		if guard != nil {
			level := guard.CheckIntegrity(true)
			log.Printf("[Scheduler] debug: Wellbeing: integrity at %d%%", level)
		}
		return nil
	}
}
