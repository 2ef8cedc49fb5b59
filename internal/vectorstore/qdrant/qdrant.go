package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"cysearch/internal/domain"
	"cysearch/internal/vectorstore"
)

// Storage is a minimal REST client to a Qdrant collection holding the
// embeddings artifact. Each point carries one record in its payload.
type Storage struct {
	url        string
	apiKey     string
	collection string
	pageSize   int
	client     *http.Client
}

type Config struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
	PageSize   int
}

func NewStorage(cfg Config) *Storage {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 256
	}
	return &Storage{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		pageSize:   pageSize,
		client:     &http.Client{Timeout: timeout},
	}
}

func (s *Storage) Name() string { return fmt.Sprintf("qdrant:%s/%s", s.url, s.collection) }

type point struct {
	ID      uint64         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

// Read scrolls through the whole collection and returns the records in
// their original insertion order.
func (s *Storage) Read(ctx context.Context) (*vectorstore.Batch, error) {
	var (
		points []point
		offset any
	)
	for {
		req := map[string]any{
			"limit":        s.pageSize,
			"with_payload": true,
			"with_vector":  true,
		}
		if offset != nil {
			req["offset"] = offset
		}
		var resp struct {
			Result struct {
				Points         []point `json:"points"`
				NextPageOffset any     `json:"next_page_offset"`
			} `json:"result"`
		}
		if err := s.doJSON(ctx, http.MethodPost, fmt.Sprintf("%s/collections/%s/points/scroll", s.url, s.collection), req, &resp); err != nil {
			return nil, err
		}
		points = append(points, resp.Result.Points...)
		if resp.Result.NextPageOffset == nil || len(resp.Result.Points) == 0 {
			break
		}
		offset = resp.Result.NextPageOffset
	}

	sort.SliceStable(points, func(i, j int) bool {
		return payloadInt(points[i].Payload, "seq") < payloadInt(points[j].Payload, "seq")
	})

	batch := &vectorstore.Batch{}
	for i, p := range points {
		rec := domain.Record{
			ID:           payloadString(p.Payload, "id"),
			Subject:      payloadString(p.Payload, "subject"),
			Code:         payloadString(p.Payload, "code"),
			Title:        payloadString(p.Payload, "title"),
			Credits:      payloadString(p.Payload, "credits"),
			Semester:     payloadString(p.Payload, "semester"),
			Prereq:       payloadString(p.Payload, "prereq"),
			Info:         payloadString(p.Payload, "info"),
			Link:         payloadString(p.Payload, "link"),
			CombinedText: payloadString(p.Payload, "combined"),
		}
		if m := payloadString(p.Payload, "model"); m != "" {
			if batch.Model == "" {
				batch.Model = m
			} else if m != batch.Model {
				return nil, &domain.LoadError{Row: i + 1, RecordID: rec.ID, Err: &domain.ModelMismatchError{Expected: batch.Model, Actual: m}}
			}
		}
		batch.Entries = append(batch.Entries, domain.Entry{Record: rec, Embedding: p.Vector})
	}
	return batch, nil
}

// Write recreates the collection with cosine distance and uploads batch.
func (s *Storage) Write(ctx context.Context, batch *vectorstore.Batch) error {
	if len(batch.Entries) == 0 {
		return errors.New("empty batch")
	}
	dimension := len(batch.Entries[0].Embedding)
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	collURL := fmt.Sprintf("%s/collections/%s", s.url, s.collection)
	if err := s.doJSON(ctx, http.MethodDelete, collURL, nil, nil); err != nil && !isNotFound(err) {
		return err
	}
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": "Cosine",
		},
	}
	if err := s.doJSON(ctx, http.MethodPut, collURL, body, nil); err != nil {
		return err
	}

	for start := 0; start < len(batch.Entries); start += s.pageSize {
		end := min(start+s.pageSize, len(batch.Entries))
		points := make([]map[string]any, 0, end-start)
		for i := start; i < end; i++ {
			r := batch.Entries[i].Record
			points = append(points, map[string]any{
				"id":     i + 1,
				"vector": batch.Entries[i].Embedding,
				"payload": map[string]any{
					"seq":      i + 1,
					"id":       r.ID,
					"subject":  r.Subject,
					"code":     r.Code,
					"title":    r.Title,
					"credits":  r.Credits,
					"semester": r.Semester,
					"prereq":   r.Prereq,
					"info":     r.Info,
					"link":     r.Link,
					"combined": r.CombinedText,
					"model":    batch.Model,
				},
			})
		}
		if err := s.doJSON(ctx, http.MethodPut, collURL+"/points?wait=true", map[string]any{"points": points}, nil); err != nil {
			return err
		}
	}
	return nil
}

type statusError struct {
	method, url string
	status      int
	text        string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("qdrant %s %s failed: %s", e.method, e.url, e.text)
}

func isNotFound(err error) bool {
	var se *statusError
	return errors.As(err, &se) && se.status == http.StatusNotFound
}

func (s *Storage) doJSON(ctx context.Context, method, url string, body any, out any) error {
	var rd *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(data)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return &statusError{method: method, url: url, status: resp.StatusCode, text: resp.Status}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func payloadString(p map[string]any, key string) string {
	v, _ := p[key].(string)
	return v
}

func payloadInt(p map[string]any, key string) int {
	v, _ := p[key].(float64)
	return int(v)
}
