// Package sheet talks to the spreadsheet-backed REST collection that holds
// the shared like count of every route.
package sheet

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/example/routebook/internal/route/domain"
)

// ErrUnexpectedStatus wraps non-2xx responses.
var ErrUnexpectedStatus = errors.New("unexpected sheet api status")

// Client implements domain.RemoteLikeStore over the sheet REST API:
// GET <base> lists every row and PATCH <base>/id/<id> overwrites one row.
type Client struct {
	baseURL string
	http    *http.Client
	tracer  trace.Tracer
}

// NewClient builds a client. A nil httpClient gets a client with the given timeout;
// a zero timeout means requests are never abandoned.
func NewClient(baseURL string, httpClient *http.Client, timeout time.Duration) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		tracer:  otel.Tracer("routebook.sheet"),
	}
}

type row struct {
	ID    json.RawMessage `json:"id"`
	Likes json.RawMessage `json:"likes"`
}

// List fetches the full like collection. Rows without a usable id are skipped;
// rows whose likes value is missing or not numeric report zero.
func (c *Client) List(ctx context.Context) ([]domain.LikeRecord, error) {
	ctx, span := c.tracer.Start(ctx, "sheet.list")
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL, nil)
	if err != nil {
		return nil, fail(span, fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fail(span, fmt.Errorf("sheet list: %w", err))
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return nil, fail(span, err)
	}

	var rows []row
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, fail(span, fmt.Errorf("decode sheet rows: %w", err))
	}

	records := make([]domain.LikeRecord, 0, len(rows))
	for _, r := range rows {
		id, ok := ParseInt(string(r.ID))
		if !ok {
			continue
		}
		likes, ok := ParseInt(string(r.Likes))
		if !ok || likes < 0 {
			likes = 0
		}
		records = append(records, domain.LikeRecord{RouteID: id, Likes: likes})
	}
	span.SetAttributes(attribute.Int("sheet.rows", len(records)))
	return records, nil
}

// UpdateLikes overwrites the stored count for one route.
func (c *Client) UpdateLikes(ctx context.Context, routeID, likes int) error {
	ctx, span := c.tracer.Start(ctx, "sheet.update_likes", trace.WithAttributes(
		attribute.Int("route.id", routeID),
		attribute.Int("route.likes", likes),
	))
	defer span.End()

	body, err := json.Marshal(map[string]int{"likes": likes})
	if err != nil {
		return fail(span, fmt.Errorf("marshal likes: %w", err))
	}
	url := fmt.Sprintf("%s/id/%d", c.baseURL, routeID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, url, bytes.NewReader(body))
	if err != nil {
		return fail(span, fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fail(span, fmt.Errorf("sheet patch: %w", err))
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return fail(span, checkStatus(resp))
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
}

func fail(span trace.Span, err error) error {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// ParseInt reads the leading integer of a JSON scalar the way a lenient
// browser parser would: "12", 12, 1e3, "12.9" and " 7 likes" all parse,
// while null, "" and "abc" do not. Bare numbers are truncated toward zero.
func ParseInt(raw string) (int, bool) {
	s := strings.TrimSpace(raw)
	if unquoted, err := strconv.Unquote(s); err == nil {
		s = strings.TrimSpace(unquoted)
	} else if f, err := strconv.ParseFloat(s, 64); err == nil && math.Abs(f) < 1e15 {
		return int(f), true
	}
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return 0, false
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0, false
	}
	return n, true
}

// Nop stands in for the remote store when none is configured.
type Nop struct{}

// List returns no records.
func (Nop) List(context.Context) ([]domain.LikeRecord, error) { return nil, nil }

// UpdateLikes discards the count.
func (Nop) UpdateLikes(context.Context, int, int) error { return nil }
