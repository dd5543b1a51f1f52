// Package labels converts raw ZPL label payloads to rendered documents via
// an external rendering service, bin-packing them under the service's
// page-count ceiling.
package labels

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// labelStart marks the start of one renderable label in a ZPL stream.
var labelStart = []byte("^XA")

// invertedPolarity is the print-orientation directive some carriers emit;
// the renderer needs normal polarity.
var (
	invertedPolarity = []byte("^POI")
	normalPolarity   = []byte("^PON")
)

// CountPages counts renderable labels in a raw ZPL payload.
func CountPages(raw []byte) int {
	return bytes.Count(raw, labelStart)
}

// NormalizePolarity rewrites inverted-polarity directives to normal polarity.
func NormalizePolarity(raw []byte) []byte {
	return bytes.ReplaceAll(raw, invertedPolarity, normalPolarity)
}

// Item is one label payload to convert.
type Item struct {
	ID  string
	Raw []byte
}

// Rendered is the conversion output for one item: the shared rendered bytes
// of its batch plus the item's page range within them.
type Rendered struct {
	// Document is the combined rendered output of the whole batch. Items in
	// the same batch share the same slice.
	Document []byte
	// PageOffset is the zero-based index of the item's first page within
	// Document.
	PageOffset int
	// PageCount is the item's number of pages.
	PageCount int
	// Err is set when the item's batch failed to convert. The other fields
	// are zero; callers substitute a placeholder.
	Err error
}

// ErrTooLarge indicates the renderer rejected a batch as too large.
var ErrTooLarge = fmt.Errorf("rendering service rejected the payload as too large")

// ErrBadPayload indicates the renderer could not parse a batch.
var ErrBadPayload = fmt.Errorf("rendering service rejected the payload as malformed")

// PackBatches packs items into batches whose page counts stay at or under
// the ceiling. Items are never split across batches; an item whose own page
// count exceeds the ceiling is a hard error.
func PackBatches(items []Item, ceiling int) ([][]Item, error) {
	if ceiling <= 0 {
		return nil, fmt.Errorf("page ceiling must be positive, got %d", ceiling)
	}

	var batches [][]Item
	var current []Item
	pages := 0

	for _, item := range items {
		n := CountPages(item.Raw)
		if n > ceiling {
			return nil, fmt.Errorf("label %s has %d pages, exceeding the %d-page ceiling", item.ID, n, ceiling)
		}
		if pages+n > ceiling && len(current) > 0 {
			batches = append(batches, current)
			current = nil
			pages = 0
		}
		current = append(current, item)
		pages += n
	}
	if len(current) > 0 {
		batches = append(batches, current)
	}
	return batches, nil
}

// Config configures the converter.
type Config struct {
	// Endpoint is the rendering service URL accepting raw ZPL.
	Endpoint string
	// PageCeiling is the maximum pages per conversion request.
	PageCeiling int
	// MaxAttempts bounds retries on rate-limit responses.
	MaxAttempts int
	// Timeout applies per conversion request.
	Timeout time.Duration
}

// Converter renders ZPL through the external service with bounded retry on
// rate limiting.
type Converter struct {
	cfg    Config
	client *http.Client
	logger *otelzap.Logger
}

// NewConverter creates a converter.
func NewConverter(cfg Config, logger *otelzap.Logger) *Converter {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 4
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Converter{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// Convert normalizes, packs, and renders the items. Per-batch failures are
// reported on each affected item's Err rather than aborting the whole run;
// only packing itself can fail the call.
func (c *Converter) Convert(ctx context.Context, items []Item) (map[string]Rendered, error) {
	normalized := make([]Item, len(items))
	for i, item := range items {
		normalized[i] = Item{ID: item.ID, Raw: NormalizePolarity(item.Raw)}
	}

	batches, err := PackBatches(normalized, c.cfg.PageCeiling)
	if err != nil {
		return nil, err
	}

	out := make(map[string]Rendered, len(items))
	for _, batch := range batches {
		doc, err := c.renderBatch(ctx, batch)
		offset := 0
		for _, item := range batch {
			n := CountPages(item.Raw)
			if err != nil {
				out[item.ID] = Rendered{Err: err, PageCount: n}
				continue
			}
			out[item.ID] = Rendered{Document: doc, PageOffset: offset, PageCount: n}
			offset += n
		}
		if err != nil {
			c.logger.Ctx(ctx).Error("Label batch conversion failed",
				zap.Int("items", len(batch)),
				zap.Error(err),
			)
		}
	}
	return out, nil
}

// renderBatch issues one conversion request for the concatenated batch,
// retrying with randomized backoff while the service rate-limits.
func (c *Converter) renderBatch(ctx context.Context, batch []Item) ([]byte, error) {
	var payload bytes.Buffer
	for _, item := range batch {
		payload.Write(item.Raw)
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(c.cfg.MaxAttempts-1)),
		ctx,
	)

	var doc []byte
	op := func() error {
		rendered, err := c.post(ctx, payload.Bytes())
		if err != nil {
			return err
		}
		doc = rendered
		return nil
	}
	if err := backoff.Retry(op, policy); err != nil {
		return nil, err
	}
	return doc, nil
}

func (c *Converter) post(ctx context.Context, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/pdf")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return io.ReadAll(resp.Body)
	case http.StatusTooManyRequests:
		return nil, fmt.Errorf("rendering service rate limited the request")
	case http.StatusRequestEntityTooLarge:
		return nil, backoff.Permanent(ErrTooLarge)
	case http.StatusBadRequest:
		return nil, backoff.Permanent(ErrBadPayload)
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, backoff.Permanent(fmt.Errorf("rendering service returned %d: %s", resp.StatusCode, bytes.TrimSpace(body)))
	}
}
