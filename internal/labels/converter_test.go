package labels_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"

	"github.com/parcelforge/fulfillment/internal/labels"
)

func testLogger() *otelzap.Logger {
	return otelzap.New(zap.NewNop())
}

func zpl(pages int) []byte {
	return []byte(strings.Repeat("^XA^FDtest^FS^XZ", pages))
}

func TestCountPages(t *testing.T) {
	assert.Equal(t, 0, labels.CountPages(nil))
	assert.Equal(t, 1, labels.CountPages(zpl(1)))
	assert.Equal(t, 7, labels.CountPages(zpl(7)))
}

func TestNormalizePolarity(t *testing.T) {
	raw := []byte("^XA^POI^FDinverted^FS^XZ^XA^PON^XZ")
	normalized := labels.NormalizePolarity(raw)
	assert.NotContains(t, string(normalized), "^POI")
	assert.Equal(t, 2, strings.Count(string(normalized), "^PON"))
}

func TestPackBatches_FillsToCeiling(t *testing.T) {
	items := []labels.Item{
		{ID: "a", Raw: zpl(3)},
		{ID: "b", Raw: zpl(3)},
		{ID: "c", Raw: zpl(3)},
		{ID: "d", Raw: zpl(1)},
	}

	batches, err := labels.PackBatches(items, 6)
	require.NoError(t, err)
	require.Len(t, batches, 2)
	assert.Len(t, batches[0], 2)
	assert.Len(t, batches[1], 2)
}

func TestPackBatches_NeverSplitsAnItem(t *testing.T) {
	items := []labels.Item{
		{ID: "a", Raw: zpl(4)},
		{ID: "b", Raw: zpl(4)},
	}

	batches, err := labels.PackBatches(items, 5)
	require.NoError(t, err)
	require.Len(t, batches, 2)
	for _, b := range batches {
		assert.Len(t, b, 1)
	}
}

func TestPackBatches_OversizeItemIsHardError(t *testing.T) {
	_, err := labels.PackBatches([]labels.Item{{ID: "big", Raw: zpl(9)}}, 5)
	assert.ErrorContains(t, err, "exceeding the 5-page ceiling")
}

func TestPackBatches_RejectsNonPositiveCeiling(t *testing.T) {
	_, err := labels.PackBatches(nil, 0)
	assert.ErrorContains(t, err, "must be positive")
}

func TestConvert_SharedDocumentWithOffsets(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("%PDF-rendered"))
	}))
	defer srv.Close()

	c := labels.NewConverter(labels.Config{Endpoint: srv.URL, PageCeiling: 10}, testLogger())
	out, err := c.Convert(context.Background(), []labels.Item{
		{ID: "a", Raw: zpl(2)},
		{ID: "b", Raw: zpl(3)},
	})
	require.NoError(t, err)

	a := out["a"]
	b := out["b"]
	require.NoError(t, a.Err)
	require.NoError(t, b.Err)
	assert.Equal(t, a.Document, b.Document)
	assert.Equal(t, 0, a.PageOffset)
	assert.Equal(t, 2, a.PageCount)
	assert.Equal(t, 2, b.PageOffset)
	assert.Equal(t, 3, b.PageCount)
}

func TestConvert_OffsetsResetPerBatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("%PDF"))
	}))
	defer srv.Close()

	c := labels.NewConverter(labels.Config{Endpoint: srv.URL, PageCeiling: 3}, testLogger())
	out, err := c.Convert(context.Background(), []labels.Item{
		{ID: "a", Raw: zpl(3)},
		{ID: "b", Raw: zpl(3)},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, out["a"].PageOffset)
	assert.Equal(t, 0, out["b"].PageOffset)
}

func TestConvert_RetriesOnRateLimit(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte("%PDF"))
	}))
	defer srv.Close()

	c := labels.NewConverter(labels.Config{Endpoint: srv.URL, PageCeiling: 10, MaxAttempts: 3}, testLogger())
	out, err := c.Convert(context.Background(), []labels.Item{{ID: "a", Raw: zpl(1)}})
	require.NoError(t, err)
	require.NoError(t, out["a"].Err)
	assert.Equal(t, 2, attempts)
}

func TestConvert_TooLargeNotRetried(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusRequestEntityTooLarge)
	}))
	defer srv.Close()

	c := labels.NewConverter(labels.Config{Endpoint: srv.URL, PageCeiling: 10, MaxAttempts: 4}, testLogger())
	out, err := c.Convert(context.Background(), []labels.Item{{ID: "a", Raw: zpl(1)}})
	require.NoError(t, err)
	assert.ErrorIs(t, out["a"].Err, labels.ErrTooLarge)
	assert.Equal(t, 1, attempts)
}

func TestConvert_BadPayloadNotRetried(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := labels.NewConverter(labels.Config{Endpoint: srv.URL, PageCeiling: 10}, testLogger())
	out, err := c.Convert(context.Background(), []labels.Item{{ID: "a", Raw: zpl(1)}})
	require.NoError(t, err)
	assert.ErrorIs(t, out["a"].Err, labels.ErrBadPayload)
}

func TestConvert_BatchFailureIsolatedPerBatch(t *testing.T) {
	// With a 2-page ceiling the items land in separate batches; fail the
	// second request only.
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if requests == 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte("%PDF"))
	}))
	defer srv.Close()

	c := labels.NewConverter(labels.Config{Endpoint: srv.URL, PageCeiling: 2}, testLogger())
	out, err := c.Convert(context.Background(), []labels.Item{
		{ID: "a", Raw: zpl(2)},
		{ID: "b", Raw: zpl(2)},
	})
	require.NoError(t, err)
	assert.NoError(t, out["a"].Err)
	assert.Error(t, out["b"].Err)
	assert.Equal(t, 2, out["b"].PageCount)
	assert.Nil(t, out["b"].Document)
}

func TestConvert_OversizeItemFailsTheCall(t *testing.T) {
	c := labels.NewConverter(labels.Config{Endpoint: "http://unused", PageCeiling: 2}, testLogger())
	_, err := c.Convert(context.Background(), []labels.Item{{ID: "a", Raw: zpl(3)}})
	assert.Error(t, err)
}
