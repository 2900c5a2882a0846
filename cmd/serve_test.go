package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/recon-cli/internal/learning"
	"github.com/sells-group/recon-cli/internal/match"
	"github.com/sells-group/recon-cli/internal/model"
	"github.com/sells-group/recon-cli/internal/processor"
	"github.com/sells-group/recon-cli/internal/queue"
	"github.com/sells-group/recon-cli/internal/receipts"
	"github.com/sells-group/recon-cli/internal/rules"
	"github.com/sells-group/recon-cli/internal/store"
)

func testEnv(t *testing.T) *reconEnv {
	t.Helper()

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	rc, err := receipts.NewFSStore(t.TempDir())
	require.NoError(t, err)

	learn := learning.NewService(st)
	proc := processor.New(st, rc, rules.NewService(st),
		match.NewHeuristicScorer(match.DefaultParams()),
		processor.LogPoster{}, learn, processor.Options{})
	ctrl := queue.New(st, proc, queue.Options{})

	return &reconEnv{
		Store:      st,
		Processor:  proc,
		Controller: ctrl,
		Learning:   learn,
		Sweeper:    queue.NewOrphanSweeper(st, learn, queue.OrphanOptions{}),
	}
}

func doRequest(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestServeHealth(t *testing.T) {
	r := newRouter(testEnv(t), zap.NewNop())

	rr := doRequest(t, r, http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"ok"`)
}

func TestServeWebhookIngest(t *testing.T) {
	env := testEnv(t)
	r := newRouter(env, zap.NewNop())
	payload := `{"external_id":"exp-1","vendor":"Shell Gas Station","amount":"52.96","date":"2024-08-12"}`

	rr := doRequest(t, r, http.MethodPost, "/webhook/expenses", payload)
	require.Equal(t, http.StatusAccepted, rr.Code)

	var resp struct {
		RecordID  string `json:"record_id"`
		Duplicate bool   `json:"duplicate"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.RecordID)
	assert.False(t, resp.Duplicate)

	// Same external id again is reported as a duplicate, still accepted.
	rr = doRequest(t, r, http.MethodPost, "/webhook/expenses", payload)
	require.Equal(t, http.StatusAccepted, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.True(t, resp.Duplicate)

	rec, err := env.Store.GetRecordByExternalID(context.Background(), "exp-1")
	require.NoError(t, err)
	assert.Equal(t, model.RecordPending, rec.Status)
}

func TestServeWebhookRejectsBadPayload(t *testing.T) {
	r := newRouter(testEnv(t), zap.NewNop())

	rr := doRequest(t, r, http.MethodPost, "/webhook/expenses",
		`{"vendor":"Shell","amount":"5.00","date":"2024-08-12"}`)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestServeGetRecord(t *testing.T) {
	env := testEnv(t)
	r := newRouter(env, zap.NewNop())

	rr := doRequest(t, r, http.MethodPost, "/webhook/expenses",
		`{"external_id":"exp-2","vendor":"Starbucks","amount":"6.45","date":"2024-08-13"}`)
	require.Equal(t, http.StatusAccepted, rr.Code)
	var created struct {
		RecordID string `json:"record_id"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))

	rr = doRequest(t, r, http.MethodGet, "/records/"+created.RecordID, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"exp-2"`)
	assert.Contains(t, rr.Body.String(), `"6.45"`)

	rr = doRequest(t, r, http.MethodGet, "/records/no-such-id", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestServeResetFlaggedRecord(t *testing.T) {
	env := testEnv(t)
	r := newRouter(env, zap.NewNop())
	ctx := context.Background()

	rr := doRequest(t, r, http.MethodPost, "/webhook/expenses",
		`{"external_id":"exp-3","vendor":"Shell Gas Station","amount":"52.96","date":"2024-08-12"}`)
	require.Equal(t, http.StatusAccepted, rr.Code)
	var created struct {
		RecordID string `json:"record_id"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))

	// A pending record is not resettable.
	rr = doRequest(t, r, http.MethodPost, "/records/"+created.RecordID+"/reset", "{}")
	assert.Equal(t, http.StatusConflict, rr.Code)

	// Flag it, then reset with a correction.
	claimed, err := env.Store.ClaimOldestPending(ctx)
	require.NoError(t, err)
	require.NoError(t, env.Store.MarkFlagged(ctx, claimed.ID, 60, "no bank match found",
		[]string{"no bank match found"}))

	rr = doRequest(t, r, http.MethodPost, "/records/"+created.RecordID+"/reset",
		`{"corrected_category":"Fuel","corrected_jurisdiction":"CA"}`)
	require.Equal(t, http.StatusOK, rr.Code)

	rec, err := env.Store.GetRecord(ctx, created.RecordID)
	require.NoError(t, err)
	assert.Equal(t, model.RecordPending, rec.Status)
	assert.Equal(t, "Fuel", rec.Category)
	assert.Equal(t, "CA", rec.Jurisdiction)

	// The correction also seeded a vendor rule.
	vrules, err := env.Store.ListVendorRules(ctx)
	require.NoError(t, err)
	require.Len(t, vrules, 1)
	assert.Equal(t, "Fuel", vrules[0].DefaultCategory)
}

func TestServeStatus(t *testing.T) {
	env := testEnv(t)
	r := newRouter(env, zap.NewNop())

	rr := doRequest(t, r, http.MethodPost, "/webhook/expenses",
		`{"external_id":"exp-4","vendor":"Amazon","amount":"45.00","date":"2024-08-14"}`)
	require.Equal(t, http.StatusAccepted, rr.Code)

	rr = doRequest(t, r, http.MethodGet, "/status", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Counts map[string]int `json:"counts"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Counts["pending"])
}
