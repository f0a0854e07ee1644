package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ampere-labs/poolbot/internal/bot"
	"github.com/ampere-labs/poolbot/internal/logger"
	"github.com/ampere-labs/poolbot/internal/types"
)

func TestMain(m *testing.M) {
	logger.Initialize("error")
	os.Exit(m.Run())
}

type fakeLister struct {
	receipts []types.SwapReceipt
	err      error
	gotLimit int
}

func (f *fakeLister) ListRecent(_ context.Context, limit int) ([]types.SwapReceipt, error) {
	f.gotLimit = limit
	return f.receipts, f.err
}

type fakeStats struct{ stats bot.Stats }

func (f *fakeStats) Stats() bot.Stats { return f.stats }

func testServer(lister ReceiptLister, stats StatsSource) *WebServer {
	return NewWebServer(Config{Port: "0", Receipts: lister, Stats: stats})
}

func doGet(t *testing.T, ws *WebServer, path string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	ws.router.ServeHTTP(rec, req)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec, body
}

func TestHealthEndpoint(t *testing.T) {
	ws := testServer(&fakeLister{}, &fakeStats{})

	rec, body := doGet(t, ws, "/health")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "OK", body["status"])
}

func TestReceiptsEndpoint(t *testing.T) {
	lister := &fakeLister{receipts: []types.SwapReceipt{
		{ID: 2, UserID: "alice", Success: true, TxHash: "0xabc"},
		{ID: 1, UserID: "bob", Success: false},
	}}
	ws := testServer(lister, &fakeStats{})

	rec, body := doGet(t, ws, "/api/receipts?limit=10")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, float64(2), body["count"])
	require.Equal(t, 10, lister.gotLimit)
}

func TestReceiptsRejectsBadLimit(t *testing.T) {
	ws := testServer(&fakeLister{}, &fakeStats{})

	rec, _ := doGet(t, ws, "/api/receipts?limit=bogus")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = doGet(t, ws, "/api/receipts?limit=-1")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReceiptsStoreFailure(t *testing.T) {
	ws := testServer(&fakeLister{err: fmt.Errorf("db down")}, &fakeStats{})

	rec, body := doGet(t, ws, "/api/receipts")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, true, body["error"])
}

func TestStatusEndpoint(t *testing.T) {
	ws := testServer(&fakeLister{}, &fakeStats{stats: bot.Stats{SwapsExecuted: 7, SwapsRejected: 2}})

	rec, body := doGet(t, ws, "/api/status")
	require.Equal(t, http.StatusOK, rec.Code)

	stats := body["stats"].(map[string]interface{})
	require.Equal(t, float64(7), stats["swapsExecuted"])
	require.Equal(t, float64(2), stats["swapsRejected"])
}
