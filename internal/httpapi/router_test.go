package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invigilens/internal/alerts"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testAPI struct {
	t      *testing.T
	router *gin.Engine
}

func newTestAPI(t *testing.T, st alerts.Store, opts Options) *testAPI {
	t.Helper()
	opts.Alerts = alerts.NewService(st, nil, nil, nil)
	return &testAPI{t: t, router: NewRouter(opts)}
}

func (a *testAPI) do(method, path string, body any) *httptest.ResponseRecorder {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(a.t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func decodeAs[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestAlertReviewFlow(t *testing.T) {
	api := newTestAPI(t, alerts.NewMemoryStore(), Options{})

	w := api.do(http.MethodPost, "/api/alerts", map[string]any{
		"violationType": "Normal",
		"confidence":    0.42,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decodeAs[alerts.Alert](t, w)
	assert.Equal(t, alerts.StatusPending, created.Status)
	assert.Equal(t, alerts.UnknownStudent, created.StudentID)

	w = api.do(http.MethodGet, "/api/alerts?status=pending", nil)
	require.Equal(t, http.StatusOK, w.Code)
	pending := decodeAs[[]alerts.Alert](t, w)
	require.Len(t, pending, 1)
	assert.Equal(t, created.ID, pending[0].ID)
	assert.Equal(t, 0.42, pending[0].Confidence)
	assert.Equal(t, alerts.ViolationNormal, pending[0].ViolationType)

	w = api.do(http.MethodPut, "/api/alerts/"+created.ID, map[string]any{"status": "rejected"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, alerts.StatusRejected, decodeAs[alerts.Alert](t, w).Status)

	w = api.do(http.MethodGet, "/api/alerts?status=pending", nil)
	assert.Empty(t, decodeAs[[]alerts.Alert](t, w))

	w = api.do(http.MethodGet, "/api/alerts?status=rejected", nil)
	rejected := decodeAs[[]alerts.Alert](t, w)
	require.Len(t, rejected, 1)
	assert.Equal(t, created.ID, rejected[0].ID)
}

func TestCreateValidation(t *testing.T) {
	st := alerts.NewMemoryStore()
	api := newTestAPI(t, st, Options{})

	cases := map[string]any{
		"unknown violation":  map[string]any{"violationType": "Sleeping", "confidence": 0.5},
		"missing violation":  map[string]any{"confidence": 0.5},
		"missing confidence": map[string]any{"violationType": "Moving"},
		"not json":           "{violationType:",
		"wrong type":         map[string]any{"violationType": "Moving", "confidence": "high"},
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			w := api.do(http.MethodPost, "/api/alerts", body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.NotEmpty(t, decodeAs[map[string]any](t, w)["message"])
		})
	}

	all, err := st.Find(context.Background(), alerts.Filter{})
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestListEmptyIsArray(t *testing.T) {
	api := newTestAPI(t, alerts.NewMemoryStore(), Options{})
	w := api.do(http.MethodGet, "/api/alerts", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestUpdateStatusCases(t *testing.T) {
	api := newTestAPI(t, alerts.NewMemoryStore(), Options{})
	w := api.do(http.MethodPost, "/api/alerts", map[string]any{"violationType": "Using Phone", "confidence": 0.9, "studentId": "S-3"})
	require.Equal(t, http.StatusCreated, w.Code)
	id := decodeAs[alerts.Alert](t, w).ID

	w = api.do(http.MethodPut, "/api/alerts/"+id, map[string]any{"status": "verified"})
	require.Equal(t, http.StatusOK, w.Code)

	for name, body := range map[string]any{"empty object": map[string]any{}, "empty status": map[string]any{"status": ""}, "no body": nil} {
		w = api.do(http.MethodPut, "/api/alerts/"+id, body)
		require.Equal(t, http.StatusOK, w.Code, name)
		assert.Equal(t, alerts.StatusVerified, decodeAs[alerts.Alert](t, w).Status, name)
	}

	w = api.do(http.MethodPut, "/api/alerts/unknown-id", map[string]any{"status": "verified"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Alert not found", decodeAs[map[string]any](t, w)["message"])

	w = api.do(http.MethodPut, "/api/alerts/"+id, map[string]any{"status": "archived"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeleteAllKeepsEvidenceFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ev_1.jpg"), []byte("jpeg"), 0o644))
	api := newTestAPI(t, alerts.NewMemoryStore(), Options{EvidenceDir: dir})

	for i := 0; i < 2; i++ {
		w := api.do(http.MethodPost, "/api/alerts", map[string]any{"violationType": "Giving object", "confidence": 0.8, "evidencePath": "ev_1.jpg"})
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w := api.do(http.MethodDelete, "/api/alerts", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeAs[map[string]any](t, w)
	assert.Equal(t, "All alerts cleared", body["message"])
	assert.EqualValues(t, 2, body["deleted"])

	w = api.do(http.MethodGet, "/api/alerts", nil)
	assert.JSONEq(t, `[]`, w.Body.String())

	w = api.do(http.MethodGet, EvidencePrefix+"/ev_1.jpg", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "jpeg", w.Body.String())

	w = api.do(http.MethodGet, EvidencePrefix+"/missing.jpg", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

type brokenStore struct{ alerts.MemoryStore }

var errDiskOnFire = errors.New("pq: connection refused on 10.0.0.5")

func (*brokenStore) Find(context.Context, alerts.Filter) ([]alerts.Alert, error) {
	return nil, errDiskOnFire
}
func (*brokenStore) DeleteAll(context.Context) (int64, error) { return 0, errDiskOnFire }
func (*brokenStore) Ping(context.Context) error              { return errDiskOnFire }

func TestStoreFailuresHideDetail(t *testing.T) {
	api := newTestAPI(t, &brokenStore{}, Options{
		Health: map[string]HealthCheck{"store": (&brokenStore{}).Ping},
	})

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/alerts"},
		{http.MethodDelete, "/api/alerts"},
	} {
		w := api.do(tc.method, tc.path, nil)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.NotContains(t, w.Body.String(), "10.0.0.5")
		assert.NotEmpty(t, decodeAs[map[string]any](t, w)["message"])
	}

	w := api.do(http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, false, decodeAs[map[string]any](t, w)["store"])
}

func TestHealthOK(t *testing.T) {
	st := alerts.NewMemoryStore()
	api := newTestAPI(t, st, Options{Health: map[string]HealthCheck{"store": st.Ping}})
	w := api.do(http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","store":true}`, w.Body.String())
}
