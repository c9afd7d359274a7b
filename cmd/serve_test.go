package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fullcount-labs/athlete-cli/internal/identity"
	"github.com/fullcount-labs/athlete-cli/internal/model"
	"github.com/fullcount-labs/athlete-cli/internal/store"
)

func newTestRouter(t *testing.T) (http.Handler, store.Store) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "athletes.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	resolver := identity.NewResolver(st, nil, nil)
	return newRouter(st, resolver), st
}

func TestServeHealth(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)
}

func TestServeResolve(t *testing.T) {
	router, st := newTestRouter(t)

	body := `{"source_system":"hittrax","source_local_id":"P1","name":"Weiss, Ryan 11-25"}`
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/resolve", strings.NewReader(body))
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var out map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "created", out["outcome"])
	assert.NotEmpty(t, out["athlete_id"])

	a, err := st.GetAthlete(context.Background(), out["athlete_id"])
	require.NoError(t, err)
	assert.Equal(t, "RYAN WEISS", a.NormalizedName)

	// Same sighting resolves to the same athlete via its mapping.
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/resolve", strings.NewReader(body))
	router.ServeHTTP(rec, req)

	var again map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &again))
	assert.Equal(t, "mapped", again["outcome"])
	assert.Equal(t, out["athlete_id"], again["athlete_id"])
}

func TestServeResolve_BadRequests(t *testing.T) {
	router, _ := newTestRouter(t)

	for _, body := range []string{"{not json", `{"name":"Ryan Weiss"}`} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/resolve", strings.NewReader(body)))
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}

func TestServeGetAthlete(t *testing.T) {
	router, st := newTestRouter(t)
	ctx := context.Background()

	a := &model.Athlete{DisplayName: "Jane Doe", NormalizedName: "JANE DOE"}
	require.NoError(t, st.CreateAthleteWithMapping(ctx, a, "hittrax", "P1"))
	_, err := st.InsertFacts(ctx, "hitting", []model.FactRow{{AthleteID: a.ID, SessionDate: time.Now()}})
	require.NoError(t, err)
	_, err = st.ReconcileDomainStats(ctx)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/athletes/"+a.ID, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got model.Athlete
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "Jane Doe", got.DisplayName)
	require.Contains(t, got.Stats, "hitting")
	assert.Equal(t, 1, got.Stats["hitting"].SessionCount)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/athletes/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServeListMappings(t *testing.T) {
	router, st := newTestRouter(t)
	ctx := context.Background()

	a := &model.Athlete{DisplayName: "Jane Doe", NormalizedName: "JANE DOE"}
	require.NoError(t, st.CreateAthleteWithMapping(ctx, a, "hittrax", "P1"))
	require.NoError(t, st.BindMapping(ctx, "trackman", "T1", a.ID))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/athletes/"+a.ID+"/mappings", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var mappings []model.SourceMapping
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &mappings))
	assert.Len(t, mappings, 2)
}
