package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"focuscal/internal/config"
	"focuscal/internal/focus"
	"focuscal/internal/model"
	"focuscal/internal/store"
)

var monday = time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return time.Date(2025, 1, 5, 18, 0, 0, 0, time.UTC) }

type testEnv struct {
	store      *store.Store
	server     *httptest.Server
	registry   *prometheus.Registry
	collectCnt *atomic.Int32
}

type envOptions struct {
	basicAuth *config.BasicAuthConfig
	failing   bool
}

func newTestEnv(t *testing.T, opts envOptions) *testEnv {
	t.Helper()
	db, err := store.Connect(config.DatabaseConfig{Backend: config.DatabaseSQLite, DSN: filepath.Join(t.TempDir(), "web.db")})
	require.NoError(t, err)
	require.NoError(t, store.Migrate(db))
	t.Cleanup(func() { _ = store.Close(db) })
	st := store.New(db)

	var calls atomic.Int32
	collector := focus.NewCollector().
		Add("meetings", focus.CommitmentSourceFunc(func(ctx context.Context, userID string, start, end time.Time) ([]model.Commitment, error) {
			calls.Add(1)
			if opts.failing {
				return nil, errors.New("calendar offline")
			}
			return st.FetchMeetings(ctx, userID, start, end)
		})).
		Add("time_blocks", focus.CommitmentSourceFunc(st.FetchConfirmedBlocks))

	engine := focus.NewEngine(focus.Config{Location: time.UTC, Now: fixedNow}, collector, st, st, st, nil)

	cfg := config.DefaultConfig()
	cfg.BasicAuth = opts.basicAuth
	reg := prometheus.NewRegistry()
	srv := NewServer(cfg, Options{
		Engine:    engine,
		Collector: collector,
		Blocks:    st,
		Gatherer:  reg,
		Now:       fixedNow,
	})

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testEnv{store: st, server: ts, registry: reg, collectCnt: &calls}
}

func (e *testEnv) do(t *testing.T, method, path string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, e.server.URL+path, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

type suggestResponse struct {
	UserID      string                       `json:"userId"`
	RangeStart  time.Time                    `json:"rangeStart"`
	Suggestions []model.FocusBlockSuggestion `json:"suggestions"`
	Generated   int                          `json:"generated"`
	Confidence  float64                      `json:"confidence"`
	Persisted   bool                         `json:"persisted"`
}

func seedMonday(t *testing.T, st *store.Store) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, st.CreateMeeting(ctx, &store.Meeting{
		UserID:    "u1",
		Title:     "Standup",
		StartTime: monday.Add(9 * time.Hour),
		EndTime:   monday.Add(10 * time.Hour),
	}))
	for i, title := range []string{"Write design doc", "Review PRs"} {
		require.NoError(t, st.CreateTask(ctx, &store.Task{
			UserID:    "u1",
			Title:     title,
			Priority:  "high",
			CreatedAt: monday.Add(-time.Duration(2-i) * time.Hour),
		}))
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, envOptions{basicAuth: &config.BasicAuthConfig{Username: "admin", Password: "secret"}})

	resp := env.do(t, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "OK", string(body))
}

func TestBasicAuth(t *testing.T) {
	env := newTestEnv(t, envOptions{basicAuth: &config.BasicAuthConfig{Username: "admin", Password: "secret"}})

	resp := env.do(t, http.MethodGet, "/api/users/u1/time-blocks")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("WWW-Authenticate"), "Basic")

	req, err := http.NewRequest(http.MethodGet, env.server.URL+"/api/users/u1/time-blocks", nil)
	require.NoError(t, err)
	req.SetBasicAuth("admin", "wrong")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req.SetBasicAuth("admin", "secret")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSuggestPersistsAndConfirms(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	seedMonday(t, env.store)

	resp := env.do(t, http.MethodPost, "/api/users/u1/focus-blocks?start=2025-01-06&end=2025-01-06")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	res := decode[suggestResponse](t, resp)

	assert.Equal(t, "u1", res.UserID)
	assert.True(t, res.Persisted)
	// 10:00-17:00 free: four 90m blocks and a trailing 60m block.
	require.Len(t, res.Suggestions, 5)
	assert.Equal(t, monday.Add(10*time.Hour), res.Suggestions[0].StartTime.UTC())
	assert.Equal(t, "Focus: Write design doc", res.Suggestions[0].Title)
	assert.Equal(t, "Focus: Review PRs", res.Suggestions[1].Title)
	assert.Equal(t, focus.GenericBlockTitle, res.Suggestions[2].Title)

	resp = env.do(t, http.MethodGet, "/api/users/u1/time-blocks?start=2025-01-06&end=2025-01-06")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	blocks := decode[timeBlocksResponse](t, resp)
	require.Len(t, blocks.Blocks, 5)
	assert.Equal(t, store.BlockStatusSuggested, blocks.Blocks[0].Status)

	resp = env.do(t, http.MethodPost, "/api/users/u1/time-blocks/"+blocks.Blocks[0].ID+"/confirm")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	confirmed := decode[store.TimeBlock](t, resp)
	assert.Equal(t, store.BlockStatusConfirmed, confirmed.Status)

	// The confirmed block now blocks 10:00-11:30 on the next run.
	resp = env.do(t, http.MethodPost, "/api/users/u1/focus-blocks?start=2025-01-06&end=2025-01-06")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	res = decode[suggestResponse](t, resp)
	require.NotEmpty(t, res.Suggestions)
	assert.Equal(t, monday.Add(11*time.Hour+30*time.Minute), res.Suggestions[0].StartTime.UTC())

	resp = env.do(t, http.MethodGet, "/api/users/u1/time-blocks?start=2025-01-06&end=2025-01-06")
	blocks = decode[timeBlocksResponse](t, resp)
	confirmedCount := 0
	for _, b := range blocks.Blocks {
		if b.Status == store.BlockStatusConfirmed {
			confirmedCount++
		}
	}
	assert.Equal(t, 1, confirmedCount)
}

func TestConfirmUnknownBlock(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	resp := env.do(t, http.MethodPost, "/api/users/u1/time-blocks/does-not-exist/confirm")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestConfirmTwiceConflicts(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	block := &store.TimeBlock{UserID: "u1", Title: "focus", StartTime: monday.Add(11 * time.Hour), EndTime: monday.Add(12 * time.Hour)}
	require.NoError(t, env.store.CreateTimeBlock(context.Background(), block))

	resp := env.do(t, http.MethodPost, "/api/users/u1/time-blocks/"+block.ID+"/confirm")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/api/users/u1/time-blocks/"+block.ID+"/confirm")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	body := decode[map[string]string](t, resp)
	assert.NotEmpty(t, body["error"])
}

func TestConfirmInvalidatesOnlyThatUsersCommitments(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	block := &store.TimeBlock{UserID: "u1", Title: "focus", StartTime: monday.Add(11 * time.Hour), EndTime: monday.Add(12 * time.Hour)}
	require.NoError(t, env.store.CreateTimeBlock(context.Background(), block))

	const query = "/commitments?start=2025-01-06&end=2025-01-06"
	for _, user := range []string{"u1", "u2"} {
		resp := env.do(t, http.MethodGet, "/api/users/"+user+query)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "MISS", resp.Header.Get("X-Cache"))
	}

	resp := env.do(t, http.MethodPost, "/api/users/u1/time-blocks/"+block.ID+"/confirm")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/users/u2"+query)
	assert.Equal(t, "HIT", resp.Header.Get("X-Cache"))

	resp = env.do(t, http.MethodGet, "/api/users/u1"+query)
	assert.Equal(t, "MISS", resp.Header.Get("X-Cache"))
	got := decode[commitmentsResponse](t, resp)
	require.Len(t, got.Commitments, 1)
	assert.Equal(t, model.SourceTimeBlock, got.Commitments[0].Source)
	assert.Equal(t, int32(3), env.collectCnt.Load())
}

func TestSuggestDryRun(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	resp := env.do(t, http.MethodPost, "/api/users/u1/focus-blocks?start=2025-01-06&end=2025-01-06&dry_run=true")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	res := decode[suggestResponse](t, resp)
	assert.False(t, res.Persisted)
	assert.NotEmpty(t, res.Suggestions)

	blocks, err := env.store.ListTimeBlocks(context.Background(), "u1", monday, monday.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Empty(t, blocks)
}

func TestSuggestDefaultsToComingWeek(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	resp := env.do(t, http.MethodPost, "/api/users/u1/focus-blocks?dry_run=1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	res := decode[suggestResponse](t, resp)
	assert.Equal(t, time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC), res.RangeStart.UTC())
	// Sunday plus Mon-Sat: five working days, capped at five suggestions.
	assert.Len(t, res.Suggestions, focus.DefaultMaxSuggestions)
	assert.Greater(t, res.Generated, focus.DefaultMaxSuggestions)
}

func TestSuggestErrors(t *testing.T) {
	tests := []struct {
		name       string
		failing    bool
		path       string
		wantStatus int
	}{
		{name: "inverted range", path: "/api/users/u1/focus-blocks?start=2025-01-07&end=2025-01-06", wantStatus: http.StatusBadRequest},
		{name: "bad start", path: "/api/users/u1/focus-blocks?start=tomorrow", wantStatus: http.StatusBadRequest},
		{name: "bad end", path: "/api/users/u1/focus-blocks?end=06/01/2025", wantStatus: http.StatusBadRequest},
		{name: "collector down", failing: true, path: "/api/users/u1/focus-blocks?start=2025-01-06", wantStatus: http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, envOptions{failing: tt.failing})
			resp := env.do(t, http.MethodPost, tt.path)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)

			body := decode[map[string]string](t, resp)
			assert.NotEmpty(t, body["error"])
			if tt.wantStatus == http.StatusServiceUnavailable {
				assert.Equal(t, "30", resp.Header.Get("Retry-After"))
			}
		})
	}
}

func TestCommitmentsAreCached(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	seedMonday(t, env.store)

	resp := env.do(t, http.MethodGet, "/api/users/u1/commitments?start=2025-01-06&end=2025-01-06")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "MISS", resp.Header.Get("X-Cache"))
	first := decode[commitmentsResponse](t, resp)
	require.Len(t, first.Commitments, 1)
	assert.Equal(t, "Standup", first.Commitments[0].Title)
	assert.Equal(t, monday.AddDate(0, 0, 1), first.RangeEnd.UTC())

	resp = env.do(t, http.MethodGet, "/api/users/u1/commitments?start=2025-01-06&end=2025-01-06")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "HIT", resp.Header.Get("X-Cache"))
	assert.Equal(t, int32(1), env.collectCnt.Load())

	resp = env.do(t, http.MethodGet, "/api/users/u1/commitments?start=2025-01-07&end=2025-01-06")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCommitmentsUnavailable(t *testing.T) {
	env := newTestEnv(t, envOptions{failing: true})

	resp := env.do(t, http.MethodGet, "/api/users/u1/commitments")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "30", resp.Header.Get("Retry-After"))
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "focuscal_test_total", Help: "test"})
	env.registry.MustRegister(counter)
	counter.Inc()

	resp := env.do(t, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "focuscal_test_total 1")
}
