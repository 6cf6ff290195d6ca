package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/redlens/collector/internal/store"
)

func newTestServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return NewServer(st, nil), st
}

func seedCreator(t *testing.T, st *store.Store, userID, keyword string) {
	t.Helper()
	_, err := st.UpsertCreator(context.Background(), store.Creator{
		UserID: userID, Nickname: "n-" + userID, SourceKeyword: keyword,
	})
	require.NoError(t, err)
}

func doRequest(t *testing.T, s *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return body
}

// TestHealthz verifies the liveness probe.
func TestHealthz(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t)
	rr := doRequest(t, s, http.MethodGet, "/healthz")
	require.Equal(t, http.StatusOK, rr.Code)
	require.NotEmpty(t, rr.Header().Get("X-Request-ID"))
}

// TestListCreatorsWithStatusFilter lists creators and rejects unknown
// filters.
func TestListCreatorsWithStatusFilter(t *testing.T) {
	t.Parallel()

	s, st := newTestServer(t)
	seedCreator(t, st, "u1", "street")
	seedCreator(t, st, "u2", "street")

	rr := doRequest(t, s, http.MethodGet, "/v1/creators?status=not_started")
	require.Equal(t, http.StatusOK, rr.Code)
	body := decodeBody(t, rr)
	require.Len(t, body["creators"], 2)

	rr = doRequest(t, s, http.MethodGet, "/v1/creators?status=bogus")
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

// TestGetCreatorProgress exposes collected/target/remaining for one
// creator.
func TestGetCreatorProgress(t *testing.T) {
	t.Parallel()

	s, st := newTestServer(t)
	seedCreator(t, st, "u1", "street")
	require.NoError(t, st.MarkInProgress(context.Background(), []string{"u1"}, 10))
	_, err := st.RecordResult(context.Background(), "u1", 4, "")
	require.NoError(t, err)

	rr := doRequest(t, s, http.MethodGet, "/v1/creators/u1")
	require.Equal(t, http.StatusOK, rr.Code)
	body := decodeBody(t, rr)
	creator := body["creator"].(map[string]any)
	require.Equal(t, "partial", creator["status"])
	require.EqualValues(t, 4, creator["notes_collected"])
	require.EqualValues(t, 10, creator["notes_target"])
	require.EqualValues(t, 6, creator["remaining"])

	rr = doRequest(t, s, http.MethodGet, "/v1/creators/missing")
	require.Equal(t, http.StatusNotFound, rr.Code)
}

// TestListResumable mirrors what a resume run would select.
func TestListResumable(t *testing.T) {
	t.Parallel()

	s, st := newTestServer(t)
	seedCreator(t, st, "u1", "street")
	seedCreator(t, st, "u2", "street")
	require.NoError(t, st.MarkInProgress(context.Background(), []string{"u1"}, 10))
	_, err := st.RecordResult(context.Background(), "u1", 2, "")
	require.NoError(t, err)

	rr := doRequest(t, s, http.MethodGet, "/v1/creators/resumable")
	require.Equal(t, http.StatusOK, rr.Code)
	body := decodeBody(t, rr)
	require.Len(t, body["creators"], 1)
}

// TestListNotes returns a creator's notes and validates the limit.
func TestListNotes(t *testing.T) {
	t.Parallel()

	s, st := newTestServer(t)
	seedCreator(t, st, "u1", "street")
	_, err := st.InsertNotes(context.Background(), []store.Note{
		{NoteID: "n1", UserID: "u1", Type: "image", Likes: 10},
		{NoteID: "n2", UserID: "u1", Type: "video", Likes: 20},
	})
	require.NoError(t, err)

	rr := doRequest(t, s, http.MethodGet, "/v1/creators/u1/notes")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Len(t, decodeBody(t, rr)["notes"], 2)

	rr = doRequest(t, s, http.MethodGet, "/v1/creators/u1/notes?limit=zero")
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = doRequest(t, s, http.MethodGet, "/v1/creators/nobody/notes")
	require.Equal(t, http.StatusNotFound, rr.Code)
}

// TestResetCreator drops notes and returns the creator to not_started.
func TestResetCreator(t *testing.T) {
	t.Parallel()

	s, st := newTestServer(t)
	seedCreator(t, st, "u1", "street")
	require.NoError(t, st.MarkInProgress(context.Background(), []string{"u1"}, 5))
	_, err := st.InsertNotes(context.Background(), []store.Note{
		{NoteID: "n1", UserID: "u1", Type: "image"},
	})
	require.NoError(t, err)

	rr := doRequest(t, s, http.MethodPost, "/v1/creators/u1/reset")
	require.Equal(t, http.StatusOK, rr.Code)

	c, err := st.GetCreator(context.Background(), "u1")
	require.NoError(t, err)
	require.Equal(t, store.StatusNotStarted, c.Status)

	n, err := st.CountNotes(context.Background(), "u1")
	require.NoError(t, err)
	require.Zero(t, n)

	rr = doRequest(t, s, http.MethodPost, "/v1/creators/missing/reset")
	require.Equal(t, http.StatusNotFound, rr.Code)
}

// TestDeleteCreator removes the creator and cascades to its notes.
func TestDeleteCreator(t *testing.T) {
	t.Parallel()

	s, st := newTestServer(t)
	seedCreator(t, st, "u1", "street")

	rr := doRequest(t, s, http.MethodDelete, "/v1/creators/u1")
	require.Equal(t, http.StatusNoContent, rr.Code)

	_, err := st.GetCreator(context.Background(), "u1")
	require.ErrorIs(t, err, store.ErrNotFound)

	rr = doRequest(t, s, http.MethodDelete, "/v1/creators/u1")
	require.Equal(t, http.StatusNotFound, rr.Code)
}

// TestGetStatus aggregates creator counts per state.
func TestGetStatus(t *testing.T) {
	t.Parallel()

	s, st := newTestServer(t)
	seedCreator(t, st, "u1", "street")
	seedCreator(t, st, "u2", "street")
	require.NoError(t, st.MarkInProgress(context.Background(), []string{"u2"}, 5))

	rr := doRequest(t, s, http.MethodGet, "/v1/status")
	require.Equal(t, http.StatusOK, rr.Code)
	counts := decodeBody(t, rr)["creators"].(map[string]any)
	require.EqualValues(t, 1, counts["not_started"])
	require.EqualValues(t, 1, counts["in_progress"])

	rr = doRequest(t, s, http.MethodGet, "/v1/creators/keywords")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Len(t, decodeBody(t, rr)["keywords"], 1)
}
