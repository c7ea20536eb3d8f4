package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"skyguard/internal/config"
	"skyguard/internal/core"
	"skyguard/internal/types"
)

const (
	testAlertID = "6f1c2b9e-0d4a-4f57-9a43-2d1f6c0b7e11"
	testUserID  = "0b8f3c2a-5e6d-4c1b-8a9f-7d2e1f0c3b44"
)

var (
	admin    = types.Actor{ID: "admin-1", Type: types.ActorTypeUser, Role: types.RoleAdmin}
	employee = types.Actor{ID: "emp-1", Type: types.ActorTypeUser, Role: types.RoleEmployee}
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testRouter mounts one handler under the real role guards with actor
// already authenticated. A zero actor leaves the context empty.
func testRouter(t *testing.T, actor types.Actor, register func(chi.Router, Guards)) (http.Handler, *core.MockAccessAuditor) {
	t.Helper()
	srv, err := core.NewServer(&config.Config{}, discardLogger())
	require.NoError(t, err)
	auditor := &core.MockAccessAuditor{}
	srv.Auditor = auditor

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if actor.ID != "" {
				req = req.WithContext(types.WithActor(req.Context(), actor))
			}
			next.ServeHTTP(w, req)
		})
	})
	r.Route("/v1", func(r chi.Router) {
		register(r, NewGuards(srv))
	})
	return r, auditor
}

func serve(h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rd = bytes.NewBufferString(b)
	default:
		raw, _ := json.Marshal(b)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	if rd != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp core.APIErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return resp.Error.Code
}

// dataOf decodes the {"data": ...} envelope into v.
func dataOf(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	env := struct {
		Data json.RawMessage `json:"data"`
	}{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	require.NoError(t, json.Unmarshal(env.Data, v))
}

// listOf decodes a paginated list response.
func listOf[T any](t *testing.T, rec *httptest.ResponseRecorder) types.ListResponse[T] {
	t.Helper()
	var resp types.ListResponse[T]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return resp
}

func newValidator() *core.Validator {
	return core.NewValidator(discardLogger())
}
