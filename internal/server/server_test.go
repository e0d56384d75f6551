package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoogleCloudPlatform/nl2sql-gateway/internal/gateway"
	"github.com/GoogleCloudPlatform/nl2sql-gateway/internal/result"
	"github.com/GoogleCloudPlatform/nl2sql-gateway/internal/sqlguard"
)

type fakeAsker struct {
	res      *gateway.QueryResult
	err      error
	question string
	reqID    string
}

func (f *fakeAsker) Ask(ctx context.Context, question string) (*gateway.QueryResult, error) {
	f.question = question
	f.reqID, _ = gateway.RequestIDFromContext(ctx)
	return f.res, f.err
}

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

func newTestServer(asker Asker) *Server {
	return &Server{Asker: asker, Validator: sqlguard.NewValidator(sqlguard.DefaultPolicy())}
}

func do(t *testing.T, h http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestQuery(t *testing.T) {
	asker := &fakeAsker{res: &gateway.QueryResult{
		SQL:      `SELECT "UF" FROM credit_train LIMIT 100`,
		Data:     []result.Row{result.NewRow([]string{"UF", "taxa"}, []any{"SP", 0.085})},
		RowCount: 1,
		Attempts: 1,
		Answer:   "SP tem taxa de 8,50%.",
	}}
	h := newTestServer(asker).Router()

	rec := do(t, h, http.MethodPost, "/v1/query", `{"question":"taxa por UF"}`, map[string]string{"X-Request-ID": "abc-123"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))
	assert.Equal(t, "abc-123", asker.reqID)
	assert.Equal(t, "taxa por UF", asker.question)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, `SELECT "UF" FROM credit_train LIMIT 100`, body["sql"])
	assert.Equal(t, float64(1), body["row_count"])
	assert.Equal(t, false, body["truncated"])
	assert.Equal(t, "SP tem taxa de 8,50%.", body["answer"])
	assert.Contains(t, rec.Body.String(), `"data":[{"UF":"SP","taxa":0.085}]`)
}

func TestQueryGeneratesRequestID(t *testing.T) {
	asker := &fakeAsker{res: &gateway.QueryResult{}}
	rec := do(t, newTestServer(asker).Router(), http.MethodPost, "/v1/query", `{"question":"q"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.Equal(t, rec.Header().Get("X-Request-ID"), asker.reqID)
}

func TestQueryErrors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		err        error
		wantStatus int
		wantKind   string
	}{
		{"malformed body", `{"question":`, nil, http.StatusBadRequest, "invalid_input"},
		{"empty question", `{"question":""}`, &gateway.ErrInvalidInput{Msg: "question is empty"}, http.StatusBadRequest, "invalid_input"},
		{"exhausted", `{"question":"q"}`, &gateway.RetryExhaustedError{Attempts: 3, Last: &gateway.AttemptError{Kind: gateway.FailureBlockedOperation, Message: "blocked operation detected: DROP"}}, http.StatusUnprocessableEntity, "RetryExhaustedError"},
		{"cancelled", `{"question":"q"}`, &gateway.ErrCancelled{Msg: "deadline", Err: context.DeadlineExceeded}, http.StatusGatewayTimeout, "cancelled"},
		{"generator down", `{"question":"q"}`, &gateway.GenerationError{Msg: "failed", Err: errors.New("unavailable")}, http.StatusBadGateway, "generation"},
		{"unknown", `{"question":"q"}`, errors.New("postgres://u:secret@h/db unreachable"), http.StatusInternalServerError, "internal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, newTestServer(&fakeAsker{err: tt.err}).Router(), http.MethodPost, "/v1/query", tt.body, nil)
			assert.Equal(t, tt.wantStatus, rec.Code)

			var body errorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantKind, body.Kind)
			assert.NotEmpty(t, body.RequestID)
			assert.NotContains(t, body.Error, "secret")
		})
	}
}

func TestQueryExhaustedReportsAttempts(t *testing.T) {
	err := &gateway.RetryExhaustedError{Attempts: 3, Last: &gateway.AttemptError{Kind: gateway.FailureSemantic, Message: "column does not exist"}}
	rec := do(t, newTestServer(&fakeAsker{err: err}).Router(), http.MethodPost, "/v1/query", `{"question":"q"}`, nil)

	var body errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 3, body.Attempts)
	assert.Contains(t, body.Error, "3 attempts")
}

func TestValidate(t *testing.T) {
	h := newTestServer(&fakeAsker{}).Router()

	rec := do(t, h, http.MethodPost, "/v1/validate", `{"sql":"SELECT \"UF\" FROM credit_train"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var ok verdictResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ok))
	assert.True(t, ok.Accepted)
	assert.Contains(t, ok.SQL, "LIMIT 100")
	assert.Equal(t, []string{"credit_train"}, ok.Tables)
	assert.Nil(t, ok.Rejection)

	rec = do(t, h, http.MethodPost, "/v1/validate", `{"sql":"SELECT * FROM t WHERE x = 'v'; DROP TABLE t; --"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var bad verdictResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bad))
	assert.False(t, bad.Accepted)
	require.NotNil(t, bad.Rejection)
	assert.Equal(t, "BlockedOperationError", bad.Rejection.Kind)
	assert.Equal(t, "DROP", bad.Rejection.Keyword)
}

func TestHealth(t *testing.T) {
	s := newTestServer(&fakeAsker{})
	rec := do(t, s.Router(), http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	s = newTestServer(&fakeAsker{})
	s.DB = fakePinger{err: errors.New("connection refused")}
	rec = do(t, s.Router(), http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestBodyLimit(t *testing.T) {
	s := newTestServer(&fakeAsker{res: &gateway.QueryResult{}})
	s.MaxBodyBytes = 16
	big := `{"question":"` + string(bytes.Repeat([]byte("a"), 64)) + `"}`
	rec := do(t, s.Router(), http.MethodPost, "/v1/query", big, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
