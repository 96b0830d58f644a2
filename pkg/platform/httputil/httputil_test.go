package httputil_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "vetgate/pkg/domain-errors"
	"vetgate/pkg/platform/httputil"
)

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestWriteErrorValidationIncludesDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	httputil.WriteError(rec, dErrors.NewValidation("userId is required", "userId"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	body := decodeEnvelope(t, rec)
	assert.Equal(t, "validation_error", body["error"])
	assert.Equal(t, "userId is required", body["error_description"])
	assert.Equal(t, []any{"userId"}, body["fields"])
}

func TestWriteErrorInternalIsOpaque(t *testing.T) {
	rec := httptest.NewRecorder()
	httputil.WriteError(rec, dErrors.Wrap(errors.New("pq: connection refused"), dErrors.CodeInternal, "store failed"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	body := decodeEnvelope(t, rec)
	assert.Equal(t, "internal_error", body["error"])
	assert.NotContains(t, body, "error_description")
	assert.NotContains(t, rec.Body.String(), "connection refused")
}

func TestWriteErrorUncodedBecomesInternal(t *testing.T) {
	rec := httptest.NewRecorder()
	httputil.WriteError(rec, errors.New("boom"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal_error", decodeEnvelope(t, rec)["error"])
}

func TestWriteErrorStatusMapping(t *testing.T) {
	cases := map[dErrors.Code]int{
		dErrors.CodeNotFound:               http.StatusNotFound,
		dErrors.CodeDuplicateSubmission:    http.StatusConflict,
		dErrors.CodeInvalidTransition:      http.StatusConflict,
		dErrors.CodeConcurrentModification: http.StatusConflict,
		dErrors.CodeUnavailable:            http.StatusServiceUnavailable,
	}
	for code, want := range cases {
		rec := httptest.NewRecorder()
		httputil.WriteError(rec, dErrors.New(code, "detail"))
		assert.Equal(t, want, rec.Code, "code %s", code)
		assert.Equal(t, string(code), decodeEnvelope(t, rec)["error"])
	}
}

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	httputil.WriteJSON(rec, http.StatusCreated, map[string]string{"id": "abc"})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"id":"abc"}`, rec.Body.String())
}

type payload struct {
	Name string `json:"name"`
}

func (p *payload) Validate() error {
	if p.Name == "" {
		return dErrors.NewValidation("name is required", "name")
	}
	return nil
}

func TestDecodeAndPrepare(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"ana"}`))
	rec := httptest.NewRecorder()
	got, ok := httputil.DecodeAndPrepare[payload](rec, req)
	require.True(t, ok)
	assert.Equal(t, "ana", got.Name)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":`))
	rec = httptest.NewRecorder()
	_, ok = httputil.DecodeAndPrepare[payload](rec, req)
	require.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", decodeEnvelope(t, rec)["error"])

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))
	rec = httptest.NewRecorder()
	_, ok = httputil.DecodeAndPrepare[payload](rec, req)
	require.False(t, ok)
	body := decodeEnvelope(t, rec)
	assert.Equal(t, "name is required", body["error_description"])
	assert.Equal(t, []any{"name"}, body["fields"])
}
