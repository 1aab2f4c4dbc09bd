package httpx_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/coinpulse/coinpulse/pkg/httpx"
	"github.com/stretchr/testify/require"
)

func TestWriteSuccess(t *testing.T) {
	rec := httptest.NewRecorder()
	httpx.WriteSuccess(rec, http.StatusCreated, map[string]string{"id": "u1"}, "user registered")

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.EqualValues(t, http.StatusCreated, body["status"])
	require.Equal(t, "user registered", body["message"])
	require.Equal(t, map[string]any{"id": "u1"}, body["data"])
}

func TestWriteFailure(t *testing.T) {
	t.Run("omits empty details", func(t *testing.T) {
		rec := httptest.NewRecorder()
		httpx.WriteFailure(rec, http.StatusBadRequest, "invalid or expired state", nil)

		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.EqualValues(t, http.StatusBadRequest, body["status"])
		require.Equal(t, "invalid or expired state", body["message"])
		require.NotContains(t, body, "details")
		require.NotContains(t, body, "data")
	})

	t.Run("defaults message to status text", func(t *testing.T) {
		rec := httptest.NewRecorder()
		httpx.WriteFailure(rec, http.StatusBadGateway, "", []string{"upstream"})

		var body httpx.Failure
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.Equal(t, "Bad Gateway", body.Message)
		require.NotNil(t, body.Details)
	})
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Email string `json:"email"`
	}

	tests := []struct {
		name    string
		body    string
		ctype   string
		wantErr bool
	}{
		{name: "valid", body: `{"email":"a@b.c"}`, ctype: "application/json"},
		{name: "charset suffix", body: `{"email":"a@b.c"}`, ctype: "application/json; charset=utf-8"},
		{name: "empty", body: "", ctype: "application/json", wantErr: true},
		{name: "unknown field", body: `{"email":"a","admin":true}`, wantErr: true},
		{name: "trailing object", body: `{"email":"a"}{"email":"b"}`, wantErr: true},
		{name: "wrong content type", body: `{"email":"a"}`, ctype: "text/plain", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tc.body))
			if tc.ctype != "" {
				req.Header.Set("Content-Type", tc.ctype)
			}

			var p payload
			err := httpx.DecodeJSON(httptest.NewRecorder(), req, &p)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, "a@b.c", p.Email)
		})
	}
}
