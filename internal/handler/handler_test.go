package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/OneStaffOS/OnestaffOS-sub007/pkg/middleware"
	"github.com/OneStaffOS/OnestaffOS-sub007/pkg/xerrors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPunchRequiresProof(t *testing.T) {
	cases := []struct {
		name    string
		body    string
		want    bool
		wantErr bool
	}{
		{"clock in", `{"type":"in"}`, true, false},
		{"clock in mixed case", `{"type":" IN "}`, true, false},
		{"clock out", `{"type":"out"}`, false, false},
		{"missing type", `{}`, false, false},
		{"garbage", `not json`, false, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/punch", strings.NewReader(tc.body))
			got, err := PunchRequiresProof(req)
			if tc.wantErr {
				require.Error(t, err)
				assert.Equal(t, xerrors.KindBadRequest, xerrors.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)

			// body is still readable downstream
			rest, err := io.ReadAll(req.Body)
			require.NoError(t, err)
			assert.Equal(t, tc.body, string(rest))
		})
	}
}

func TestPunchRequiresProof_OversizedBody(t *testing.T) {
	body := `{"type":"in","note":"` + strings.Repeat("x", smallBodyLimit) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/punch", strings.NewReader(body))

	_, err := PunchRequiresProof(req)
	require.Error(t, err)
	assert.ErrorIs(t, err, xerrors.ErrPayloadTooLarge)
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.10:5555"
	assert.Equal(t, "192.0.2.10", clientIP(req))

	req.Header.Set("X-Real-IP", "198.51.100.2")
	assert.Equal(t, "198.51.100.2", clientIP(req))

	req.Header.Set("X-Forwarded-For", " 203.0.113.7 , 10.0.0.1")
	assert.Equal(t, "203.0.113.7", clientIP(req))
}

func TestPunch(t *testing.T) {
	h := NewAttendanceHandler(zap.NewNop())
	h.now = func() time.Time { return time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC) }

	t.Run("ok", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/punch", strings.NewReader(`{"type":"out"}`))
		req = req.WithContext(middleware.WithUserID(req.Context(), "u1"))
		rec := httptest.NewRecorder()
		h.Punch(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		var body struct {
			Data punchResponse `json:"data"`
		}
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.Equal(t, "u1", body.Data.UserID)
		assert.Equal(t, PunchOut, body.Data.Type)
	})

	t.Run("bad type", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/punch", strings.NewReader(`{"type":"lunch"}`))
		req = req.WithContext(middleware.WithUserID(req.Context(), "u1"))
		rec := httptest.NewRecorder()
		h.Punch(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("no identity", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.Punch(rec, httptest.NewRequest(http.MethodPost, "/punch", strings.NewReader(`{"type":"out"}`)))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestDecodeJSON_TooLarge(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"action":"`+strings.Repeat("x", 64)+`"}`))
	var v challengeRequest
	err := decodeJSON(rec, req, 16, &v)
	assert.ErrorIs(t, err, xerrors.ErrPayloadTooLarge)
}

func TestHealth(t *testing.T) {
	up := PingFunc(func(context.Context) error { return nil })
	down := PingFunc(func(context.Context) error { return errors.New("connection refused") })

	rec := httptest.NewRecorder()
	NewHealthHandler(map[string]Pinger{"db": up}).Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	NewHealthHandler(map[string]Pinger{"db": up, "analysis": down}).Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")
}
