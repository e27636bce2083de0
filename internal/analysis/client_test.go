package analysis

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/OneStaffOS/OnestaffOS-sub007/pkg/xerrors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, 2*time.Second, zap.NewNop())
}

func TestAnalyze_OK(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/analyze", r.URL.Path)
		var body analyzeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, []string{"f1", "f2"}, body.Frames)
		assert.Equal(t, []string{"blink"}, body.LivenessActions)

		_, _ = w.Write([]byte(`{
			"ok": true,
			"embeddings": [[1,0],[0,1]],
			"embeddingDim": 2,
			"liveness": {"passed": true, "actions": {"blink": true}},
			"spoof": {"suspicious": false, "reason": null, "stabilityScore": 0.97, "variance": 0.03},
			"quality": {"facesDetected": 2, "avgConfidence": 0.9, "minConfidence": 0.8}
		}`))
	})

	res, err := c.Analyze(context.Background(), []string{"f1", "f2"}, []string{"blink"})
	require.NoError(t, err)
	assert.Equal(t, 2, res.EmbeddingDim)
	assert.Len(t, res.Embeddings, 2)
	assert.True(t, res.Liveness.Passed)
	assert.True(t, res.Liveness.Actions["blink"])
	assert.False(t, res.Spoof.Suspicious)
	assert.Equal(t, "Spoof suspected", res.Spoof.SpoofReason())
	assert.Equal(t, 2, res.Quality.FacesDetected)
}

func TestAnalyze_SendsEmptyActionList(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var raw map[string]json.RawMessage
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		assert.JSONEq(t, `[]`, string(raw["livenessActions"]))
		_, _ = w.Write([]byte(`{"ok":true,"embeddings":[[1]]}`))
	})

	res, err := c.Analyze(context.Background(), []string{"f"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.EmbeddingDim)
}

func TestAnalyze_ClientErrorCarriesDetail(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"detail":"Face not detected in enough frames"}`))
	})

	_, err := c.Analyze(context.Background(), []string{"f"}, nil)
	require.Error(t, err)
	assert.Equal(t, xerrors.KindBadRequest, xerrors.KindOf(err))
	assert.Equal(t, "Face not detected in enough frames", xerrors.Message(err))
}

func TestAnalyze_ValidationErrorGetsGenericMessage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"detail":[{"loc":["body","frames"],"msg":"field required"}]}`))
	})

	_, err := c.Analyze(context.Background(), []string{"f"}, nil)
	require.Error(t, err)
	assert.Equal(t, xerrors.KindBadRequest, xerrors.KindOf(err))
	assert.Equal(t, "Invalid biometric capture", xerrors.Message(err))
}

func TestAnalyze_ServerErrorIsBadGateway(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := c.Analyze(context.Background(), []string{"f"}, nil)
	require.Error(t, err)
	assert.Equal(t, xerrors.KindBadGateway, xerrors.KindOf(err))
	assert.Equal(t, "Biometrics service unavailable", xerrors.Message(err))
}

func TestAnalyze_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient(url, time.Second, zap.NewNop())
	_, err := c.Analyze(context.Background(), []string{"f"}, nil)
	require.Error(t, err)
	assert.Equal(t, xerrors.KindBadGateway, xerrors.KindOf(err))
}

func TestHealth(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/health", r.URL.Path)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	assert.NoError(t, c.Health(context.Background()))

	bad := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	assert.Error(t, bad.Health(context.Background()))
}
