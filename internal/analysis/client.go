package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/OneStaffOS/OnestaffOS-sub007/internal/domain"
	"github.com/OneStaffOS/OnestaffOS-sub007/pkg/xerrors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var analysisDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "biometrics_analysis_duration_seconds",
	Help:    "Latency of frame analysis calls.",
	Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
}, []string{"outcome"})

const maxErrorBody = 64 << 10

// Client calls the frame analysis service. Frames are forwarded as-is.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

type analyzeRequest struct {
	Frames          []string `json:"frames"`
	LivenessActions []string `json:"livenessActions"`
}

type errorBody struct {
	Detail json.RawMessage `json:"detail"`
}

// Analyze scores frames against the requested liveness actions. Input
// problems reported by the analyzer (4xx) come back as BadRequest carrying
// its detail; anything else is ErrAnalysisUnavailable.
func (c *Client) Analyze(ctx context.Context, frames []string, actions []string) (*domain.AnalysisResult, error) {
	if actions == nil {
		actions = []string{}
	}
	payload, err := json.Marshal(analyzeRequest{Frames: frames, LivenessActions: actions})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal analyze request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/analyze", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		analysisDuration.WithLabelValues("transport_error").Observe(time.Since(start).Seconds())
		c.logger.Error("frame analysis request failed", zap.Int("frames", len(frames)), zap.Error(err))
		return nil, xerrors.BadGateway(xerrors.ErrAnalysisUnavailable.Msg, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		analysisDuration.WithLabelValues("rejected").Observe(time.Since(start).Seconds())
		detail := readDetail(resp.Body)
		c.logger.Warn("frame analysis rejected input",
			zap.Int("status", resp.StatusCode),
			zap.String("detail", detail))
		return nil, xerrors.BadRequest(detail)
	}

	if resp.StatusCode != http.StatusOK {
		analysisDuration.WithLabelValues("upstream_error").Observe(time.Since(start).Seconds())
		c.logger.Error("frame analysis returned non-OK status", zap.Int("status", resp.StatusCode))
		return nil, xerrors.BadGateway(xerrors.ErrAnalysisUnavailable.Msg, fmt.Errorf("status %d", resp.StatusCode))
	}

	var result domain.AnalysisResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		analysisDuration.WithLabelValues("decode_error").Observe(time.Since(start).Seconds())
		return nil, xerrors.BadGateway(xerrors.ErrAnalysisUnavailable.Msg, fmt.Errorf("decode analysis: %w", err))
	}
	analysisDuration.WithLabelValues("ok").Observe(time.Since(start).Seconds())

	if !result.OK {
		return nil, xerrors.BadGateway(xerrors.ErrAnalysisUnavailable.Msg, fmt.Errorf("analysis not ok"))
	}
	if result.EmbeddingDim == 0 && len(result.Embeddings) > 0 {
		result.EmbeddingDim = len(result.Embeddings[0])
	}

	c.logger.Debug("frame analysis complete",
		zap.Int("embeddings", len(result.Embeddings)),
		zap.Bool("liveness_passed", result.Liveness.Passed),
		zap.Bool("spoof_suspicious", result.Spoof.Suspicious))

	return &result, nil
}

// Health pings the analyzer.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("analysis health status %d", resp.StatusCode)
	}
	return nil
}

// readDetail extracts the analyzer's "detail" message. Validation errors
// carry a list instead of a string and get a generic message.
func readDetail(body io.Reader) string {
	const fallback = "Invalid biometric capture"
	raw, err := io.ReadAll(io.LimitReader(body, maxErrorBody))
	if err != nil {
		return fallback
	}
	var eb errorBody
	if err := json.Unmarshal(raw, &eb); err != nil || len(eb.Detail) == 0 {
		return fallback
	}
	var msg string
	if err := json.Unmarshal(eb.Detail, &msg); err != nil || msg == "" {
		return fallback
	}
	return msg
}
