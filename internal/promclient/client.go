package promclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/aaronlmathis/sparkwatch/internal/version"
	"go.uber.org/zap"
)

// Client issues range queries against a Prometheus-compatible HTTP API
type Client struct {
	logger  *zap.Logger
	timeout time.Duration
	client  *http.Client
}

// queryResponse represents a response from Prometheus.
type queryResponse struct {
	Status    string    `json:"status"`
	Data      queryData `json:"data"`
	ErrorType string    `json:"errorType,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// queryData represents the data section of a Prometheus response
type queryData struct {
	ResultType string        `json:"resultType"`
	Result     []queryResult `json:"result"`
}

// queryResult represents a single matrix result from Prometheus
type queryResult struct {
	Metric map[string]string `json:"metric"`
	Values [][]interface{}   `json:"values"`
}

// NewClient creates a new range query client. A zero timeout disables the per-request deadline.
func NewClient(logger *zap.Logger, timeout time.Duration) *Client {
	return &Client{
		logger:  logger,
		timeout: timeout,
		client:  &http.Client{},
	}
}

// QueryRange performs a range query against baseURL. It never returns a nil Result.
func (c *Client) QueryRange(ctx context.Context, baseURL, query string, start, end time.Time, step time.Duration) Result {
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/") + "/api/v1/query_range")
	if err != nil {
		return TransportError{Err: fmt.Errorf("failed to parse prometheus URL: %w", err)}
	}

	params := url.Values{}
	params.Set("query", query)
	params.Set("start", formatUnix(start))
	params.Set("end", formatUnix(end))
	params.Set("step", strconv.FormatFloat(step.Seconds(), 'f', -1, 64))
	u.RawQuery = params.Encode()

	c.logger.Debug("Querying Prometheus",
		zap.String("url", u.String()),
		zap.String("query", query),
		zap.Time("start", start),
		zap.Time("end", end),
		zap.Duration("step", step))

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return TransportError{Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.client.Do(req)
	if err != nil {
		return TransportError{Timeout: isTimeout(err), Err: fmt.Errorf("failed to query prometheus: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return TransportError{Timeout: isTimeout(err), Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	var promResp queryResponse
	decodeErr := json.Unmarshal(body, &promResp)
	if decodeErr == nil && promResp.Status == "" {
		decodeErr = errors.New("response has no status field")
	}
	if decodeErr != nil {
		// Prometheus answers API errors (400, 422, 503) with a JSON envelope, so
		// only bodies without one are treated as transport failures.
		if resp.StatusCode != http.StatusOK {
			return TransportError{Err: fmt.Errorf("prometheus query failed with status %d: %s", resp.StatusCode, truncate(body, 256))}
		}
		return TransportError{Err: fmt.Errorf("failed to unmarshal prometheus response: %w", decodeErr)}
	}

	if promResp.Status != "success" {
		return Failure{
			Status:    promResp.Status,
			ErrorType: promResp.ErrorType,
			Error:     promResp.Error,
		}
	}

	series, err := decodeMatrix(promResp.Data.Result)
	if err != nil {
		return TransportError{Err: err}
	}
	return Success{Series: series}
}

// decodeMatrix converts [timestampSeconds, "value"] pairs into samples
func decodeMatrix(results []queryResult) ([]Series, error) {
	series := make([]Series, 0, len(results))
	for _, r := range results {
		samples := make([]Sample, 0, len(r.Values))
		for _, pair := range r.Values {
			s, err := decodePair(pair)
			if err != nil {
				return nil, err
			}
			samples = append(samples, s)
		}
		series = append(series, Series{Metric: r.Metric, Samples: samples})
	}
	return series, nil
}

func decodePair(pair []interface{}) (Sample, error) {
	if len(pair) != 2 {
		return Sample{}, fmt.Errorf("malformed sample: expected 2 elements, got %d", len(pair))
	}

	ts, ok := pair[0].(float64)
	if !ok {
		return Sample{}, fmt.Errorf("malformed sample timestamp %v", pair[0])
	}

	raw, ok := pair[1].(string)
	if !ok {
		return Sample{}, fmt.Errorf("malformed sample value %v", pair[1])
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return Sample{}, fmt.Errorf("malformed sample value %q: %w", raw, err)
	}

	sec, frac := math.Modf(ts)
	return Sample{
		Timestamp: time.Unix(int64(sec), int64(math.Round(frac*1e3))*int64(time.Millisecond)),
		Value:     value,
	}, nil
}

// isTimeout classifies an error from the HTTP round trip
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func formatUnix(t time.Time) string {
	return strconv.FormatFloat(float64(t.UnixMilli())/1e3, 'f', 3, 64)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
