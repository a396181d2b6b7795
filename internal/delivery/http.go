package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"clicksim/internal/event"
)

// DefaultHTTPTimeout bounds a single delivery request.
const DefaultHTTPTimeout = 5 * time.Second

// HTTPSender posts batches as {"records": [...]} and treats 202 Accepted as
// success. Any other status or a transport error fails the whole batch.
type HTTPSender struct {
	endpoint string
	client   *http.Client
	logger   *zap.Logger
}

// NewHTTPSender creates a sender for endpoint. A non-positive timeout uses
// DefaultHTTPTimeout.
func NewHTTPSender(endpoint string, timeout time.Duration, logger *zap.Logger) *HTTPSender {
	if timeout <= 0 {
		timeout = DefaultHTTPTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPSender{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

func (s *HTTPSender) Name() string { return "http" }

func (s *HTTPSender) Send(ctx context.Context, batch []event.Event) (Result, error) {
	body, err := json.Marshal(batchPayload{Records: batch})
	if err != nil {
		return Result{Failed: batch}, fmt.Errorf("encode batch: %w", err)
	}
	res := Result{Failed: batch, BytesSent: int64(len(body))}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return res, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		return res, fmt.Errorf("post %s: %w", s.endpoint, err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyLogSize+1))
	_, _ = io.Copy(io.Discard, resp.Body) // drain errors are ignorable
	res.StatusCode = resp.StatusCode

	if ce := s.logger.Check(zap.DebugLevel, "delivery response"); ce != nil {
		ce.Write(
			zap.Int("status", resp.StatusCode),
			zap.Int("records", len(batch)),
			zap.Duration("duration", time.Since(start)),
			zap.String("body", truncateBody(respBody)),
		)
	}

	if resp.StatusCode != http.StatusAccepted {
		return res, fmt.Errorf("%w: %s", ErrRejected, resp.Status)
	}
	res.Failed = nil
	return res, nil
}

// Close releases idle connections.
func (s *HTTPSender) Close() error {
	s.client.CloseIdleConnections()
	return nil
}
