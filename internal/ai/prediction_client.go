package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	// InvalidResponseMessage is reported under the "error" key when an
	// endpoint answers with a body that is not valid JSON.
	InvalidResponseMessage = "Invalid response from the API"
	// NotObjectMessage is reported when the body is valid JSON but not an
	// object (an array, a scalar or null).
	NotObjectMessage = "Response from the API is not a JSON object"
)

// PredictionClient posts questions to hosted prediction endpoints. It makes
// exactly one attempt per call.
type PredictionClient struct {
	httpClient *http.Client
	logger     *zap.Logger
}

// NewPredictionClient returns a client. A zero timeout leaves requests bounded
// only by the caller's context.
func NewPredictionClient(timeout time.Duration, logger *zap.Logger) *PredictionClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PredictionClient{
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Question builds the payload every prediction endpoint accepts.
func Question(question string) map[string]interface{} {
	return map[string]interface{}{"question": question}
}

// Query sends payload to url and returns the decoded JSON object. Transport
// failures are returned as errors. A body that is not valid JSON yields
// {"error": InvalidResponseMessage} and a nil error; valid JSON that is not an
// object yields {"error": NotObjectMessage}.
func (c *PredictionClient) Query(ctx context.Context, url string, payload map[string]interface{}) (map[string]interface{}, error) {
	bodyBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal prediction request failed: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimSpace(url), bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("build prediction request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("prediction request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read prediction response failed: %w", err)
	}

	c.logger.Debug("prediction response",
		zap.String("url", url),
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(raw)),
		zap.Duration("elapsed", time.Since(started)),
	)
	if resp.StatusCode >= 300 {
		c.logger.Warn("prediction endpoint returned non-2xx status",
			zap.String("url", url),
			zap.Int("status", resp.StatusCode),
		)
	}

	var parsed interface{}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return map[string]interface{}{"error": InvalidResponseMessage}, nil
	}
	decoded, isObject := parsed.(map[string]interface{})
	if !isObject {
		return map[string]interface{}{"error": NotObjectMessage}, nil
	}
	return decoded, nil
}

// ErrorMessage reports the upstream error carried by a decoded body, if any.
func ErrorMessage(body map[string]interface{}) (string, bool) {
	value, ok := body["error"]
	if !ok || value == nil {
		return "", false
	}
	if msg, isString := value.(string); isString {
		return msg, true
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprint(value), true
	}
	return string(encoded), true
}
