package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/meridianhq/meridian/errors"
	"github.com/meridianhq/meridian/internal/httpclient"
)

// HTTPSynthesizer hands entities off to a synthesis webhook. Connection
// failures and 5xx responses surface as ErrSynthesisUnavailable so the
// trigger keeps the cursor and retries; a 4xx means the handoff itself is
// wrong and fails hard.
type HTTPSynthesizer struct {
	url    string
	client *httpclient.SaferClient
	logger *zap.SugaredLogger
}

// NewHTTPSynthesizer validates the webhook URL up front. allowPrivate
// permits localhost and private addresses for a synthesizer running on
// the same machine.
func NewHTTPSynthesizer(url string, allowPrivate bool, logger *zap.SugaredLogger) (*HTTPSynthesizer, error) {
	block := !allowPrivate
	client := httpclient.NewWithOptions(30*time.Second, httpclient.Options{
		BlockPrivateIP: &block,
	})
	if _, err := client.ValidateURL(url); err != nil {
		return nil, errors.Wrapf(err, "invalid synthesizer URL %s", url)
	}
	return &HTTPSynthesizer{url: url, client: client, logger: logger}, nil
}

type synthesisRequest struct {
	EntityID    string    `json:"entity_id"`
	RequestedAt time.Time `json:"requested_at"`
}

func (s *HTTPSynthesizer) Synthesize(ctx context.Context, entityID string) error {
	body, err := json.Marshal(synthesisRequest{
		EntityID:    entityID,
		RequestedAt: time.Now().UTC(),
	})
	if err != nil {
		return errors.Wrap(err, "failed to encode synthesis request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "failed to build synthesis request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		if s.logger != nil {
			s.logger.Warnw("synthesizer unreachable", "entity_id", entityID, "error", err)
		}
		return errors.Wrapf(errors.ErrSynthesisUnavailable, "post to %s: %v", s.url, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return errors.Wrapf(errors.ErrSynthesisUnavailable, "synthesizer returned %d", resp.StatusCode)
	default:
		return errors.Newf("synthesizer rejected handoff with status %d", resp.StatusCode)
	}
}
