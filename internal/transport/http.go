package transport

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/benmeehan/kitchen-simulator/internal/models"
	http_utils "github.com/benmeehan/kitchen-simulator/pkg/httpUtils"
	"github.com/rs/zerolog"
)

// HTTPTransport delivers payloads as HTTP requests to the target endpoint.
type HTTPTransport struct {
	Client *http.Client
	Logger zerolog.Logger
}

// NewHTTPTransport creates an HTTPTransport. A zero timeout means requests
// are bounded only by the caller's context.
func NewHTTPTransport(timeout time.Duration, logger zerolog.Logger) *HTTPTransport {
	return &HTTPTransport{
		Client: &http.Client{Timeout: timeout},
		Logger: logger,
	}
}

// Deliver sends msg.Payload to msg.Target.HTTP.
func (t *HTTPTransport) Deliver(ctx context.Context, msg models.Message) error {
	target := msg.Target.HTTP
	if target == nil {
		return errors.New("message has no http target")
	}

	status, err := http_utils.SendJSON(ctx, t.Client, target.Method, target.Endpoint, msg.Payload)
	if err != nil {
		return err
	}

	t.Logger.Debug().
		Str("emitter", msg.Emitter).
		Str("method", target.Method).
		Str("endpoint", target.Endpoint).
		Int("status", status).
		Msg("HTTP payload delivered")
	return nil
}
