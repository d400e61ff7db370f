package transport

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/vetledger/vetledger/internal/platform/apperr"
)

// SyncPath is the route both the client and the bundled handler use.
const SyncPath = "/v1/sync"

// HTTPClient posts envelopes to a peer's sync endpoint.
type HTTPClient struct {
	client *resty.Client
	log    zerolog.Logger
}

// NewHTTPClient targets baseURL with the given per-request timeout.
func NewHTTPClient(baseURL string, timeout time.Duration, log zerolog.Logger) *HTTPClient {
	c := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	return &HTTPClient{client: c, log: log}
}

func (c *HTTPClient) Send(ctx context.Context, msg []byte) ([]byte, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(msg).
		Post(SyncPath)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.IO, "post %s", SyncPath)
	}
	// Peer-level failures come back as envelope errors with status 200; a
	// non-2xx here means the endpoint itself is broken.
	if resp.IsError() {
		return nil, apperr.New(apperr.IO, "sync endpoint returned %s", resp.Status())
	}
	return resp.Body(), nil
}

// Handler is the server half. Responder implements it.
type Handler func(ctx context.Context, msg []byte) ([]byte, error)

// RegisterSyncRoute mounts the sync endpoint on an echo instance. The
// handler owns protocol errors; transport only fails on unreadable bodies.
func RegisterSyncRoute(e *echo.Echo, h Handler) {
	e.POST(SyncPath, func(c echo.Context) error {
		body, err := io.ReadAll(c.Request().Body)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "unreadable body")
		}
		resp, err := h(c.Request().Context(), body)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		return c.JSONBlob(http.StatusOK, resp)
	})
}
