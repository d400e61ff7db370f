package transport

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

func TestHTTPRoundTrip(t *testing.T) {
	e := echo.New()
	RegisterSyncRoute(e, func(_ context.Context, msg []byte) ([]byte, error) {
		if string(msg) != `{"ping":true}` {
			t.Fatalf("handler got %q", msg)
		}
		return []byte(`{"pong":true}`), nil
	})
	srv := httptest.NewServer(e)
	defer srv.Close()

	c := NewHTTPClient(srv.URL, 5*time.Second, zerolog.Nop())
	resp, err := c.Send(context.Background(), []byte(`{"ping":true}`))
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if string(resp) != `{"pong":true}` {
		t.Fatalf("resp = %q", resp)
	}
}

func TestHTTPClientSurfacesEndpointFailure(t *testing.T) {
	e := echo.New()
	srv := httptest.NewServer(e) // no route mounted, POST returns 404
	defer srv.Close()

	c := NewHTTPClient(srv.URL, 5*time.Second, zerolog.Nop())
	if _, err := c.Send(context.Background(), []byte(`{}`)); err == nil {
		t.Fatal("expected error from missing endpoint")
	}
}

func TestFuncAdapter(t *testing.T) {
	var tr Transport = Func(func(_ context.Context, msg []byte) ([]byte, error) {
		return append([]byte("echo:"), msg...), nil
	})
	out, err := tr.Send(context.Background(), []byte("x"))
	if err != nil || string(out) != "echo:x" {
		t.Fatalf("out = %q err = %v", out, err)
	}
}
