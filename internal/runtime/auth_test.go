package runtime

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

var secret = []byte("test-secret")

func serve(t *testing.T, mw echo.MiddlewareFunc, req *http.Request) (echo.Context, error) {
	t.Helper()
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	var seen echo.Context
	err := mw(func(c echo.Context) error {
		seen = c
		return nil
	})(c)
	return seen, err
}

func TestEchoAuthMiddlewareBearer(t *testing.T) {
	tok, err := SignJWT("user-1", "ADMIN", secret, time.Hour)
	if err != nil {
		t.Fatalf("SignJWT: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)

	c, err := serve(t, EchoAuthMiddleware(secret), req)
	if err != nil {
		t.Fatalf("middleware: %v", err)
	}
	if c.Get("user_id") != "user-1" || c.Get("role") != "ADMIN" {
		t.Fatalf("unexpected identity %v %v", c.Get("user_id"), c.Get("role"))
	}
	if sub, ok := SubjectFromContext(c.Request().Context()); !ok || sub != "user-1" {
		t.Fatalf("subject not in request context")
	}
}

func TestEchoAuthMiddlewareCookie(t *testing.T) {
	tok, _ := SignJWT("user-2", "USER", secret, time.Hour)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: AuthCookie, Value: tok})

	c, err := serve(t, EchoAuthMiddleware(secret), req)
	if err != nil || c.Get("user_id") != "user-2" {
		t.Fatalf("expected cookie auth, got %v", err)
	}
}

func TestEchoAuthMiddlewareRejects(t *testing.T) {
	expired, _ := SignJWT("user-3", "", secret, -time.Minute)
	foreign, _ := SignJWT("user-3", "", []byte("other"), time.Hour)
	for name, header := range map[string]string{
		"missing": "",
		"expired": "Bearer " + expired,
		"foreign": "Bearer " + foreign,
		"garbage": "Bearer abc",
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			_, err := serve(t, EchoAuthMiddleware(secret), req)
			var he *echo.HTTPError
			if !errors.As(err, &he) || he.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %v", err)
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	e := echo.New()
	ok := func(c echo.Context) error { return c.NoContent(http.StatusNoContent) }

	c := e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil), httptest.NewRecorder())
	c.Set("role", "USER")
	var he *echo.HTTPError
	if err := RequireRole("ADMIN")(ok)(c); !errors.As(err, &he) || he.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %v", err)
	}

	c = e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil), httptest.NewRecorder())
	c.Set("role", "ADMIN")
	if err := RequireRole("ADMIN")(ok)(c); err != nil {
		t.Fatalf("admin should pass, got %v", err)
	}
}
