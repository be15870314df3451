package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/ocilxc/lxc-deployer/internal/middleware"
)

func newAuthRouter(token string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.TokenAuth(token))
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return r
}

func TestTokenAuth_BearerHeader(t *testing.T) {
	router := newAuthRouter("secret-token")

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/ping", nil)
	req.Header.Set("Authorization", "Bearer secret-token")
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200 with valid bearer token, got %d", w.Code)
	}
}

func TestTokenAuth_QueryFallback(t *testing.T) {
	// Browser websocket clients cannot set Authorization headers.
	router := newAuthRouter("secret-token")

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/ping?token=secret-token", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200 with query token, got %d", w.Code)
	}
}

func TestTokenAuth_RejectsWrongToken(t *testing.T) {
	router := newAuthRouter("secret-token")

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/ping", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 with wrong token, got %d", w.Code)
	}
}

func TestTokenAuth_RejectsMissingToken(t *testing.T) {
	router := newAuthRouter("secret-token")

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/ping", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", w.Code)
	}
}

func TestTokenAuth_EmptyTokenDisablesAuth(t *testing.T) {
	router := newAuthRouter("")

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/ping", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200 with auth disabled, got %d", w.Code)
	}
}
