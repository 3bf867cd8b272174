package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/example/leafcheck/internal/classifier"
	"github.com/example/leafcheck/internal/workflow"
)

const testSecret = "test-secret"

type nopPreviews struct{ revoked int }

func (p *nopPreviews) Create(ctx context.Context, data []byte) (string, error) {
	return "/preview/x", nil
}

func (p *nopPreviews) Revoke(ctx context.Context, uri string) { p.revoked++ }

func TestTokensRoundTrip(t *testing.T) {
	tokens := NewTokens(testSecret, time.Hour)

	id, token, err := tokens.Issue()
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	got, err := tokens.Parse(token)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if got != id {
		t.Fatalf("expected %s, got %s", id, got)
	}
}

func TestTokensRejectForeignAndExpired(t *testing.T) {
	tokens := NewTokens(testSecret, time.Hour)
	_, foreign, _ := NewTokens("other-secret", time.Hour).Issue()
	if _, err := tokens.Parse(foreign); err == nil {
		t.Fatal("expected token signed with another secret to be rejected")
	}

	past := NewTokens(testSecret, time.Minute)
	past.now = func() time.Time { return time.Now().Add(-time.Hour) }
	_, expired, _ := past.Issue()
	if _, err := tokens.Parse(expired); err == nil {
		t.Fatal("expected expired token to be rejected")
	}

	claims := jwt.RegisteredClaims{Subject: "not-a-uuid", Issuer: issuer, ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}
	bad, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if _, err := tokens.Parse(bad); err == nil {
		t.Fatal("expected non-uuid subject to be rejected")
	}
}

func newSessionRouter(tokens *Tokens) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(Middleware(tokens, zap.NewNop()))
	router.GET("/whoami", func(c *gin.Context) {
		id, _ := GetID(c.Request.Context())
		c.String(http.StatusOK, id)
	})
	return router
}

func TestMiddlewareIssuesSessionWhenCookieMissing(t *testing.T) {
	router := newSessionRouter(NewTokens(testSecret, time.Hour))

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/whoami", nil))

	if resp.Body.String() == "" {
		t.Fatal("expected session id in response")
	}
	cookies := resp.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != CookieName || !cookies[0].HttpOnly {
		t.Fatalf("expected http-only session cookie, got %+v", cookies)
	}
}

func TestMiddlewareKeepsValidSession(t *testing.T) {
	tokens := NewTokens(testSecret, time.Hour)
	router := newSessionRouter(tokens)
	id, token, _ := tokens.Issue()

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: token})
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Body.String() != id {
		t.Fatalf("expected %s, got %s", id, resp.Body.String())
	}
	if len(resp.Result().Cookies()) != 0 {
		t.Fatal("expected no new cookie for a valid session")
	}
}

func TestMiddlewareReplacesInvalidCookie(t *testing.T) {
	router := newSessionRouter(NewTokens(testSecret, time.Hour))

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: "garbage"})
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Body.String() == "" || len(resp.Result().Cookies()) != 1 {
		t.Fatal("expected a fresh session for an invalid cookie")
	}
}

func TestRefreshRenewsPastHalfLifetime(t *testing.T) {
	tokens := NewTokens(testSecret, 30*time.Minute)
	now := time.Unix(1_700_000_000, 0)
	tokens.now = func() time.Time { return now }
	id, token, _ := tokens.Issue()

	now = now.Add(10 * time.Minute)
	got, renewed, err := tokens.Refresh(token)
	if err != nil || got != id || renewed != "" {
		t.Fatalf("expected no renewal early in lifetime, got id=%s renewed=%q err=%v", got, renewed, err)
	}

	now = now.Add(10 * time.Minute)
	got, renewed, err = tokens.Refresh(token)
	if err != nil || got != id || renewed == "" {
		t.Fatalf("expected renewal past half lifetime, got id=%s renewed=%q err=%v", got, renewed, err)
	}
	if again, err := tokens.Parse(renewed); err != nil || again != id {
		t.Fatalf("renewed token should carry the same session, got %s (%v)", again, err)
	}
}

func TestActiveSessionOutlivesTokenLifetime(t *testing.T) {
	tokens := NewTokens(testSecret, 30*time.Minute)
	now := time.Unix(1_700_000_000, 0)
	tokens.now = func() time.Time { return now }
	router := newSessionRouter(tokens)

	var cookie *http.Cookie
	var first string
	for minute := 0; minute <= 90; minute++ {
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		if cookie != nil {
			req.AddCookie(cookie)
		}
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)

		for _, c := range resp.Result().Cookies() {
			if c.Name == CookieName {
				cookie = c
			}
		}
		id := resp.Body.String()
		if first == "" {
			first = id
		} else if id != first {
			t.Fatalf("minute %d of continuous use: session %s replaced by %s", minute, first, id)
		}
		now = now.Add(time.Minute)
	}
}

func TestIdleSessionIsReplacedAfterTokenLifetime(t *testing.T) {
	tokens := NewTokens(testSecret, 30*time.Minute)
	now := time.Unix(1_700_000_000, 0)
	tokens.now = func() time.Time { return now }
	router := newSessionRouter(tokens)
	id, token, _ := tokens.Issue()

	now = now.Add(31 * time.Minute)
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: token})
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Body.String() == id {
		t.Fatal("expected an idle session to be replaced")
	}
}

func TestManagerReusesAndSweepsWorkflows(t *testing.T) {
	previews := &nopPreviews{}
	created := 0
	manager := NewManager(func(id string) *workflow.Workflow {
		created++
		return workflow.New(classifier.Simulated{}, previews, zap.NewNop())
	}, time.Minute, zap.NewNop())
	now := time.Unix(1000, 0)
	manager.now = func() time.Time { return now }

	var evicted []string
	manager.OnEvict(func(id string) { evicted = append(evicted, id) })

	first := manager.Workflow("a")
	if manager.Workflow("a") != first || created != 1 {
		t.Fatalf("expected workflow reuse, created %d", created)
	}
	first.SelectFile(context.Background(), "leaf.png", []byte("img"))
	manager.Workflow("b")

	now = now.Add(30 * time.Second)
	manager.Workflow("b")
	now = now.Add(45 * time.Second)

	if n := manager.Sweep(context.Background(), now); n != 1 {
		t.Fatalf("expected one eviction, got %d", n)
	}
	if _, ok := manager.Lookup("a"); ok {
		t.Fatal("expected session a to be evicted")
	}
	if _, ok := manager.Lookup("b"); !ok {
		t.Fatal("expected session b to survive")
	}
	if previews.revoked != 1 {
		t.Fatalf("expected evicted preview to be revoked, got %d", previews.revoked)
	}
	if len(evicted) != 1 || evicted[0] != "a" {
		t.Fatalf("unexpected evict callbacks %v", evicted)
	}
}
