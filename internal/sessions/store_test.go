package sessions

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T, cfg Config) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	if cfg.Secret == "" {
		cfg.Secret = "test-secret"
	}
	if cfg.CookieName == "" {
		cfg.CookieName = "mb_session"
	}
	if cfg.TTL == 0 {
		cfg.TTL = time.Hour
	}
	if cfg.RefreshAfter == 0 {
		cfg.RefreshAfter = 30 * time.Minute
	}
	if cfg.StateTTL == 0 {
		cfg.StateTTL = 10 * time.Minute
	}
	return NewStore(client, cfg), mr
}

func issueAndCookie(t *testing.T, store *Store) *http.Cookie {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/auth/callback", nil)
	if _, err := store.Issue(context.Background(), rec, req, "subject-1"); err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected one cookie, got %d", len(cookies))
	}
	return cookies[0]
}

func TestIssueAndFromRequest(t *testing.T) {
	store, _ := newTestStore(t, Config{})
	cookie := issueAndCookie(t, store)

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()

	sess, err := store.FromRequest(context.Background(), rec, req)
	if err != nil {
		t.Fatalf("from request failed: %v", err)
	}
	if sess == nil || sess.SubjectID != "subject-1" {
		t.Fatalf("expected session for subject-1, got %+v", sess)
	}
	// Within the refresh interval no cookie rewrite happens.
	if len(rec.Result().Cookies()) != 0 {
		t.Fatalf("expected no refresh cookie, got %d", len(rec.Result().Cookies()))
	}
}

func TestFromRequestMissingOrGarbageCookie(t *testing.T) {
	store, _ := newTestStore(t, Config{})

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	sess, err := store.FromRequest(context.Background(), httptest.NewRecorder(), req)
	if err != nil || sess != nil {
		t.Fatalf("expected nil session for missing cookie, got %+v err %v", sess, err)
	}

	req = httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.AddCookie(&http.Cookie{Name: "mb_session", Value: "not-a-token"})
	sess, err = store.FromRequest(context.Background(), httptest.NewRecorder(), req)
	if err != nil || sess != nil {
		t.Fatalf("expected nil session for garbage cookie, got %+v err %v", sess, err)
	}
}

func TestFromRequestWrongSecret(t *testing.T) {
	store, mr := newTestStore(t, Config{})
	cookie := issueAndCookie(t, store)

	other := NewStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}), Config{
		Secret: "other-secret", CookieName: "mb_session", TTL: time.Hour, RefreshAfter: 30 * time.Minute,
	})
	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.AddCookie(cookie)
	sess, err := other.FromRequest(context.Background(), httptest.NewRecorder(), req)
	if err != nil || sess != nil {
		t.Fatalf("expected nil session for foreign signature, got %+v err %v", sess, err)
	}
}

func TestFromRequestRefreshRotatesCookie(t *testing.T) {
	// RefreshAfter of one nanosecond forces a refresh on every read.
	store, _ := newTestStore(t, Config{RefreshAfter: time.Nanosecond})
	cookie := issueAndCookie(t, store)
	time.Sleep(2 * time.Millisecond)

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()

	sess, err := store.FromRequest(context.Background(), rec, req)
	if err != nil || sess == nil {
		t.Fatalf("refresh read failed: %+v err %v", sess, err)
	}

	refreshed := rec.Result().Cookies()
	if len(refreshed) != 1 {
		t.Fatalf("expected refreshed cookie, got %d", len(refreshed))
	}
	if refreshed[0].Value == cookie.Value {
		t.Fatalf("expected rotated cookie value")
	}

	// The rotated cookie is valid, the old proof is not.
	req = httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.AddCookie(refreshed[0])
	sess, err = store.FromRequest(context.Background(), httptest.NewRecorder(), req)
	if err != nil || sess == nil {
		t.Fatalf("rotated cookie rejected: %+v err %v", sess, err)
	}

	req = httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.AddCookie(cookie)
	sess, err = store.FromRequest(context.Background(), httptest.NewRecorder(), req)
	if err != nil || sess != nil {
		t.Fatalf("expected stale proof to be rejected, got %+v err %v", sess, err)
	}
}

func TestFromRequestExpiredRecord(t *testing.T) {
	store, mr := newTestStore(t, Config{TTL: time.Minute})
	cookie := issueAndCookie(t, store)

	mr.FastForward(2 * time.Minute)

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.AddCookie(cookie)
	sess, err := store.FromRequest(context.Background(), httptest.NewRecorder(), req)
	if err != nil || sess != nil {
		t.Fatalf("expected expired session to resolve nil, got %+v err %v", sess, err)
	}
}

func TestDestroy(t *testing.T) {
	store, _ := newTestStore(t, Config{})
	cookie := issueAndCookie(t, store)

	req := httptest.NewRequest(http.MethodPost, "/signout", nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	if err := store.Destroy(context.Background(), rec, req); err != nil {
		t.Fatalf("destroy failed: %v", err)
	}

	cleared := rec.Result().Cookies()
	if len(cleared) != 1 || cleared[0].MaxAge != -1 {
		t.Fatalf("expected expiring cookie, got %+v", cleared)
	}

	req = httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.AddCookie(cookie)
	sess, err := store.FromRequest(context.Background(), httptest.NewRecorder(), req)
	if err != nil || sess != nil {
		t.Fatalf("expected destroyed session to resolve nil, got %+v err %v", sess, err)
	}
}

func TestOAuthStateSingleUse(t *testing.T) {
	store, _ := newTestStore(t, Config{})

	state, err := store.BeginOAuthState(context.Background())
	if err != nil || state == "" {
		t.Fatalf("begin state failed: %q err %v", state, err)
	}
	if !store.ConsumeOAuthState(context.Background(), state) {
		t.Fatalf("expected state to validate once")
	}
	if store.ConsumeOAuthState(context.Background(), state) {
		t.Fatalf("expected state to be single-use")
	}
	if store.ConsumeOAuthState(context.Background(), "forged") {
		t.Fatalf("expected unknown state to be rejected")
	}
}
