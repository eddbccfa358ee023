// Package sessions is the cookie-backed session store. A session is a
// redis record addressed by id; the cookie carries a signed JWT binding
// the record id, the subject and a rotating proof token whose hash is
// kept server-side. Reading a session may extend it, which re-issues
// the cookie on the outgoing response.
package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"mutabaahly/web/internal/access"
	"mutabaahly/web/internal/crypto"
)

const (
	sessionKeyPrefix = "session:"
	stateKeyPrefix   = "oauthstate:"
)

type Config struct {
	Secret       string
	CookieName   string
	CookieSecure bool
	TTL          time.Duration
	RefreshAfter time.Duration
	StateTTL     time.Duration
}

type Store struct {
	redis *redis.Client
	cfg   Config
}

func NewStore(client *redis.Client, cfg Config) *Store {
	return &Store{redis: client, cfg: cfg}
}

// record is the persisted session state. The raw proof token never
// leaves the cookie; only its hash is stored.
type record struct {
	ID          string    `json:"id"`
	SubjectID   string    `json:"subject_id"`
	TokenHash   string    `json:"token_hash"`
	UserAgent   string    `json:"user_agent,omitempty"`
	IPAddress   string    `json:"ip_address,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	RefreshedAt time.Time `json:"refreshed_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type cookieClaims struct {
	SessionID string `json:"sid"`
	Proof     string `json:"prf"`
	jwt.RegisteredClaims
}

// Issue creates a session for subjectID, persists it and sets the
// session cookie on w.
func (s *Store) Issue(ctx context.Context, w http.ResponseWriter, r *http.Request, subjectID string) (*access.SessionSnapshot, error) {
	proof, err := crypto.NewToken()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	rec := record{
		ID:          uuid.NewString(),
		SubjectID:   subjectID,
		TokenHash:   crypto.HashToken(proof),
		CreatedAt:   now,
		RefreshedAt: now,
		ExpiresAt:   now.Add(s.cfg.TTL),
	}
	if r != nil {
		rec.UserAgent = r.UserAgent()
		rec.IPAddress = clientIP(r)
	}

	if err := s.save(ctx, rec); err != nil {
		return nil, err
	}
	if err := s.setCookie(w, rec, proof); err != nil {
		return nil, err
	}
	return &access.SessionSnapshot{SubjectID: rec.SubjectID, ExpiresAt: rec.ExpiresAt}, nil
}

// FromRequest resolves the session carried by r's cookie. Absent,
// malformed, expired or revoked sessions all resolve to (nil, nil);
// an error is only returned when the backing store itself fails.
// When the refresh interval has elapsed the record is extended, its
// proof token rotated and a fresh cookie written to w — losing that
// write would silently expire the session, so callers must pass the
// live response writer.
func (s *Store) FromRequest(ctx context.Context, w http.ResponseWriter, r *http.Request) (*access.SessionSnapshot, error) {
	cookie, err := r.Cookie(s.cfg.CookieName)
	if err != nil || cookie.Value == "" {
		return nil, nil
	}

	claims, err := s.parseCookie(cookie.Value)
	if err != nil {
		return nil, nil
	}

	rec, err := s.get(ctx, claims.SessionID)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	if rec.TokenHash != crypto.HashToken(claims.Proof) {
		return nil, nil
	}

	now := time.Now().UTC()
	if now.After(rec.ExpiresAt) {
		_ = s.redis.Del(ctx, sessionKeyPrefix+rec.ID).Err()
		return nil, nil
	}

	if now.Sub(rec.RefreshedAt) >= s.cfg.RefreshAfter {
		proof, err := crypto.NewToken()
		if err != nil {
			return nil, err
		}
		rec.TokenHash = crypto.HashToken(proof)
		rec.RefreshedAt = now
		rec.ExpiresAt = now.Add(s.cfg.TTL)
		if err := s.save(ctx, rec); err != nil {
			return nil, err
		}
		if w != nil {
			if err := s.setCookie(w, rec, proof); err != nil {
				return nil, err
			}
		}
	}

	return &access.SessionSnapshot{SubjectID: rec.SubjectID, ExpiresAt: rec.ExpiresAt}, nil
}

// Destroy deletes the session referenced by r's cookie and expires the
// cookie on w. Destroying an absent session is not an error.
func (s *Store) Destroy(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	cookie, err := r.Cookie(s.cfg.CookieName)
	if err == nil && cookie.Value != "" {
		if claims, perr := s.parseCookie(cookie.Value); perr == nil {
			if derr := s.redis.Del(ctx, sessionKeyPrefix+claims.SessionID).Err(); derr != nil && !errors.Is(derr, redis.Nil) {
				return derr
			}
		}
	}
	s.clearCookie(w)
	return nil
}

// BeginOAuthState mints a state parameter for the sign-in redirect and
// stores its hash so the callback can verify it arrived unaltered.
func (s *Store) BeginOAuthState(ctx context.Context) (string, error) {
	state, err := crypto.NewToken()
	if err != nil {
		return "", err
	}
	key := stateKeyPrefix + crypto.HashToken(state)
	if err := s.redis.Set(ctx, key, "1", s.cfg.StateTTL).Err(); err != nil {
		return "", err
	}
	return state, nil
}

// ConsumeOAuthState validates and burns a state parameter. Each state
// is single-use.
func (s *Store) ConsumeOAuthState(ctx context.Context, state string) bool {
	if state == "" {
		return false
	}
	key := stateKeyPrefix + crypto.HashToken(state)
	deleted, err := s.redis.Del(ctx, key).Result()
	return err == nil && deleted > 0
}

func (s *Store) save(ctx context.Context, rec record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	ttl := time.Until(rec.ExpiresAt)
	if ttl <= 0 {
		ttl = time.Second
	}
	return s.redis.Set(ctx, sessionKeyPrefix+rec.ID, payload, ttl).Err()
}

func (s *Store) get(ctx context.Context, id string) (record, error) {
	var rec record
	payload, err := s.redis.Get(ctx, sessionKeyPrefix+id).Bytes()
	if err != nil {
		return rec, err
	}
	if err := json.Unmarshal(payload, &rec); err != nil {
		return rec, err
	}
	return rec, nil
}

func (s *Store) setCookie(w http.ResponseWriter, rec record, proof string) error {
	claims := cookieClaims{
		SessionID: rec.ID,
		Proof:     proof,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   rec.SubjectID,
			IssuedAt:  jwt.NewNumericDate(rec.RefreshedAt),
			ExpiresAt: jwt.NewNumericDate(rec.ExpiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.Secret))
	if err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.CookieName,
		Value:    token,
		Path:     "/",
		Expires:  rec.ExpiresAt,
		HttpOnly: true,
		Secure:   s.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func (s *Store) clearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Store) parseCookie(value string) (*cookieClaims, error) {
	token, err := jwt.ParseWithClaims(value, &cookieClaims{}, func(*jwt.Token) (interface{}, error) {
		return []byte(s.cfg.Secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*cookieClaims)
	if !ok || !token.Valid || claims.SessionID == "" {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	return r.RemoteAddr
}
