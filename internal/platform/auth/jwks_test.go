package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// newJWKSServer publishes one RSA key under kid and counts fetches. The
// server answers 503 once down is set.
func newJWKSServer(t *testing.T, kid string) (*rsa.PrivateKey, *httptest.Server, *jwksHits) {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	hits := &jwksHits{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.n.Add(1)
		if hits.down.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		n := base64.RawURLEncoding.EncodeToString(priv.N.Bytes())
		e := base64.RawURLEncoding.EncodeToString(big.NewInt(int64(priv.E)).Bytes())
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"keys":[{"kty":"RSA","kid":"` + kid + `","use":"sig","alg":"RS256","n":"` + n + `","e":"` + e + `"}]}`))
	}))
	t.Cleanup(srv.Close)
	return priv, srv, hits
}

type jwksHits struct {
	n    atomic.Int32
	down atomic.Bool
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestJWKSCache(url string, clock *fakeClock) *JWKSCache {
	c := NewJWKSCache(url, time.Minute)
	c.client.SetRetryCount(0)
	c.now = clock.now
	return c
}

func TestJWKSCache_CachesWithinTTL(t *testing.T) {
	priv, srv, hits := newJWKSServer(t, "k1")
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	c := newTestJWKSCache(srv.URL, clock)

	for i := 0; i < 3; i++ {
		key, err := c.GetKey(context.Background(), "k1")
		if err != nil {
			t.Fatalf("GetKey: %v", err)
		}
		if key.N.Cmp(priv.N) != 0 {
			t.Fatal("wrong key returned")
		}
	}
	if got := hits.n.Load(); got != 1 {
		t.Errorf("expected 1 fetch, got %d", got)
	}

	clock.advance(2 * time.Minute)
	if _, err := c.GetKey(context.Background(), "k1"); err != nil {
		t.Fatalf("GetKey after TTL: %v", err)
	}
	if got := hits.n.Load(); got != 2 {
		t.Errorf("expected refetch after TTL, got %d fetches", got)
	}
}

func TestJWKSCache_UnknownKidRefetchIsThrottled(t *testing.T) {
	_, srv, hits := newJWKSServer(t, "k1")
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	c := newTestJWKSCache(srv.URL, clock)

	if _, err := c.GetKey(context.Background(), "k1"); err != nil {
		t.Fatalf("GetKey: %v", err)
	}
	for i := 0; i < 5; i++ {
		if _, err := c.GetKey(context.Background(), "rotated"); err == nil {
			t.Fatal("expected unknown kid error")
		}
	}
	if got := hits.n.Load(); got != 1 {
		t.Errorf("unknown kids must not refetch within the refresh window, got %d fetches", got)
	}

	clock.advance(minJWKSRefresh)
	_, _ = c.GetKey(context.Background(), "rotated")
	if got := hits.n.Load(); got != 2 {
		t.Errorf("expected one refetch after the window, got %d fetches", got)
	}
}

func TestJWKSCache_ServesStaleKeyWhenEndpointDown(t *testing.T) {
	_, srv, hits := newJWKSServer(t, "k1")
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	c := newTestJWKSCache(srv.URL, clock)

	if _, err := c.GetKey(context.Background(), "k1"); err != nil {
		t.Fatalf("GetKey: %v", err)
	}
	hits.down.Store(true)
	clock.advance(2 * time.Minute)

	if _, err := c.GetKey(context.Background(), "k1"); err != nil {
		t.Errorf("expected stale key while endpoint is down, got %v", err)
	}
}

func TestParseRSAPublicKey_RejectsBadExponent(t *testing.T) {
	_, err := parseRSAPublicKey(jwk{Kty: "RSA", Kid: "k", N: "AQAB", E: base64.RawURLEncoding.EncodeToString([]byte{1})})
	if err == nil {
		t.Error("expected error for exponent 1")
	}
}
