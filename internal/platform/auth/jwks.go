package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/sync/singleflight"
)

const (
	defaultJWKSCacheTTL = 5 * time.Minute
	// minJWKSRefresh bounds how often an unknown kid can force a refetch.
	minJWKSRefresh = 30 * time.Second
)

type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	N   string `json:"n"`
	E   string `json:"e"`
}

type jwkSet struct {
	Keys []jwk `json:"keys"`
}

// JWKSCache holds the identity provider's RSA signing keys by kid.
type JWKSCache struct {
	url    string
	ttl    time.Duration
	client *resty.Client
	group  singleflight.Group
	now    func() time.Time

	mu        sync.RWMutex
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time
}

func NewJWKSCache(jwksURL string, ttl time.Duration) *JWKSCache {
	return &JWKSCache{
		url:    jwksURL,
		ttl:    ttl,
		client: resty.New().SetTimeout(10 * time.Second).SetRetryCount(2),
		now:    time.Now,
		keys:   map[string]*rsa.PublicKey{},
	}
}

// GetKey returns the key for kid. The set is refetched when it is older than
// the TTL, or when kid is unknown and the last fetch is not too recent.
// Concurrent callers share one fetch.
func (c *JWKSCache) GetKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	c.mu.RLock()
	key, ok := c.keys[kid]
	age := c.now().Sub(c.fetchedAt)
	c.mu.RUnlock()

	switch {
	case ok && age <= c.ttl:
		return key, nil
	case !ok && age < minJWKSRefresh:
		return nil, fmt.Errorf("unknown signing key %q", kid)
	}

	if _, err, _ := c.group.Do("jwks", func() (interface{}, error) {
		return nil, c.fetch(ctx)
	}); err != nil {
		if ok {
			// Keep serving the cached key while the endpoint is unreachable.
			return key, nil
		}
		return nil, fmt.Errorf("fetch JWKS: %w", err)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if key, ok = c.keys[kid]; !ok {
		return nil, fmt.Errorf("unknown signing key %q", kid)
	}
	return key, nil
}

func (c *JWKSCache) fetch(ctx context.Context) error {
	var set jwkSet
	resp, err := c.client.R().SetContext(ctx).SetResult(&set).Get(c.url)
	if err != nil {
		return fmt.Errorf("GET %s: %w", c.url, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("JWKS endpoint returned status %d", resp.StatusCode())
	}

	keys := make(map[string]*rsa.PublicKey, len(set.Keys))
	for _, k := range set.Keys {
		if k.Kty != "RSA" || k.Kid == "" {
			continue
		}
		if pub, err := parseRSAPublicKey(k); err == nil {
			keys[k.Kid] = pub
		}
	}

	c.mu.Lock()
	c.keys = keys
	c.fetchedAt = c.now()
	c.mu.Unlock()
	return nil
}

func parseRSAPublicKey(k jwk) (*rsa.PublicKey, error) {
	n, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("decode modulus: %w", err)
	}
	e, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("decode exponent: %w", err)
	}
	exp := new(big.Int).SetBytes(e)
	if !exp.IsInt64() || exp.Int64() < 3 {
		return nil, fmt.Errorf("invalid exponent")
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(n), E: int(exp.Int64())}, nil
}
