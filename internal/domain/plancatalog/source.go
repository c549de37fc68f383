// Package plancatalog loads the insurance plan catalog from configuration
// data (an embedded default, a YAML file, or a remote document) and keeps
// the currently active, validated version available to the risk engine.
package plancatalog

import (
	"context"
	_ "embed"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-resty/resty/v2"
	"gopkg.in/yaml.v3"

	"github.com/ehr/riskadvisor/internal/domain/riskengine"
)

//go:embed catalogs/default.yaml
var defaultCatalog []byte

// Source yields a validated catalog.
type Source interface {
	Load(ctx context.Context) (*riskengine.Catalog, error)
	Name() string
}

// Parse decodes a YAML (or JSON) catalog document and validates it.
func Parse(data []byte) (*riskengine.Catalog, error) {
	var cat riskengine.Catalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, &riskengine.CatalogConfigurationError{Reason: fmt.Sprintf("decode catalog: %v", err)}
	}
	if err := cat.Validate(); err != nil {
		return nil, err
	}
	return &cat, nil
}

// Default returns the catalog shipped with the binary.
func Default() (*riskengine.Catalog, error) {
	return Parse(defaultCatalog)
}

// EmbeddedSource serves the built-in catalog.
type EmbeddedSource struct{}

func (EmbeddedSource) Name() string { return "embedded" }

func (EmbeddedSource) Load(_ context.Context) (*riskengine.Catalog, error) {
	return Default()
}

// FileSource reads the catalog from a YAML file on every Load.
type FileSource struct {
	Path string
}

func (f FileSource) Name() string { return "file:" + f.Path }

func (f FileSource) Load(_ context.Context) (*riskengine.Catalog, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", f.Path, err)
	}
	return Parse(data)
}

// RemoteSource fetches the catalog document over HTTP.
type RemoteSource struct {
	url    string
	client *resty.Client
}

// NewRemoteSource creates a source that GETs url with retries.
func NewRemoteSource(url string) *RemoteSource {
	client := resty.New().
		SetTimeout(10 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(5 * time.Second).
		SetHeader("Accept", "application/yaml, application/json")
	return &RemoteSource{url: url, client: client}
}

func (r *RemoteSource) Name() string { return "remote:" + r.url }

func (r *RemoteSource) Load(ctx context.Context) (*riskengine.Catalog, error) {
	resp, err := r.client.R().SetContext(ctx).Get(r.url)
	if err != nil {
		return nil, fmt.Errorf("fetch catalog %s: %w", r.url, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("fetch catalog %s: status %d", r.url, resp.StatusCode())
	}
	return Parse(resp.Body())
}
