package upload

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/biobroker/biobroker/internal/httpsession"
)

// Config holds the connection settings for an upload service.
type Config struct {
	// BaseURL is the root of the upload API, for example
	// https://upload.example.org
	BaseURL string

	// APIVersion selects the versioned path prefix, for example "v1".
	APIVersion string

	// APIKey authenticates area management calls.
	APIKey string

	// RetryMax overrides the transport retry budget when non-zero.
	RetryMax int

	Logger *zap.Logger
}

// Client manages upload areas and the files staged inside them.
type Client struct {
	base    string
	version string
	apiKey  string
	http    *retryablehttp.Client
	log     *zap.Logger
}

// FileDescription is the upload service's record of a staged file.
type FileDescription struct {
	Checksums   map[string]string `json:"checksums"`
	ContentType string            `json:"content_type"`
	Name        string            `json:"name"`
	Size        int64             `json:"size"`
	URL         string            `json:"url"`
}

// NewClient creates an upload client from config.
func NewClient(cfg Config) *Client {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	version := cfg.APIVersion
	if version == "" {
		version = "v1"
	}
	return &Client{
		base:    strings.TrimRight(cfg.BaseURL, "/"),
		version: version,
		apiKey:  cfg.APIKey,
		http:    httpsession.New(log, cfg.RetryMax),
		log:     log,
	}
}

// CreateArea provisions an upload area for the given UUID and returns
// its URI.
func (c *Client) CreateArea(ctx context.Context, areaUUID string) (string, error) {
	body, _, err := httpsession.Do(ctx, c.http, httpsession.Request{
		Method:  http.MethodPost,
		URL:     c.areaURL(areaUUID),
		Headers: c.authHeaders(nil),
	})
	if err != nil {
		return "", fmt.Errorf("failed to create upload area %s: %w", areaUUID, err)
	}
	var response struct {
		URI string `json:"uri"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return "", fmt.Errorf("failed to decode upload area response: %w", err)
	}
	return response.URI, nil
}

// DeleteArea removes an upload area and everything staged in it.
func (c *Client) DeleteArea(ctx context.Context, areaUUID string) error {
	_, _, err := httpsession.Do(ctx, c.http, httpsession.Request{
		Method:  http.MethodDelete,
		URL:     c.areaURL(areaUUID),
		Headers: c.authHeaders(nil),
	})
	if err != nil {
		return fmt.Errorf("failed to delete upload area %s: %w", areaUUID, err)
	}
	return nil
}

// AreaExists probes an upload area without transferring its listing.
func (c *Client) AreaExists(ctx context.Context, areaUUID string) (bool, error) {
	_, _, err := httpsession.Do(ctx, c.http, httpsession.Request{
		Method:  http.MethodHead,
		URL:     c.areaURL(areaUUID),
		Headers: c.authHeaders(nil),
	})
	if httpsession.IsStatus(err, http.StatusNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to probe upload area %s: %w", areaUUID, err)
	}
	return true, nil
}

// StoreMetadata writes a metadata document into an upload area under the
// given file name. The metadata type tags the stored content type so the
// downstream store can classify the file.
func (c *Client) StoreMetadata(ctx context.Context, areaUUID, fileName, metadataType string, content []byte) (*FileDescription, error) {
	contentType := fmt.Sprintf("application/json; dcp-type=%q", "metadata/"+metadataType)
	body, _, err := httpsession.Do(ctx, c.http, httpsession.Request{
		Method:  http.MethodPut,
		URL:     c.areaURL(areaUUID) + "/" + url.PathEscape(fileName),
		Headers: c.authHeaders(map[string]string{"Content-Type": contentType}),
		Body:    content,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store %s in area %s: %w", fileName, areaUUID, err)
	}
	var description FileDescription
	if err := json.Unmarshal(body, &description); err != nil {
		return nil, fmt.Errorf("failed to decode stored file description: %w", err)
	}
	return &description, nil
}

func (c *Client) areaURL(areaUUID string) string {
	return fmt.Sprintf("%s/%s/area/%s", c.base, c.version, url.PathEscape(areaUUID))
}

func (c *Client) authHeaders(extra map[string]string) map[string]string {
	headers := make(map[string]string, len(extra)+1)
	if c.apiKey != "" {
		headers["Api-Key"] = c.apiKey
	}
	for key, value := range extra {
		headers[key] = value
	}
	return headers
}
