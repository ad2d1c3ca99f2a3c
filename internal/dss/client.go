package dss

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

const defaultReplica = "aws"

// Config holds the connection settings for the downstream store.
type Config struct {
	BaseURL string

	// Replica selects the store replica bundle writes target. Empty uses
	// the default.
	Replica string

	// RetryMax overrides the transport retry budget when non-zero.
	RetryMax int

	Logger *zap.Logger
}

// Client talks to the downstream content-addressed store.
type Client struct {
	base    string
	replica string
	http    *retryablehttp.Client
	log     *zap.Logger
}

// BundleFile is one entry in a bundle's file list.
type BundleFile struct {
	Name        string `json:"name"`
	UUID        string `json:"uuid"`
	Version     string `json:"version"`
	ContentType string `json:"content-type"`
	Indexed     bool   `json:"indexed"`
}

// NewClient creates a store client from config.
func NewClient(cfg Config) *Client {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	replica := cfg.Replica
	if replica == "" {
		replica = defaultReplica
	}
	return &Client{
		base:    strings.TrimRight(cfg.BaseURL, "/"),
		replica: replica,
		http:    httpsession.New(log, cfg.RetryMax),
		log:     log,
	}
}

// PutFile registers a staged file under a UUID and version. The store
// copies the content from sourceURL asynchronously; FileExists confirms
// completion.
func (c *Client) PutFile(ctx context.Context, fileUUID, version, sourceURL, creatorUID string) error {
	payload, err := json.Marshal(map[string]string{
		"source_url":  sourceURL,
		"creator_uid": creatorUID,
	})
	if err != nil {
		return fmt.Errorf("failed to encode file registration: %w", err)
	}
	_, _, err = httpsession.Do(ctx, c.http, httpsession.Request{
		Method:  http.MethodPut,
		URL:     c.fileURL(fileUUID, version),
		Body:    payload,
		Headers: map[string]string{"Content-Type": "application/json"},
	})
	if err != nil {
		return fmt.Errorf("failed to register file %s version %s: %w", fileUUID, version, err)
	}
	return nil
}

// FileExists reports whether a file version has finished copying into the
// store.
func (c *Client) FileExists(ctx context.Context, fileUUID, version string) (bool, error) {
	_, _, err := httpsession.Do(ctx, c.http, httpsession.Request{
		Method: http.MethodHead,
		URL:    c.fileURL(fileUUID, version),
	})
	if httpsession.IsStatus(err, http.StatusNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to probe file %s version %s: %w", fileUUID, version, err)
	}
	return true, nil
}

// PutBundle registers a bundle with its complete file list. A 409 from the
// store surfaces unwrapped so callers can distinguish an already-registered
// bundle UUID.
func (c *Client) PutBundle(ctx context.Context, bundleUUID, version, creatorUID string, files []BundleFile) error {
	payload, err := json.Marshal(map[string]any{
		"creator_uid": creatorUID,
		"files":       files,
	})
	if err != nil {
		return fmt.Errorf("failed to encode bundle: %w", err)
	}
	_, _, err = httpsession.Do(ctx, c.http, httpsession.Request{
		Method: http.MethodPut,
		URL: fmt.Sprintf("%s/v1/bundles/%s?version=%s&replica=%s",
			c.base, url.PathEscape(bundleUUID), url.QueryEscape(version), url.QueryEscape(c.replica)),
		Body:    payload,
		Headers: map[string]string{"Content-Type": "application/json"},
	})
	return err
}

// GetBundle fetches a registered bundle's file list and version.
func (c *Client) GetBundle(ctx context.Context, bundleUUID string) (version string, files []BundleFile, err error) {
	body, _, err := httpsession.Do(ctx, c.http, httpsession.Request{
		Method: http.MethodGet,
		URL:    fmt.Sprintf("%s/v1/bundles/%s?replica=%s", c.base, url.PathEscape(bundleUUID), url.QueryEscape(c.replica)),
	})
	if err != nil {
		return "", nil, fmt.Errorf("failed to fetch bundle %s: %w", bundleUUID, err)
	}
	var response struct {
		Bundle struct {
			Version string       `json:"version"`
			Files   []BundleFile `json:"files"`
		} `json:"bundle"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return "", nil, fmt.Errorf("failed to decode bundle %s: %w", bundleUUID, err)
	}
	return response.Bundle.Version, response.Bundle.Files, nil
}

func (c *Client) fileURL(fileUUID, version string) string {
	return fmt.Sprintf("%s/v1/files/%s?version=%s&replica=%s",
		c.base, url.PathEscape(fileUUID), url.QueryEscape(version), url.QueryEscape(c.replica))
}
