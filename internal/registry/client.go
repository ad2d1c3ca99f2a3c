package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/biobroker/biobroker/internal/httpsession"
	"github.com/biobroker/biobroker/internal/jsondoc"
)

// Config configures a registry client
type Config struct {
	// BaseURL is the registry root
	BaseURL string
	// Token is an optional bearer token attached to every call
	Token string
	// RetryMax caps the session's status retries; 0 uses the default
	RetryMax int
	// LinkRetryMax bounds the application-level retry loop around link
	// creation; 0 uses the default of 5.
	LinkRetryMax int
	// LinkRetryWait separates link-creation attempts; 0 uses 2s
	LinkRetryWait time.Duration
	Logger        *zap.Logger
}

// defaultLinkRetryMax bounds link creation attempts beyond session retries
const defaultLinkRetryMax = 5

// Client talks to the registry. The root document is fetched once and every
// submission-scoped URL is cached per submission.
type Client struct {
	http          *retryablehttp.Client
	baseURL       string
	token         string
	linkRetryMax  int
	linkRetryWait time.Duration
	log           *zap.Logger

	mu        sync.Mutex
	rootLinks map[string]string
	// submissionLinks caches rel→href per submission URL
	submissionLinks map[string]map[string]string
}

// NewClient creates a registry client
func NewClient(cfg Config) *Client {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	linkRetryMax := cfg.LinkRetryMax
	if linkRetryMax <= 0 {
		linkRetryMax = defaultLinkRetryMax
	}
	linkRetryWait := cfg.LinkRetryWait
	if linkRetryWait <= 0 {
		linkRetryWait = 2 * time.Second
	}
	return &Client{
		http:            httpsession.New(log, cfg.RetryMax),
		baseURL:         cfg.BaseURL,
		token:           cfg.Token,
		linkRetryMax:    linkRetryMax,
		linkRetryWait:   linkRetryWait,
		log:             log,
		submissionLinks: make(map[string]map[string]string),
	}
}

func (c *Client) headers(extra map[string]string) map[string]string {
	out := map[string]string{"Accept": "application/json"}
	if c.token != "" {
		out["Authorization"] = "Bearer " + c.token
	}
	for key, value := range extra {
		out[key] = value
	}
	return out
}

// Get fetches a registry resource
func (c *Client) Get(ctx context.Context, resourceURL string) (*Resource, error) {
	data, _, err := httpsession.Do(ctx, c.http, httpsession.Request{
		Method:  http.MethodGet,
		URL:     resourceURL,
		Headers: c.headers(nil),
	})
	if err != nil {
		return nil, err
	}
	return ParseResource(data)
}

// getWithEtag fetches a resource together with its ETag
func (c *Client) getWithEtag(ctx context.Context, resourceURL string) (*Resource, string, error) {
	data, header, err := httpsession.Do(ctx, c.http, httpsession.Request{
		Method:  http.MethodGet,
		URL:     resourceURL,
		Headers: c.headers(nil),
	})
	if err != nil {
		return nil, "", err
	}
	resource, err := ParseResource(data)
	if err != nil {
		return nil, "", err
	}
	return resource, header.Get("ETag"), nil
}

// Post creates a resource and returns the registry's representation
func (c *Client) Post(ctx context.Context, targetURL string, body any) (*Resource, error) {
	payload, err := marshalBody(body)
	if err != nil {
		return nil, err
	}
	data, _, err := httpsession.Do(ctx, c.http, httpsession.Request{
		Method:  http.MethodPost,
		URL:     targetURL,
		Body:    payload,
		Headers: c.headers(map[string]string{"Content-Type": "application/json"}),
	})
	if err != nil {
		return nil, err
	}
	return ParseResource(data)
}

// Patch updates a resource, optionally guarded by an ETag
func (c *Client) Patch(ctx context.Context, resourceURL string, body any, etag string) (*Resource, error) {
	payload, err := marshalBody(body)
	if err != nil {
		return nil, err
	}
	headers := map[string]string{"Content-Type": "application/json"}
	if etag != "" {
		headers["If-Match"] = etag
	}
	data, _, err := httpsession.Do(ctx, c.http, httpsession.Request{
		Method:  http.MethodPatch,
		URL:     resourceURL,
		Body:    payload,
		Headers: c.headers(headers),
	})
	if err != nil {
		return nil, err
	}
	return ParseResource(data)
}

// Put performs a bare PUT, used for submission state transitions
func (c *Client) Put(ctx context.Context, targetURL string, body any) (*Resource, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = marshalBody(body)
		if err != nil {
			return nil, err
		}
	}
	data, _, err := httpsession.Do(ctx, c.http, httpsession.Request{
		Method:  http.MethodPut,
		URL:     targetURL,
		Body:    payload,
		Headers: c.headers(map[string]string{"Content-Type": "application/json"}),
	})
	if err != nil {
		return nil, err
	}
	return ParseResource(data)
}

// Delete removes a resource
func (c *Client) Delete(ctx context.Context, resourceURL string) error {
	_, _, err := httpsession.Do(ctx, c.http, httpsession.Request{
		Method:  http.MethodDelete,
		URL:     resourceURL,
		Headers: c.headers(nil),
	})
	return err
}

// RootLink resolves a relation against the root document, fetching and
// caching it on first use.
func (c *Client) RootLink(ctx context.Context, rel string) (string, error) {
	c.mu.Lock()
	links := c.rootLinks
	c.mu.Unlock()

	if links == nil {
		root, err := c.Get(ctx, c.baseURL)
		if err != nil {
			return "", fmt.Errorf("failed to read registry root document: %w", err)
		}
		links = make(map[string]string)
		if linksNode, ok := root.Raw().GetNode("_links"); ok {
			for _, name := range linksNode.Keys() {
				if href, ok := root.Link(name); ok {
					links[name] = href
				}
			}
		}
		c.mu.Lock()
		c.rootLinks = links
		c.mu.Unlock()
	}

	href, ok := links[rel]
	if !ok {
		return "", fmt.Errorf("registry root document has no %q link", rel)
	}
	return href, nil
}

// SubmissionLink resolves a relation against a submission envelope, caching
// the envelope's links per submission URL.
func (c *Client) SubmissionLink(ctx context.Context, submissionURL, rel string) (string, error) {
	c.mu.Lock()
	links, cached := c.submissionLinks[submissionURL]
	c.mu.Unlock()

	if !cached {
		envelope, err := c.Get(ctx, submissionURL)
		if err != nil {
			return "", err
		}
		links = make(map[string]string)
		if linksNode, ok := envelope.Raw().GetNode("_links"); ok {
			for _, name := range linksNode.Keys() {
				if href, ok := envelope.Link(name); ok {
					links[name] = href
				}
			}
		}
		c.mu.Lock()
		c.submissionLinks[submissionURL] = links
		c.mu.Unlock()
	}

	href, ok := links[rel]
	if !ok {
		return "", fmt.Errorf("submission %s has no %q link", submissionURL, rel)
	}
	return href, nil
}

// CreateSubmission creates a new submission envelope
func (c *Client) CreateSubmission(ctx context.Context) (*Resource, error) {
	target, err := c.RootLink(ctx, "submissionEnvelopes")
	if err != nil {
		return nil, err
	}
	return c.Post(ctx, target, jsondoc.New())
}

// CreateEntity creates one entity under a submission-scoped endpoint
func (c *Client) CreateEntity(ctx context.Context, submissionURL, entityType string, content any) (*Resource, error) {
	target, err := c.SubmissionLink(ctx, submissionURL, entityType)
	if err != nil {
		return nil, err
	}
	return c.Post(ctx, target, content)
}

// CreateFile creates a file entity via the filename-keyed endpoint. A 409
// comes back as an httpsession.Error so the caller can merge instead.
func (c *Client) CreateFile(ctx context.Context, submissionURL, fileName string, content any) (*Resource, error) {
	target, err := c.SubmissionLink(ctx, submissionURL, "files")
	if err != nil {
		return nil, err
	}
	return c.Post(ctx, joinURL(target, url.PathEscape(fileName)), content)
}

// CreateLink posts a text/uri-list relationship from one resource to
// another, with a bounded application-level retry loop on top of the
// session's transport retries.
func (c *Client) CreateLink(ctx context.Context, fromURL, rel, targetURL string) error {
	endpoint := joinURL(fromURL, rel)
	var lastErr error
	for attempt := 0; attempt < c.linkRetryMax; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.linkRetryWait):
			}
		}
		_, _, err := httpsession.Do(ctx, c.http, httpsession.Request{
			Method:  http.MethodPost,
			URL:     endpoint,
			Body:    []byte(targetURL),
			Headers: c.headers(map[string]string{"Content-Type": "text/uri-list"}),
		})
		if err == nil {
			return nil
		}
		lastErr = err
		c.log.Warn("link creation failed, retrying",
			zap.String("endpoint", endpoint),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
	}
	return fmt.Errorf("failed to create link %s -> %s after %d attempts: %w",
		endpoint, targetURL, c.linkRetryMax, lastErr)
}

// FindByUUID fetches an entity of the given type by its UUID
func (c *Client) FindByUUID(ctx context.Context, entityType, uuid string) (*Resource, error) {
	base, err := c.RootLink(ctx, entityType)
	if err != nil {
		return nil, err
	}
	endpoint := joinURL(base, "search/findByUuid") + "?uuid=" + url.QueryEscape(uuid)
	return c.Get(ctx, endpoint)
}

// Related walks a paginated relation of a resource, returning every
// embedded entry of the given type.
func (c *Client) Related(ctx context.Context, from *Resource, rel, embeddedKey string) ([]*Resource, error) {
	href, ok := from.Link(rel)
	if !ok {
		return nil, nil
	}
	var out []*Resource
	for href != "" {
		page, err := c.Get(ctx, href)
		if err != nil {
			return nil, err
		}
		out = append(out, page.Embedded(embeddedKey)...)
		next, ok := page.Link("next")
		if !ok {
			break
		}
		href = next
	}
	return out, nil
}

// PatchEnvelope applies a patch to a submission envelope with ETag-based
// optimistic concurrency, retrying on 412.
func (c *Client) PatchEnvelope(ctx context.Context, envelopeURL string, patch any) (*Resource, error) {
	const maxAttempts = 5
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		_, etag, err := c.getWithEtag(ctx, envelopeURL)
		if err != nil {
			return nil, err
		}
		updated, err := c.Patch(ctx, envelopeURL, patch, etag)
		if err == nil {
			return updated, nil
		}
		if !httpsession.IsStatus(err, http.StatusPreconditionFailed) {
			return nil, err
		}
		lastErr = err
		c.log.Debug("envelope etag moved, retrying patch",
			zap.String("envelope", envelopeURL),
			zap.Int("attempt", attempt+1))
	}
	return nil, fmt.Errorf("failed to patch envelope %s: %w", envelopeURL, lastErr)
}

// LatestSchemaURLs discovers the latest submittable schemas
func (c *Client) LatestSchemaURLs(ctx context.Context) ([]string, error) {
	base, err := c.RootLink(ctx, "schemas")
	if err != nil {
		return nil, err
	}
	page, err := c.Get(ctx, joinURL(base, "search/latestSchemas"))
	if err != nil {
		return nil, err
	}
	var urls []string
	for _, item := range page.Embedded("schemas") {
		if href, ok := item.Raw().GetString("schemaResourceUri"); ok {
			urls = append(urls, href)
			continue
		}
		if href, ok := item.Link("json-schema"); ok {
			urls = append(urls, href)
		}
	}
	return urls, nil
}

// Fetch exposes the session as a schema.Fetcher-compatible loader
func (c *Client) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	data, _, err := httpsession.Do(ctx, c.http, httpsession.Request{
		Method:  http.MethodGet,
		URL:     rawURL,
		Headers: c.headers(nil),
	})
	return data, err
}

func marshalBody(body any) ([]byte, error) {
	switch b := body.(type) {
	case []byte:
		return b, nil
	case *jsondoc.Node:
		return b.MarshalJSON()
	default:
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		return data, nil
	}
}

func joinURL(base, suffix string) string {
	if len(base) > 0 && base[len(base)-1] == '/' {
		return base + suffix
	}
	return base + "/" + suffix
}
