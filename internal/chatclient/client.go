// Package chatclient is the HTTP client for the chat backend's application
// settings and upload endpoints. It satisfies policy.Provider, so a composer
// session can fetch its upload policy straight from the backend.
package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/altchat/composer/internal/common"
	"github.com/altchat/composer/internal/logging"
	"github.com/altchat/composer/internal/policy"
)

const defaultTimeout = 30 * time.Second

// Client talks to one chat backend on behalf of one authenticated user.
type Client struct {
	baseURL string
	apiKey  string
	token   string
	http    *http.Client
	log     logging.Logger
}

// Option tweaks client construction.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithLogger replaces the default logger.
func WithLogger(log logging.Logger) Option {
	return func(c *Client) { c.log = log }
}

func New(baseURL, apiKey, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		token:   token,
		http:    &http.Client{Timeout: defaultTimeout},
		log:     logging.NewSlogLogger(slog.Default()),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With("component", "chatclient")
	return c
}

// appSettingsResponse wraps the policy the way the settings endpoint nests it.
type appSettingsResponse struct {
	App policy.UploadPolicy `json:"app"`
}

// UploadPolicy fetches the backend's upload policy. Implements
// policy.Provider.
func (c *Client) UploadPolicy(ctx context.Context) (*policy.UploadPolicy, error) {
	var resp appSettingsResponse
	if err := c.doJSON(ctx, http.MethodGet, "/app/settings", nil, &resp); err != nil {
		return nil, fmt.Errorf("fetching app settings: %w", err)
	}
	return &resp.App, nil
}

// CreateUploadRequest registers an upcoming upload with the backend.
type CreateUploadRequest struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	Kind        string `json:"kind"`
}

// UploadTicket is the backend's answer to CreateUpload: where to PUT the
// payload and which URLs the asset will be served from once confirmed.
type UploadTicket struct {
	ID        string `json:"id"`
	UploadURL string `json:"upload_url"`
	FileURL   string `json:"file_url"`
	ThumbURL  string `json:"thumb_url,omitempty"`
}

// CreateUpload asks the backend for a presigned upload slot.
func (c *Client) CreateUpload(ctx context.Context, req CreateUploadRequest) (*UploadTicket, error) {
	var ticket UploadTicket
	if err := c.doJSON(ctx, http.MethodPost, "/uploads", req, &ticket); err != nil {
		return nil, fmt.Errorf("creating upload: %w", err)
	}
	return &ticket, nil
}

// UploadedAsset is the confirmed, publicly addressable asset.
type UploadedAsset struct {
	URL      string `json:"url"`
	ThumbURL string `json:"thumb_url,omitempty"`
}

// ConfirmUpload marks a presigned upload as completed and returns its final
// URLs.
func (c *Client) ConfirmUpload(ctx context.Context, id string) (*UploadedAsset, error) {
	var asset UploadedAsset
	path := "/uploads/" + url.PathEscape(id) + "/confirm"
	if err := c.doJSON(ctx, http.MethodPost, path, nil, &asset); err != nil {
		return nil, fmt.Errorf("confirming upload %s: %w", id, err)
	}
	return &asset, nil
}

// DeleteUpload removes a previously uploaded asset by its public URL.
func (c *Client) DeleteUpload(ctx context.Context, assetURL string) error {
	path := "/uploads?url=" + url.QueryEscape(assetURL)
	if err := c.doJSON(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("deleting upload: %w", err)
	}
	return nil
}

// doJSON performs one authenticated request with a JSON body and decodes a
// JSON response into out (nil out discards the body).
func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(common.AuthorizationHeaderName, c.token)
	req.Header.Set(common.APIKeyHeaderName, c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.mapError(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// mapError translates HTTP failure statuses into the shared sentinel errors
// callers match with errors.Is.
func (c *Client) mapError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	msg := string(bytes.TrimSpace(raw))

	var sentinel error
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		sentinel = common.ErrorUnauthorized
	case resp.StatusCode == http.StatusNotFound:
		sentinel = common.ErrorNotFound
	case resp.StatusCode == http.StatusServiceUnavailable:
		sentinel = common.ErrUnavailable
	default:
		sentinel = common.ErrorInternal
	}

	if msg == "" {
		return fmt.Errorf("%s %s: status %d: %w", resp.Request.Method, resp.Request.URL.Path, resp.StatusCode, sentinel)
	}
	return fmt.Errorf("%s %s: status %d: %s: %w", resp.Request.Method, resp.Request.URL.Path, resp.StatusCode, msg, sentinel)
}
