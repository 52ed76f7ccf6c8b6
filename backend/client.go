// ABOUTME: REST client for the pipeline backend
// ABOUTME: CRUD calls per entity kind with bearer auth and a single refresh-and-retry on 401

package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/pipedash/models"
	"github.com/rs/zerolog"
)

// Client talks to the REST backend. It never retries on its own except for
// the one token refresh after a 401.
type Client struct {
	baseURL    string
	tokens     TokenSource
	httpClient *http.Client
	log        zerolog.Logger
}

func NewClient(baseURL string, tokens TokenSource, httpClient *http.Client, log zerolog.Logger) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = "http://127.0.0.1:8080"
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if tokens == nil {
		tokens = StaticTokens("")
	}
	return &Client{
		baseURL:    baseURL,
		tokens:     tokens,
		httpClient: httpClient,
		log:        log.With().Str("component", "backend").Logger(),
	}
}

func collectionPath(kind models.Kind) string {
	return "/api/" + url.PathEscape(kind.Resource())
}

func recordPath(kind models.Kind, id uuid.UUID) string {
	return collectionPath(kind) + "/" + url.PathEscape(id.String())
}

// List fetches every record of kind.
func (c *Client) List(ctx context.Context, kind models.Kind) ([]json.RawMessage, error) {
	var out []json.RawMessage
	if err := c.doJSON(ctx, http.MethodGet, collectionPath(kind), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Get(ctx context.Context, kind models.Kind, id uuid.UUID) (json.RawMessage, error) {
	var out json.RawMessage
	if err := c.doJSON(ctx, http.MethodGet, recordPath(kind, id), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Create(ctx context.Context, kind models.Kind, payload any) (json.RawMessage, error) {
	var out json.RawMessage
	if err := c.doJSON(ctx, http.MethodPost, collectionPath(kind), payload, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Update sends a partial update. The response is the full authoritative record.
func (c *Client) Update(ctx context.Context, kind models.Kind, id uuid.UUID, payload any) (json.RawMessage, error) {
	var out json.RawMessage
	if err := c.doJSON(ctx, http.MethodPatch, recordPath(kind, id), payload, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Delete(ctx context.Context, kind models.Kind, id uuid.UUID) error {
	return c.doJSON(ctx, http.MethodDelete, recordPath(kind, id), nil, nil)
}

func (c *Client) doJSON(ctx context.Context, method, requestPath string, body any, out any) error {
	var bodyBytes []byte
	if body != nil {
		var err error
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return &Error{Kind: KindUnauthorized, Message: "no access token", Err: err}
	}

	refreshed := false
	for {
		status, payload, err := c.send(ctx, method, requestPath, bodyBytes, token)
		if err != nil {
			return &Error{Kind: KindNetworkUnavailable, Message: "request failed", Err: err}
		}

		if status >= 200 && status <= 299 {
			if out == nil || len(payload) == 0 {
				return nil
			}
			if err := json.Unmarshal(payload, out); err != nil {
				return fmt.Errorf("failed to decode response: %w", err)
			}
			return nil
		}

		if status == http.StatusUnauthorized && !refreshed {
			refreshed = true
			c.log.Debug().Str("path", requestPath).Msg("access token rejected, refreshing")
			token, err = c.tokens.Refresh(ctx)
			if err != nil {
				return &Error{Kind: KindUnauthorized, StatusCode: status, Message: "session expired", Err: err}
			}
			continue
		}

		return decodeError(status, payload)
	}
}

func (c *Client) send(ctx context.Context, method, requestPath string, bodyBytes []byte, token string) (int, []byte, error) {
	var bodyReader io.Reader
	if bodyBytes != nil {
		bodyReader = bytes.NewReader(bodyBytes)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+requestPath, bodyReader)
	if err != nil {
		return 0, nil, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Correlation-Id", uuid.NewString())
	if bodyBytes != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, payload, nil
}

// errorEnvelope is the backend's failure body.
type errorEnvelope struct {
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func decodeError(status int, payload []byte) error {
	var env errorEnvelope
	_ = json.Unmarshal(payload, &env)
	if env.Message == "" {
		env.Message = http.StatusText(status)
	}
	kind := kindForStatus(status)
	e := &Error{Kind: kind, StatusCode: status, Message: env.Message}
	if kind == KindValidationRejected {
		e.Fields = env.Fields
	}
	return e
}

// IsTimeout reports whether err came from a deadline rather than the server.
func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
