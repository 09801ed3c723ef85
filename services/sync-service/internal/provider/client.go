package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/stoik/mailsync/internal/models"
	synmodels "github.com/stoik/mailsync/services/sync-service/internal/models"
)

// Config configures the HTTP API client
type Config struct {
	BaseURL string
	Timeout time.Duration

	// Rate-limited folder pages are retried up to MaxRetries times
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

func DefaultConfig() Config {
	return Config{
		BaseURL:      "http://localhost:8080",
		Timeout:      60 * time.Second,
		MaxRetries:   3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     30 * time.Second,
	}
}

const folderPageSize = 50

// APIClient talks to the provider's grant-scoped REST API
type APIClient struct {
	cfg    Config
	client *http.Client
	logger *slog.Logger

	grant string
	token string
}

// NewAPIClient creates a new provider API client
func NewAPIClient(cfg Config, logger *slog.Logger) *APIClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultConfig().BaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}

	return &APIClient{
		cfg:    cfg,
		logger: logger,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// SetActiveAccount implements GrantAPI
func (c *APIClient) SetActiveAccount(origin *synmodels.Origin) error {
	if origin.AccountID == "" {
		return fmt.Errorf("origin %s has no account id", origin.ID)
	}
	c.grant = origin.AccountID
	c.token = origin.AccessToken
	c.logger = c.logger.With("grant", origin.AccountID)
	return nil
}

// ListFolders implements FolderAPI
func (c *APIClient) ListFolders(ctx context.Context) ([]models.RemoteFolder, error) {
	var (
		folders []models.RemoteFolder
		cursor  string
	)

	for {
		query := url.Values{}
		query.Set("single_level", "true")
		query.Set("limit", strconv.Itoa(folderPageSize))
		if cursor != "" {
			query.Set("page_token", cursor)
		}

		var resp models.Response[[]models.RemoteFolder]
		err := c.retryRateLimited(ctx, func() error {
			return c.do(ctx, http.MethodGet, "list folders", "folders", query, nil, &resp)
		})
		if err != nil {
			return nil, err
		}

		folders = append(folders, resp.Data...)
		if resp.NextCursor == "" {
			return folders, nil
		}
		cursor = resp.NextCursor
	}
}

// ListMessages implements MessageAPI
func (c *APIClient) ListMessages(ctx context.Context, q MessageQuery) (MessagePage, error) {
	query := url.Values{}
	query.Set("fields", "include_headers")
	if q.FolderID != "" {
		query.Set("in", q.FolderID)
	}
	if !q.ReceivedAfter.IsZero() {
		query.Set("received_after", strconv.FormatInt(q.ReceivedAfter.Unix(), 10))
	}
	if !q.ReceivedBefore.IsZero() {
		query.Set("received_before", strconv.FormatInt(q.ReceivedBefore.Unix(), 10))
	}
	if q.Limit > 0 {
		query.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Offset > 0 {
		query.Set("offset", strconv.Itoa(q.Offset))
	}
	if q.Subject != "" {
		query.Set("subject", q.Subject)
	}
	if q.From != "" {
		query.Set("from", q.From)
	}
	if q.To != "" {
		query.Set("to", q.To)
	}

	var resp models.Response[[]models.RemoteMessage]
	if err := c.do(ctx, http.MethodGet, "list messages", "messages", query, nil, &resp); err != nil {
		return MessagePage{}, err
	}

	return MessagePage{
		Messages: resp.Data,
		HasMore:  resp.NextCursor != "",
	}, nil
}

// GetMessageByID implements MessageAPI
func (c *APIClient) GetMessageByID(ctx context.Context, uid string) (*models.RemoteMessage, error) {
	query := url.Values{}
	query.Set("fields", "include_headers")

	var resp models.Response[models.RemoteMessage]
	if err := c.do(ctx, http.MethodGet, "get message", "messages/"+url.PathEscape(uid), query, nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

// UpdateReadStatus implements MessageAPI
func (c *APIClient) UpdateReadStatus(ctx context.Context, uid string, read bool) error {
	body := models.ReadStatusUpdate{Unread: !read}
	var resp models.Response[models.RemoteMessage]
	return c.do(ctx, http.MethodPut, "update message", "messages/"+url.PathEscape(uid), nil, body, &resp)
}

func (c *APIClient) do(ctx context.Context, method, op, path string, query url.Values, body, out any) error {
	if c.grant == "" {
		return &Error{Kind: KindUnknown, Op: op, Err: ErrNoActiveAccount}
	}

	u := fmt.Sprintf("%s/v3/grants/%s/%s", c.cfg.BaseURL, url.PathEscape(c.grant), path)
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return &Error{Kind: KindNetwork, Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return responseError(op, resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{Kind: KindServerError, Op: op, Status: resp.StatusCode, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	return nil
}

func responseError(op string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var payload models.ErrorResponse
	msg := string(raw)
	if err := json.Unmarshal(raw, &payload); err == nil && payload.Error.Message != "" {
		msg = payload.Error.Message
	}

	e := &Error{
		Kind:   kindForResponse(resp.StatusCode, payload.Error.Type),
		Op:     op,
		Status: resp.StatusCode,
		Err:    errors.New(msg),
	}
	if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
		e.RetryAfter = time.Duration(secs) * time.Second
	}
	return e
}

func kindForResponse(status int, errType string) Kind {
	switch errType {
	case models.ErrorTypeInvalidFormat:
		return KindInvalidFormat
	case models.ErrorTypeUnselectableFolder:
		return KindUnselectableFolder
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuthInvalid
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status >= 500:
		return KindServerError
	default:
		return KindUnknown
	}
}

// retryRateLimited retries fn with exponential backoff while it fails with
// KindRateLimited, honoring Retry-After when the server sends one.
func (c *APIClient) retryRateLimited(ctx context.Context, fn func() error) error {
	delay := c.cfg.InitialDelay
	if delay <= 0 {
		delay = DefaultConfig().InitialDelay
	}
	maxDelay := c.cfg.MaxDelay
	if maxDelay < delay {
		maxDelay = delay
	}

	for attempt := 0; ; attempt++ {
		err := fn()

		var perr *Error
		if err == nil || !errors.As(err, &perr) || perr.Kind != KindRateLimited || attempt >= c.cfg.MaxRetries {
			return err
		}

		wait := delay
		if perr.RetryAfter > 0 {
			wait = perr.RetryAfter
		}
		if wait > maxDelay {
			wait = maxDelay
		}
		c.logger.Warn("rate limited, retrying", "op", perr.Op, "attempt", attempt+1, "wait", wait)

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay *= 2
	}
}
