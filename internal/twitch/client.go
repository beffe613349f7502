// Package twitch is the source platform collaborator: an app access token
// cache and a small Helix API client for channel search, user lookup and
// archived video listing.
package twitch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/warpdl/vodkeep/internal/model"
	"github.com/warpdl/vodkeep/pkg/logger"
)

// DefaultBaseURL is the Helix API root.
const DefaultBaseURL = "https://api.twitch.tv/helix"

const (
	searchLimit = 10
	maxPageSize = 100
)

var (
	// ErrUnauthorized is returned when a request is still rejected after
	// one retry with a fresh token.
	ErrUnauthorized = errors.New("twitch api: unauthorized")
	// ErrRequestFailed wraps transport errors and non-success responses.
	ErrRequestFailed = errors.New("twitch api request failed")
	// ErrItemNotFound is returned when a video id does not exist.
	ErrItemNotFound = errors.New("video not found")
	// ErrOwnerNotFound is returned when a user id does not exist.
	ErrOwnerNotFound = errors.New("channel not found")

	errStatusNotFound = errors.New("404")
)

// Options configures a Client.
type Options struct {
	Tokens     *TokenCache
	HTTPClient *http.Client
	// BaseURL defaults to DefaultBaseURL.
	BaseURL string
	Logger  logger.Logger
}

// Client calls the Helix API.
type Client struct {
	tokens  *TokenCache
	client  *http.Client
	baseURL string
	log     logger.Logger
}

// NewClient creates a Client.
func NewClient(opts Options) *Client {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	return &Client{
		tokens:  opts.Tokens,
		client:  opts.HTTPClient,
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		log:     logger.OrNop(opts.Logger),
	}
}

// Tokens returns the token cache used by the client.
func (c *Client) Tokens() *TokenCache {
	return c.tokens
}

// do performs a GET and decodes the JSON body into out. A 401 invalidates
// the cached token and the request is retried exactly once.
func (c *Client) do(ctx context.Context, endpoint string, params url.Values, out any) error {
	for attempt := 0; ; attempt++ {
		status, err := c.get(ctx, endpoint, params, out)
		if err != nil {
			return err
		}
		if status != http.StatusUnauthorized {
			return nil
		}
		c.tokens.Invalidate()
		if attempt > 0 {
			return fmt.Errorf("%w: %s", ErrUnauthorized, endpoint)
		}
		c.log.Info("twitch: token rejected for %s, refreshing", endpoint)
	}
}

func (c *Client) get(ctx context.Context, endpoint string, params url.Values, out any) (int, error) {
	token, clientID, err := c.tokens.get(ctx)
	if err != nil {
		return 0, err
	}
	u := c.baseURL + endpoint
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Client-Id", clientID)

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	case resp.StatusCode == http.StatusNotFound:
		return resp.StatusCode, fmt.Errorf("%w: %w: %s", ErrRequestFailed, errStatusNotFound, endpoint)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return resp.StatusCode, fmt.Errorf("%w: %s %s", ErrRequestFailed, endpoint, apiMessage(resp))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("%w: decode %s: %v", ErrRequestFailed, endpoint, err)
	}
	return resp.StatusCode, nil
}

// apiMessage extracts the "message" field of an error body, falling back to
// the HTTP status.
func apiMessage(resp *http.Response) string {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return bodyMessage(resp, body)
}

func bodyMessage(resp *http.Response, body []byte) string {
	var e struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &e) == nil && e.Message != "" {
		return fmt.Sprintf("%d: %s", resp.StatusCode, e.Message)
	}
	return resp.Status
}

type channel struct {
	ID               string `json:"id"`
	BroadcasterLogin string `json:"broadcaster_login"`
	DisplayName      string `json:"display_name"`
	ThumbnailURL     string `json:"thumbnail_url"`
	IsLive           bool   `json:"is_live"`
}

type user struct {
	ID              string `json:"id"`
	Login           string `json:"login"`
	DisplayName     string `json:"display_name"`
	ProfileImageURL string `json:"profile_image_url"`
}

type video struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	UserLogin    string    `json:"user_login"`
	UserName     string    `json:"user_name"`
	Title        string    `json:"title"`
	URL          string    `json:"url"`
	CreatedAt    time.Time `json:"created_at"`
	Duration     string    `json:"duration"`
	ThumbnailURL string    `json:"thumbnail_url"`
	ViewCount    int64     `json:"view_count"`
}

func (v video) item() *model.Item {
	return &model.Item{
		ID:           v.ID,
		OwnerID:      v.UserID,
		OwnerName:    v.UserName,
		Title:        v.Title,
		URL:          v.URL,
		CreatedAt:    v.CreatedAt,
		Duration:     v.Duration,
		ThumbnailURL: v.ThumbnailURL,
		ViewCount:    v.ViewCount,
	}
}

// SearchChannels finds channels matching query. Queries shorter than two
// characters return no results without calling the API.
func (c *Client) SearchChannels(ctx context.Context, query string) ([]model.Owner, error) {
	query = strings.TrimSpace(query)
	if len([]rune(query)) < 2 {
		return []model.Owner{}, nil
	}
	var resp struct {
		Data []channel `json:"data"`
	}
	params := url.Values{
		"query":     {query},
		"first":     {strconv.Itoa(searchLimit)},
		"live_only": {"false"},
	}
	if err := c.do(ctx, "/search/channels", params, &resp); err != nil {
		return nil, err
	}
	owners := make([]model.Owner, 0, len(resp.Data))
	for _, ch := range resp.Data {
		owners = append(owners, model.Owner{
			ID:              ch.ID,
			Login:           ch.BroadcasterLogin,
			DisplayName:     ch.DisplayName,
			ProfileImageURL: ch.ThumbnailURL,
			IsLive:          ch.IsLive,
		})
	}
	return owners, nil
}

// GetUser looks up a channel by user id.
func (c *Client) GetUser(ctx context.Context, id string) (*model.Owner, error) {
	var resp struct {
		Data []user `json:"data"`
	}
	if err := c.do(ctx, "/users", url.Values{"id": {id}}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrOwnerNotFound, id)
	}
	u := resp.Data[0]
	return &model.Owner{ID: u.ID, Login: u.Login, DisplayName: u.DisplayName, ProfileImageURL: u.ProfileImageURL}, nil
}

// ListRecentItems returns up to limit archived broadcasts of the owner, most
// recent first.
func (c *Client) ListRecentItems(ctx context.Context, ownerID string, limit int) ([]*model.Item, error) {
	if limit < 1 {
		limit = 1
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	var resp struct {
		Data []video `json:"data"`
	}
	params := url.Values{
		"user_id": {ownerID},
		"first":   {strconv.Itoa(limit)},
		"type":    {"archive"},
	}
	if err := c.do(ctx, "/videos", params, &resp); err != nil {
		return nil, err
	}
	items := make([]*model.Item, 0, len(resp.Data))
	for _, v := range resp.Data {
		items = append(items, v.item())
	}
	return items, nil
}

// GetItem looks up a single video.
func (c *Client) GetItem(ctx context.Context, id string) (*model.Item, error) {
	var resp struct {
		Data []video `json:"data"`
	}
	err := c.do(ctx, "/videos", url.Values{"id": {id}}, &resp)
	if errors.Is(err, errStatusNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrItemNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrItemNotFound, id)
	}
	return resp.Data[0].item(), nil
}
