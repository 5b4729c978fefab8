// Package api is the REST client for the chat backend. It covers the
// request/response half of the messaging layer: history, sends, smart
// replies, and the room/user CRUD surface.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/haasonsaas/courier/pkg/models"
)

// TokenSource supplies the current bearer credential. An empty string
// means unauthenticated; the request is then sent without credentials and
// the backend decides whether to reject it.
type TokenSource interface {
	Token() string
}

// Client talks to the chat backend over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout sets the per-request timeout on the default HTTP client.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// NewClient creates a backend client rooted at baseURL (e.g.
// "https://chat.example.com/api").
func NewClient(baseURL string, tokens TokenSource, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		tokens: tokens,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Login exchanges credentials for a bearer token and user record.
func (c *Client) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	var resp models.LoginResponse
	if err := c.do(ctx, http.MethodPost, "/auth/login", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Register creates a new account.
func (c *Client) Register(ctx context.Context, req models.RegisterRequest) (*models.RegisterResponse, error) {
	var resp models.RegisterResponse
	if err := c.do(ctx, http.MethodPost, "/auth/register", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Users lists all registered users.
func (c *Client) Users(ctx context.Context) ([]models.User, error) {
	var users []models.User
	if err := c.do(ctx, http.MethodGet, "/groups/users/all", nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// MemberRooms lists the rooms the current user belongs to.
func (c *Client) MemberRooms(ctx context.Context) ([]models.Room, error) {
	var rooms []models.Room
	if err := c.do(ctx, http.MethodGet, "/groups/all-member-groups", nil, &rooms); err != nil {
		return nil, err
	}
	return rooms, nil
}

// OtherRooms lists rooms the current user does not belong to.
func (c *Client) OtherRooms(ctx context.Context) ([]models.Room, error) {
	var rooms []models.Room
	if err := c.do(ctx, http.MethodGet, "/groups/not-member-groups", nil, &rooms); err != nil {
		return nil, err
	}
	return rooms, nil
}

// CreateRoomRequest creates a new room with the given members.
type CreateRoomRequest struct {
	Name      string   `json:"group_name"`
	MemberIDs []string `json:"member_ids"`
}

// CreateRoom creates a room owned by the current user.
func (c *Client) CreateRoom(ctx context.Context, req CreateRoomRequest) (*models.Room, error) {
	var room models.Room
	if err := c.do(ctx, http.MethodPost, "/groups/create", req, &room); err != nil {
		return nil, err
	}
	return &room, nil
}

// TransferOwnership makes newOwnerID the room's owner. The backend applies
// the change atomically: the old owner becomes a member and the new owner
// becomes the owner in the same update.
func (c *Client) TransferOwnership(ctx context.Context, roomID, newOwnerID string) (*models.Room, error) {
	var room models.Room
	path := fmt.Sprintf("/groups/%s/transfer-ownership", url.PathEscape(roomID))
	body := map[string]string{"new_owner_id": newOwnerID}
	if err := c.do(ctx, http.MethodPost, path, body, &room); err != nil {
		return nil, err
	}
	return &room, nil
}

// LeaveRoom removes the current user from the room. Owners cannot leave;
// the backend rejects the request.
func (c *Client) LeaveRoom(ctx context.Context, roomID string) error {
	path := fmt.Sprintf("/groups/%s/leave", url.PathEscape(roomID))
	return c.do(ctx, http.MethodPost, path, nil, nil)
}

// RoomMessages fetches the full ordered message history for a room. This
// is the only point where the backend is authoritative for the whole
// sequence; everything after is built incrementally.
func (c *Client) RoomMessages(ctx context.Context, roomID string) ([]models.Message, error) {
	var msgs []models.Message
	path := fmt.Sprintf("/messages/group/%s", url.PathEscape(roomID))
	if err := c.do(ctx, http.MethodGet, path, nil, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// SendText performs the authenticated write for a text message and returns
// the canonical created message.
func (c *Client) SendText(ctx context.Context, req models.SendMessageRequest) (*models.Message, error) {
	var msg models.Message
	if err := c.do(ctx, http.MethodPost, "/messages/text", req, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// SmartReplies fetches quick-reply suggestions for a room. The result is
// advisory; callers are expected to swallow failures.
func (c *Client) SmartReplies(ctx context.Context, roomID string) ([]string, error) {
	var resp models.SmartReplyResponse
	body := models.SmartReplyRequest{RoomID: roomID}
	if err := c.do(ctx, http.MethodPost, "/messages/smart-replies", body, &resp); err != nil {
		return nil, err
	}
	return resp.Suggestions, nil
}

// do performs one JSON round trip. A non-2xx status becomes a *StatusError.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("api: encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("api: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.tokens.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("api: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newStatusError(method, path, resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("api: decode %s %s response: %w", method, path, err)
	}
	return nil
}
