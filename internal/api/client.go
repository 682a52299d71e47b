// Package api is the REST client for the chat backend: auth, conversation
// summaries, message history, sends and uploads. This is the authoritative
// persistence path; the channel in internal/socket is notification only.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	"partychat/internal/model"
)

type Client struct {
	base  string
	http  *http.Client
	token string
}

func NewClient(baseURL string) *Client {
	return &Client{
		base: baseURL,
		http: &http.Client{Timeout: 15 * time.Second},
	}
}

// SetToken installs the bearer token used on authenticated calls.
func (c *Client) SetToken(token string) { c.token = token }

type AuthResponse struct {
	AccessToken string `json:"access_token"`
	ID          string `json:"id"`
	Username    string `json:"username"`
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Register creates an account. Already-existing accounts are the caller's
// problem; the dev flow registers then logs in and ignores the conflict.
func (c *Client) Register(ctx context.Context, username, password string) error {
	return c.doJSON(ctx, http.MethodPost, "/register", credentials{Username: username, Password: password}, nil)
}

// Login exchanges credentials for a token and remembers it on the client.
func (c *Client) Login(ctx context.Context, username, password string) (AuthResponse, error) {
	var res AuthResponse
	if err := c.doJSON(ctx, http.MethodPost, "/login", credentials{Username: username, Password: password}, &res); err != nil {
		return AuthResponse{}, err
	}
	c.token = res.AccessToken
	return res, nil
}

// ListConversations fetches the summaries for the current identity.
func (c *Client) ListConversations(ctx context.Context) ([]model.Conversation, error) {
	var out []model.Conversation
	if err := c.doJSON(ctx, http.MethodGet, "/api/conversations", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

type startConversationRequest struct {
	PartnerID string `json:"partner_id"`
}

// StartConversation finds or creates the private conversation with partnerID.
func (c *Client) StartConversation(ctx context.Context, partnerID string) (model.Conversation, error) {
	var out model.Conversation
	err := c.doJSON(ctx, http.MethodPost, "/api/conversations", startConversationRequest{PartnerID: partnerID}, &out)
	return out, err
}

// Messages fetches the ordered history page for one conversation.
func (c *Client) Messages(ctx context.Context, convID string) ([]model.Message, error) {
	var out []model.Message
	path := "/api/messages?conversation_id=" + url.QueryEscape(convID)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

type sendRequest struct {
	ConversationID string          `json:"conversation_id"`
	Content        string          `json:"content"`
	File           *model.FileMeta `json:"file,omitempty"`
}

// Send persists a message and returns the server-confirmed copy with its
// stable id and server timestamp.
func (c *Client) Send(ctx context.Context, convID, content string, file *model.FileMeta) (model.Message, error) {
	var out model.Message
	err := c.doJSON(ctx, http.MethodPost, "/api/messages", sendRequest{
		ConversationID: convID,
		Content:        content,
		File:           file,
	}, &out)
	return out, err
}

// Upload stores an attachment and returns its metadata for the send call.
func (c *Client) Upload(ctx context.Context, name string, r io.Reader) (model.FileMeta, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return model.FileMeta{}, err
	}
	if _, err := io.Copy(part, r); err != nil {
		return model.FileMeta{}, err
	}
	if err := mw.Close(); err != nil {
		return model.FileMeta{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/api/upload", &body)
	if err != nil {
		return model.FileMeta{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return model.FileMeta{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return model.FileMeta{}, statusError(resp)
	}
	var meta model.FileMeta
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return model.FileMeta{}, err
	}
	return meta, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func statusError(resp *http.Response) error {
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("api: %s %s: status %d: %s", resp.Request.Method, resp.Request.URL.Path, resp.StatusCode, bytes.TrimSpace(msg))
}
