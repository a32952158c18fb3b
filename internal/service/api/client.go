package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/quickpic/client/internal/identity"
	"github.com/quickpic/client/internal/model"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
)

const (
	secretKeyAccessToken  = "access_token"
	secretKeyRefreshToken = "refresh_token"
)

// Client talks to the QuickPic relay over its JSON REST API. It implements
// the sync engine's Transport plus the account and friend endpoints.
// Bearer tokens live in the secret store, never on disk.
type Client struct {
	baseURL string
	http    *http.Client
	secrets identity.SecretStore
}

func New(baseURL string, secrets identity.SecretStore) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
		secrets: secrets,
	}
}

// Register creates an account, publishing the identity's public keys, and
// stores the returned token pair.
func (c *Client) Register(ctx context.Context, username, password string, keys identity.PeerKeys) (*model.User, error) {
	body := map[string]string{
		"username":    username,
		"password":    password,
		"public_key":  base64.StdEncoding.EncodeToString(keys.DHPublic[:]),
		"signing_key": base64.StdEncoding.EncodeToString(keys.SigningPublic),
	}
	var auth model.AuthResponse
	if err := c.do(ctx, http.MethodPost, "/auth/register", body, &auth, false); err != nil {
		return nil, err
	}
	if err := c.storeTokens(&auth); err != nil {
		return nil, err
	}
	return &auth.User, nil
}

func (c *Client) Login(ctx context.Context, username, password string) (*model.User, error) {
	body := map[string]string{"username": username, "password": password}
	var auth model.AuthResponse
	if err := c.do(ctx, http.MethodPost, "/auth/login", body, &auth, false); err != nil {
		return nil, err
	}
	if err := c.storeTokens(&auth); err != nil {
		return nil, err
	}
	return &auth.User, nil
}

// Logout invalidates the refresh token server-side and forgets both tokens.
func (c *Client) Logout(ctx context.Context) error {
	if refresh, err := c.secrets.Get(secretKeyRefreshToken); err == nil {
		body := map[string]string{"refresh_token": string(refresh)}
		_ = c.do(ctx, http.MethodPost, "/auth/logout", body, nil, false)
	}
	if err := c.secrets.Delete(secretKeyAccessToken); err != nil {
		return err
	}
	return c.secrets.Delete(secretKeyRefreshToken)
}

func (c *Client) Friends(ctx context.Context) ([]model.Peer, error) {
	var friends []model.Peer
	if err := c.do(ctx, http.MethodGet, "/friends", nil, &friends, true); err != nil {
		return nil, err
	}
	return friends, nil
}

func (c *Client) SendFriendRequest(ctx context.Context, username string) error {
	body := map[string]string{"username": username}
	return c.do(ctx, http.MethodPost, "/friends/request", body, nil, true)
}

func (c *Client) PendingFriendRequests(ctx context.Context) ([]model.FriendRequest, error) {
	var requests []model.FriendRequest
	if err := c.do(ctx, http.MethodGet, "/friends/requests", nil, &requests, true); err != nil {
		return nil, err
	}
	return requests, nil
}

func (c *Client) AcceptFriendRequest(ctx context.Context, requestID uuid.UUID) error {
	body := map[string]string{"request_id": requestID.String()}
	return c.do(ctx, http.MethodPost, "/friends/accept", body, nil, true)
}

// Send delivers one envelope. The server assigns the message id.
func (c *Client) Send(ctx context.Context, toUsername string, env, sig []byte, contentType model.ContentType) (*model.SendMessageResponse, error) {
	req := model.SendMessageRequest{
		ToUsername:       toUsername,
		EncryptedContent: env,
		ContentType:      contentType,
		Signature:        base64.StdEncoding.EncodeToString(sig),
	}
	var resp model.SendMessageResponse
	if err := c.do(ctx, http.MethodPost, "/messages", req, &resp, true); err != nil {
		return nil, err
	}
	return &resp, nil
}

// FetchInbound returns every message the server still holds for us.
func (c *Client) FetchInbound(ctx context.Context) ([]model.RemoteMessage, error) {
	var messages []model.RemoteMessage
	if err := c.do(ctx, http.MethodGet, "/messages", nil, &messages, true); err != nil {
		return nil, err
	}
	return messages, nil
}

// AcknowledgeDeleted tells the server the message has been viewed and its
// ciphertext can be destroyed. Idempotent by message id.
func (c *Client) AcknowledgeDeleted(ctx context.Context, id uuid.UUID) error {
	return c.do(ctx, http.MethodPost, "/messages/"+id.String()+"/ack", struct{}{}, nil, true)
}

func (c *Client) storeTokens(auth *model.AuthResponse) error {
	if err := c.secrets.Put(secretKeyAccessToken, []byte(auth.AccessToken)); err != nil {
		return err
	}
	return c.secrets.Put(secretKeyRefreshToken, []byte(auth.RefreshToken))
}

func (c *Client) do(ctx context.Context, method, path string, body, out any, authed bool) error {
	resp, err := c.execute(ctx, method, path, body, authed)
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusUnauthorized && authed {
		resp.Body.Close()
		if err := c.refreshTokens(ctx); err != nil {
			return ErrUnauthorized
		}
		resp, err = c.execute(ctx, method, path, body, authed)
		if err != nil {
			return err
		}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if out == nil {
			return nil
		}
		return json.NewDecoder(resp.Body).Decode(out)
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrUnauthorized
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	default:
		var apiErr struct {
			Error string `json:"error"`
		}
		raw, _ := io.ReadAll(resp.Body)
		_ = json.Unmarshal(raw, &apiErr)
		if apiErr.Error != "" {
			return fmt.Errorf("%s %s: %d: %s", method, path, resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}
}

func (c *Client) execute(ctx context.Context, method, path string, body any, authed bool) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed {
		token, err := c.secrets.Get(secretKeyAccessToken)
		if err != nil {
			return nil, ErrUnauthorized
		}
		req.Header.Set("Authorization", "Bearer "+string(token))
	}
	return c.http.Do(req)
}

func (c *Client) refreshTokens(ctx context.Context) error {
	refresh, err := c.secrets.Get(secretKeyRefreshToken)
	if err != nil {
		return ErrUnauthorized
	}
	body := map[string]string{"refresh_token": string(refresh)}
	var auth model.AuthResponse
	if err := c.do(ctx, http.MethodPost, "/auth/refresh", body, &auth, false); err != nil {
		return err
	}
	return c.storeTokens(&auth)
}
