// Package stobix is a typed client for the Stobix loyalty API.
package stobix

import (
	"context"
	"net/http"
	"net/url"

	"github.com/bardlex/stobixd/internal/httpclient"
	"github.com/bardlex/stobixd/pkg/errors"
)

// Endpoints locates the services the client talks to
type Endpoints struct {
	BaseURL       string
	InviteBaseURL string
	IPLookupURL   string
	ChainID       int
}

// DefaultEndpoints returns the production endpoints
func DefaultEndpoints() Endpoints {
	return Endpoints{
		BaseURL:       "https://api.stobix.com",
		InviteBaseURL: "https://stobix.com/invite",
		IPLookupURL:   "https://api.ipify.org?format=json",
		ChainID:       8453,
	}
}

// Client calls the Stobix API through a retrying transport
type Client struct {
	http      httpclient.Doer
	endpoints Endpoints
}

// New creates a client on top of doer
func New(doer httpclient.Doer, endpoints Endpoints) *Client {
	return &Client{http: doer, endpoints: endpoints}
}

// ChainID is the chain id sent when verifying signatures
func (c *Client) ChainID() int {
	return c.endpoints.ChainID
}

// Nonce requests a sign-in challenge for address
func (c *Client) Nonce(ctx context.Context, address string) (*NonceResponse, error) {
	return call[NonceResponse](ctx, c, http.MethodPost, "/v1/auth/nonce", "",
		map[string]string{"address": address})
}

// Verify exchanges a signed challenge for a bearer token
func (c *Client) Verify(ctx context.Context, nonce, signature string) (*VerifyResponse, error) {
	return call[VerifyResponse](ctx, c, http.MethodPost, "/v1/auth/web3/verify", "",
		map[string]any{"nonce": nonce, "signature": signature, "chain": c.endpoints.ChainID})
}

// Loyalty returns the task list and the user's mining state
func (c *Client) Loyalty(ctx context.Context, token string) (*Loyalty, error) {
	return call[Loyalty](ctx, c, http.MethodGet, "/v1/loyalty", token, nil)
}

// ClaimTask claims one task by id
func (c *Client) ClaimTask(ctx context.Context, token, taskID string) (*ClaimResponse, error) {
	return call[ClaimResponse](ctx, c, http.MethodPost, "/v1/loyalty/tasks/claim", token,
		map[string]string{"taskId": taskID})
}

// Mine starts a mining period
func (c *Client) Mine(ctx context.Context, token string) (*MineResponse, error) {
	return call[MineResponse](ctx, c, http.MethodPost, "/v1/loyalty/points/mine", token,
		map[string]any{})
}

// PublicIP returns the egress IP seen by the lookup service
func (c *Client) PublicIP(ctx context.Context) (string, error) {
	resp, err := c.http.Execute(ctx, httpclient.Request{Method: http.MethodGet, URL: c.endpoints.IPLookupURL})
	if err != nil {
		return "", err
	}
	out, err := httpclient.DecodeJSON[struct {
		IP string `json:"ip"`
	}](resp)
	if err != nil {
		return "", err
	}
	if out.IP == "" {
		return "", errors.New(errors.ErrorTypeValidation, "public_ip", "lookup returned no ip")
	}
	return out.IP, nil
}

// VisitInvite loads the referral landing page for code
func (c *Client) VisitInvite(ctx context.Context, code string) error {
	if code == "" {
		return errors.New(errors.ErrorTypeValidation, "visit_invite", "referral code is empty")
	}
	_, err := c.http.Execute(ctx, httpclient.Request{
		Method: http.MethodGet,
		URL:    c.endpoints.InviteBaseURL + "/" + url.PathEscape(code),
	})
	return err
}

func call[T any](ctx context.Context, c *Client, method, path, token string, body any) (*T, error) {
	resp, err := c.http.Execute(ctx, httpclient.Request{
		Method: method,
		URL:    c.endpoints.BaseURL + path,
		Body:   body,
		Token:  token,
	})
	if err != nil {
		return nil, err
	}

	out, err := httpclient.DecodeJSON[T](resp)
	if err != nil {
		return nil, err
	}
	return &out, nil
}
