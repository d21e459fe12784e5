// Package store talks to the collaborator's REST API. Every call is plain
// request/response JSON; the relay treats the results as opaque records.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/collabquest/relay/internal/core"
	"github.com/collabquest/relay/internal/domain"
)

type Client struct {
	base string
	http *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		base: baseURL,
		http: &http.Client{Timeout: timeout},
	}
}

func (c *Client) Group(ctx context.Context, id string) (*domain.Group, error) {
	var g domain.Group
	if err := c.getJSON(ctx, "/groups/"+url.PathEscape(id), &g); err != nil {
		return nil, err
	}
	return &g, nil
}

func (c *Client) User(ctx context.Context, id domain.UserID) (*domain.User, error) {
	var u domain.User
	if err := c.getJSON(ctx, "/users/"+url.PathEscape(string(id)), &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *Client) Contacts(ctx context.Context, id domain.UserID) ([]domain.UserID, error) {
	var contacts []domain.User
	if err := c.getJSON(ctx, "/users/"+url.PathEscape(string(id))+"/contacts", &contacts); err != nil {
		return nil, err
	}
	out := make([]domain.UserID, 0, len(contacts))
	for _, u := range contacts {
		out = append(out, u.ID)
	}
	return out, nil
}

func (c *Client) SaveMessage(ctx context.Context, msg *domain.Message) error {
	return c.postJSON(ctx, "/messages", msg)
}

func (c *Client) SaveNotification(ctx context.Context, n *domain.Notification) error {
	return c.postJSON(ctx, "/notifications", n)
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("store get %s: %w", path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return core.ErrNotFound
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("store get %s: unexpected status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) postJSON(ctx context.Context, path string, body any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("store post %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("store post %s: unexpected status %d", path, resp.StatusCode)
	}
	return nil
}
