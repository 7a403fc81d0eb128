package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// ListResponse is the envelope of the notification history endpoint.
type ListResponse struct {
	Notifications []Notification `json:"notifications"`
	HasMore       bool           `json:"hasMore"`
	UnreadCount   int64          `json:"unreadCount"`
}

// api wraps the REST side of the service: history queries and read/delete
// mutations. The push channel never carries mutations.
type api struct {
	baseURL string
	token   string
	http    *http.Client
}

func newAPI(baseURL, token string, httpClient *http.Client) *api {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &api{baseURL: baseURL, token: token, http: httpClient}
}

func (a *api) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+a.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s %s: %s", method, path, apiErr.Error)
		}
		return fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// ListUnread fetches the newest unread notifications, used for backfill on
// every transition into Live.
func (a *api) ListUnread(ctx context.Context, limit int) (*ListResponse, error) {
	query := url.Values{}
	query.Set("read", "false")
	query.Set("page", "1")
	query.Set("limit", fmt.Sprintf("%d", limit))

	var out ListResponse
	if err := a.do(ctx, http.MethodGet, "/api/notifications?"+query.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UnreadCount fetches the authoritative counter.
func (a *api) UnreadCount(ctx context.Context) (int64, error) {
	query := url.Values{}
	query.Set("page", "1")
	query.Set("limit", "1")

	var out ListResponse
	if err := a.do(ctx, http.MethodGet, "/api/notifications?"+query.Encode(), nil, &out); err != nil {
		return 0, err
	}
	return out.UnreadCount, nil
}

func (a *api) MarkRead(ctx context.Context, id uint) error {
	return a.do(ctx, http.MethodPatch, fmt.Sprintf("/api/notifications/%d/read", id), nil, nil)
}

func (a *api) MarkAllRead(ctx context.Context) (int64, error) {
	var out struct {
		Updated int64 `json:"updated"`
	}
	if err := a.do(ctx, http.MethodPatch, "/api/notifications/read-all", nil, &out); err != nil {
		return 0, err
	}
	return out.Updated, nil
}

func (a *api) Delete(ctx context.Context, id uint) error {
	return a.do(ctx, http.MethodDelete, fmt.Sprintf("/api/notifications/%d", id), nil, nil)
}

func (a *api) DeleteMany(ctx context.Context, ids []uint) error {
	body := map[string][]uint{"ids": ids}
	return a.do(ctx, http.MethodDelete, "/api/notifications", body, nil)
}
