// Package client keeps a local, normalized copy of the shared task list in
// sync with the server: optimistic mutations go through the Coordinator and
// remote changes arrive through the Listener.
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"

	"github.com/Resized/todo-list/domain"
)

// DefaultBaseURL is where a locally started server listens.
const DefaultBaseURL = "http://localhost:3000/api"

const headerClientID = "X-Client-ID"

// APIError is returned for every non-2xx answer.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("request failed with status %d", e.Status)
	}
	return fmt.Sprintf("%s (status %d)", e.Message, e.Status)
}

// Unwrap lets callers match the server's error classes with errors.Is.
func (e *APIError) Unwrap() error {
	switch {
	case e.Status == http.StatusNotFound:
		return domain.ErrNotFound
	case e.Status >= 400 && e.Status < 500:
		return domain.ErrInvalidInput
	case e.Status >= 500:
		return domain.ErrInternal
	}
	return nil
}

// API talks to the task endpoints. Once the event stream handshake has
// assigned a client id every mutation carries it so the server does not echo
// the change back.
type API struct {
	baseURL string
	http    *http.Client

	mu       sync.RWMutex
	clientID string
}

// NewAPI builds a client for baseURL. A nil hc uses a client without an
// overall timeout so event streams stay open.
func NewAPI(baseURL string, hc *http.Client) *API {
	if hc == nil {
		hc = &http.Client{}
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &API{baseURL: strings.TrimRight(baseURL, "/"), http: hc}
}

func (a *API) SetClientID(id string) {
	a.mu.Lock()
	a.clientID = id
	a.mu.Unlock()
}

func (a *API) ClientID() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.clientID
}

func (a *API) List(ctx context.Context) ([]domain.Task, error) {
	var tasks []domain.Task
	if err := a.do(ctx, http.MethodGet, "/tasks", nil, &tasks); err != nil {
		return nil, err
	}
	if tasks == nil {
		tasks = []domain.Task{}
	}
	return tasks, nil
}

func (a *API) Create(ctx context.Context, content string) (domain.Task, error) {
	var task domain.Task
	err := a.do(ctx, http.MethodPost, "/tasks", map[string]string{"content": content}, &task)
	return task, err
}

func (a *API) Update(ctx context.Context, id string, patch domain.TaskPatch) (domain.Task, error) {
	var task domain.Task
	err := a.do(ctx, http.MethodPatch, "/tasks/"+url.PathEscape(id), patch, &task)
	return task, err
}

func (a *API) Delete(ctx context.Context, id string) (domain.Task, error) {
	var task domain.Task
	err := a.do(ctx, http.MethodDelete, "/tasks/"+url.PathEscape(id), nil, &task)
	return task, err
}

// OpenStream opens the server-sent event stream. The caller owns the body.
func (a *API) OpenStream(ctx context.Context) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/tasks/events", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	resp, err := a.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, readAPIError(resp)
	}
	return resp.Body, nil
}

func (a *API) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := sonic.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if id := a.ClientID(); id != "" {
		req.Header.Set(headerClientID, id)
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return readAPIError(resp)
	}
	if out == nil {
		return nil
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	return sonic.Unmarshal(data, out)
}

func readAPIError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	var body struct {
		Message string `json:"message"`
	}
	if sonic.Unmarshal(data, &body) == nil && body.Message != "" {
		apiErr.Message = body.Message
	} else {
		apiErr.Message = strings.TrimSpace(string(data))
	}
	return apiErr
}
