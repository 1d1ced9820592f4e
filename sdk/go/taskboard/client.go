package taskboard

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"time"
)

// DefaultHTTPTimeout defines the timeout used by clients created without a
// custom http.Client.
const DefaultHTTPTimeout = 15 * time.Second

// Client wraps the HTTP interactions with the taskboard REST API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
}

// Task is a task as returned by the API.
type Task struct {
	ID          int64   `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	DueDate     *string `json:"due_date"`
	Completed   bool    `json:"is_completed"`
}

// NewTask is the payload required to create a task.
type NewTask struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	DueDate     string `json:"due_date,omitempty"`
}

// TaskUpdate carries a partial update. Nil fields are not sent; set
// ClearDueDate to remove an existing due date.
type TaskUpdate struct {
	Title        *string
	Description  *string
	DueDate      *string
	ClearDueDate bool
	Completed    *bool
}

// MarshalJSON emits only the fields that are set.
func (u TaskUpdate) MarshalJSON() ([]byte, error) {
	fields := make(map[string]any, 4)
	if u.Title != nil {
		fields["title"] = *u.Title
	}
	if u.Description != nil {
		fields["description"] = *u.Description
	}
	switch {
	case u.ClearDueDate:
		fields["due_date"] = nil
	case u.DueDate != nil:
		fields["due_date"] = *u.DueDate
	}
	if u.Completed != nil {
		fields["is_completed"] = *u.Completed
	}
	return json.Marshal(fields)
}

// Created is the response of CreateTask.
type Created struct {
	ID      int64  `json:"id"`
	Message string `json:"message"`
}

type message struct {
	Message string `json:"message"`
}

// APIError represents an error response from the server.
type APIError struct {
	StatusCode int
	Message    string `json:"error"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("taskboard api error (%d): %s", e.StatusCode, e.Message)
}

// NotFound reports whether the server answered 404.
func (e *APIError) NotFound() bool {
	return e != nil && e.StatusCode == http.StatusNotFound
}

// NewClient instantiates a client for the taskboard API. When httpClient is
// nil, a default client with DefaultHTTPTimeout is used.
func NewClient(rawURL string, httpClient *http.Client) (*Client, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}, nil
}

// ListTasks returns every task, pending first and soonest due first.
func (c *Client) ListTasks(ctx context.Context) ([]Task, error) {
	var tasks []Task
	if err := c.send(ctx, http.MethodGet, "/tasks", nil, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// GetTask fetches a task by id.
func (c *Client) GetTask(ctx context.Context, id int64) (Task, error) {
	var task Task
	if err := c.send(ctx, http.MethodGet, taskPath(id), nil, &task); err != nil {
		return Task{}, err
	}
	return task, nil
}

// CreateTask creates a task and returns its id.
func (c *Client) CreateTask(ctx context.Context, task NewTask) (Created, error) {
	var created Created
	if err := c.send(ctx, http.MethodPost, "/tasks", task, &created); err != nil {
		return Created{}, err
	}
	return created, nil
}

// UpdateTask applies a partial update.
func (c *Client) UpdateTask(ctx context.Context, id int64, update TaskUpdate) error {
	return c.send(ctx, http.MethodPut, taskPath(id), update, &message{})
}

// DeleteTask removes a task.
func (c *Client) DeleteTask(ctx context.Context, id int64) error {
	return c.send(ctx, http.MethodDelete, taskPath(id), nil, &message{})
}

func taskPath(id int64) string {
	return "/tasks/" + strconv.FormatInt(id, 10)
}

func (c *Client) send(ctx context.Context, method, endpoint string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	rel := &url.URL{Path: path.Join(c.baseURL.Path, endpoint)}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.ResolveReference(rel).String(), body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read error response: %w", err)
		}
		if len(data) > 0 {
			_ = json.Unmarshal(data, apiErr)
		}
		if apiErr.Message == "" {
			apiErr.Message = string(bytes.TrimSpace(data))
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
