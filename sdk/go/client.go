package baulotsdk

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
)

// Client is a minimal BauLot HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v1",
		Timeout:  10 * time.Second,
	}
}

// User represents the API user model.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

// Project represents the API project summary (partial).
type Project struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Address       string `json:"address"`
	Status        string `json:"status"`
	StartDate     string `json:"start_date"`
	TargetEndDate string `json:"target_end_date"`
}

// Task represents the API task model (partial).
type Task struct {
	ID            string  `json:"id"`
	TradeID       string  `json:"trade_id"`
	Title         string  `json:"title"`
	Status        string  `json:"status"`
	BlockedReason *string `json:"blocked_reason,omitempty"`
	DueDate       string  `json:"due_date,omitempty"`
}

// TradeProgress is one row of a progress summary.
type TradeProgress struct {
	TradeID    string `json:"trade_id"`
	TradeName  string `json:"trade_name"`
	Total      int    `json:"total"`
	Done       int    `json:"done"`
	InProgress int    `json:"in_progress"`
	Blocked    int    `json:"blocked"`
	Open       int    `json:"open"`
	Percentage int    `json:"percentage"`
}

// Progress is the completion summary of a project as seen by the caller.
type Progress struct {
	Trades          []TradeProgress `json:"trades"`
	TotalPercentage int             `json:"total_percentage"`
	BlockedCount    int             `json:"blocked_count"`
}

// Comment represents a task comment.
type Comment struct {
	ID         string `json:"id"`
	TaskID     string `json:"task_id"`
	AuthorID   string `json:"author_id"`
	AuthorRole string `json:"author_role"`
	Visibility string `json:"visibility"`
	Content    string `json:"content"`
	CreatedAt  string `json:"created_at"`
}

// Event represents an audit log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	ProjectID  string         `json:"project_id"`
	EntityID   string         `json:"entity_id"`
	EntityKind string         `json:"entity_kind"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// Login exchanges credentials for a token and stores it on the client.
func (c *Client) Login(ctx context.Context, email, password string) (User, error) {
	var resp struct {
		Token string `json:"token"`
		User  User   `json:"user"`
	}
	body := map[string]any{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "auth/login", body, &resp); err != nil {
		return User{}, err
	}
	c.BearerToken = resp.Token
	return resp.User, nil
}

// Me returns the authenticated user.
func (c *Client) Me(ctx context.Context) (User, error) {
	var resp User
	err := c.do(ctx, http.MethodGet, "me", nil, &resp)
	return resp, err
}

// Projects lists the projects visible to the caller.
func (c *Client) Projects(ctx context.Context) ([]Project, error) {
	var resp []Project
	err := c.do(ctx, http.MethodGet, "projects", nil, &resp)
	return resp, err
}

// Progress returns the project's progress over the caller's visible trades.
func (c *Client) Progress(ctx context.Context, projectID string) (Progress, error) {
	var resp Progress
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("projects/%s/progress", url.PathEscape(projectID)), nil, &resp)
	return resp, err
}

// SetTaskStatus changes a task's status. reason is sent only when non-empty
// and is kept by the server only for blocked tasks.
func (c *Client) SetTaskStatus(ctx context.Context, taskID, status, reason string) (Task, error) {
	body := map[string]any{"status": status}
	if reason != "" {
		body["blocked_reason"] = reason
	}
	var resp Task
	err := c.do(ctx, http.MethodPatch, fmt.Sprintf("tasks/%s", url.PathEscape(taskID)), body, &resp)
	return resp, err
}

// AddComment comments on a task.
func (c *Client) AddComment(ctx context.Context, taskID, content, visibility string) (Comment, error) {
	body := map[string]any{"content": content}
	if visibility != "" {
		body["visibility"] = visibility
	}
	var resp Comment
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("tasks/%s/comments", url.PathEscape(taskID)), body, &resp)
	return resp, err
}

// EventsPage returns a paginated audit log listing.
func (c *Client) EventsPage(ctx context.Context, projectID string, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := fmt.Sprintf("projects/%s/events", url.PathEscape(projectID))
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	base := strings.TrimRight(c.BaseURL, "/")
	if p := strings.Trim(c.BasePath, "/"); p != "" {
		base += "/" + p
	}
	return base
}
