// Package client is a typed client for the course shop HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/irsalhamdi/course-shop/core/auth"
	"github.com/irsalhamdi/course-shop/core/checkout"
	"github.com/irsalhamdi/course-shop/core/course"
	"github.com/irsalhamdi/course-shop/core/order"
)

// APIError is a non 2xx answer from the server. Body holds every field of
// the error payload, msg included.
type APIError struct {
	Status int
	Msg    string
	Body   map[string]any
}

func (e *APIError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("server answered %d", e.Status)
	}
	return fmt.Sprintf("server answered %d: %s", e.Status, e.Msg)
}

type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) Register(ctx context.Context, reg auth.Registration) (string, error) {
	var tr auth.TokenResponse
	if err := c.do(ctx, http.MethodPost, "/auth/register", reg, &tr, nil); err != nil {
		return "", err
	}
	c.Token = tr.Token
	return tr.Token, nil
}

func (c *Client) Login(ctx context.Context, cred auth.Credentials) (string, error) {
	var tr auth.TokenResponse
	if err := c.do(ctx, http.MethodPost, "/auth/login", cred, &tr, nil); err != nil {
		return "", err
	}
	c.Token = tr.Token
	return tr.Token, nil
}

func (c *Client) Logout(ctx context.Context) error {
	if err := c.do(ctx, http.MethodPost, "/auth/logout", nil, nil, nil); err != nil {
		return err
	}
	c.Token = ""
	return nil
}

func (c *Client) Courses(ctx context.Context) ([]course.Course, error) {
	var cs []course.Course
	err := c.do(ctx, http.MethodGet, "/courses", nil, &cs, nil)
	return cs, err
}

func (c *Client) Course(ctx context.Context, id string) (course.Course, error) {
	var crs course.Course
	err := c.do(ctx, http.MethodGet, "/courses/"+id, nil, &crs, nil)
	return crs, err
}

func (c *Client) CreateCourse(ctx context.Context, cn course.CourseNew) (course.Course, error) {
	var crs course.Course
	err := c.do(ctx, http.MethodPost, "/courses", cn, &crs, nil)
	return crs, err
}

func (c *Client) UpdateCourse(ctx context.Context, id string, up course.CourseUp) (course.Course, error) {
	var crs course.Course
	err := c.do(ctx, http.MethodPut, "/courses/"+id, up, &crs, nil)
	return crs, err
}

func (c *Client) DeleteCourse(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/courses/"+id, nil, nil, nil)
}

// Checkout sends the key in the Idempotency-Key header so a retried call
// never charges twice.
func (c *Client) Checkout(ctx context.Context, cn checkout.CheckoutNew) (checkout.CheckoutResponse, error) {
	var resp checkout.CheckoutResponse

	h := make(http.Header)
	if cn.IdempotencyKey != "" {
		h.Set("Idempotency-Key", cn.IdempotencyKey)
	}
	err := c.do(ctx, http.MethodPost, "/checkout", cn, &resp, h)
	return resp, err
}

func (c *Client) Orders(ctx context.Context) ([]order.Order, error) {
	var ords []order.Order
	err := c.do(ctx, http.MethodGet, "/orders", nil, &ords, nil)
	return ords, err
}

func (c *Client) Order(ctx context.Context, id string) (order.Order, error) {
	var o order.Order
	err := c.do(ctx, http.MethodGet, "/orders/"+id, nil, &o, nil)
	return o, err
}

func (c *Client) do(ctx context.Context, method string, path string, in any, out any, h http.Header) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	for k, v := range h {
		req.Header[k] = v
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{Status: resp.StatusCode}
		if err := json.NewDecoder(resp.Body).Decode(&apiErr.Body); err == nil {
			apiErr.Msg, _ = apiErr.Body["msg"].(string)
		}
		return apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s %s response: %w", method, path, err)
	}
	return nil
}
