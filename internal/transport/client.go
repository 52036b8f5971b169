package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Client talks to the backend-as-a-service over HTTPS. It is stateless per
// call and safe for concurrent use. It never retries and never interprets
// the payloads it carries.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func New(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
}

// Invoke calls the named edge function with body encoded as JSON and
// decodes the JSON result into out. out may be nil, *json.RawMessage or
// *[]byte to receive the raw body.
func (c *Client) Invoke(ctx context.Context, name string, body, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", name, err)
	}

	target := "/functions/v1/" + url.PathEscape(name)
	respBody, err := c.do(ctx, http.MethodPost, target, bytes.NewReader(raw), map[string]string{
		"Content-Type": "application/json",
	})
	if err != nil {
		return err
	}
	return decodeInto(name, respBody, out)
}

// Upload stores r in bucket at path.
func (c *Client) Upload(ctx context.Context, bucket, path string, r io.Reader, contentType string) error {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	target := "/storage/v1/object/" + url.PathEscape(bucket) + "/" + escapePath(path)
	_, err := c.do(ctx, http.MethodPost, target, r, map[string]string{
		"Content-Type": contentType,
		"x-upsert":     "false",
	})
	return err
}

// PublicURL returns the public address of an object. It performs no request.
func (c *Client) PublicURL(bucket, path string) string {
	return c.baseURL + "/storage/v1/object/public/" + url.PathEscape(bucket) + "/" + escapePath(path)
}

// Insert adds one row to table.
func (c *Client) Insert(ctx context.Context, table string, row any) error {
	raw, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("marshal %s row: %w", table, err)
	}
	_, err = c.do(ctx, http.MethodPost, "/rest/v1/"+url.PathEscape(table), bytes.NewReader(raw), map[string]string{
		"Content-Type": "application/json",
		"Prefer":       "return=minimal",
	})
	return err
}

// Select reads rows from table filtered by query and decodes the JSON
// array into out.
func (c *Client) Select(ctx context.Context, table string, query url.Values, out any) error {
	target := "/rest/v1/" + url.PathEscape(table)
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	respBody, err := c.do(ctx, http.MethodGet, target, nil, map[string]string{
		"Accept": "application/json",
	})
	if err != nil {
		return err
	}
	return decodeInto(table, respBody, out)
}

// fileLength sizes a file body so uploads are not sent chunked. It returns
// 0, meaning unknown, for anything else.
func fileLength(body io.Reader) int64 {
	f, ok := body.(interface {
		io.Seeker
		Stat() (os.FileInfo, error)
	})
	if !ok {
		return 0
	}
	info, err := f.Stat()
	if err != nil || !info.Mode().IsRegular() {
		return 0
	}
	offset, err := f.Seek(0, io.SeekCurrent)
	if err != nil || offset > info.Size() {
		return 0
	}
	return info.Size() - offset
}

func (c *Client) do(ctx context.Context, method, target string, body io.Reader, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+target, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if req.ContentLength == 0 {
		req.ContentLength = fileLength(body)
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("X-Request-ID", uuid.NewString())
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &Error{Target: target, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Target: target, StatusCode: resp.StatusCode, Status: resp.Status, Err: fmt.Errorf("read response: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &Error{
			Target:     target,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(respBody),
		}
	}
	return respBody, nil
}

func decodeInto(what string, body []byte, out any) error {
	switch dst := out.(type) {
	case nil:
		return nil
	case *json.RawMessage:
		*dst = append((*dst)[:0], body...)
		return nil
	case *[]byte:
		*dst = append((*dst)[:0], body...)
		return nil
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s response: %w", what, err)
	}
	return nil
}

func escapePath(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
