// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package dbfs

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// ApiClient is the authenticated JSON request/response layer over RateGate,
// covering the full DBFS verb set behind a single bearer token.
type ApiClient struct {
	httpc *http.Client
	host  string
	token string
	gate  *RateGate

	maxRetries          int
	errorDelay          time.Duration
	errorDelayIncrement time.Duration

	rateLimitHeader string
	log             *logrus.Entry
}

// ClientConfig bundles the tunables a Session passes to NewApiClient.
type ClientConfig struct {
	Host                string
	Token               string
	MaxRetries          int
	ErrorDelay          time.Duration
	ErrorDelayIncrement time.Duration
	RateLimitHeader     string // default "X-RateLimit-Exceeded"
	Log                 *logrus.Entry
}

// NewApiClient builds an HTTP client with a tuned transport, sharing gate
// across every request.
func NewApiClient(cfg ClientConfig, gate *RateGate) *ApiClient {
	tr := &http.Transport{
		MaxIdleConns:          64,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	header := cfg.RateLimitHeader
	if header == "" {
		header = "X-RateLimit-Exceeded"
	}
	log := cfg.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &ApiClient{
		httpc:               &http.Client{Transport: tr},
		host:                strings.TrimSuffix(cfg.Host, "/"),
		token:                cfg.Token,
		gate:                gate,
		maxRetries:          cfg.MaxRetries,
		errorDelay:          cfg.ErrorDelay,
		errorDelayIncrement: cfg.ErrorDelayIncrement,
		rateLimitHeader:     header,
		log:                 log,
	}
}

type statusResult struct {
	Path     string `json:"path"`
	IsDir    bool   `json:"is_dir"`
	FileSize int64  `json:"file_size"`
	MTimeMS  int64  `json:"modification_time"`
}

func (s statusResult) toFileInfo() FileInfo {
	return NewRemoteFileInfo(s.IsDir, s.FileSize, s.MTimeMS, s.Path)
}

type listResult struct {
	Files []statusResult `json:"files"`
}

type apiErrorBody struct {
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
}

type createResult struct {
	Handle int64 `json:"handle"`
}

type readResult struct {
	BytesRead int64  `json:"bytes_read"`
	Data      string `json:"data"`
}

// GetStatus fetches metadata for path.
func (c *ApiClient) GetStatus(ctx context.Context, path string) (FileInfo, error) {
	var sr statusResult
	err := c.call(ctx, http.MethodGet, "get-status", map[string]any{"path": path}, &sr)
	if err != nil {
		return FileInfo{}, err
	}
	return sr.toFileInfo(), nil
}

// List lists the (possibly empty) contents of a directory.
func (c *ApiClient) List(ctx context.Context, path string) ([]FileInfo, error) {
	var lr listResult
	if err := c.call(ctx, http.MethodGet, "list", map[string]any{"path": path}, &lr); err != nil {
		return nil, err
	}
	out := make([]FileInfo, 0, len(lr.Files))
	for _, f := range lr.Files {
		out = append(out, f.toFileInfo())
	}
	return out, nil
}

// Mkdirs creates path and any missing parents.
func (c *ApiClient) Mkdirs(ctx context.Context, path string) error {
	return c.call(ctx, http.MethodPost, "mkdirs", map[string]any{"path": path}, nil)
}

// Delete removes path, recursively if requested.
func (c *ApiClient) Delete(ctx context.Context, path string, recursive bool) error {
	return c.call(ctx, http.MethodPost, "delete", map[string]any{"path": path, "recursive": recursive}, nil)
}

// Move renames src to dst.
func (c *ApiClient) Move(ctx context.Context, src, dst string) error {
	return c.call(ctx, http.MethodPost, "move", map[string]any{"source_path": src, "destination_path": dst}, nil)
}

// Create opens a streaming write handle.
func (c *ApiClient) Create(ctx context.Context, path string, overwrite bool) (int64, error) {
	var cr createResult
	if err := c.call(ctx, http.MethodPost, "create", map[string]any{"path": path, "overwrite": overwrite}, &cr); err != nil {
		return 0, err
	}
	return cr.Handle, nil
}

// AddBlock appends a block of bytes to a streaming write handle.
func (c *ApiClient) AddBlock(ctx context.Context, handle int64, block []byte) error {
	return c.call(ctx, http.MethodPost, "add-block", map[string]any{
		"handle": handle,
		"data":   base64.StdEncoding.EncodeToString(block),
	}, nil)
}

// CloseHandle finalizes a streaming write.
func (c *ApiClient) CloseHandle(ctx context.Context, handle int64) error {
	return c.call(ctx, http.MethodPost, "close", map[string]any{"handle": handle}, nil)
}

// Put writes an entire small file in one request.
func (c *ApiClient) Put(ctx context.Context, path string, contents []byte, overwrite bool) error {
	return c.call(ctx, http.MethodPost, "put", map[string]any{
		"path":      path,
		"contents":  base64.StdEncoding.EncodeToString(contents),
		"overwrite": overwrite,
	}, nil)
}

// Read fetches a byte range; the backend may return fewer bytes than
// requested.
func (c *ApiClient) Read(ctx context.Context, path string, offset, length int64) ([]byte, error) {
	var rr readResult
	err := c.call(ctx, http.MethodGet, "read", map[string]any{
		"path":   path,
		"offset": offset,
		"length": length,
	}, &rr)
	if err != nil {
		return nil, err
	}
	data, err := base64.StdEncoding.DecodeString(rr.Data)
	if err != nil {
		return nil, &ProtocolError{Reason: "invalid base64 in read response: " + err.Error()}
	}
	if int64(len(data)) != rr.BytesRead {
		return nil, &ProtocolError{Reason: "bytes_read does not match decoded length"}
	}
	return data, nil
}

// call implements the retry policy: RateLimited is retried forever without
// incrementing retries; Transient errors are retried up to maxRetries with
// linear backoff; anything else fails immediately.
func (c *ApiClient) call(ctx context.Context, method, op string, params map[string]any, out any) error {
	var retries int
	for {
		release, err := c.doOnce(ctx, method, op, params, out)
		if err == nil {
			return nil
		}

		if _, ok := err.(*RateLimitedError); ok {
			c.log.WithField("op", op).Debug("rate limited, retrying")
			continue // gate already absorbed the cooldown; does not count.
		}

		if te, ok := err.(*TransientError); ok {
			if retries >= c.maxRetries {
				if release != nil {
					release()
				}
				c.log.WithField("op", op).WithError(err).Warn("transient error, retries exhausted")
				return err
			}
			delay := c.errorDelay + c.errorDelayIncrement*time.Duration(retries)
			c.log.WithField("op", op).WithField("attempt", retries+1).WithError(te).Debug("transient error, retrying")
			// The slot from doOnce, if still held, stays held across this sleep
			// so a run of I/O errors backs off the peer instead of piling up
			// concurrent retries.
			sleepErr := sleepCtx(ctx, delay)
			if release != nil {
				release()
			}
			if sleepErr != nil {
				return sleepErr
			}
			retries++
			continue
		}

		return err
	}
}

// doOnce makes one request attempt. It releases the gate slot itself for
// every outcome except a transient Do() failure, where the returned release
// func is left uncalled so call() can hold it across the retry backoff.
func (c *ApiClient) doOnce(ctx context.Context, method, op string, params map[string]any, out any) (func(), error) {
	release, err := c.gate.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	url := c.host + "/api/2.0/dbfs/" + op
	var body io.Reader
	if method == http.MethodGet {
		url += "?" + encodeQuery(params)
	} else {
		b, merr := json.Marshal(params)
		if merr != nil {
			release()
			return nil, &ProtocolError{Reason: merr.Error()}
		}
		body = bytes.NewReader(b)
	}

	req, rerr := http.NewRequestWithContext(ctx, method, url, body)
	if rerr != nil {
		release()
		return nil, &ProtocolError{Reason: rerr.Error()}
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if method != http.MethodGet {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, derr := c.httpc.Do(req)
	if derr != nil {
		return release, &TransientError{Op: op, Err: derr}
	}
	defer resp.Body.Close()

	if resp.Header.Get(c.rateLimitHeader) != "" {
		c.gate.ReportRateLimited()
		release()
		return nil, &RateLimitedError{}
	}
	release()

	raw, rerr2 := io.ReadAll(resp.Body)
	if rerr2 != nil {
		return nil, &TransientError{Op: op, Err: rerr2}
	}

	ct := resp.Header.Get("Content-Type")
	if resp.StatusCode == http.StatusOK {
		if !strings.HasPrefix(ct, "application/json") && len(raw) > 0 {
			return nil, &ProtocolError{Reason: fmt.Sprintf("unexpected content-type %q on 200 response", ct)}
		}
		if out != nil && len(raw) > 0 {
			if err := json.Unmarshal(raw, out); err != nil {
				return nil, &ProtocolError{Reason: "malformed JSON response: " + err.Error()}
			}
		}
		return nil, nil
	}

	var eb apiErrorBody
	if err := json.Unmarshal(raw, &eb); err != nil || eb.ErrorCode == "" {
		return nil, &ProtocolError{Reason: fmt.Sprintf("non-2xx response (%d) without error body", resp.StatusCode)}
	}
	return nil, &ApiError{Code: eb.ErrorCode, Message: eb.Message, StatusCode: resp.StatusCode}
}

func encodeQuery(params map[string]any) string {
	var sb strings.Builder
	first := true
	for k, v := range params {
		if !first {
			sb.WriteByte('&')
		}
		first = false
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(queryEscape(fmt.Sprint(v)))
	}
	return sb.String()
}

func queryEscape(s string) string {
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z', ch >= '0' && ch <= '9', ch == '-', ch == '_', ch == '.', ch == '~':
			sb.WriteByte(ch)
		default:
			sb.WriteString(fmt.Sprintf("%%%02X", ch))
		}
	}
	return sb.String()
}
