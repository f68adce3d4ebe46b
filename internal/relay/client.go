package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"relaysync/internal/config"
	"relaysync/internal/logger"
	"relaysync/internal/matcher"
	"relaysync/internal/model"
)

const headerRequestID = "X-Request-Id"

// Relayer delivers one remote action. Implementations never fail the caller;
// the outcome is reported in the result.
type Relayer interface {
	Relay(ctx context.Context, action model.RemoteAction) model.SyncResult
}

type Client struct {
	base     *url.URL
	username string
	password string
	http     *http.Client
	policy   RetryPolicy
	matcher  *matcher.Matcher
}

func NewClient(cfg config.ClientConfig, m *matcher.Matcher) (*Client, error) {
	base, err := url.Parse(cfg.RemoteHost)
	if err != nil {
		return nil, fmt.Errorf("invalid remote host: %w", err)
	}

	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("remote host must be an http(s) URL: %q", cfg.RemoteHost)
	}

	return &Client{
		base:     base,
		username: cfg.Username,
		password: cfg.Password,
		http:     &http.Client{Timeout: cfg.Timeout},
		policy:   PolicyFromConfig(cfg),
		matcher:  m,
	}, nil
}

// WithPolicy replaces the retry policy.
func (c *Client) WithPolicy(p RetryPolicy) *Client {
	c.policy = p
	return c
}

func (c *Client) Relay(ctx context.Context, action model.RemoteAction) model.SyncResult {
	result := model.SyncResult{
		Action:    action,
		RequestID: uuid.NewString(),
	}

	if c.matcher != nil && c.matcher.ShouldSkipForEvent(action.Kind, action.RelPath) {
		logger.Log.Info("ignore file",
			zap.String("path", action.LocalPath),
			zap.String("action", string(action.Kind)))

		result.Skipped = true
		result.SyncedAt = time.Now()
		return result
	}

	op := func() error {
		result.Attempts++
		outcome, err := c.send(ctx, action, result.RequestID)
		result.Outcome = outcome
		return err
	}

	notify := func(err error, wait time.Duration) {
		logger.Log.Warn("relay attempt failed",
			zap.String("path", action.LocalPath),
			zap.String("action", string(action.Kind)),
			zap.Int("attempt", result.Attempts),
			zap.Duration("retry_in", wait),
			zap.Error(err))
	}

	err := backoff.RetryNotify(op, backoff.WithContext(c.policy.NewBackOff(), ctx), notify)
	result.Err = err
	result.SyncedAt = time.Now()

	if err != nil {
		logger.Log.Error("relay dropped",
			zap.String("path", action.LocalPath),
			zap.String("action", string(action.Kind)),
			zap.String("request_id", result.RequestID),
			zap.Int("attempts", result.Attempts),
			zap.Error(err))
	} else {
		logger.Log.Info("relayed",
			zap.String("path", action.LocalPath),
			zap.String("action", string(action.Kind)),
			zap.String("remote", action.Target()),
			zap.Int("attempts", result.Attempts))
	}

	return result
}

func (c *Client) send(ctx context.Context, action model.RemoteAction, requestID string) (model.SyncOutcome, error) {
	var (
		body        io.Reader
		length      int64
		contentType string
	)

	if action.HasBody() {
		f, err := os.Open(action.LocalPath)
		if err != nil {
			return model.SyncOutcome{}, fmt.Errorf("failed to open src: %w", err)
		}

		defer func(f *os.File) {
			_ = f.Close()
		}(f)

		body, length, contentType, err = multipartBody(f, action.FileName)
		if err != nil {
			return model.SyncOutcome{}, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, action.URL(c.base).String(), body)
	if err != nil {
		return model.SyncOutcome{}, backoff.Permanent(fmt.Errorf("failed to build request: %w", err))
	}

	req.ContentLength = length
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set(headerRequestID, requestID)
	req.SetBasicAuth(c.username, c.password)

	resp, err := c.http.Do(req)
	if err != nil {
		return model.SyncOutcome{}, fmt.Errorf("request failed: %w", err)
	}

	defer func(Body io.ReadCloser) {
		_, _ = io.Copy(io.Discard, Body)
		_ = Body.Close()
	}(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return model.SyncOutcome{}, fmt.Errorf("unexpected status: %s", resp.Status)
	}

	var outcome model.SyncOutcome
	decodeErr := json.NewDecoder(resp.Body).Decode(&outcome)

	// A delete is done once the receiver answered at all.
	if action.Kind == model.EventDeleted {
		if decodeErr != nil {
			outcome = model.OK()
		}
		return outcome, nil
	}

	if decodeErr != nil {
		return model.SyncOutcome{}, fmt.Errorf("failed to decode response: %w", decodeErr)
	}

	switch {
	case outcome.OK():
		return outcome, nil
	case outcome.IsTerminal():
		return outcome, backoff.Permanent(&RejectedError{Outcome: outcome})
	default:
		return outcome, fmt.Errorf("receiver failed: %s", outcome.Msg)
	}
}

// RejectedError is a failure the receiver marked as not worth retrying.
type RejectedError struct {
	Outcome model.SyncOutcome
}

func (e *RejectedError) Error() string {
	if e.Outcome.Code != "" {
		return fmt.Sprintf("receiver rejected action (%s): %s", e.Outcome.Code, e.Outcome.Msg)
	}

	return fmt.Sprintf("receiver rejected action: %s", e.Outcome.Msg)
}

func IsRejected(err error) bool {
	var rejected *RejectedError
	return errors.As(err, &rejected)
}

// multipartBody frames f as the single "file" part of a form upload with an
// exact Content-Length. Growth after the stat is cut off; shrinkage surfaces as
// a transport error and is retried.
func multipartBody(f *os.File, name string) (io.Reader, int64, string, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, 0, "", fmt.Errorf("failed to stat src: %w", err)
	}

	var head bytes.Buffer
	mw := multipart.NewWriter(&head)
	if _, err := mw.CreateFormFile("file", name); err != nil {
		return nil, 0, "", fmt.Errorf("failed to write part header: %w", err)
	}

	tail := fmt.Sprintf("\r\n--%s--\r\n", mw.Boundary())
	length := int64(head.Len()) + info.Size() + int64(len(tail))

	body := io.MultiReader(&head, io.LimitReader(f, info.Size()), strings.NewReader(tail))
	return body, length, mw.FormDataContentType(), nil
}
