package repoclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/UltimateTournament/backoff/v4"
	"github.com/dataops/ingestd/gologger"
	"github.com/dataops/ingestd/utils"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var logger = gologger.NewLogger()

const applicationJSON = "application/json"

type (
	// Client talks to the remote dataset repository's REST API. All job
	// submissions are asynchronous; the returned ids feed the jobs package.
	Client struct {
		BaseURL string
		Token   string

		// MaxTries bounds the per-request retry loop, MaxBackoff the total
		// elapsed retry time.
		MaxTries   uint64
		MaxBackoff time.Duration

		httpClient *http.Client
	}

	requestOpts struct {
		method      string
		path        string
		query       url.Values
		body        []byte
		contentType string
		// acceptCodes are non-2xx statuses returned to the caller instead
		// of being treated as errors.
		acceptCodes []int
		// acceptAny returns every status to the caller, used when fetching
		// the result of a job that is expected to have failed.
		acceptAny bool
	}
)

func NewClient(baseURL, token string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Token:      token,
		MaxTries:   uint64(utils.GetEnvOrDefaultInt("REPO_MAX_RETRIES", 5)),
		MaxBackoff: time.Duration(utils.GetEnvOrDefaultInt("REPO_MAX_BACKOFF_SEC", 300)) * time.Second,
		httpClient: &http.Client{Timeout: time.Minute},
	}
}

// NewClientFromEnv builds a client from REPO_BASE_URL and REPO_AUTH_TOKEN.
func NewClientFromEnv() (*Client, error) {
	if utils.REPO_BASE_URL == "" {
		return nil, fmt.Errorf("REPO_BASE_URL is not set")
	}
	return NewClient(utils.REPO_BASE_URL, utils.REPO_AUTH_TOKEN), nil
}

// do runs one request with exponential backoff on transport errors and
// retryable statuses. Statuses >= 500 retry; other non-2xx statuses fail
// permanently unless listed in acceptCodes.
func (c *Client) do(ctx context.Context, opts requestOpts) ([]byte, int, error) {
	ctx = logger.WithContext(ctx)
	log := zerolog.Ctx(ctx)

	reqURL := c.BaseURL + opts.path
	if len(opts.query) > 0 {
		reqURL += "?" + opts.query.Encode()
	}
	reqID := uuid.NewString()

	var respBody []byte
	var status int

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = c.MaxBackoff
	err := backoff.Retry(func() error {
		var bodyReader io.Reader
		if opts.body != nil {
			bodyReader = bytes.NewReader(opts.body)
		}
		req, err := http.NewRequestWithContext(ctx, opts.method, reqURL, bodyReader)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("error in NewRequestWithContext: %w", err))
		}
		req.Header.Set("Authorization", "Bearer "+c.Token)
		req.Header.Set("Accept", applicationJSON)
		req.Header.Set("X-Request-Id", reqID)
		if opts.contentType != "" {
			req.Header.Set("Content-Type", opts.contentType)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			log.Warn().Err(err).Str("url", reqURL).Msg("transport error, will retry")
			return err
		}
		defer resp.Body.Close()

		respBody, err = io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("error reading response body: %w", err)
		}
		status = resp.StatusCode

		if status >= 200 && status < 300 {
			return nil
		}
		if opts.acceptAny {
			return nil
		}
		for _, code := range opts.acceptCodes {
			if status == code {
				return nil
			}
		}
		if status >= 500 {
			log.Warn().Int("status", status).Str("url", reqURL).Msg("retryable status")
			return fmt.Errorf("status %d from %s", status, reqURL)
		}
		return backoff.Permanent(fmt.Errorf("status %d from %s %s: %s", status, opts.method, reqURL, truncate(respBody)))
	}, backoff.WithContext(backoff.WithMaxRetries(bo, c.MaxTries), ctx))
	if err != nil {
		return nil, status, err
	}
	return respBody, status, nil
}

func truncate(b []byte) string {
	const max = 512
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
