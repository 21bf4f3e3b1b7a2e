package scrape

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// DislikeVotes is the subset of the votes payload the pipeline uses.
type DislikeVotes struct {
	Likes    int64   `json:"likes"`
	Dislikes int64   `json:"dislikes"`
	Rating   float64 `json:"rating"`
}

// DislikeClient fetches dislike estimates from a Return YouTube Dislike
// style endpoint. Failures are soft: callers keep the scraped likes and a
// zero dislike count.
type DislikeClient struct {
	BaseURL string
	HTTP    *http.Client
}

// NewDislikeClient builds a client with a pooled transport sized for the
// scraper's modest concurrency.
func NewDislikeClient(baseURL string) *DislikeClient {
	transport := &http.Transport{
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 5,
		IdleConnTimeout:     30 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}
	return &DislikeClient{
		BaseURL: baseURL,
		HTTP:    &http.Client{Transport: transport, Timeout: 10 * time.Second},
	}
}

// Votes fetches vote counts for a video id. A 429 is retried with
// exponential backoff; any other failure returns an error the caller is
// expected to swallow.
func (c *DislikeClient) Votes(ctx context.Context, videoID string) (*DislikeVotes, error) {
	if c == nil || c.BaseURL == "" {
		return nil, fmt.Errorf("dislike client not configured")
	}
	// Small jitter so bursts of lookups do not land in lockstep.
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(time.Duration(100+rand.Intn(200)) * time.Millisecond):
	}

	endpoint := c.BaseURL + "/votes?videoId=" + url.QueryEscape(videoID)
	op := func() (*DislikeVotes, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		resp, err := c.HTTP.Do(req)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		defer resp.Body.Close()
		if resp.StatusCode == http.StatusTooManyRequests {
			io.Copy(io.Discard, resp.Body)
			return nil, fmt.Errorf("dislike api throttled (429)")
		}
		if resp.StatusCode != http.StatusOK {
			io.Copy(io.Discard, resp.Body)
			return nil, backoff.Permanent(fmt.Errorf("dislike api status %d", resp.StatusCode))
		}
		var votes DislikeVotes
		if err := json.NewDecoder(resp.Body).Decode(&votes); err != nil {
			return nil, backoff.Permanent(fmt.Errorf("decode votes: %w", err))
		}
		return &votes, nil
	}

	return backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(4),
		backoff.WithMaxElapsedTime(30*time.Second))
}
