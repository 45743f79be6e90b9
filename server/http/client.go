package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"

	"github.com/tunnelcore/tunnelcore/server/http/util"
	"github.com/tunnelcore/tunnelcore/server/peer"
	"github.com/tunnelcore/tunnelcore/shared/status"
)

// DefaultRetryWindow is used when NewClient gets a non positive retry window
const DefaultRetryWindow = 15 * time.Second

// Client talks to the management endpoint of a running server
type Client struct {
	baseURL    string
	httpClient *http.Client
	maxElapsed time.Duration

	mu            sync.Mutex
	serverVersion string
}

// NewClient creates a client for addr, either host:port or a full URL.
// Transport failures and 5xx answers are retried until maxElapsed passed.
func NewClient(addr string, maxElapsed time.Duration) *Client {
	if maxElapsed <= 0 {
		maxElapsed = DefaultRetryWindow
	}
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	return &Client{
		baseURL:    strings.TrimRight(addr, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		maxElapsed: maxElapsed,
	}
}

// Peers lists all peers
func (c *Client) Peers(ctx context.Context) ([]PeerResponse, error) {
	var peers []PeerResponse
	err := c.do(ctx, http.MethodGet, "/peers", nil, &peers)
	return peers, err
}

// Peer fetches one peer
func (c *Client) Peer(ctx context.Context, publicKey string) (PeerResponse, error) {
	var p PeerResponse
	err := c.do(ctx, http.MethodGet, "/peers/"+url.PathEscape(publicKey), nil, &p)
	return p, err
}

// Stats fetches the aggregate counters
func (c *Client) Stats(ctx context.Context) (peer.Stats, error) {
	var stats peer.Stats
	err := c.do(ctx, http.MethodGet, "/stats", nil, &stats)
	return stats, err
}

// SetPeerStatus changes the status of a peer. An unknown key yields a status.NotFound error.
func (c *Client) SetPeerStatus(ctx context.Context, publicKey string, s peer.ConnStatus) (PeerResponse, error) {
	body, err := json.Marshal(StatusRequest{Status: strings.ToLower(s.String())})
	if err != nil {
		return PeerResponse{}, err
	}

	var p PeerResponse
	err = c.do(ctx, http.MethodPut, "/peers/"+url.PathEscape(publicKey)+"/status", body, &p)
	return p, err
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(status.Wrap(status.InvalidArgument, err, "invalid request"))
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			log.Debugf("management request %s %s failed: %v", method, path, err)
			return status.Wrap(status.Network, err, "request to management endpoint failed")
		}
		defer resp.Body.Close()
		c.setServerVersion(resp.Header.Get(VersionHeader))

		if resp.StatusCode != http.StatusOK {
			err := responseError(resp)
			if resp.StatusCode >= http.StatusInternalServerError {
				return err
			}
			return backoff.Permanent(err)
		}

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return backoff.Permanent(status.Wrap(status.Internal, err, "failed to decode response"))
		}
		return nil
	}

	return backoff.Retry(operation, c.backoff(ctx))
}

// ServerVersion returns the version reported by the last response, empty before the first one
func (c *Client) ServerVersion() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.serverVersion
}

func (c *Client) setServerVersion(v string) {
	if v == "" {
		return
	}
	c.mu.Lock()
	c.serverVersion = v
	c.mu.Unlock()
}

func (c *Client) backoff(ctx context.Context) backoff.BackOff {
	return backoff.WithContext(&backoff.ExponentialBackOff{
		InitialInterval:     200 * time.Millisecond,
		RandomizationFactor: 0.5,
		Multiplier:          1.7,
		MaxInterval:         2 * time.Second,
		MaxElapsedTime:      c.maxElapsed,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}, ctx)
}

func responseError(resp *http.Response) error {
	bs, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	msg := strings.TrimSpace(string(bs))
	var errResp util.ErrorResponse
	if json.Unmarshal(bs, &errResp) == nil && errResp.Message != "" {
		msg = errResp.Message
	}

	switch resp.StatusCode {
	case http.StatusNotFound:
		return status.Errorf(status.NotFound, "%s", msg)
	case http.StatusBadRequest:
		return status.Errorf(status.InvalidArgument, "%s", msg)
	default:
		return status.Errorf(status.Internal, "management endpoint returned %s: %s", resp.Status, msg)
	}
}

