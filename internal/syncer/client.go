// Package syncer sends signed snapshots between nodes.  Pushes are
// fire-and-forget from the caller's point of view: a failure is returned
// for logging and optionally queued for redelivery, but never undoes the
// local change that triggered it.
package syncer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/iliyamo/vocabulary-sync/internal/trust"
)

// ErrRemoteNotFound is returned when the receiver does not know the user.
var ErrRemoteNotFound = errors.New("remote: user not found")

// StatusError is a non-2xx answer from another node.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("remote answered %d: %s", e.Code, e.Body)
}

// Client performs signed HTTP calls to other nodes.  There are no retries
// here; deferred redelivery lives in the dispatcher.
type Client struct {
	signer *trust.Signer
	nodeID string
	http   *http.Client
}

// NewClient returns a client whose calls time out after timeout.
func NewClient(signer *trust.Signer, nodeID string, timeout time.Duration) *Client {
	return &Client{signer: signer, nodeID: nodeID, http: &http.Client{Timeout: timeout}}
}

// Do signs and sends body to baseURL+path and decodes a JSON answer into out
// when out is non-nil.
func (c *Client) Do(ctx context.Context, method, baseURL, path string, body []byte, out any) error {
	h, err := c.signer.SignNow(method, path, c.nodeID, body)
	if err != nil {
		return err
	}
	var rd io.Reader
	if len(body) > 0 {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(baseURL, "/")+path, rd)
	if err != nil {
		return err
	}
	if rd != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(trust.HeaderSignature, h.Signature)
	req.Header.Set(trust.HeaderTimestamp, h.Timestamp)
	req.Header.Set(trust.HeaderServerID, h.ServerID)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrRemoteNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
