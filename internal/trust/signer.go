// Package trust signs and verifies requests exchanged between nodes of the
// fleet.  Every node shares one static secret (SERVER_SYNC_SECRET); there is
// no per-node key and no rotation, so a leaked secret lets the holder forge
// requests from any node until every node is reconfigured.
//
// The string to sign is "METHOD:path:timestamp:canonicalJSON(body)" and the
// signature is the hex encoded HMAC-SHA256 of that string.
package trust

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Header names carried by every signed request.
const (
	HeaderSignature = "X-Server-Signature"
	HeaderTimestamp = "X-Server-Timestamp"
	HeaderServerID  = "X-Server-Id"
)

// MaxSkew is the largest accepted distance between the sender's timestamp
// and the receiver's clock, in either direction.
const MaxSkew = 5 * time.Minute

var (
	ErrMissingHeaders = errors.New("missing server auth headers")
	ErrStaleTimestamp = errors.New("request timestamp outside allowed window")
	ErrBadSignature   = errors.New("invalid server signature")
)

// Headers groups the three trust header values of one request.
type Headers struct {
	Signature string
	Timestamp string
	ServerID  string
}

// Signer computes and checks request signatures with the shared secret.
type Signer struct {
	secret []byte
	now    func() time.Time
}

// NewSigner returns a Signer using the given shared secret.
func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret), now: time.Now}
}

// WithClock replaces the clock used for freshness checks and new timestamps.
func (s *Signer) WithClock(now func() time.Time) *Signer {
	s.now = now
	return s
}

// Sign returns the hex signature for the request described by the arguments.
func (s *Signer) Sign(method, path string, timestampMs int64, body []byte) (string, error) {
	msg, err := signingString(method, path, timestampMs, body)
	if err != nil {
		return "", err
	}
	sig, err := jwt.SigningMethodHS256.Sign(msg, s.secret)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(sig), nil
}

// SignNow stamps the request with the current time and returns the headers to
// attach.  serverID identifies the sender in the receiver's logs.
func (s *Signer) SignNow(method, path, serverID string, body []byte) (Headers, error) {
	ts := s.now().UnixMilli()
	sig, err := s.Sign(method, path, ts, body)
	if err != nil {
		return Headers{}, err
	}
	return Headers{
		Signature: sig,
		Timestamp: strconv.FormatInt(ts, 10),
		ServerID:  serverID,
	}, nil
}

// Verify checks presence, freshness and signature, in that order.
func (s *Signer) Verify(method, path string, h Headers, body []byte) error {
	if h.Signature == "" || h.Timestamp == "" || h.ServerID == "" {
		return ErrMissingHeaders
	}
	ts, err := strconv.ParseInt(h.Timestamp, 10, 64)
	if err != nil {
		return ErrStaleTimestamp
	}
	skew := s.now().UnixMilli() - ts
	if skew < 0 {
		skew = -skew
	}
	if skew > MaxSkew.Milliseconds() {
		return ErrStaleTimestamp
	}
	raw, err := hex.DecodeString(h.Signature)
	if err != nil {
		return ErrBadSignature
	}
	msg, err := signingString(method, path, ts, body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	// HMAC verification in jwt compares in constant time.
	if err := jwt.SigningMethodHS256.Verify(msg, raw, s.secret); err != nil {
		return ErrBadSignature
	}
	return nil
}

func signingString(method, path string, timestampMs int64, body []byte) (string, error) {
	canon, err := Canonical(body)
	if err != nil {
		return "", err
	}
	return strings.ToUpper(method) + ":" + path + ":" + strconv.FormatInt(timestampMs, 10) + ":" + string(canon), nil
}

// Canonical re-encodes a JSON document with object keys sorted so that two
// semantically equal bodies produce the same bytes.  An empty body maps to {}.
func Canonical(body []byte) ([]byte, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return []byte("{}"), nil
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("canonical json: %w", err)
	}
	// encoding/json writes map keys in sorted order.
	return json.Marshal(v)
}
