package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var ErrSignatureInvalid = errors.New("webhook signature invalid")

// DefaultTolerance bounds how old a signed webhook may be before it is
// rejected as a possible replay.
const DefaultTolerance = 5 * time.Minute

// VerifySignature checks the gateway's signature header against the raw
// request body. The header carries the signing timestamp and one or
// more HMAC-SHA256 digests in the form "t=<unix>,v1=<hex>[,v1=<hex>]";
// the signed string is "<unix>.<body>". A signature older than the
// tolerance fails even when the digest matches.
func VerifySignature(payload []byte, header, secret string, tolerance time.Duration, now time.Time) error {
	timestamp, digests, err := parseSignatureHeader(header)
	if err != nil {
		return err
	}

	signedAt := time.Unix(timestamp, 0)
	if now.Sub(signedAt) > tolerance || signedAt.Sub(now) > tolerance {
		return fmt.Errorf("%w: timestamp outside tolerance", ErrSignatureInvalid)
	}

	expected := computeSignature(payload, timestamp, secret)
	for _, digest := range digests {
		if hmac.Equal([]byte(digest), []byte(expected)) {
			return nil
		}
	}
	return fmt.Errorf("%w: no matching digest", ErrSignatureInvalid)
}

// SignPayload produces a signature header for the given body, as the
// gateway would. Used by tests and the local development sender.
func SignPayload(payload []byte, secret string, now time.Time) string {
	timestamp := now.Unix()
	return fmt.Sprintf("t=%d,v1=%s", timestamp, computeSignature(payload, timestamp, secret))
}

func computeSignature(payload []byte, timestamp int64, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", timestamp, payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func parseSignatureHeader(header string) (int64, []string, error) {
	if header == "" {
		return 0, nil, fmt.Errorf("%w: missing signature header", ErrSignatureInvalid)
	}

	var timestamp int64
	var digests []string
	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch key {
		case "t":
			t, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return 0, nil, fmt.Errorf("%w: bad timestamp", ErrSignatureInvalid)
			}
			timestamp = t
		case "v1":
			digests = append(digests, value)
		}
	}

	if timestamp == 0 || len(digests) == 0 {
		return 0, nil, fmt.Errorf("%w: malformed header", ErrSignatureInvalid)
	}
	return timestamp, digests, nil
}
