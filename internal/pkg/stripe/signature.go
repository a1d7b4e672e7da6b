package stripe

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultTolerance is the maximum accepted age of a signed payload.
// Stripe recommends five minutes to guard against replay.
const DefaultTolerance = 5 * time.Minute

// SignedHeader is the parsed form of a Stripe-Signature header:
// "t=<unix>,v1=<hex>[,v1=<hex>...]"
type SignedHeader struct {
	Timestamp  time.Time
	Signatures []string
}

// ParseSignatureHeader parses the Stripe-Signature header value.
func ParseSignatureHeader(header string) (*SignedHeader, error) {
	if strings.TrimSpace(header) == "" {
		return nil, fmt.Errorf("empty signature header")
	}

	sh := &SignedHeader{}
	for _, pair := range strings.Split(header, ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), "=", 2)
		if len(parts) != 2 {
			continue
		}
		switch parts[0] {
		case "t":
			ts, err := strconv.ParseInt(parts[1], 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid timestamp: %w", err)
			}
			sh.Timestamp = time.Unix(ts, 0)
		case "v1":
			sh.Signatures = append(sh.Signatures, parts[1])
		}
	}

	if sh.Timestamp.IsZero() {
		return nil, fmt.Errorf("signature header missing timestamp")
	}
	if len(sh.Signatures) == 0 {
		return nil, fmt.Errorf("signature header missing v1 signature")
	}
	return sh, nil
}

// ComputeSignature returns the hex HMAC-SHA256 of "<unix>.<payload>".
func ComputeSignature(timestamp time.Time, payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(timestamp.Unix(), 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature validates a webhook payload against its Stripe-Signature
// header. now is injectable for tests.
func VerifySignature(payload []byte, header, secret string, tolerance time.Duration, now time.Time) error {
	if secret == "" {
		return fmt.Errorf("webhook secret is not configured")
	}

	sh, err := ParseSignatureHeader(header)
	if err != nil {
		return err
	}

	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	age := now.Sub(sh.Timestamp)
	if age > tolerance || age < -tolerance {
		return fmt.Errorf("signature timestamp outside tolerance")
	}

	expected := ComputeSignature(sh.Timestamp, payload, secret)
	for _, sig := range sh.Signatures {
		if constantTimeEqual(expected, sig) {
			return nil
		}
	}
	return fmt.Errorf("no matching v1 signature")
}

func constantTimeEqual(expectedHex, receivedHex string) bool {
	expected := strings.ToLower(strings.TrimSpace(expectedHex))
	received := strings.ToLower(strings.TrimSpace(receivedHex))
	return subtle.ConstantTimeCompare([]byte(expected), []byte(received)) == 1
}
