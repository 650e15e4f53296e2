package venue

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// kalshiAuth signs WS upgrade requests with the regulated venue's
// HMAC-SHA256 scheme: base64(HMAC-SHA256(secret, ts_ms + "GET" + path)).
// Uses standard base64 and a static API secret rather than URL-safe
// encoding or a wallet-derived key.
type kalshiAuth struct {
	accessKey string
	secret    string
	path      string
}

func newKalshiAuth(accessKey, secret, path string) *kalshiAuth {
	return &kalshiAuth{accessKey: accessKey, secret: secret, path: path}
}

func (a *kalshiAuth) headers() (http.Header, error) {
	if a.accessKey == "" || a.secret == "" {
		return http.Header{}, nil
	}

	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
	msg := ts + "GET" + a.path
	mac := hmac.New(sha256.New, []byte(a.secret))
	if _, err := mac.Write([]byte(msg)); err != nil {
		return nil, fmt.Errorf("hmac write: %w", err)
	}
	sig := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	h := http.Header{}
	h.Set("KALSHI-ACCESS-KEY", a.accessKey)
	h.Set("KALSHI-ACCESS-TIMESTAMP", ts)
	h.Set("KALSHI-ACCESS-SIGNATURE", sig)
	return h, nil
}
