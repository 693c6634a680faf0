package auth

import (
	"crypto"
	"crypto/hmac"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims is the payload the gateway signs for booking callers. Role is one of
// client, provider or admin.
type Claims struct {
	Sub        string `json:"sub"`
	Name       string `json:"name,omitempty"`
	BusinessID string `json:"business_id,omitempty"`
	Role       string `json:"role"`
	Exp        int64  `json:"exp"`
	Iat        int64  `json:"iat"`
}

type Header struct {
	Alg string `json:"alg"`
	Typ string `json:"typ"`
	Kid string `json:"kid"`
}

// token is a compact JWS split into its three segments.
type token struct {
	header    string
	payload   string
	signature string
}

func split(raw string) (token, error) {
	parts := strings.Split(raw, ".")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return token{}, ErrInvalidToken
	}
	return token{header: parts[0], payload: parts[1], signature: parts[2]}, nil
}

func (t token) signed() string {
	return t.header + "." + t.payload
}

func (t token) decodeHeader() (*Header, error) {
	raw, err := base64.RawURLEncoding.DecodeString(t.header)
	if err != nil {
		return nil, ErrInvalidToken
	}
	var h Header
	if err := json.Unmarshal(raw, &h); err != nil {
		return nil, ErrInvalidToken
	}
	return &h, nil
}

// claims decodes the payload and rejects it once exp has passed.
func (t token) claims(now time.Time) (*Claims, error) {
	raw, err := base64.RawURLEncoding.DecodeString(t.payload)
	if err != nil {
		return nil, ErrInvalidToken
	}
	var c Claims
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, ErrInvalidToken
	}
	if c.Exp > 0 && now.Unix() > c.Exp {
		return nil, ErrInvalidToken
	}
	return &c, nil
}

func ParseHeader(raw string) (*Header, error) {
	t, err := split(raw)
	if err != nil {
		return nil, err
	}
	return t.decodeHeader()
}

func SignHS256(claims Claims, secret string) (string, error) {
	headerJSON, err := json.Marshal(Header{Alg: "HS256", Typ: "JWT"})
	if err != nil {
		return "", err
	}
	payloadJSON, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}
	unsigned := base64.RawURLEncoding.EncodeToString(headerJSON) + "." + base64.RawURLEncoding.EncodeToString(payloadJSON)
	return unsigned + "." + hmacSHA256(unsigned, secret), nil
}

// ParseAndVerifyHS256 verifies an HS256 token. Tokens announcing any other alg are rejected
// before the signature is looked at.
func ParseAndVerifyHS256(raw, secret string) (*Claims, error) {
	t, err := split(raw)
	if err != nil {
		return nil, err
	}
	h, err := t.decodeHeader()
	if err != nil || h.Alg != "HS256" {
		return nil, ErrInvalidToken
	}
	if !hmac.Equal([]byte(t.signature), []byte(hmacSHA256(t.signed(), secret))) {
		return nil, ErrInvalidToken
	}
	return t.claims(time.Now())
}

func hmacSHA256(data, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(data))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// VerifyRS256 checks an RS256 signature against pubKey, which must be an *rsa.PublicKey.
func VerifyRS256(raw string, pubKey crypto.PublicKey) (*Claims, error) {
	t, err := split(raw)
	if err != nil {
		return nil, err
	}
	if h, err := t.decodeHeader(); err != nil || h.Alg != "RS256" {
		return nil, ErrInvalidToken
	}
	sig, err := base64.RawURLEncoding.DecodeString(t.signature)
	if err != nil {
		return nil, ErrInvalidToken
	}
	rsaKey, ok := pubKey.(*rsa.PublicKey)
	if !ok {
		return nil, ErrInvalidToken
	}
	hash := sha256.Sum256([]byte(t.signed()))
	if err := rsa.VerifyPKCS1v15(rsaKey, crypto.SHA256, hash[:], sig); err != nil {
		return nil, ErrInvalidToken
	}
	return t.claims(time.Now())
}
