package auth

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func validClaims(sub, role string) Claims {
	now := time.Now()
	return Claims{Sub: sub, Name: "Ana Souza", Role: role, Iat: now.Unix(), Exp: now.Add(time.Hour).Unix()}
}

func TestSignHS256Verifies(t *testing.T) {
	want := validClaims("c1", "client")
	raw, err := SignHS256(want, "s3cret")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	got, err := ParseAndVerifyHS256(raw, "s3cret")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if *got != want {
		t.Fatalf("expected %+v, got %+v", want, *got)
	}
	h, err := ParseHeader(raw)
	if err != nil || h.Alg != "HS256" || h.Typ != "JWT" {
		t.Fatalf("unexpected header %+v (%v)", h, err)
	}
}

func TestParseAndVerifyHS256Rejects(t *testing.T) {
	good, _ := SignHS256(validClaims("c1", "client"), "s3cret")
	expired, _ := SignHS256(Claims{Sub: "c1", Role: "client", Exp: time.Now().Add(-time.Minute).Unix()}, "s3cret")
	parts := strings.Split(good, ".")
	forged, _ := json.Marshal(validClaims("admin-1", "admin"))

	cases := map[string]string{
		"wrong secret":     "",
		"expired":          expired,
		"two segments":     parts[0] + "." + parts[1],
		"empty signature":  parts[0] + "." + parts[1] + ".",
		"swapped payload":  parts[0] + "." + base64.RawURLEncoding.EncodeToString(forged) + "." + parts[2],
		"alg none":         encodeSegment(t, Header{Alg: "none", Typ: "JWT"}) + "." + parts[1] + "." + parts[2],
		"garbage header":   "!!!." + parts[1] + "." + parts[2],
		"not a jwt at all": "hello",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			secret := "s3cret"
			if raw == "" {
				raw, secret = good, "other"
			}
			if _, err := ParseAndVerifyHS256(raw, secret); err != ErrInvalidToken {
				t.Fatalf("expected ErrInvalidToken, got %v", err)
			}
		})
	}
}

func TestVerifyRS256(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	claims := validClaims("p1", "provider")
	raw, err := signRS256(claims, key, "kid-1")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	got, err := VerifyRS256(raw, &key.PublicKey)
	if err != nil || got.Sub != "p1" || got.Role != "provider" {
		t.Fatalf("unexpected result %+v (%v)", got, err)
	}

	other, _ := rsa.GenerateKey(rand.Reader, 2048)
	if _, err := VerifyRS256(raw, &other.PublicKey); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken for foreign key, got %v", err)
	}
	hs, _ := SignHS256(claims, "s3cret")
	if _, err := VerifyRS256(hs, &key.PublicKey); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken for HS256 token, got %v", err)
	}
}

func encodeSegment(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return base64.RawURLEncoding.EncodeToString(b)
}

// signRS256 mints tokens the way an identity provider behind JWKS would.
func signRS256(claims Claims, key *rsa.PrivateKey, kid string) (string, error) {
	header, err := json.Marshal(Header{Alg: "RS256", Typ: "JWT", Kid: kid})
	if err != nil {
		return "", err
	}
	payload, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}
	signed := base64.RawURLEncoding.EncodeToString(header) + "." + base64.RawURLEncoding.EncodeToString(payload)
	digest := sha256.Sum256([]byte(signed))
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:])
	if err != nil {
		return "", err
	}
	return signed + "." + base64.RawURLEncoding.EncodeToString(sig), nil
}
