// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	"github.com/go-json-experiment/json"
	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/lestrrat-go/jwx/v3/jwt"
)

// Claims carried by a push notification signature.
const (
	ClaimTaskID     = "task_id"
	ClaimBodySHA256 = "request_body_sha256"
)

// JWTSigner signs push notification bodies with an ES256 key so receivers can
// verify the sender against the published key set.
type JWTSigner struct {
	key    jwk.Key
	public jwk.Set
	issuer string
	now    func() time.Time
}

// NewJWTSigner creates a signer for an existing P-256 private key.
func NewJWTSigner(keyID, issuer string, private *ecdsa.PrivateKey) (*JWTSigner, error) {
	key, err := jwk.Import(private)
	if err != nil {
		return nil, fmt.Errorf("import signing key: %w", err)
	}
	if err := key.Set(jwk.KeyIDKey, keyID); err != nil {
		return nil, err
	}
	if err := key.Set(jwk.AlgorithmKey, jwa.ES256()); err != nil {
		return nil, err
	}
	if err := key.Set(jwk.KeyUsageKey, "sig"); err != nil {
		return nil, err
	}

	pub, err := key.PublicKey()
	if err != nil {
		return nil, fmt.Errorf("derive public key: %w", err)
	}
	set := jwk.NewSet()
	if err := set.AddKey(pub); err != nil {
		return nil, err
	}

	return &JWTSigner{
		key:    key,
		public: set,
		issuer: issuer,
		now:    time.Now,
	}, nil
}

// GenerateJWTSigner creates a signer with a fresh P-256 key.
func GenerateJWTSigner(keyID, issuer string) (*JWTSigner, error) {
	private, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate signing key: %w", err)
	}
	return NewJWTSigner(keyID, issuer, private)
}

// Sign returns a compact JWT binding taskID and the SHA-256 of body.
func (s *JWTSigner) Sign(taskID string, body []byte) (string, error) {
	sum := sha256.Sum256(body)
	b := jwt.NewBuilder().
		IssuedAt(s.now()).
		Claim(ClaimTaskID, taskID).
		Claim(ClaimBodySHA256, hex.EncodeToString(sum[:]))
	if s.issuer != "" {
		b = b.Issuer(s.issuer)
	}
	tok, err := b.Build()
	if err != nil {
		return "", err
	}
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.ES256(), s.key))
	if err != nil {
		return "", err
	}
	return string(signed), nil
}

// PublicKeys returns the key set receivers verify signatures with.
func (s *JWTSigner) PublicKeys() jwk.Set {
	return s.public
}

// JWKSHandler serves the public key set as a JSON Web Key Set document.
func (s *JWTSigner) JWKSHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.MarshalWrite(w, s.public)
	})
}
