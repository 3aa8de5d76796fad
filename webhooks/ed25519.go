package webhooks

import (
	"context"
	"crypto/ed25519"
	"crypto/x509"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/goliatone/go-relay/core"
)

const (
	HeaderSignature = "X-Signature-Ed25519"
	HeaderTimestamp = "X-Signature-Timestamp"

	// spkiPrefix is the DER header of an Ed25519 SubjectPublicKeyInfo; the raw
	// 32 byte key follows it.
	spkiPrefix = "302a300506032b6570032100"
)

// Ed25519Verifier checks detached Ed25519 signatures computed over
// timestamp||body. The key is parsed once at construction.
type Ed25519Verifier struct {
	publicKey ed25519.PublicKey
}

func NewEd25519Verifier(publicKeyHex string) (*Ed25519Verifier, error) {
	publicKeyHex = strings.TrimSpace(publicKeyHex)
	raw, err := hex.DecodeString(publicKeyHex)
	if err != nil {
		return nil, fmt.Errorf("webhooks: decode public key: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("webhooks: public key must be %d bytes, got %d", ed25519.PublicKeySize, len(raw))
	}
	der, _ := hex.DecodeString(spkiPrefix + publicKeyHex)
	parsed, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("webhooks: parse public key: %w", err)
	}
	key, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("webhooks: public key is not ed25519")
	}
	return &Ed25519Verifier{publicKey: key}, nil
}

// Valid reports whether signatureHex is a valid signature of timestamp||body.
// Malformed hex and wrong-length signatures are reported as invalid.
func (v *Ed25519Verifier) Valid(signatureHex string, timestamp string, body []byte) bool {
	if v == nil || len(v.publicKey) != ed25519.PublicKeySize {
		return false
	}
	signature, err := hex.DecodeString(strings.TrimSpace(signatureHex))
	if err != nil || len(signature) != ed25519.SignatureSize {
		return false
	}
	message := make([]byte, 0, len(timestamp)+len(body))
	message = append(message, timestamp...)
	message = append(message, body...)
	return ed25519.Verify(v.publicKey, message, signature)
}

// Verify rejects requests with a missing header as bad input before doing any
// cryptographic work, and requests with a bad signature as unauthorized.
func (v *Ed25519Verifier) Verify(_ context.Context, req core.InboundRequest) error {
	signature := headerValue(req.Headers, HeaderSignature)
	timestamp := headerValue(req.Headers, HeaderTimestamp)
	if signature == "" || timestamp == "" {
		return missingSignatureError(map[string]any{
			"provider_id":   req.ProviderID,
			"has_signature": signature != "",
			"has_timestamp": timestamp != "",
		})
	}
	if !v.Valid(signature, timestamp, req.Body) {
		return invalidSignatureError(map[string]any{
			"provider_id": req.ProviderID,
		})
	}
	return nil
}
