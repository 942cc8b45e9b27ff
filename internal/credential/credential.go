// Package credential issues and verifies the signed payloads encoded into registration QR codes.
package credential

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrMalformed is returned when a scanned payload cannot be decoded.
	ErrMalformed = errors.New("malformed credential")
	// ErrSignature is returned when the keyed hash does not match.
	ErrSignature = errors.New("credential signature mismatch")
)

// Payload is the structured data carried in a QR code.
type Payload struct {
	RegistrationID uuid.UUID `json:"rid"`
	UserID         uuid.UUID `json:"uid"`
	SeminarID      uuid.UUID `json:"sid"`
	Token          string    `json:"tok"`
	Signature      string    `json:"sig"`
}

// Signer computes and checks HMAC-SHA256 signatures with the site-wide secret.
type Signer struct {
	secret []byte
}

// NewSigner creates a signer for the given secret.
func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret)}
}

// NewToken returns a random opaque token for a registration's QR code.
func NewToken() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Sign returns the hex HMAC over registration id, user id and seminar id.
func (s *Signer) Sign(registrationID, userID, seminarID uuid.UUID) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(registrationID.String() + "|" + userID.String() + "|" + seminarID.String()))
	return hex.EncodeToString(mac.Sum(nil))
}

// Issue builds a signed payload for a registration.
func (s *Signer) Issue(registrationID, userID, seminarID uuid.UUID, token string) Payload {
	return Payload{
		RegistrationID: registrationID,
		UserID:         userID,
		SeminarID:      seminarID,
		Token:          token,
		Signature:      s.Sign(registrationID, userID, seminarID),
	}
}

// Encode serializes a payload into the string placed in the QR image.
func (s *Signer) Encode(p Payload) (string, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("marshal credential: %w", err)
	}
	return string(b), nil
}

// Decode parses scanned QR content.
func (s *Signer) Decode(raw string) (*Payload, error) {
	var p Payload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, ErrMalformed
	}
	if p.RegistrationID == uuid.Nil || p.Signature == "" {
		return nil, ErrMalformed
	}
	return &p, nil
}

// Verify recomputes the signature and compares it in constant time.
func (s *Signer) Verify(p *Payload) error {
	if p == nil {
		return ErrMalformed
	}
	want := s.Sign(p.RegistrationID, p.UserID, p.SeminarID)
	if !hmac.Equal([]byte(want), []byte(p.Signature)) {
		return ErrSignature
	}
	return nil
}

// TokenMatches compares a scanned token with the stored one in constant time.
func TokenMatches(scanned, stored string) bool {
	if stored == "" {
		return false
	}
	return hmac.Equal([]byte(scanned), []byte(stored))
}
