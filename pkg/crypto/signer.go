package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

var (
	ErrInvalidSignature = errors.New("invalid signature")
	ErrMalformedHandle  = errors.New("malformed handle")
)

const handleSep = ":"

type Signer struct {
	secretKey []byte
	logger    *slog.Logger
}

func NewSigner(secretKey string, logger *slog.Logger) *Signer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Signer{
		secretKey: []byte(secretKey),
		logger:    logger,
	}
}

func (s *Signer) Sign(data []byte) string {
	mac := hmac.New(sha256.New, s.secretKey)
	mac.Write(data)
	return hex.EncodeToString(mac.Sum(nil))
}

func (s *Signer) Verify(data []byte, signature string) error {
	expected := s.Sign(data)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		s.logger.Warn("Signature verification failed", slog.Int("data_len", len(data)))
		return ErrInvalidSignature
	}
	return nil
}

// Handle identifies one interactive control: the entity it acts on and the
// action it triggers. The entity id travels with the control so no rendered
// text ever has to be parsed back.
type Handle struct {
	Kind     string
	EntityID string
	Action   string
}

func (h Handle) payload() string {
	return h.Kind + handleSep + h.EntityID + handleSep + h.Action
}

// SignHandle renders h as kind:entity_id:action:tag.
func (s *Signer) SignHandle(h Handle) string {
	p := h.payload()
	return p + handleSep + s.Sign([]byte(p))
}

func (s *Signer) ParseHandle(raw string) (Handle, error) {
	parts := strings.Split(raw, handleSep)
	if len(parts) != 4 {
		return Handle{}, fmt.Errorf("%w: expected 4 fields, got %d", ErrMalformedHandle, len(parts))
	}
	for _, part := range parts {
		if part == "" {
			return Handle{}, fmt.Errorf("%w: empty field", ErrMalformedHandle)
		}
	}

	h := Handle{Kind: parts[0], EntityID: parts[1], Action: parts[2]}
	if err := s.Verify([]byte(h.payload()), parts[3]); err != nil {
		return Handle{}, err
	}
	return h, nil
}
