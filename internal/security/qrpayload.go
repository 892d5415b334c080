package security

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/iliyamo/fitcode-qr/internal/model"
)

// BareTokenBytes is the entropy of a bare QR token (256 bits).
const BareTokenBytes = 32

// ErrPayloadInvalid covers every way a stored QR payload can fail to
// open.  The cause is wrapped for server-side logs only.
var ErrPayloadInvalid = errors.New("qr payload invalid")

// rawPayload uses pointers so absent fields can be told apart from zero values.
type rawPayload struct {
	MachineID *uint64 `json:"machine_id"`
	GymID     *uint64 `json:"gym_id"`
	Token     *string `json:"token"`
	Platform  *string `json:"platform"`
}

// NewBareToken returns a URL-safe random string suitable for printing
// in a QR image.
func NewBareToken() (string, error) {
	buf := make([]byte, BareTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// EncryptQRPayload seals p with XChaCha20-Poly1305 and returns
// base64(nonce || ciphertext).
func (c *Credentials) EncryptQRPayload(p model.QRPayload) (string, error) {
	plain, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, c.aead.NonceSize(), c.aead.NonceSize()+len(plain)+c.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	sealed := c.aead.Seal(nonce, nonce, plain, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// DecryptQRPayload opens a value produced by EncryptQRPayload.  Any
// failure, including a schema mismatch, is reported as ErrPayloadInvalid.
// The platform marker is returned as found; comparing it is up to the caller.
func (c *Credentials) DecryptQRPayload(ciphertext string) (model.QRPayload, error) {
	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return model.QRPayload{}, fmt.Errorf("%w: decode: %v", ErrPayloadInvalid, err)
	}
	ns := c.aead.NonceSize()
	if len(data) < ns+c.aead.Overhead() {
		return model.QRPayload{}, fmt.Errorf("%w: ciphertext too short", ErrPayloadInvalid)
	}
	plain, err := c.aead.Open(nil, data[:ns], data[ns:], nil)
	if err != nil {
		return model.QRPayload{}, fmt.Errorf("%w: open: %v", ErrPayloadInvalid, err)
	}
	var raw rawPayload
	dec := json.NewDecoder(bytes.NewReader(plain))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&raw); err != nil {
		return model.QRPayload{}, fmt.Errorf("%w: unmarshal: %v", ErrPayloadInvalid, err)
	}
	if dec.More() {
		return model.QRPayload{}, fmt.Errorf("%w: trailing data", ErrPayloadInvalid)
	}
	if raw.MachineID == nil || raw.GymID == nil || raw.Token == nil || raw.Platform == nil {
		return model.QRPayload{}, fmt.Errorf("%w: missing field", ErrPayloadInvalid)
	}
	return model.QRPayload{
		MachineID: *raw.MachineID,
		GymID:     *raw.GymID,
		Token:     *raw.Token,
		Platform:  *raw.Platform,
	}, nil
}
