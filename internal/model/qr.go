package model

import "time"

// PlatformMarker identifies QR payloads issued by this service.
const PlatformMarker = "fitcode"

// QRToken is the single QR record of a machine (`qr_codes`).  Token is
// the bare random string printed in the QR image and is the only lookup
// key used when scanning.  EncryptedPayload is the base64 ciphertext of
// a QRPayload and never leaves the server.
type QRToken struct {
	ID               uint64    `json:"id"`         // qr_codes.id
	MachineID        uint64    `json:"machine_id"` // qr_codes.machine_id (unique)
	EncryptedPayload string    `json:"-"`          // qr_codes.qr_code_data
	Token            string    `json:"token"`      // qr_codes.token (unique)
	CreatedAt        time.Time `json:"created_at"` // qr_codes.created_at
}

// QRPayload is the plaintext sealed into QRToken.EncryptedPayload.
type QRPayload struct {
	MachineID uint64 `json:"machine_id"`
	GymID     uint64 `json:"gym_id"`
	Token     string `json:"token"`
	Platform  string `json:"platform"`
}
