package service

import "errors"

// Scan rejections.  Crypto failures are deliberately collapsed into
// ErrInvalidQRCodeData so callers cannot distinguish decryption from
// schema errors.
var (
	ErrTokenRequired     = errors.New("token is required")
	ErrInvalidQRCode     = errors.New("invalid QR code")
	ErrInvalidQRCodeData = errors.New("invalid QR code data")
	ErrPlatformMismatch  = errors.New("QR code not issued by this platform")
)

// ErrNoGymFound is returned by owner-scoped operations when the owner has
// not created a gym yet.
var ErrNoGymFound = errors.New("no gym found for this owner")
