package findmy

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"

	"github.com/Enter-tainer/gps-tracker/crypto"
	"github.com/Enter-tainer/gps-tracker/reports"
)

// Sealed report layout after normalization:
//
//	[0:4]   timestamp, big-endian seconds since AppleEpoch
//	[4]     confidence hint (unused here)
//	[5:62]  finder ephemeral public key, SEC1 uncompressed P-224
//	[62:72] encrypted location
//	[72:88] GCM tag
const sealedReportSize = 88

var (
	// ErrMalformedPayload is returned for sealed reports with an unexpected
	// shape, before any cryptography runs.
	ErrMalformedPayload = errors.New("malformed sealed report payload")

	// ErrAuthentication is returned when the report does not open under the
	// derived key, either because the key is wrong or the payload was altered.
	ErrAuthentication = errors.New("report authentication failed")
)

// DecryptReport opens a single sealed location report with the rolling
// private scalar it was addressed to. Payloads carry an extra byte at offset
// four on some report server versions; both forms are accepted.
func DecryptReport(payload []byte, d *big.Int) (*reports.Location, error) {
	data := payload
	if len(data) > sealedReportSize {
		spliced := make([]byte, 0, len(data)-1)
		spliced = append(spliced, data[:4]...)
		spliced = append(spliced, data[5:]...)
		data = spliced
	}
	if len(data) != sealedReportSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrMalformedPayload, len(payload))
	}

	ts := int64(binary.BigEndian.Uint32(data[0:4])) + AppleEpoch

	curve := crypto.P224()
	ephKeyBytes := data[5:62]
	ephKey, err := curve.ParsePoint(ephKeyBytes)
	if err != nil {
		return nil, fmt.Errorf("ephemeral key: %w", err)
	}

	shared := curve.ScalarMult(d, ephKey)
	if shared.IsIdentity() {
		return nil, errors.New("degenerate shared secret")
	}

	// One X9.63 round over the fixed-width shared x-coordinate yields the
	// AES-128 key and the 16-byte GCM nonce.
	sym := crypto.X963KDF(curve.ElementBytes(shared.X), ephKeyBytes, 32)

	block, err := aes.NewCipher(sym[:16])
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCMWithNonceSize(block, 16)
	if err != nil {
		return nil, err
	}
	plaintext, err := aead.Open(nil, sym[16:], data[62:], nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthentication, err)
	}
	if len(plaintext) < 10 {
		return nil, fmt.Errorf("%w: %d-byte plaintext", ErrMalformedPayload, len(plaintext))
	}

	loc := &reports.Location{
		Lat:        float64(int32(binary.BigEndian.Uint32(plaintext[0:4]))) / 1e7,
		Lon:        float64(int32(binary.BigEndian.Uint32(plaintext[4:8]))) / 1e7,
		Confidence: int(plaintext[8]),
		Status:     int(plaintext[9]),
		Source:     reports.SourceApple,
	}
	loc.Stamp(ts)
	return loc, nil
}
