package fmdn

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"math/big"

	"github.com/ProtonMail/go-crypto/eax"
	"golang.org/x/crypto/hkdf"

	"github.com/Enter-tainer/gps-tracker/crypto"
	"github.com/Enter-tainer/gps-tracker/reports"
	"github.com/Enter-tainer/gps-tracker/wire"
)

var (
	// ErrNoLocation is returned when a location report carries nothing the
	// given identity key can decrypt.
	ErrNoLocation = errors.New("no decryptable location in report")

	// ErrMalformedPayload is returned for sealed blobs too short to contain
	// the expected nonce and tag.
	ErrMalformedPayload = errors.New("malformed sealed location")

	// ErrAuthentication is returned when a sealed blob does not open under
	// the keys derived from the identity key.
	ErrAuthentication = errors.New("report authentication failed")
)

// Device is one entry of a device list response: its display metadata, the
// owner-encrypted identity key, and the raw sealed location reports the
// network has collected for it.
type Device struct {
	Name         string
	CanonicID    string
	EncryptedEIK []byte
	RawLocations [][]byte
	Timestamps   []int64
}

// Device list response layout (field numbers only, no schema):
//
//	2: device (repeated)
//	  1.1: canonic id
//	  5:   display name
//	  4.1.19.1: owner-encrypted identity key
//	  4.2.5: sealed location report (repeated)
//	  4.2.6.1: report list timestamp (repeated)

// ParseDeviceList extracts the devices from a raw device list response.
func ParseDeviceList(data []byte) []Device {
	var devices []Device
	for _, devBytes := range wire.Decode(data).Repeated(2) {
		dev := wire.Decode(devBytes)

		d := Device{Name: dev.String(5)}
		if id := dev.Inner(1); id != nil {
			d.CanonicID = id.String(1)
		}

		for _, infoBytes := range dev.Repeated(4) {
			info := wire.Decode(infoBytes)

			for _, regBytes := range info.Repeated(1) {
				reg := wire.Decode(regBytes)
				for _, secretsBytes := range reg.Repeated(19) {
					if eik := wire.Decode(secretsBytes).Bytes(1); len(eik) > 0 {
						d.EncryptedEIK = eik
					}
				}
			}

			for _, locInfoBytes := range info.Repeated(2) {
				locInfo := wire.Decode(locInfoBytes)
				d.RawLocations = append(d.RawLocations, locInfo.Repeated(5)...)
				for _, tsMsg := range locInfo.RepeatedInner(6) {
					if v, ok := tsMsg.Uint(1); ok {
						d.Timestamps = append(d.Timestamps, int64(v))
					}
				}
			}
		}

		devices = append(devices, d)
	}
	return devices
}

// DecryptEIK unwraps an owner-encrypted identity key. Two wrappings are in
// the wild: 48 bytes is AES-CBC (16-byte IV plus two blocks), 60 bytes is
// AES-GCM (12-byte IV, 32-byte ciphertext, 16-byte tag).
func DecryptEIK(ownerKey, encrypted []byte) (IdentityKey, error) {
	switch len(encrypted) {
	case 48:
		block, err := aes.NewCipher(ownerKey)
		if err != nil {
			return nil, err
		}
		plaintext := make([]byte, 32)
		cipher.NewCBCDecrypter(block, encrypted[:16]).CryptBlocks(plaintext, encrypted[16:])
		plaintext = pkcs7Strip(plaintext)
		if len(plaintext) != IdentityKeySize {
			return nil, fmt.Errorf("decrypted identity key has %d bytes, want %d", len(plaintext), IdentityKeySize)
		}
		return IdentityKey(plaintext), nil

	case 60:
		block, err := aes.NewCipher(ownerKey)
		if err != nil {
			return nil, err
		}
		aead, err := cipher.NewGCM(block)
		if err != nil {
			return nil, err
		}
		plaintext, err := aead.Open(nil, encrypted[:12], encrypted[12:], nil)
		if err != nil {
			return nil, fmt.Errorf("unwrapping identity key: %w", ErrAuthentication)
		}
		return IdentityKey(plaintext), nil

	default:
		return nil, fmt.Errorf("invalid encrypted identity key length %d (want 48 for AES-CBC or 60 for AES-GCM)", len(encrypted))
	}
}

// pkcs7Strip removes PKCS#7 padding when the trailing bytes form a valid
// pad, and returns the input unchanged otherwise.
func pkcs7Strip(data []byte) []byte {
	if len(data) == 0 {
		return data
	}
	n := int(data[len(data)-1])
	if n == 0 || n > aes.BlockSize || n > len(data) {
		return data
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return data
		}
	}
	return data[:len(data)-n]
}

// DecryptLocationReport opens one sealed location report. listTS is the
// report timestamp from the device list; the sealed geo block carries an
// additional per-report offset. The first geo block the key opens wins.
func DecryptLocationReport(eik IdentityKey, raw []byte, listTS int64) (*reports.Location, error) {
	msg := wire.Decode(raw)

	for _, geoBytes := range msg.Repeated(10) {
		geo := wire.Decode(geoBytes)

		for _, encBytes := range geo.Repeated(1) {
			enc := wire.Decode(encBytes)

			senderX := enc.Bytes(1)
			encLoc := enc.Bytes(2)
			isOwnRaw, _ := enc.Uint(3)
			isOwn := isOwnRaw != 0

			if len(encLoc) == 0 {
				continue
			}

			offset, _ := geo.Uint(2)
			var accuracy float64
			if accRaw, ok := geo.Fixed32(3); ok {
				accuracy = float64(math.Float32frombits(binary.LittleEndian.Uint32(accRaw)))
			}
			reportTS := listTS + int64(offset)

			var loc *reports.Location
			var err error
			if isOwn || len(senderX) == 0 {
				loc, err = DecryptOwnReport(eik, encLoc, reportTS)
			} else {
				loc, err = DecryptCrowdsourcedReport(eik, encLoc, senderX, reportTS)
			}
			if err != nil {
				continue
			}

			loc.Accuracy = accuracy
			loc.IsOwn = isOwn
			return loc, nil
		}
	}

	return nil, ErrNoLocation
}

// DecryptCrowdsourcedReport opens a report sealed by a finder device. The
// rotation scalar r active at the report time is recomputed from the identity
// key, the finder's public key point is recovered from its x-coordinate, and
// the AES-EAX key is derived from the ECDH secret.
func DecryptCrowdsourcedReport(eik IdentityKey, encLoc, senderX []byte, reportTS int64) (*reports.Location, error) {
	if len(senderX) != eidSize {
		return nil, fmt.Errorf("finder public key must be %d bytes, got %d", eidSize, len(senderX))
	}
	if len(encLoc) < 16 {
		return nil, fmt.Errorf("%w: %d bytes", ErrMalformedPayload, len(encLoc))
	}

	eph, err := ComputeEphemeralID(eik, reportTS, DefaultBatteryFlags)
	if err != nil {
		return nil, err
	}

	curve := crypto.SECP160R1()
	sender, err := curve.DecompressPoint(new(big.Int).SetBytes(senderX))
	if err != nil {
		return nil, fmt.Errorf("finder public key: %w", err)
	}

	shared := curve.ScalarMult(eph.R, sender)
	if shared.IsIdentity() {
		return nil, errors.New("degenerate shared secret")
	}

	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, curve.ElementBytes(shared.X), nil, nil), key); err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := eax.NewEAX(block)
	if err != nil {
		return nil, err
	}

	// Nonce is the tail halves of both exchanged x-coordinates.
	nonce := make([]byte, 0, 16)
	nonce = append(nonce, eph.ID[12:]...)
	nonce = append(nonce, senderX[12:]...)

	plaintext, err := aead.Open(nil, nonce, encLoc, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthentication, err)
	}

	return parseLocation(plaintext, reportTS)
}

// DecryptOwnReport opens a report the owner's own devices sealed with AES-GCM
// under SHA-256 of the identity key.
func DecryptOwnReport(eik IdentityKey, encLoc []byte, reportTS int64) (*reports.Location, error) {
	if len(encLoc) < 28 {
		return nil, fmt.Errorf("%w: %d bytes", ErrMalformedPayload, len(encLoc))
	}

	key := sha256.Sum256(eik)
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	plaintext, err := aead.Open(nil, encLoc[:12], encLoc[12:], nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthentication, err)
	}

	return parseLocation(plaintext, reportTS)
}

// parseLocation decodes the plaintext location message: sfixed32 lat and lon
// scaled by 1e7, varint altitude.
func parseLocation(plaintext []byte, ts int64) (*reports.Location, error) {
	msg := wire.Decode(plaintext)

	latRaw, latOK := msg.Fixed32(1)
	lonRaw, lonOK := msg.Fixed32(2)
	if !latOK || !lonOK {
		return nil, errors.New("location message missing coordinates")
	}
	altitude, _ := msg.Uint(3)

	loc := &reports.Location{
		Lat:      float64(int32(binary.LittleEndian.Uint32(latRaw))) / 1e7,
		Lon:      float64(int32(binary.LittleEndian.Uint32(lonRaw))) / 1e7,
		Altitude: int(altitude),
		Source:   reports.SourceGoogle,
	}
	loc.Stamp(ts)
	return loc, nil
}
