package fmdn

import (
	"crypto/aes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math/big"

	"github.com/Enter-tainer/gps-tracker/crypto"
)

const (
	// EIDRotationSecs is the identifier rotation interval.
	EIDRotationSecs = 1024

	// RotationExponent is K, the number of low timestamp bits masked to
	// zero when computing an identifier.
	RotationExponent = 10

	// DefaultBatteryFlags is the frame flags byte beacons advertise under
	// normal battery conditions.
	DefaultBatteryFlags = 0x20

	eidSize         = 20
	truncatedIDSize = 10
)

// timestampMask zeroes the K low bits and truncates to 32 bits.
const timestampMask = int64(0xFFFFFFFF) &^ (1<<RotationExponent - 1)

// MaskTimestamp aligns a unix timestamp to the rotation boundary.
func MaskTimestamp(ts int64) int64 {
	return ts & timestampMask
}

// EphemeralID is the identifier a beacon advertises during one rotation
// period.
type EphemeralID struct {
	// Timestamp is the masked rotation period start.
	Timestamp int64

	// R is the rotation scalar the identifier was derived from. Report
	// decryption reuses it for the ECDH exchange with finder devices.
	R *big.Int

	// ID is the 20-byte x-coordinate of R*G.
	ID []byte

	// HashedFlags is the obfuscated frame flags byte advertised next to
	// the identifier.
	HashedFlags byte
}

// TruncatedID returns the first ten bytes of the identifier, the form the
// network indexes uploaded key IDs under.
func (e *EphemeralID) TruncatedID() []byte {
	return e.ID[:truncatedIDSize]
}

// String returns the full identifier hex-encoded.
func (e *EphemeralID) String() string {
	return hex.EncodeToString(e.ID)
}

// ComputeEphemeralID derives the identifier a beacon advertises at the given
// unix timestamp. The flags byte is mixed into HashedFlags only and does not
// affect the identifier itself.
func ComputeEphemeralID(eik IdentityKey, ts int64, flags byte) (*EphemeralID, error) {
	if len(eik) != IdentityKeySize {
		return nil, fmt.Errorf("identity key must be %d bytes, got %d", IdentityKeySize, len(eik))
	}

	masked := MaskTimestamp(ts)

	// The AES input is two mirrored 16-byte halves: padding, K, and the
	// masked timestamp, with 0xFF padding in the first half and 0x00 in
	// the second.
	var input [32]byte
	for i := 0; i < 11; i++ {
		input[i] = 0xFF
	}
	input[11] = RotationExponent
	binary.BigEndian.PutUint32(input[12:16], uint32(masked))
	input[27] = RotationExponent
	binary.BigEndian.PutUint32(input[28:32], uint32(masked))

	block, err := aes.NewCipher(eik)
	if err != nil {
		return nil, err
	}
	var rPrime [32]byte
	block.Encrypt(rPrime[0:16], input[0:16])
	block.Encrypt(rPrime[16:32], input[16:32])

	curve := crypto.SECP160R1()
	r := new(big.Int).SetBytes(rPrime[:])
	r.Mod(r, curve.N)

	point := curve.ScalarBaseMult(r)
	id := curve.ElementBytes(point.X)

	sum := sha256.Sum256(curve.ElementBytes(r))
	return &EphemeralID{
		Timestamp:   masked,
		R:           r,
		ID:          id,
		HashedFlags: sum[0] ^ flags,
	}, nil
}
