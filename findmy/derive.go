package findmy

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/Enter-tainer/gps-tracker/crypto"
)

// ErrInvalidCounter is returned when a rotation counter is negative.
var ErrInvalidCounter = errors.New("rotation counter must not be negative")

// DerivedKey is the rolling key pair for one rotation period.
type DerivedKey struct {
	// Counter is the rotation period index relative to the accessory epoch.
	Counter int64

	// D is the rolling private scalar d_i.
	D *big.Int

	// X is the 28-byte big-endian x-coordinate of d_i*G, as broadcast by
	// the accessory.
	X []byte
}

// HashedAdvKey returns the base64 SHA-256 hash of the advertised public key.
// Apple indexes uploaded location reports under this identifier.
func (k *DerivedKey) HashedAdvKey() string {
	return HashedAdvKey(k.X)
}

// BLEAddress returns the random static BLE address the accessory advertises
// with during this rotation period.
func (k *DerivedKey) BLEAddress() string {
	return BLEAddress(k.X)
}

// CounterAt returns the rotation counter active at unix timestamp ts for the
// given epoch, aligned to absolute rotation slots.
func CounterAt(ts, epoch int64) int64 {
	return ts/KeyRotationSecs - epoch/KeyRotationSecs
}

// SlotTime returns the unix timestamp at which the given rotation counter
// begins.
func SlotTime(counter, epoch int64) int64 {
	return (epoch/KeyRotationSecs + counter) * KeyRotationSecs
}

// scalarFromBytes reduces data to a P-224 scalar: the first 28 bytes are
// taken big-endian (shorter input is left-padded) and reduced mod q.
func scalarFromBytes(data []byte) *big.Int {
	if len(data) > 28 {
		data = data[:28]
	}
	s := new(big.Int).SetBytes(data)
	return s.Mod(s, crypto.P224().N)
}

// scalarFromBytesNonzero is scalarFromBytes mapping zero to one, so the
// result is always usable as a multiplier.
func scalarFromBytesNonzero(data []byte) *big.Int {
	s := scalarFromBytes(data)
	if s.Sign() == 0 {
		return big.NewInt(1)
	}
	return s
}

// DeriveKeyAt derives the rolling key pair for a single rotation period.
// The symmetric key is advanced counter times from SK_0, so deriving many
// consecutive periods is cheaper with DeriveKeys.
func DeriveKeyAt(master MasterKey, sk0 SymmetricKey, counter int64) (*DerivedKey, error) {
	if counter < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCounter, counter)
	}
	sk := []byte(sk0)
	for i := int64(0); i < counter; i++ {
		sk = crypto.X963KDF(sk, []byte("update"), symmetricKeySize)
	}
	return deriveFromState(master, sk, counter), nil
}

// DeriveKeys derives the rolling key pairs for every rotation period in
// [from, to], advancing the symmetric key once per period.
func DeriveKeys(master MasterKey, sk0 SymmetricKey, from, to int64) ([]*DerivedKey, error) {
	if from < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCounter, from)
	}
	if to < from {
		return nil, fmt.Errorf("counter range %d-%d is empty", from, to)
	}
	keys := make([]*DerivedKey, 0, to-from+1)
	sk := []byte(sk0)
	for c := int64(0); c <= to; c++ {
		if c >= from {
			keys = append(keys, deriveFromState(master, sk, c))
		}
		sk = crypto.X963KDF(sk, []byte("update"), symmetricKeySize)
	}
	return keys, nil
}

// deriveFromState computes the rolling key for one period from the already
// advanced symmetric key state.
func deriveFromState(master MasterKey, sk []byte, counter int64) *DerivedKey {
	diversified := crypto.X963KDF(sk, []byte("diversify"), 72)
	u := scalarFromBytesNonzero(diversified[:36])
	v := scalarFromBytesNonzero(diversified[36:72])

	curve := crypto.P224()
	d0 := scalarFromBytes(master)
	d := new(big.Int).Mul(d0, u)
	d.Add(d, v)
	d.Mod(d, curve.N)

	point := curve.ScalarBaseMult(d)
	return &DerivedKey{
		Counter: counter,
		D:       d,
		X:       curve.ElementBytes(point.X),
	}
}

// HashedAdvKey returns the base64 SHA-256 hash of a public key x-coordinate.
func HashedAdvKey(publicKeyX []byte) string {
	sum := sha256.Sum256(publicKeyX)
	return base64.StdEncoding.EncodeToString(sum[:])
}

// BLEAddress formats the first six bytes of the public key x-coordinate as a
// BLE random static address, with the two most significant bits set.
func BLEAddress(publicKeyX []byte) string {
	var addr [6]byte
	copy(addr[:], publicKeyX)
	addr[0] |= 0xC0
	parts := make([]string, len(addr))
	for i, b := range addr {
		parts[i] = fmt.Sprintf("%02X", b)
	}
	return strings.Join(parts, ":")
}
