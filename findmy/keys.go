package findmy

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/Enter-tainer/gps-tracker/crypto"
)

const (
	// KeyRotationSecs is the rolling key rotation interval.
	KeyRotationSecs = 900

	// AppleEpoch is Apple's reference epoch, 2001-01-01 00:00:00 UTC.
	// Sealed report timestamps are seconds since this instant.
	AppleEpoch = 978307200

	masterKeySize    = 28
	symmetricKeySize = 32
)

// MasterKey is the 28-byte master private key d0 provisioned to an accessory.
type MasterKey []byte

// NewMasterKeyFromBytes creates a MasterKey from a byte slice.
// This function makes a copy of the input data to ensure immutability.
func NewMasterKeyFromBytes(data []byte) MasterKey {
	k := make([]byte, len(data))
	copy(k, data)
	return MasterKey(k)
}

// NewMasterKeyFromString creates a MasterKey from a hex-encoded string.
func NewMasterKeyFromString(data string) (MasterKey, error) {
	rawBytes, err := hex.DecodeString(data)
	if err != nil {
		return nil, err
	}
	if len(rawBytes) != masterKeySize {
		return nil, fmt.Errorf("master key must be %d bytes, got %d", masterKeySize, len(rawBytes))
	}
	return MasterKey(rawBytes), nil
}

// Bytes returns the master key as a byte slice.
func (k MasterKey) Bytes() []byte {
	return k
}

// String returns a hex-encoded string representation of the master key.
func (k MasterKey) String() string {
	return hex.EncodeToString(k)
}

// SymmetricKey is the 32-byte initial symmetric key SK_0 that seeds the
// rolling derivation.
type SymmetricKey []byte

// NewSymmetricKeyFromBytes creates a SymmetricKey from a byte slice.
// This function makes a copy of the input data to ensure immutability.
func NewSymmetricKeyFromBytes(data []byte) SymmetricKey {
	k := make([]byte, len(data))
	copy(k, data)
	return SymmetricKey(k)
}

// NewSymmetricKeyFromString creates a SymmetricKey from a hex-encoded string.
func NewSymmetricKeyFromString(data string) (SymmetricKey, error) {
	rawBytes, err := hex.DecodeString(data)
	if err != nil {
		return nil, err
	}
	if len(rawBytes) != symmetricKeySize {
		return nil, fmt.Errorf("symmetric key must be %d bytes, got %d", symmetricKeySize, len(rawBytes))
	}
	return SymmetricKey(rawBytes), nil
}

// Bytes returns the symmetric key as a byte slice.
func (k SymmetricKey) Bytes() []byte {
	return k
}

// String returns a hex-encoded string representation of the symmetric key.
func (k SymmetricKey) String() string {
	return hex.EncodeToString(k)
}

// Accessory is the key material provisioned to a single tracked accessory.
// Epoch is the unix timestamp of rotation counter zero, aligned to the
// rotation interval.
type Accessory struct {
	MasterKey    MasterKey
	SymmetricKey SymmetricKey
	Epoch        int64
}

type accessoryJSON struct {
	PrivateKey   string `json:"private_key"`
	SymmetricKey string `json:"symmetric_key"`
	Epoch        int64  `json:"epoch"`
}

// MarshalJSON encodes the accessory in the provisioning keyfile format.
func (a Accessory) MarshalJSON() ([]byte, error) {
	return json.Marshal(accessoryJSON{
		PrivateKey:   a.MasterKey.String(),
		SymmetricKey: a.SymmetricKey.String(),
		Epoch:        a.Epoch,
	})
}

// UnmarshalJSON decodes the provisioning keyfile format, validating key sizes.
func (a *Accessory) UnmarshalJSON(data []byte) error {
	var j accessoryJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	master, err := NewMasterKeyFromString(j.PrivateKey)
	if err != nil {
		return fmt.Errorf("private_key: %w", err)
	}
	symmetric, err := NewSymmetricKeyFromString(j.SymmetricKey)
	if err != nil {
		return fmt.Errorf("symmetric_key: %w", err)
	}
	a.MasterKey = master
	a.SymmetricKey = symmetric
	a.Epoch = j.Epoch
	return nil
}

// GenerateAccessory creates fresh key material for provisioning a new
// accessory. The epoch is the current time rounded down to the rotation
// interval.
func GenerateAccessory() (*Accessory, error) {
	d, err := randomScalar()
	if err != nil {
		return nil, err
	}
	master := make([]byte, masterKeySize)
	d.FillBytes(master)

	symmetric := make([]byte, symmetricKeySize)
	if _, err := rand.Read(symmetric); err != nil {
		return nil, err
	}

	now := time.Now().Unix()
	return &Accessory{
		MasterKey:    MasterKey(master),
		SymmetricKey: SymmetricKey(symmetric),
		Epoch:        now - now%KeyRotationSecs,
	}, nil
}

// randomScalar picks a uniform non-zero scalar below the P-224 group order
// by rejection sampling.
func randomScalar() (*big.Int, error) {
	order := crypto.P224().N
	buf := make([]byte, masterKeySize)
	for {
		if _, err := rand.Read(buf); err != nil {
			return nil, err
		}
		d := new(big.Int).SetBytes(buf)
		if d.Sign() != 0 && d.Cmp(order) < 0 {
			return d, nil
		}
	}
}

// LoadAccessory reads accessory key material from a JSON keyfile.
func LoadAccessory(path string) (*Accessory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var a Accessory
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("parsing keyfile %s: %w", path, err)
	}
	return &a, nil
}

// Save writes the accessory key material to a JSON keyfile readable only by
// the owner.
func (a *Accessory) Save(path string) error {
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
