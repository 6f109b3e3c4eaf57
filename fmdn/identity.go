package fmdn

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/tyler-smith/go-bip39"
)

// IdentityKeySize is the size of an ephemeral identity key in bytes.
const IdentityKeySize = 32

// IdentityKey is the 32-byte ephemeral identity key (EIK) a beacon is
// provisioned with. Everything else in the scheme is derived from it.
type IdentityKey []byte

// NewIdentityKeyFromBytes creates an IdentityKey from a byte slice.
// This function makes a copy of the input data to ensure immutability.
func NewIdentityKeyFromBytes(data []byte) IdentityKey {
	k := make([]byte, len(data))
	copy(k, data)
	return IdentityKey(k)
}

// NewIdentityKeyFromString creates an IdentityKey from a hex-encoded string.
func NewIdentityKeyFromString(data string) (IdentityKey, error) {
	rawBytes, err := hex.DecodeString(data)
	if err != nil {
		return nil, err
	}
	if len(rawBytes) != IdentityKeySize {
		return nil, fmt.Errorf("identity key must be %d bytes, got %d", IdentityKeySize, len(rawBytes))
	}
	return IdentityKey(rawBytes), nil
}

// Bytes returns the identity key as a byte slice.
func (k IdentityKey) Bytes() []byte {
	return k
}

// String returns a hex-encoded string representation of the identity key.
func (k IdentityKey) String() string {
	return hex.EncodeToString(k)
}

// deriveSubKey is the key hierarchy derivation: the first eight bytes of
// SHA-256 over the identity key with a one-byte domain separator.
func (k IdentityKey) deriveSubKey(sep byte) []byte {
	h := sha256.New()
	h.Write(k)
	h.Write([]byte{sep})
	return h.Sum(nil)[:8]
}

// RecoveryKey derives the 8-byte recovery key used to prove ownership when
// reprovisioning a beacon.
func (k IdentityKey) RecoveryKey() []byte {
	return k.deriveSubKey(0x01)
}

// RingKey derives the 8-byte ring key used to authenticate ring requests.
func (k IdentityKey) RingKey() []byte {
	return k.deriveSubKey(0x02)
}

// TrackingKey derives the 8-byte unwanted tracking protection key.
func (k IdentityKey) TrackingKey() []byte {
	return k.deriveSubKey(0x03)
}

// Mnemonic encodes the identity key as a 24-word BIP-39 phrase for offline
// backup.
func (k IdentityKey) Mnemonic() (string, error) {
	return bip39.NewMnemonic(k)
}

// IdentityKeyFromMnemonic restores an identity key from its BIP-39 backup
// phrase.
func IdentityKeyFromMnemonic(mnemonic string) (IdentityKey, error) {
	entropy, err := bip39.EntropyFromMnemonic(mnemonic)
	if err != nil {
		return nil, err
	}
	if len(entropy) != IdentityKeySize {
		return nil, fmt.Errorf("mnemonic encodes %d bytes, want %d", len(entropy), IdentityKeySize)
	}
	return IdentityKey(entropy), nil
}

// Identity is the provisioning record for a single beacon.
type Identity struct {
	EIK         IdentityKey
	GeneratedAt time.Time
}

type identityJSON struct {
	EIK         string `json:"eik"`
	GeneratedAt string `json:"generated_at,omitempty"`
	RecoveryKey string `json:"recovery_key,omitempty"`
	RingKey     string `json:"ring_key,omitempty"`
	TrackingKey string `json:"tracking_key,omitempty"`
}

// MarshalJSON writes the identity in the keyfile format, including the
// derived hierarchy keys for reference.
func (id Identity) MarshalJSON() ([]byte, error) {
	j := identityJSON{
		EIK:         id.EIK.String(),
		RecoveryKey: hex.EncodeToString(id.EIK.RecoveryKey()),
		RingKey:     hex.EncodeToString(id.EIK.RingKey()),
		TrackingKey: hex.EncodeToString(id.EIK.TrackingKey()),
	}
	if !id.GeneratedAt.IsZero() {
		j.GeneratedAt = id.GeneratedAt.UTC().Format("2006-01-02T15:04:05Z")
	}
	return json.Marshal(j)
}

// UnmarshalJSON reads the keyfile format. Only the eik field is load-bearing;
// the hierarchy keys are rederived on demand.
func (id *Identity) UnmarshalJSON(data []byte) error {
	var j identityJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	if j.EIK == "" {
		return fmt.Errorf("keyfile has no eik field")
	}
	eik, err := NewIdentityKeyFromString(j.EIK)
	if err != nil {
		return fmt.Errorf("eik: %w", err)
	}
	id.EIK = eik
	if j.GeneratedAt != "" {
		if t, err := time.Parse("2006-01-02T15:04:05Z", j.GeneratedAt); err == nil {
			id.GeneratedAt = t
		}
	}
	return nil
}

// GenerateIdentity creates a fresh random identity key.
func GenerateIdentity() (*Identity, error) {
	eik := make([]byte, IdentityKeySize)
	if _, err := rand.Read(eik); err != nil {
		return nil, err
	}
	return &Identity{
		EIK:         IdentityKey(eik),
		GeneratedAt: time.Now().UTC(),
	}, nil
}

// LoadIdentity reads an identity from a JSON keyfile.
func LoadIdentity(path string) (*Identity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var id Identity
	if err := json.Unmarshal(data, &id); err != nil {
		return nil, fmt.Errorf("parsing keyfile %s: %w", path, err)
	}
	return &id, nil
}

// Save writes the identity to a JSON keyfile readable only by the owner.
func (id *Identity) Save(path string) error {
	data, err := json.MarshalIndent(id, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o600)
}
