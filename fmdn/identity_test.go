package fmdn

import (
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

// testEIK returns the fixed identity key the vectors below were produced
// with: bytes 0x00 through 0x1f.
func testEIK(t *testing.T) IdentityKey {
	t.Helper()
	eik := make([]byte, IdentityKeySize)
	for i := range eik {
		eik[i] = byte(i)
	}
	return NewIdentityKeyFromBytes(eik)
}

func TestIdentityKey_Hierarchy(t *testing.T) {
	eik := testEIK(t)

	require.Equal(t, "8b44d96f214304bc", hex.EncodeToString(eik.RecoveryKey()))
	require.Equal(t, "5728705214326174", hex.EncodeToString(eik.RingKey()))
	require.Equal(t, "944c533876f9de37", hex.EncodeToString(eik.TrackingKey()))
}

func TestIdentity_JSONRoundTrip(t *testing.T) {
	id, err := GenerateIdentity()
	require.NoError(t, err)

	data, err := json.Marshal(id)
	require.NoError(t, err)
	require.Contains(t, string(data), `"eik"`)
	require.Contains(t, string(data), `"generated_at"`)
	require.Contains(t, string(data), `"recovery_key"`)
	require.Contains(t, string(data), `"ring_key"`)
	require.Contains(t, string(data), `"tracking_key"`)

	var got Identity
	require.NoError(t, json.Unmarshal(data, &got))
	require.Equal(t, id.EIK, got.EIK)
}

func TestIdentity_UnmarshalValidation(t *testing.T) {
	var id Identity

	err := json.Unmarshal([]byte(`{}`), &id)
	require.ErrorContains(t, err, "eik")

	err = json.Unmarshal([]byte(`{"eik":"abcd"}`), &id)
	require.ErrorContains(t, err, "eik")
}

func TestIdentity_LoadAcceptsBareEIK(t *testing.T) {
	eik := testEIK(t)
	path := filepath.Join(t.TempDir(), "eik.json")
	writeFile(t, path, `{"eik":"`+eik.String()+`"}`)

	id, err := LoadIdentity(path)
	require.NoError(t, err)
	require.Equal(t, eik, id.EIK)
	require.True(t, id.GeneratedAt.IsZero())
}

func TestIdentity_SaveLoad(t *testing.T) {
	id, err := GenerateIdentity()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "eik.json")
	require.NoError(t, id.Save(path))

	got, err := LoadIdentity(path)
	require.NoError(t, err)
	require.Equal(t, id.EIK, got.EIK)
	require.Equal(t, id.GeneratedAt.Truncate(time.Second), got.GeneratedAt)
}

func TestIdentityKey_MnemonicRoundTrip(t *testing.T) {
	eik := testEIK(t)

	phrase, err := eik.Mnemonic()
	require.NoError(t, err)
	require.Len(t, strings.Fields(phrase), 24)

	got, err := IdentityKeyFromMnemonic(phrase)
	require.NoError(t, err)
	require.Equal(t, eik, got)
}

func TestIdentityKeyFromMnemonic_Invalid(t *testing.T) {
	_, err := IdentityKeyFromMnemonic("definitely not a valid phrase")
	require.Error(t, err)

	// A valid 12-word phrase encodes 16 bytes, not an identity key.
	_, err = IdentityKeyFromMnemonic(
		"abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about")
	require.Error(t, err)
}
