package findmy

import (
	"encoding/json"
	"math/big"
	"path/filepath"
	"testing"

	"github.com/Enter-tainer/gps-tracker/crypto"
	"github.com/stretchr/testify/require"
)

func TestGenerateAccessory(t *testing.T) {
	a, err := GenerateAccessory()
	require.NoError(t, err)

	require.Len(t, a.MasterKey.Bytes(), 28)
	require.Len(t, a.SymmetricKey.Bytes(), 32)
	require.Zero(t, a.Epoch%KeyRotationSecs)

	d := new(big.Int).SetBytes(a.MasterKey)
	require.Positive(t, d.Sign())
	require.Negative(t, d.Cmp(crypto.P224().N))
}

func TestAccessory_JSONRoundTrip(t *testing.T) {
	a, err := GenerateAccessory()
	require.NoError(t, err)

	data, err := json.Marshal(a)
	require.NoError(t, err)
	require.Contains(t, string(data), `"private_key"`)
	require.Contains(t, string(data), `"symmetric_key"`)
	require.Contains(t, string(data), `"epoch"`)

	var got Accessory
	require.NoError(t, json.Unmarshal(data, &got))
	require.Equal(t, a.MasterKey, got.MasterKey)
	require.Equal(t, a.SymmetricKey, got.SymmetricKey)
	require.Equal(t, a.Epoch, got.Epoch)
}

func TestAccessory_UnmarshalValidatesSizes(t *testing.T) {
	var a Accessory

	err := json.Unmarshal([]byte(`{"private_key":"abcd","symmetric_key":"`+
		"00000000000000000000000000000000000000000000000000000000000000"+`00","epoch":0}`), &a)
	require.ErrorContains(t, err, "private_key")

	err = json.Unmarshal([]byte(`{"private_key":"`+
		"00000000000000000000000000000000000000000000000000000001"+`","symmetric_key":"abcd","epoch":0}`), &a)
	require.ErrorContains(t, err, "symmetric_key")
}

func TestAccessory_SaveLoad(t *testing.T) {
	a, err := GenerateAccessory()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "keys.json")
	require.NoError(t, a.Save(path))

	got, err := LoadAccessory(path)
	require.NoError(t, err)
	require.Equal(t, a.MasterKey, got.MasterKey)
	require.Equal(t, a.SymmetricKey, got.SymmetricKey)
	require.Equal(t, a.Epoch, got.Epoch)
}

func TestLoadAccessory_MissingFile(t *testing.T) {
	_, err := LoadAccessory(filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)
}
