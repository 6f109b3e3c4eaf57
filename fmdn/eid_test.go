package fmdn

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestComputeEphemeralID_KnownVector(t *testing.T) {
	eik := testEIK(t)

	eph, err := ComputeEphemeralID(eik, 1735690000, DefaultBatteryFlags)
	require.NoError(t, err)

	require.Equal(t, int64(1735689216), eph.Timestamp)
	require.Equal(t, "0789a2592c821824de32c1df04e1604a61952d65", hex.EncodeToString(eph.R.Bytes()))
	require.Equal(t, "0399420774d6af8b2df3544c236951386fa86220", eph.String())
	require.Equal(t, byte(0x2f), eph.HashedFlags)
	require.Equal(t, "0399420774d6af8b2df3", hex.EncodeToString(eph.TruncatedID()))
}

func TestComputeEphemeralID_StableWithinRotationPeriod(t *testing.T) {
	eik := testEIK(t)
	base := MaskTimestamp(1735690000)

	first, err := ComputeEphemeralID(eik, base, DefaultBatteryFlags)
	require.NoError(t, err)
	last, err := ComputeEphemeralID(eik, base+EIDRotationSecs-1, DefaultBatteryFlags)
	require.NoError(t, err)
	next, err := ComputeEphemeralID(eik, base+EIDRotationSecs, DefaultBatteryFlags)
	require.NoError(t, err)

	require.Equal(t, first.ID, last.ID)
	require.NotEqual(t, first.ID, next.ID)
}

func TestComputeEphemeralID_FlagsOnlyAffectHashedFlags(t *testing.T) {
	eik := testEIK(t)

	normal, err := ComputeEphemeralID(eik, 1735690000, DefaultBatteryFlags)
	require.NoError(t, err)
	low, err := ComputeEphemeralID(eik, 1735690000, 0x21)
	require.NoError(t, err)

	require.Equal(t, normal.ID, low.ID)
	require.NotEqual(t, normal.HashedFlags, low.HashedFlags)
}

func TestComputeEphemeralID_KeySize(t *testing.T) {
	_, err := ComputeEphemeralID(make([]byte, 16), 1735690000, DefaultBatteryFlags)
	require.Error(t, err)
}

func TestMaskTimestamp(t *testing.T) {
	require.Equal(t, int64(1735689216), MaskTimestamp(1735690000))
	require.Equal(t, int64(1735689216), MaskTimestamp(1735689216))
	require.Equal(t, int64(0), MaskTimestamp(1023))

	// Only the low 32 bits of the timestamp participate.
	require.Equal(t, int64(2048), MaskTimestamp(1<<33|2048))
}
