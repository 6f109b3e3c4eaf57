// Package findmy implements the owner side of the Apple Find My offline
// finding scheme: rolling P-224 key derivation, advertisement identifiers,
// and location report decryption.
//
// # Key derivation
//
// An accessory is provisioned with a 28-byte master private key d0, a
// 32-byte initial symmetric key SK_0, and an epoch timestamp aligned to the
// 15-minute rotation interval. For rotation period i the symmetric key is
// advanced with the ANSI X9.63 KDF (SK_i = KDF(SK_{i-1}, "update", 32)),
// diversified into two scalars u_i and v_i, and the rolling private key is
//
//	d_i = d0*u_i + v_i (mod q)
//
// The x-coordinate of d_i*G is broadcast by the accessory; its SHA-256 hash
// is the identifier under which finder devices upload sealed reports.
//
// # Report decryption
//
// A sealed report carries the finder's ephemeral P-224 public key, a
// 10-byte encrypted location and a GCM tag. The owner recomputes the ECDH
// shared secret with d_i, derives the AES key and nonce from it, and opens
// the payload.
package findmy
