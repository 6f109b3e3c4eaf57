// Package crypto provides the elliptic curve and key derivation primitives
// shared by the Apple Find My and Google FMDN beacon schemes.
//
// This package implements the low-level operations both owner-side schemes
// are built on:
//
//   - Affine short-Weierstrass arithmetic over math/big for NIST P-224
//     (Apple rolling keys) and SECG secp160r1 (Google ephemeral identifiers)
//   - Point decompression with the even-y convention used by FMDN finder
//     reports
//   - SEC1 uncompressed point parsing for Apple report ephemeral keys
//   - The ANSI X9.63 KDF (SHA-256) used by the Find My key schedule
//
// Note: none of the curve arithmetic is constant-time. Scalars handled here
// are short-lived beacon keys recovered for report decryption, not long-term
// online signing keys.
//
// # Curves
//
// Two parameter sets are exposed as package singletons:
//
//   - P224: 28-byte field elements, rolling advertisement key derivation
//   - SECP160R1: 20-byte field elements, ephemeral identifier computation
//
// # Encoding
//
// Field elements cross the wire as fixed-width big-endian bytes. ElementBytes
// preserves leading zeros; callers must never substitute big.Int.Bytes for it
// when deriving symmetric keys from shared secrets.
package crypto
