package crypto

import (
	"errors"
	"fmt"
	"math/big"
)

var (
	// ErrPointNotOnCurve is returned when a coordinate does not describe a
	// valid curve point.
	ErrPointNotOnCurve = errors.New("point is not on curve")

	// ErrNonResidue is returned by DecompressPoint when the x coordinate has
	// no matching y, i.e. x^3 + ax + b is a quadratic non-residue.
	ErrNonResidue = errors.New("x coordinate is not on curve")
)

// CurveParams describes a short Weierstrass curve y^2 = x^3 + ax + b over a
// prime field. All arithmetic is affine over math/big integers and none of it
// is constant-time; see the package documentation for the threat model.
type CurveParams struct {
	Name string
	P    *big.Int // field prime
	A    *big.Int // curve coefficient a
	B    *big.Int // curve coefficient b
	N    *big.Int // base point order
	Gx   *big.Int // base point x
	Gy   *big.Int // base point y
	Size int      // field element width in bytes
}

var (
	p224Params      *CurveParams
	secp160r1Params *CurveParams
)

func init() {
	p224Params = &CurveParams{Name: "P-224", Size: 28}
	p224Params.P, _ = big.NewInt(0).SetString("ffffffffffffffffffffffffffffffff000000000000000000000001", 16)
	p224Params.A, _ = big.NewInt(0).SetString("fffffffffffffffffffffffffffffffefffffffffffffffffffffffe", 16)
	p224Params.B, _ = big.NewInt(0).SetString("b4050a850c04b3abf54132565044b0b7d7bfd8ba270b39432355ffb4", 16)
	p224Params.N, _ = big.NewInt(0).SetString("ffffffffffffffffffffffffffff16a2e0b8f03e13dd29455c5c2a3d", 16)
	p224Params.Gx, _ = big.NewInt(0).SetString("b70e0cbd6bb4bf7f321390b94a03c1d356c21122343280d6115c1d21", 16)
	p224Params.Gy, _ = big.NewInt(0).SetString("bd376388b5f723fb4c22dfe6cd4375a05a07476444d5819985007e34", 16)

	secp160r1Params = &CurveParams{Name: "secp160r1", Size: 20}
	secp160r1Params.P, _ = big.NewInt(0).SetString("ffffffffffffffffffffffffffffffff7fffffff", 16)
	secp160r1Params.A, _ = big.NewInt(0).SetString("ffffffffffffffffffffffffffffffff7ffffffc", 16)
	secp160r1Params.B, _ = big.NewInt(0).SetString("1c97befc54bd7a8b65acf89f81d4d4adc565fa45", 16)
	secp160r1Params.N, _ = big.NewInt(0).SetString("0100000000000000000001f4c8f927aed3ca752257", 16)
	secp160r1Params.Gx, _ = big.NewInt(0).SetString("4a96b5688ef573284664698968c38bb913cbfc82", 16)
	secp160r1Params.Gy, _ = big.NewInt(0).SetString("23a628553168947d59dcc912042351377ac5fb32", 16)
}

// P224 returns the NIST P-224 curve used by Apple Find My key derivation.
func P224() *CurveParams { return p224Params }

// SECP160R1 returns the SECG secp160r1 curve used by Google FMDN ephemeral
// identifiers.
func SECP160R1() *CurveParams { return secp160r1Params }

// Point is an affine curve point. The zero point (0, 0) serves as the group
// identity.
type Point struct {
	X, Y *big.Int
}

// NewPoint creates a Point from coordinate copies.
func NewPoint(x, y *big.Int) Point {
	return Point{X: new(big.Int).Set(x), Y: new(big.Int).Set(y)}
}

func identity() Point {
	return Point{X: new(big.Int), Y: new(big.Int)}
}

// IsIdentity reports whether the point is the group identity.
func (p Point) IsIdentity() bool {
	return p.X.Sign() == 0 && p.Y.Sign() == 0
}

// Generator returns the curve's base point.
func (c *CurveParams) Generator() Point {
	return NewPoint(c.Gx, c.Gy)
}

// IsOnCurve reports whether p satisfies the curve equation. The identity is
// not considered on-curve.
func (c *CurveParams) IsOnCurve(p Point) bool {
	if p.IsIdentity() {
		return false
	}
	lhs := new(big.Int).Mul(p.Y, p.Y)
	lhs.Mod(lhs, c.P)
	rhs := c.rhs(p.X)
	return lhs.Cmp(rhs) == 0
}

// rhs computes x^3 + ax + b mod p.
func (c *CurveParams) rhs(x *big.Int) *big.Int {
	r := new(big.Int).Mul(x, x)
	r.Mul(r, x)
	r.Add(r, new(big.Int).Mul(c.A, x))
	r.Add(r, c.B)
	return r.Mod(r, c.P)
}

// Add returns p1 + p2.
func (c *CurveParams) Add(p1, p2 Point) Point {
	if p1.IsIdentity() {
		return NewPoint(p2.X, p2.Y)
	}
	if p2.IsIdentity() {
		return NewPoint(p1.X, p1.Y)
	}

	var lam *big.Int
	if p1.X.Cmp(p2.X) == 0 {
		if p1.Y.Cmp(p2.Y) != 0 {
			return identity()
		}
		// Doubling: lambda = (3x^2 + a) / 2y
		den := new(big.Int).Lsh(p1.Y, 1)
		den.Mod(den, c.P)
		if den.Sign() == 0 {
			return identity()
		}
		den.ModInverse(den, c.P)
		num := new(big.Int).Mul(p1.X, p1.X)
		num.Mul(num, big.NewInt(3))
		num.Add(num, c.A)
		lam = num.Mul(num, den)
	} else {
		// Chord: lambda = (y2 - y1) / (x2 - x1)
		den := new(big.Int).Sub(p2.X, p1.X)
		den.Mod(den, c.P)
		den.ModInverse(den, c.P)
		num := new(big.Int).Sub(p2.Y, p1.Y)
		lam = num.Mul(num, den)
	}
	lam.Mod(lam, c.P)

	x3 := new(big.Int).Mul(lam, lam)
	x3.Sub(x3, p1.X)
	x3.Sub(x3, p2.X)
	x3.Mod(x3, c.P)

	y3 := new(big.Int).Sub(p1.X, x3)
	y3.Mul(y3, lam)
	y3.Sub(y3, p1.Y)
	y3.Mod(y3, c.P)

	return Point{X: x3, Y: y3}
}

// ScalarMult returns k*p using double-and-add.
func (c *CurveParams) ScalarMult(k *big.Int, p Point) Point {
	r := identity()
	q := NewPoint(p.X, p.Y)
	for i := 0; i < k.BitLen(); i++ {
		if k.Bit(i) == 1 {
			r = c.Add(r, q)
		}
		q = c.Add(q, q)
	}
	return r
}

// ScalarBaseMult returns k*G.
func (c *CurveParams) ScalarBaseMult(k *big.Int) Point {
	return c.ScalarMult(k, c.Generator())
}

// SqrtModP returns a square root of a modulo the field prime, or nil when a
// is a quadratic non-residue.
func (c *CurveParams) SqrtModP(a *big.Int) *big.Int {
	return new(big.Int).ModSqrt(a, c.P)
}

// DecompressPoint recovers the curve point with the given x coordinate and
// even y. Returns ErrNonResidue when no such point exists.
func (c *CurveParams) DecompressPoint(x *big.Int) (Point, error) {
	y := c.SqrtModP(c.rhs(x))
	if y == nil {
		return Point{}, ErrNonResidue
	}
	if y.Bit(0) == 1 {
		y.Sub(c.P, y)
	}
	return Point{X: new(big.Int).Set(x), Y: y}, nil
}

// ParsePoint decodes a SEC1 uncompressed point (0x04 || X || Y) and verifies
// it lies on the curve.
func (c *CurveParams) ParsePoint(data []byte) (Point, error) {
	if len(data) != 1+2*c.Size {
		return Point{}, fmt.Errorf("invalid point encoding: got %d bytes, want %d", len(data), 1+2*c.Size)
	}
	if data[0] != 0x04 {
		return Point{}, fmt.Errorf("invalid point encoding: unexpected prefix 0x%02x", data[0])
	}
	p := Point{
		X: new(big.Int).SetBytes(data[1 : 1+c.Size]),
		Y: new(big.Int).SetBytes(data[1+c.Size:]),
	}
	if !c.IsOnCurve(p) {
		return Point{}, ErrPointNotOnCurve
	}
	return p, nil
}

// EncodePoint returns the SEC1 uncompressed encoding of p.
func (c *CurveParams) EncodePoint(p Point) []byte {
	out := make([]byte, 1+2*c.Size)
	out[0] = 0x04
	p.X.FillBytes(out[1 : 1+c.Size])
	p.Y.FillBytes(out[1+c.Size:])
	return out
}

// ElementBytes encodes v as a fixed-width big-endian field element. Shared
// ECDH x coordinates must use this rather than big.Int.Bytes, which drops
// leading zeros.
func (c *CurveParams) ElementBytes(v *big.Int) []byte {
	out := make([]byte, c.Size)
	v.FillBytes(out)
	return out
}

// ScalarFromBytes interprets b as a big-endian integer reduced modulo the
// group order.
func (c *CurveParams) ScalarFromBytes(b []byte) *big.Int {
	s := new(big.Int).SetBytes(b)
	return s.Mod(s, c.N)
}
