// Package testutil builds sealed location reports and API fixtures for
// tests: the finder-device side of both networks, which the production
// packages only ever decrypt.
package testutil

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"io"
	"math"
	"math/big"
	"time"

	"github.com/ProtonMail/go-crypto/eax"
	"golang.org/x/crypto/hkdf"

	"github.com/Enter-tainer/gps-tracker/crypto"
	"github.com/Enter-tainer/gps-tracker/findmy"
	"github.com/Enter-tainer/gps-tracker/fmdn"
	"github.com/Enter-tainer/gps-tracker/wire"
)

// =====================================
// Fixed key material
// =====================================

// TestAccessory returns fixed accessory key material: master scalar 1 and an
// all-zero symmetric key. Derivations from it are stable across runs.
func TestAccessory(epoch int64) *findmy.Accessory {
	master := make([]byte, 28)
	master[27] = 0x01
	return &findmy.Accessory{
		MasterKey:    findmy.NewMasterKeyFromBytes(master),
		SymmetricKey: findmy.NewSymmetricKeyFromBytes(make([]byte, 32)),
		Epoch:        epoch,
	}
}

// TestIdentity returns a fixed beacon identity: key bytes 0x00 through 0x1f.
func TestIdentity() *fmdn.Identity {
	eik := make([]byte, fmdn.IdentityKeySize)
	for i := range eik {
		eik[i] = byte(i)
	}
	return &fmdn.Identity{EIK: fmdn.NewIdentityKeyFromBytes(eik)}
}

// =====================================
// Apple sealed reports
// =====================================

// AppleReportOption modifies the parameters a sealed Apple report is built
// from.
type AppleReportOption func(*appleReportParams)

type appleReportParams struct {
	lat        float64
	lon        float64
	confidence byte
	status     byte
	ts         int64
	padded     bool
}

// WithAppleCoordinates sets the reported position.
func WithAppleCoordinates(lat, lon float64) AppleReportOption {
	return func(p *appleReportParams) {
		p.lat = lat
		p.lon = lon
	}
}

// WithAppleConfidence sets the report confidence byte.
func WithAppleConfidence(confidence byte) AppleReportOption {
	return func(p *appleReportParams) {
		p.confidence = confidence
	}
}

// WithAppleStatus sets the accessory status byte.
func WithAppleStatus(status byte) AppleReportOption {
	return func(p *appleReportParams) {
		p.status = status
	}
}

// WithAppleTimestamp sets the unix time the report claims the sighting
// happened at.
func WithAppleTimestamp(ts int64) AppleReportOption {
	return func(p *appleReportParams) {
		p.ts = ts
	}
}

// WithApplePadding inserts the extra byte at offset four that some report
// server versions emit.
func WithApplePadding() AppleReportOption {
	return func(p *appleReportParams) {
		p.padded = true
	}
}

// SealAppleReport builds the sealed report a finder device would upload for
// an accessory advertising the given public key x-coordinate.
func SealAppleReport(accessoryX []byte, options ...AppleReportOption) ([]byte, error) {
	params := &appleReportParams{
		lat:        37.7749,
		lon:        -122.4194,
		confidence: 50,
		ts:         time.Now().Unix(),
	}
	for _, opt := range options {
		opt(params)
	}

	curve := crypto.P224()
	accessory, err := curve.DecompressPoint(new(big.Int).SetBytes(accessoryX))
	if err != nil {
		return nil, err
	}

	k, err := randomScalar(curve)
	if err != nil {
		return nil, err
	}
	ephBytes := curve.EncodePoint(curve.ScalarBaseMult(k))

	// Only the x-coordinate feeds the KDF, so the parity of the
	// decompressed accessory point does not matter.
	shared := curve.ScalarMult(k, accessory)
	sym := crypto.X963KDF(curve.ElementBytes(shared.X), ephBytes, 32)

	plaintext := make([]byte, 10)
	binary.BigEndian.PutUint32(plaintext[0:4], uint32(int32(math.Round(params.lat*1e7))))
	binary.BigEndian.PutUint32(plaintext[4:8], uint32(int32(math.Round(params.lon*1e7))))
	plaintext[8] = params.confidence
	plaintext[9] = params.status

	block, err := aes.NewCipher(sym[:16])
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCMWithNonceSize(block, 16)
	if err != nil {
		return nil, err
	}
	sealed := aead.Seal(nil, sym[16:], plaintext, nil)

	payload := make([]byte, 0, 89)
	payload = binary.BigEndian.AppendUint32(payload, uint32(params.ts-findmy.AppleEpoch))
	if params.padded {
		payload = append(payload, 0x00)
	}
	payload = append(payload, 0x00) // confidence hint
	payload = append(payload, ephBytes...)
	payload = append(payload, sealed...)
	return payload, nil
}

// =====================================
// Google sealed reports
// =====================================

// GoogleReportOption modifies the parameters a sealed network report is
// built from.
type GoogleReportOption func(*googleReportParams)

type googleReportParams struct {
	lat      float64
	lon      float64
	altitude uint64
	accuracy float32
	ts       int64
	offset   uint64
	own      bool
}

// WithGoogleCoordinates sets the reported position.
func WithGoogleCoordinates(lat, lon float64) GoogleReportOption {
	return func(p *googleReportParams) {
		p.lat = lat
		p.lon = lon
	}
}

// WithGoogleAltitude sets the reported altitude in meters.
func WithGoogleAltitude(altitude uint64) GoogleReportOption {
	return func(p *googleReportParams) {
		p.altitude = altitude
	}
}

// WithGoogleAccuracy sets the reported accuracy radius in meters.
func WithGoogleAccuracy(accuracy float32) GoogleReportOption {
	return func(p *googleReportParams) {
		p.accuracy = accuracy
	}
}

// WithGoogleTimestamp sets the unix time the report was sealed at.
func WithGoogleTimestamp(ts int64) GoogleReportOption {
	return func(p *googleReportParams) {
		p.ts = ts
	}
}

// WithGoogleTimeOffset makes the device list timestamp lag the sealed time
// by the given number of seconds.
func WithGoogleTimeOffset(seconds uint64) GoogleReportOption {
	return func(p *googleReportParams) {
		p.offset = seconds
	}
}

// AsOwnReport seals the report the way the owner's own devices do, with
// AES-GCM under the hashed identity key.
func AsOwnReport() GoogleReportOption {
	return func(p *googleReportParams) {
		p.own = true
	}
}

// SealGoogleReport builds one sealed location report for the beacon with the
// given identity key. It returns the report bytes and the device list
// timestamp they should be delivered with.
func SealGoogleReport(eik fmdn.IdentityKey, options ...GoogleReportOption) ([]byte, int64, error) {
	params := &googleReportParams{
		lat:      37.7749,
		lon:      -122.4194,
		accuracy: 10,
		ts:       time.Now().Unix(),
	}
	for _, opt := range options {
		opt(params)
	}

	plaintext := locationMessage(params.lat, params.lon, params.altitude)

	var senderX, encLoc []byte
	var err error
	if params.own {
		encLoc, err = sealOwn(eik, plaintext)
	} else {
		senderX, encLoc, err = sealCrowdsourced(eik, params.ts, plaintext)
	}
	if err != nil {
		return nil, 0, err
	}

	var enc []byte
	if len(senderX) > 0 {
		enc = wire.AppendBytesField(enc, 1, senderX)
	}
	enc = wire.AppendBytesField(enc, 2, encLoc)
	if params.own {
		enc = wire.AppendVarintField(enc, 3, 1)
	} else {
		enc = wire.AppendVarintField(enc, 3, 0)
	}

	var geo []byte
	geo = wire.AppendBytesField(geo, 1, enc)
	geo = wire.AppendVarintField(geo, 2, params.offset)
	geo = wire.AppendFixed32Field(geo, 3, math.Float32bits(params.accuracy))

	var raw []byte
	raw = wire.AppendBytesField(raw, 10, geo)

	return raw, params.ts - int64(params.offset), nil
}

// sealCrowdsourced performs the finder side of the exchange: ECDH against
// the rotation point active at ts, HKDF to the AES key, AES-EAX seal.
func sealCrowdsourced(eik fmdn.IdentityKey, ts int64, plaintext []byte) (senderX, encLoc []byte, err error) {
	eph, err := fmdn.ComputeEphemeralID(eik, ts, fmdn.DefaultBatteryFlags)
	if err != nil {
		return nil, nil, err
	}

	curve := crypto.SECP160R1()
	rotationPoint := curve.ScalarBaseMult(eph.R)

	s, err := randomScalar(curve)
	if err != nil {
		return nil, nil, err
	}
	senderX = curve.ElementBytes(curve.ScalarBaseMult(s).X)

	shared := curve.ScalarMult(s, rotationPoint)
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, curve.ElementBytes(shared.X), nil, nil), key); err != nil {
		return nil, nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, err
	}
	aead, err := eax.NewEAX(block)
	if err != nil {
		return nil, nil, err
	}

	nonce := make([]byte, 0, 16)
	nonce = append(nonce, eph.ID[12:]...)
	nonce = append(nonce, senderX[12:]...)

	return senderX, aead.Seal(nil, nonce, plaintext, nil), nil
}

// sealOwn seals a report the way the owner's own devices do.
func sealOwn(eik fmdn.IdentityKey, plaintext []byte) ([]byte, error) {
	key := sha256.Sum256(eik)
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	iv := make([]byte, 12)
	if _, err := rand.Read(iv); err != nil {
		return nil, err
	}
	return append(iv, aead.Seal(nil, iv, plaintext, nil)...), nil
}

func locationMessage(lat, lon float64, altitude uint64) []byte {
	var msg []byte
	msg = wire.AppendFixed32Field(msg, 1, uint32(int32(math.Round(lat*1e7))))
	msg = wire.AppendFixed32Field(msg, 2, uint32(int32(math.Round(lon*1e7))))
	msg = wire.AppendVarintField(msg, 3, altitude)
	return msg
}

// WrapEIK encrypts an identity key under an owner key in the AES-GCM keyfile
// form device list responses carry.
func WrapEIK(ownerKey []byte, eik fmdn.IdentityKey) ([]byte, error) {
	block, err := aes.NewCipher(ownerKey)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	iv := make([]byte, 12)
	if _, err := rand.Read(iv); err != nil {
		return nil, err
	}
	return append(iv, aead.Seal(nil, iv, eik, nil)...), nil
}

// =====================================
// Device list responses
// =====================================

// BuildDeviceListResponse encodes devices into the wire form ParseDeviceList
// reads back.
func BuildDeviceListResponse(devices ...fmdn.Device) []byte {
	var resp []byte
	for _, d := range devices {
		var dev []byte

		if d.CanonicID != "" {
			var ident []byte
			ident = wire.AppendStringField(ident, 1, d.CanonicID)
			dev = wire.AppendBytesField(dev, 1, ident)
		}

		var info []byte
		if len(d.EncryptedEIK) > 0 {
			var secrets []byte
			secrets = wire.AppendBytesField(secrets, 1, d.EncryptedEIK)
			var reg []byte
			reg = wire.AppendBytesField(reg, 19, secrets)
			info = wire.AppendBytesField(info, 1, reg)
		}
		if len(d.RawLocations) > 0 || len(d.Timestamps) > 0 {
			var locBlock []byte
			for _, loc := range d.RawLocations {
				locBlock = wire.AppendBytesField(locBlock, 5, loc)
			}
			for _, ts := range d.Timestamps {
				locBlock = wire.AppendBytesField(locBlock, 6, wire.AppendVarintField(nil, 1, uint64(ts)))
			}
			info = wire.AppendBytesField(info, 2, locBlock)
		}
		if len(info) > 0 {
			dev = wire.AppendBytesField(dev, 4, info)
		}

		if d.Name != "" {
			dev = wire.AppendStringField(dev, 5, d.Name)
		}

		resp = wire.AppendBytesField(resp, 2, dev)
	}
	return resp
}

// randomScalar picks a uniform non-zero scalar below the group order by
// rejection sampling.
func randomScalar(c *crypto.CurveParams) (*big.Int, error) {
	buf := make([]byte, c.Size+1)
	for {
		if _, err := rand.Read(buf); err != nil {
			return nil, err
		}
		s := new(big.Int).SetBytes(buf)
		s.Mod(s, c.N)
		if s.Sign() != 0 {
			return s, nil
		}
	}
}
