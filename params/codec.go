package params

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/fxamacker/cbor/v2"
	"github.com/vocdoni/zkparams/circuits"
	"github.com/vocdoni/zkparams/log"
	"github.com/vocdoni/zkparams/types"
)

// Parameters file layout, integers big-endian:
//
//	magic "ZKPARAMS" | version uint16 | header length uint32 | CBOR header
//	| proving key | verifying key | sha256 of all the preceding bytes
const (
	paramsMagic   = "ZKPARAMS"
	paramsVersion = uint16(1)
	prefixLen     = len(paramsMagic) + 2 + 4
	digestLen     = sha256.Size
	maxHeaderLen  = 1 << 10
)

// SupportedCurves lists the curves a parameters file may declare.
var SupportedCurves = []ecc.ID{ecc.BLS12_381, ecc.BN254}

type fileHeader struct {
	Kind            uint8  `cbor:"1,keyasint"`
	Curve           string `cbor:"2,keyasint"`
	ProvingKeyLen   uint64 `cbor:"3,keyasint"`
	VerifyingKeyLen uint64 `cbor:"4,keyasint"`
}

var headerDecMode = func() cbor.DecMode {
	dm, err := cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyEnforcedAPF,
		ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
	}.DecMode()
	if err != nil {
		panic(err)
	}
	return dm
}()

func curveSupported(curve ecc.ID) bool {
	for _, c := range SupportedCurves {
		if c == curve {
			return true
		}
	}
	return false
}

// EncodeParameters writes pk and vk as a parameters file for kind to w and
// returns the SHA256 of the written file. The keys are serialized twice, once
// to learn their size and once to write them, so nothing large is buffered.
func EncodeParameters(w io.Writer, kind circuits.Kind, pk groth16.ProvingKey, vk groth16.VerifyingKey) (types.HexBytes, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown circuit kind %d", kind)
	}
	if pk.CurveID() != vk.CurveID() {
		return nil, fmt.Errorf("proving key curve %s differs from verifying key curve %s", pk.CurveID(), vk.CurveID())
	}
	if !curveSupported(pk.CurveID()) {
		return nil, fmt.Errorf("unsupported curve %s", pk.CurveID())
	}
	pkLen, err := pk.WriteTo(io.Discard)
	if err != nil {
		return nil, fmt.Errorf("measure proving key: %w", err)
	}
	vkLen, err := vk.WriteTo(io.Discard)
	if err != nil {
		return nil, fmt.Errorf("measure verifying key: %w", err)
	}
	hdr := fileHeader{
		Kind:            uint8(kind),
		Curve:           pk.CurveID().String(),
		ProvingKeyLen:   uint64(pkLen),
		VerifyingKeyLen: uint64(vkLen),
	}
	return encodeEnvelope(w, hdr, pk, vk)
}

// encodeEnvelope writes the file framing around the already measured key
// sections and appends the digest.
func encodeEnvelope(w io.Writer, hdr fileHeader, pk, vk io.WriterTo) (types.HexBytes, error) {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		return nil, fmt.Errorf("encode header: %w", err)
	}
	rawHdr, err := em.Marshal(hdr)
	if err != nil {
		return nil, fmt.Errorf("encode header: %w", err)
	}
	prefix := make([]byte, prefixLen)
	copy(prefix, paramsMagic)
	binary.BigEndian.PutUint16(prefix[len(paramsMagic):], paramsVersion)
	binary.BigEndian.PutUint32(prefix[len(paramsMagic)+2:], uint32(len(rawHdr)))

	hasher := sha256.New()
	mw := io.MultiWriter(hasher, w)
	if _, err := mw.Write(prefix); err != nil {
		return nil, fmt.Errorf("write prefix: %w", err)
	}
	if _, err := mw.Write(rawHdr); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	n, err := pk.WriteTo(mw)
	if err != nil {
		return nil, fmt.Errorf("write proving key: %w", err)
	}
	if uint64(n) != hdr.ProvingKeyLen {
		return nil, fmt.Errorf("proving key size changed while writing: %d != %d", n, hdr.ProvingKeyLen)
	}
	if n, err = vk.WriteTo(mw); err != nil {
		return nil, fmt.Errorf("write verifying key: %w", err)
	}
	if uint64(n) != hdr.VerifyingKeyLen {
		return nil, fmt.Errorf("verifying key size changed while writing: %d != %d", n, hdr.VerifyingKeyLen)
	}
	bodyDigest := hasher.Sum(nil)
	if _, err := mw.Write(bodyDigest); err != nil {
		return nil, fmt.Errorf("write digest: %w", err)
	}
	return hasher.Sum(nil), nil
}

// WriteParametersFile writes the parameters file for kind at path, through a
// temporary file in the same directory that is renamed once complete.
func WriteParametersFile(path string, kind circuits.Kind, pk groth16.ProvingKey, vk groth16.VerifyingKey) (types.HexBytes, error) {
	var digest types.HexBytes
	err := writeFileAtomic(path, func(w io.Writer) error {
		var err error
		digest, err = EncodeParameters(w, kind, pk, vk)
		return err
	})
	if err != nil {
		return nil, err
	}
	return digest, nil
}

// writeFileAtomic creates path with the content produced by writeFunc. The
// destination is only replaced when writeFunc succeeds.
func writeFileAtomic(path string, writeFunc func(w io.Writer) error) error {
	tempFile, err := os.CreateTemp(filepath.Dir(path), "temp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", path, err)
	}
	tempFilename := tempFile.Name()
	success := false
	defer func() {
		if success {
			return
		}
		if err := tempFile.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
			log.Warnw("failed to close temp file", "error", err)
		}
		if err := os.Remove(tempFilename); err != nil {
			log.Warnw("failed to remove temp file", "error", err, "path", tempFilename)
		}
	}()
	if err := writeFunc(tempFile); err != nil {
		return fmt.Errorf("failed to write content: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tempFilename, path); err != nil {
		return fmt.Errorf("failed to rename temp file to %s: %w", path, err)
	}
	success = true
	return nil
}

// ParseParameters decodes a parameters file for kind, validating every point
// encoding. Any mismatch with the expected layout is reported as ErrFormat.
// Decoding real parameters takes seconds.
func ParseParameters(kind circuits.Kind, data []byte) (*ProvingParameters, error) {
	return parseParameters(kind, data, circuits.HashBytesSHA256(data), false)
}

func formatErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrFormat}, args...)...)
}

func parseParameters(kind circuits.Kind, data []byte, fileDigest types.HexBytes, unsafeDecode bool) (*ProvingParameters, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown circuit kind %d", kind)
	}
	if len(data) < prefixLen+digestLen {
		return nil, formatErrorf("stream too short (%d bytes)", len(data))
	}
	if string(data[:len(paramsMagic)]) != paramsMagic {
		return nil, formatErrorf("bad magic %q", data[:len(paramsMagic)])
	}
	if v := binary.BigEndian.Uint16(data[len(paramsMagic):]); v != paramsVersion {
		return nil, formatErrorf("unsupported version %d", v)
	}
	hdrLen := int(binary.BigEndian.Uint32(data[len(paramsMagic)+2:]))
	if hdrLen > maxHeaderLen || prefixLen+hdrLen+digestLen > len(data) {
		return nil, formatErrorf("header length %d out of bounds", hdrLen)
	}
	body, trailer := data[:len(data)-digestLen], data[len(data)-digestLen:]
	if sum := sha256.Sum256(body); !bytes.Equal(sum[:], trailer) {
		return nil, formatErrorf("digest mismatch, file is truncated or corrupted")
	}

	var hdr fileHeader
	if err := headerDecMode.Unmarshal(body[prefixLen:prefixLen+hdrLen], &hdr); err != nil {
		return nil, formatErrorf("decode header: %v", err)
	}
	if circuits.Kind(hdr.Kind) != kind {
		return nil, formatErrorf("file holds %s parameters, expected %s", circuits.Kind(hdr.Kind), kind)
	}
	curve, err := ecc.IDFromString(hdr.Curve)
	if err != nil || !curveSupported(curve) {
		return nil, formatErrorf("unsupported curve %q", hdr.Curve)
	}
	sections := body[prefixLen+hdrLen:]
	if hdr.ProvingKeyLen > uint64(len(sections)) || hdr.ProvingKeyLen+hdr.VerifyingKeyLen != uint64(len(sections)) {
		return nil, formatErrorf("section lengths %d+%d do not match %d payload bytes",
			hdr.ProvingKeyLen, hdr.VerifyingKeyLen, len(sections))
	}
	pkBytes, vkBytes := sections[:hdr.ProvingKeyLen], sections[hdr.ProvingKeyLen:]

	pk := groth16.NewProvingKey(curve)
	read := pk.ReadFrom
	if unsafeDecode {
		read = pk.UnsafeReadFrom
	}
	if err := decodeSection("proving key", pkBytes, read); err != nil {
		return nil, err
	}
	vk := groth16.NewVerifyingKey(curve)
	readVk := vk.ReadFrom
	if unsafeDecode {
		readVk = vk.UnsafeReadFrom
	}
	if err := decodeSection("verifying key", vkBytes, readVk); err != nil {
		return nil, err
	}
	if err := checkKeyPair(pk, vk); err != nil {
		return nil, formatErrorf("%s parameters: %v", kind, err)
	}
	return &ProvingParameters{
		Kind:         kind,
		Curve:        curve,
		ProvingKey:   pk,
		VerifyingKey: vk,
		Digest:       fileDigest,
		Size:         len(data),
	}, nil
}

// decodeSection runs the gnark decoder over section and requires it to
// consume every byte. Decoder panics on hostile input become ErrFormat.
func decodeSection(name string, section []byte, read func(io.Reader) (int64, error)) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = formatErrorf("decode %s: panic: %v", name, r)
		}
	}()
	n, err := read(bytes.NewReader(section))
	if err != nil {
		return formatErrorf("decode %s: %v", name, err)
	}
	if n != int64(len(section)) {
		return formatErrorf("decode %s: consumed %d of %d bytes", name, n, len(section))
	}
	return nil
}
