// Package params reads shielded circuit parameter files, decodes them into
// Groth16 proving and verifying keys and prepares the verifying keys for
// verification. A Store holds no mutable state: every load is independent.
package params

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/vocdoni/zkparams/circuits"
	"github.com/vocdoni/zkparams/log"
	"github.com/vocdoni/zkparams/types"
)

// Config holds the Store settings. The zero value reads local files only.
type Config struct {
	// CacheDir keeps a copy of every remotely fetched parameters file. Empty
	// disables the cache.
	CacheDir string
	// FetchTimeout bounds each remote download. Zero means no timeout.
	FetchTimeout time.Duration
	// S3 configures the client used for s3:// locations.
	S3 *S3Config
	// HTTPClient is used for http:// and https:// locations. Nil means a
	// client without timeout.
	HTTPClient *http.Client
	// Digests pins the SHA256 of the parameters file of each circuit.
	Digests map[circuits.Kind]types.HexBytes
	// SkipSubgroupChecks decodes points without subgroup checks when the
	// file digest is pinned and matches. It has no effect otherwise.
	SkipSubgroupChecks bool
}

// Store loads parameters for a single circuit at a time.
type Store struct {
	cfg Config
}

// NewStore returns a Store with the given configuration.
func NewStore(cfg Config) *Store {
	return &Store{cfg: cfg}
}

// Config returns a copy of the store configuration.
func (s *Store) Config() Config {
	return s.cfg
}

// ReadBytes returns the full content addressed by location. Supported
// locations are plain file paths, file://, http://, https:// and s3://
// URLs. Any failure, including a short read, wraps ErrIO.
func (s *Store) ReadBytes(ctx context.Context, location string) ([]byte, error) {
	scheme, rest, remote := strings.Cut(location, "://")
	if !remote {
		return readFile(location)
	}
	switch strings.ToLower(scheme) {
	case "file":
		return readFile(rest)
	case "http", "https":
		return s.readRemote(ctx, location, s.fetchHTTP)
	case "s3":
		return s.readRemote(ctx, location, s.fetchS3)
	default:
		return nil, fmt.Errorf("%w: unsupported location scheme %q", ErrIO, scheme)
	}
}

// ParseParameters decodes a parameters file for kind. Points are validated
// unless SkipSubgroupChecks is set and the pinned digest of kind matches.
func (s *Store) ParseParameters(kind circuits.Kind, data []byte) (*ProvingParameters, error) {
	digest := circuits.HashBytesSHA256(data)
	if err := s.checkDigest(kind, digest); err != nil {
		return nil, err
	}
	return parseParameters(kind, data, digest, s.unsafeDecode(kind))
}

// LoadForCircuit reads the parameters of kind from location, decodes them
// and prepares the verifying key. Calls are independent from each other and
// may run concurrently.
func (s *Store) LoadForCircuit(ctx context.Context, kind circuits.Kind, location string) (*ProvingParameters, *PreparedVerifyingKey, error) {
	start := time.Now()
	data, err := s.ReadBytes(ctx, location)
	if err != nil {
		return nil, nil, fmt.Errorf("read %s parameters: %w", kind, err)
	}
	log.Debugw("parameters read", "circuit", kind.String(), "location", location,
		"size", len(data), "elapsed", time.Since(start).String())

	pp, err := s.ParseParameters(kind, data)
	if err != nil {
		s.evictCached(location)
		return nil, nil, fmt.Errorf("parse %s parameters from %s: %w", kind, location, err)
	}
	pvk, err := PrepareVerifyingKey(kind, pp.VerifyingKey)
	if err != nil {
		return nil, nil, fmt.Errorf("prepare %s verifying key: %w", kind, err)
	}
	log.Infow("circuit parameters loaded",
		"circuit", kind.String(),
		"curve", pp.Curve.String(),
		"size", pp.Size,
		"digest", pp.Digest.Hex(),
		"publicInputs", pvk.NbPublicWitness(),
		"elapsed", time.Since(start).String())
	return pp, pvk, nil
}

func (s *Store) checkDigest(kind circuits.Kind, digest types.HexBytes) error {
	want, ok := s.cfg.Digests[kind]
	if !ok || len(want) == 0 {
		return nil
	}
	if !want.Equal(digest) {
		return formatErrorf("%s parameters digest %s, expected %s", kind, digest.Hex(), want.Hex())
	}
	return nil
}

func (s *Store) unsafeDecode(kind circuits.Kind) bool {
	return s.cfg.SkipSubgroupChecks && len(s.cfg.Digests[kind]) > 0
}

// readFile reads the whole file at path, failing if fewer bytes than the
// file size can be read.
func readFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			log.Warnw("failed to close parameters file", "path", path, "error", err)
		}
	}()
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrIO, path)
	}
	data := make([]byte, info.Size())
	if _, err := io.ReadFull(f, data); err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrIO, path, err)
	}
	return data, nil
}
