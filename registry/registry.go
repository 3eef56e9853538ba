// Package registry keeps the process-wide bundle of shielded circuit keys.
// The bundle is loaded at most once, on the first successful Initialize, and
// every later Global call returns the same instance.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vocdoni/zkparams/circuits"
	"github.com/vocdoni/zkparams/log"
	"github.com/vocdoni/zkparams/params"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// ErrNotInitialized is the panic value of Global when no bundle has been
// published yet.
var ErrNotInitialized = errors.New("shielded parameters are not initialized")

// State is the lifecycle state of a Registry.
type State int32

const (
	// Empty means no bundle is loaded nor being loaded.
	Empty State = iota
	// Initializing means a load is in flight.
	Initializing
	// Ready means the bundle is published. It is terminal.
	Ready
)

func (s State) String() string {
	switch s {
	case Empty:
		return "empty"
	case Initializing:
		return "initializing"
	case Ready:
		return "ready"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Loader loads the keys of a single circuit. *params.Store implements it.
type Loader interface {
	LoadForCircuit(ctx context.Context, kind circuits.Kind, location string) (*params.ProvingParameters, *params.PreparedVerifyingKey, error)
}

const flightKey = "bundle"

// Registry publishes a Bundle exactly once. The zero value is not usable,
// use New.
type Registry struct {
	mu     sync.Mutex // guards loader
	loader Loader

	flight singleflight.Group
	bundle atomic.Pointer[Bundle]
	state  atomic.Int32
	loads  atomic.Int64
}

// New returns an empty Registry that loads circuits with loader.
func New(loader Loader) *Registry {
	return &Registry{loader: loader}
}

// SetLoader replaces the loader. It fails once a load has started.
func (r *Registry) SetLoader(loader Loader) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s := r.State(); s != Empty {
		return fmt.Errorf("cannot replace loader, registry is %s", s)
	}
	r.loader = loader
	return nil
}

// Initialize loads the mint, spend and output parameters and publishes them.
// Concurrent callers share a single load and all get its outcome. Once the
// registry is ready it returns true without loading anything, whatever the
// locations: the first successful call wins. On failure nothing is
// published and the call can be retried.
func (r *Registry) Initialize(mint, spend, output string) (bool, error) {
	locations := Locations{Mint: mint, Spend: spend, Output: output}
	if b := r.bundle.Load(); b != nil {
		warnIgnoredLocations(b, locations)
		return true, nil
	}
	_, err, _ := r.flight.Do(flightKey, func() (any, error) {
		if b := r.bundle.Load(); b != nil {
			return b, nil
		}
		r.state.Store(int32(Initializing))
		b, err := r.load(locations)
		if err != nil {
			r.state.Store(int32(Empty))
			return nil, err
		}
		r.bundle.Store(b)
		r.state.Store(int32(Ready))
		return b, nil
	})
	if err != nil {
		return false, err
	}
	warnIgnoredLocations(r.bundle.Load(), locations)
	return true, nil
}

// load runs the three circuit loads in parallel and builds the bundle only if
// all of them succeed.
func (r *Registry) load(locations Locations) (*Bundle, error) {
	r.mu.Lock()
	loader := r.loader
	r.mu.Unlock()
	if loader == nil {
		return nil, fmt.Errorf("registry has no loader")
	}

	r.loads.Add(1)
	start := time.Now()
	log.Infow("loading shielded circuit parameters",
		"spend", locations.Spend, "output", locations.Output, "mint", locations.Mint)

	results := make([]Keys, len(circuits.Kinds))
	g, ctx := errgroup.WithContext(context.Background())
	for i, kind := range circuits.Kinds {
		g.Go(func() error {
			pp, pvk, err := loader.LoadForCircuit(ctx, kind, locations.For(kind))
			if err != nil {
				return fmt.Errorf("load %s circuit: %w", kind, err)
			}
			results[i] = Keys{Params: pp, VerifyingKey: pvk}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Errorw(err, "failed to load shielded circuit parameters")
		return nil, err
	}

	keys := make(map[circuits.Kind]Keys, len(circuits.Kinds))
	for i, kind := range circuits.Kinds {
		keys[kind] = results[i]
	}
	b, err := newBundle(locations, keys)
	if err != nil {
		return nil, err
	}
	log.Infow("shielded circuit parameters ready", "elapsed", time.Since(start).String())
	return b, nil
}

func warnIgnoredLocations(b *Bundle, requested Locations) {
	if b == nil || b.Locations() == requested {
		return
	}
	loaded := b.Locations()
	log.Warnw("parameters already initialized, ignoring requested locations",
		"loadedSpend", loaded.Spend, "loadedOutput", loaded.Output, "loadedMint", loaded.Mint,
		"requestedSpend", requested.Spend, "requestedOutput", requested.Output, "requestedMint", requested.Mint)
}

// Global returns the published bundle. Calling it before a successful
// Initialize is a programming error: it logs and panics with
// ErrNotInitialized.
func (r *Registry) Global() *Bundle {
	b := r.bundle.Load()
	if b == nil {
		log.Errorw(ErrNotInitialized, "shielded circuit keys requested before Initialize")
		panic(ErrNotInitialized)
	}
	return b
}

// Lookup returns the published bundle, if any, without panicking.
func (r *Registry) Lookup() (*Bundle, bool) {
	b := r.bundle.Load()
	return b, b != nil
}

// IsReady reports whether a bundle is published.
func (r *Registry) IsReady() bool {
	return r.bundle.Load() != nil
}

// State returns the current lifecycle state.
func (r *Registry) State() State {
	return State(r.state.Load())
}

// Locations returns the locations the published bundle was loaded from.
func (r *Registry) Locations() (Locations, bool) {
	b := r.bundle.Load()
	if b == nil {
		return Locations{}, false
	}
	return b.Locations(), true
}

// Loads returns how many bundle loads have been attempted.
func (r *Registry) Loads() int64 {
	return r.loads.Load()
}
