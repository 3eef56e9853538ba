package registry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/zkparams/circuits"
	"github.com/vocdoni/zkparams/internal/testutil"
	"github.com/vocdoni/zkparams/params"
)

// fakeLoader serves the keys of a fixture and can be told to fail.
type fakeLoader struct {
	keys  map[circuits.Kind]Keys
	delay time.Duration
	fail  atomic.Bool
	calls atomic.Int32
}

func (l *fakeLoader) LoadForCircuit(ctx context.Context, kind circuits.Kind, location string) (*params.ProvingParameters, *params.PreparedVerifyingKey, error) {
	l.calls.Add(1)
	if l.delay > 0 {
		time.Sleep(l.delay)
	}
	if l.fail.Load() && kind == circuits.Output {
		return nil, nil, fmt.Errorf("%w: %s unreachable", params.ErrIO, location)
	}
	k := l.keys[kind]
	return k.Params, k.VerifyingKey, nil
}

var (
	fixtureOnce sync.Once
	fixtureKeys map[circuits.Kind]Keys
	fixture     *testutil.Fixture
	fixtureErr  error
)

// loadFixture generates parameters files once for the whole package.
func loadFixture(c *qt.C) (*testutil.Fixture, map[circuits.Kind]Keys) {
	fixtureOnce.Do(func() {
		dir, err := os.MkdirTemp("", "zkparams-registry")
		if err != nil {
			fixtureErr = err
			return
		}
		fixture, fixtureErr = testutil.GenerateParams(circuits.ParamsCurve, dir)
		if fixtureErr != nil {
			return
		}
		store := params.NewStore(params.Config{})
		fixtureKeys = make(map[circuits.Kind]Keys)
		for _, kind := range circuits.Kinds {
			pp, pvk, err := store.LoadForCircuit(context.Background(), kind, fixture.Path(kind))
			if err != nil {
				fixtureErr = err
				return
			}
			fixtureKeys[kind] = Keys{Params: pp, VerifyingKey: pvk}
		}
	})
	c.Assert(fixtureErr, qt.IsNil)
	return fixture, fixtureKeys
}

func TestMain(m *testing.M) {
	code := m.Run()
	if fixture != nil {
		_ = os.RemoveAll(fixture.Dir)
	}
	os.Exit(code)
}

func TestGlobalBeforeInitialize(t *testing.T) {
	c := qt.New(t)
	r := New(&fakeLoader{})

	c.Assert(r.State(), qt.Equals, Empty)
	c.Assert(r.IsReady(), qt.IsFalse)
	_, ok := r.Lookup()
	c.Assert(ok, qt.IsFalse)
	_, ok = r.Locations()
	c.Assert(ok, qt.IsFalse)
	c.Assert(func() { r.Global() }, qt.PanicMatches, ErrNotInitialized.Error())
}

func TestInitializeConcurrent(t *testing.T) {
	c := qt.New(t)
	_, keys := loadFixture(c)
	loader := &fakeLoader{keys: keys, delay: 50 * time.Millisecond}
	r := New(loader)

	const callers = 32
	var wg sync.WaitGroup
	bundles := make([]*Bundle, callers)
	errs := make([]error, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := r.Initialize("mint.params", "spend.params", "output.params")
			if err == nil && !ok {
				err = errors.New("initialize returned false")
			}
			errs[i] = err
			if err == nil {
				bundles[i] = r.Global()
			}
		}()
	}
	wg.Wait()

	for i := range callers {
		c.Assert(errs[i], qt.IsNil)
		c.Assert(bundles[i], qt.Equals, bundles[0])
	}
	c.Assert(r.Loads(), qt.Equals, int64(1))
	c.Assert(loader.calls.Load(), qt.Equals, int32(len(circuits.Kinds)))
	c.Assert(r.State(), qt.Equals, Ready)

	for _, kind := range circuits.Kinds {
		c.Assert(bundles[0].Params(kind), qt.Equals, keys[kind].Params)
		c.Assert(bundles[0].VerifyingKey(kind), qt.Equals, keys[kind].VerifyingKey)
		c.Assert(bundles[0].Keys(kind).Params.Kind, qt.Equals, kind)
	}
}

func TestInitializeFailureAndRetry(t *testing.T) {
	c := qt.New(t)
	_, keys := loadFixture(c)
	loader := &fakeLoader{keys: keys}
	loader.fail.Store(true)
	r := New(loader)

	ok, err := r.Initialize("mint.params", "spend.params", "output.params")
	c.Assert(ok, qt.IsFalse)
	c.Assert(err, qt.ErrorIs, params.ErrIO)
	c.Assert(err, qt.ErrorMatches, `load output circuit: .*output.params unreachable`)
	c.Assert(r.State(), qt.Equals, Empty)
	c.Assert(r.IsReady(), qt.IsFalse)
	c.Assert(func() { r.Global() }, qt.PanicMatches, ErrNotInitialized.Error())

	loader.fail.Store(false)
	ok, err = r.Initialize("mint.params", "spend.params", "output.params")
	c.Assert(err, qt.IsNil)
	c.Assert(ok, qt.IsTrue)
	c.Assert(r.State(), qt.Equals, Ready)
	c.Assert(r.Loads(), qt.Equals, int64(2))
}

func TestFirstInitializeWins(t *testing.T) {
	c := qt.New(t)
	_, keys := loadFixture(c)
	loader := &fakeLoader{keys: keys}
	r := New(loader)

	ok, err := r.Initialize("a/mint.params", "a/spend.params", "a/output.params")
	c.Assert(err, qt.IsNil)
	c.Assert(ok, qt.IsTrue)
	first := r.Global()

	// later calls succeed without loading, even if they would fail
	loader.fail.Store(true)
	ok, err = r.Initialize("b/mint.params", "b/spend.params", "b/output.params")
	c.Assert(err, qt.IsNil)
	c.Assert(ok, qt.IsTrue)
	c.Assert(r.Global(), qt.Equals, first)
	c.Assert(r.Loads(), qt.Equals, int64(1))

	locations, ok := r.Locations()
	c.Assert(ok, qt.IsTrue)
	c.Assert(locations, qt.Equals, Locations{Mint: "a/mint.params", Spend: "a/spend.params", Output: "a/output.params"})
	c.Assert(first.Locations(), qt.Equals, locations)

	c.Assert(r.SetLoader(&fakeLoader{}), qt.ErrorMatches, `cannot replace loader, registry is ready`)
}

func TestInitializeFromFiles(t *testing.T) {
	c := qt.New(t)
	f, _ := loadFixture(c)
	r := New(params.NewStore(params.Config{}))

	ok, err := r.Initialize(f.Path(circuits.Mint), f.Path(circuits.Spend), f.Path(circuits.Output))
	c.Assert(err, qt.IsNil)
	c.Assert(ok, qt.IsTrue)
	b := r.Global()
	for _, kind := range circuits.Kinds {
		c.Assert(b.Params(kind).Kind, qt.Equals, kind)
		c.Assert(b.Params(kind).Digest.Equal(f.Circuits[kind].Digest), qt.IsTrue)
		c.Assert(b.VerifyingKey(kind).Kind(), qt.Equals, kind)
	}

	// swapped locations are caught by the circuit check
	r = New(params.NewStore(params.Config{}))
	ok, err = r.Initialize(f.Path(circuits.Spend), f.Path(circuits.Mint), f.Path(circuits.Output))
	c.Assert(ok, qt.IsFalse)
	c.Assert(err, qt.ErrorIs, params.ErrFormat)
	c.Assert(r.State(), qt.Equals, Empty)
}

func TestRegistryWithoutLoader(t *testing.T) {
	c := qt.New(t)
	r := New(nil)
	_, err := r.Initialize("m", "s", "o")
	c.Assert(err, qt.ErrorMatches, `registry has no loader`)
	c.Assert(r.Loads(), qt.Equals, int64(0))
}

func TestStateString(t *testing.T) {
	c := qt.New(t)
	c.Assert(Empty.String(), qt.Equals, "empty")
	c.Assert(Initializing.String(), qt.Equals, "initializing")
	c.Assert(Ready.String(), qt.Equals, "ready")
	c.Assert(State(7).String(), qt.Equals, "state(7)")
}

func TestLocationsFor(t *testing.T) {
	c := qt.New(t)
	l := Locations{Mint: "m", Spend: "s", Output: "o"}
	c.Assert(l.For(circuits.Mint), qt.Equals, "m")
	c.Assert(l.For(circuits.Spend), qt.Equals, "s")
	c.Assert(l.For(circuits.Output), qt.Equals, "o")
	c.Assert(func() { l.For(circuits.Kind(0)) }, qt.PanicMatches, `no location for circuit kind\(0\)`)
}

func TestDefaultRegistry(t *testing.T) {
	c := qt.New(t)
	f, _ := loadFixture(c)

	c.Assert(Default().IsReady(), qt.IsFalse)
	c.Assert(func() { Global() }, qt.PanicMatches, ErrNotInitialized.Error())
	c.Assert(Configure(params.Config{CacheDir: c.TempDir()}), qt.IsNil)

	ok, err := Initialize(f.Path(circuits.Mint), f.Path(circuits.Spend), f.Path(circuits.Output))
	c.Assert(err, qt.IsNil)
	c.Assert(ok, qt.IsTrue)
	c.Assert(Global(), qt.Equals, Default().Global())
	c.Assert(Configure(params.Config{}), qt.ErrorMatches, `cannot replace loader, registry is ready`)
}
