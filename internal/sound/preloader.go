package sound

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/charlesng35/crewbell/pkg/logger"
)

// State is the load state of a sound asset.
type State int

const (
	StatePending State = iota
	StateLoaded
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateLoaded:
		return "loaded"
	case StateErrored:
		return "errored"
	default:
		return "pending"
	}
}

// MarshalText renders the state by name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Loader fetches a single asset. Preloader calls it once per catalog entry.
type Loader interface {
	Load(ctx context.Context, entry Entry) error
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, entry Entry) error

func (f LoaderFunc) Load(ctx context.Context, entry Entry) error { return f(ctx, entry) }

// FSLoader checks that assets exist and are non-empty in FS.
type FSLoader struct {
	FS fs.FS
}

func (l FSLoader) Load(ctx context.Context, entry Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if l.FS == nil {
		return fmt.Errorf("sound %q: no asset filesystem", entry.ID)
	}
	f, err := l.FS.Open(strings.TrimPrefix(path.Clean("/"+entry.Path), "/"))
	if err != nil {
		return err
	}
	defer f.Close()

	buf := make([]byte, 512)
	n, err := f.Read(buf)
	if err != nil && err != io.EOF {
		return err
	}
	if n == 0 {
		return fmt.Errorf("sound %q: asset is empty", entry.ID)
	}
	return nil
}

// FileLoader checks that assets exist and are readable below Root.
type FileLoader struct {
	Root string
}

func (l FileLoader) Load(ctx context.Context, entry Entry) error {
	return FSLoader{FS: os.DirFS(l.Root)}.Load(ctx, entry)
}

// Status is the public view of one asset's load state.
type Status struct {
	Entry
	State State  `json:"state"`
	Error string `json:"error,omitempty"`
}

// Preloader loads every catalog entry concurrently and tracks the outcome.
type Preloader struct {
	catalog *Catalog
	loader  Loader
	log     *zap.Logger

	mu     sync.RWMutex
	states map[string]State
	errs   map[string]error

	startOnce sync.Once
	wg        sync.WaitGroup
}

// NewPreloader constructs a Preloader with every entry pending.
func NewPreloader(catalog *Catalog, loader Loader) (*Preloader, error) {
	if catalog == nil {
		return nil, fmt.Errorf("sound preloader: catalog is required")
	}
	if loader == nil {
		return nil, fmt.Errorf("sound preloader: loader is required")
	}

	p := &Preloader{
		catalog: catalog,
		loader:  loader,
		log:     logger.WithModule("sound"),
		states:  make(map[string]State, len(catalog.entries)),
		errs:    make(map[string]error),
	}
	for _, entry := range catalog.entries {
		p.states[entry.ID] = StatePending
	}
	return p, nil
}

// Start begins loading in the background. Only the first call has an effect.
func (p *Preloader) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		for _, entry := range p.catalog.entries {
			p.wg.Add(1)
			go func(entry Entry) {
				defer p.wg.Done()
				p.record(entry, p.loader.Load(ctx, entry))
			}(entry)
		}
	})
}

// Wait blocks until every load started by Start has finished.
func (p *Preloader) Wait() {
	p.wg.Wait()
}

func (p *Preloader) record(entry Entry, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err != nil {
		p.states[entry.ID] = StateErrored
		p.errs[entry.ID] = err
		p.log.Warn("sound failed to load", zap.String("sound", entry.ID), zap.Error(err))
		return
	}
	p.states[entry.ID] = StateLoaded
	delete(p.errs, entry.ID)
	p.log.Debug("sound loaded", zap.String("sound", entry.ID))
}

// State reports the load state of id. Unknown ids are errored.
func (p *Preloader) State(id string) State {
	p.mu.RLock()
	defer p.mu.RUnlock()

	state, ok := p.states[id]
	if !ok {
		return StateErrored
	}
	return state
}

// Statuses lists every asset in catalog order.
func (p *Preloader) Statuses() []Status {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]Status, 0, len(p.catalog.entries))
	for _, entry := range p.catalog.entries {
		status := Status{Entry: entry, State: p.states[entry.ID]}
		if err := p.errs[entry.ID]; err != nil {
			status.Error = err.Error()
		}
		out = append(out, status)
	}
	return out
}
