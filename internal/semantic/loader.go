package semantic

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/mvkaushik27/nalanda/internal/observability"
)

// ErrIndexUnavailable indicates the index files are absent; callers degrade
// to the lexical fallback rather than surfacing this to users.
var ErrIndexUnavailable = errors.New("vector index unavailable")

// Loader lazily loads index files on first use and caches them for the
// process lifetime. Concurrent first loads collapse into one; waiters are
// bounded by the load timeout.
type Loader struct {
	logger        *observability.Logger
	cataloguePath string
	generalPath   string
	timeout       time.Duration

	group singleflight.Group

	mu        sync.RWMutex
	catalogue *CatalogueIndex
	general   *GeneralIndex
}

// NewLoader creates a Loader for the given index files.
func NewLoader(logger *observability.Logger, cataloguePath, generalPath string, timeout time.Duration) *Loader {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Loader{
		logger:        logger,
		cataloguePath: cataloguePath,
		generalPath:   generalPath,
		timeout:       timeout,
	}
}

// Catalogue returns the catalogue index, loading it on first call.
func (l *Loader) Catalogue(ctx context.Context) (*CatalogueIndex, error) {
	l.mu.RLock()
	cached := l.catalogue
	l.mu.RUnlock()
	if cached != nil {
		return cached, nil
	}

	v, err := l.load(ctx, "catalogue", func() (interface{}, error) {
		start := time.Now()
		ix, err := LoadCatalogueIndex(l.cataloguePath)
		if err != nil {
			return nil, err
		}
		l.mu.Lock()
		l.catalogue = ix
		l.mu.Unlock()
		l.logger.Info().Int("vectors", len(ix.Vectors)).Dur("elapsed", time.Since(start)).Msg("catalogue index loaded")
		return ix, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*CatalogueIndex), nil
}

// General returns the general Q&A index, loading it on first call.
func (l *Loader) General(ctx context.Context) (*GeneralIndex, error) {
	l.mu.RLock()
	cached := l.general
	l.mu.RUnlock()
	if cached != nil {
		return cached, nil
	}

	v, err := l.load(ctx, "general", func() (interface{}, error) {
		start := time.Now()
		ix, err := LoadGeneralIndex(l.generalPath)
		if err != nil {
			return nil, err
		}
		l.mu.Lock()
		l.general = ix
		l.mu.Unlock()
		l.logger.Info().Int("vectors", len(ix.Vectors)).Dur("elapsed", time.Since(start)).Msg("general index loaded")
		return ix, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*GeneralIndex), nil
}

// load runs fn once per key across concurrent callers, bounding the wait.
func (l *Loader) load(ctx context.Context, key string, fn func() (interface{}, error)) (interface{}, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	ch := l.group.DoChan(key, fn)
	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, fmt.Errorf("index load timed out: %w", ctx.Err())
	}
}

// Invalidate drops cached indexes so the next call reloads from disk. Used
// after an index rebuild.
func (l *Loader) Invalidate() {
	l.mu.Lock()
	l.catalogue = nil
	l.general = nil
	l.mu.Unlock()
	l.group.Forget("catalogue")
	l.group.Forget("general")
}
