package source

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"go.viam.com/peoplecount/logging"
)

// DefaultBackend is used when a Config names no backend.
const DefaultBackend = "opencv"

// An Opener opens a backend Reader for the given config. It must return an *UnavailableError when
// the input cannot be opened.
type Opener func(ctx context.Context, cfg Config, logger logging.Logger) (Reader, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Opener{}
)

// RegisterBackend makes a backend available by name. It panics on duplicates, which can only
// happen through a programming error in an init function.
func RegisterBackend(name string, opener Opener) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, ok := registry[name]; ok {
		panic(errors.Errorf("source backend %q already registered", name))
	}
	registry[name] = opener
}

// RegisteredBackends lists the names of every registered backend.
func RegisteredBackends() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func lookupBackend(name string) (Opener, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	opener, ok := registry[name]
	return opener, ok
}

// Open opens the backend named by cfg and wraps it as a Source.
func Open(ctx context.Context, cfg Config, logger logging.Logger) (Source, error) {
	name := cfg.Backend
	if name == "" {
		name = DefaultBackend
	}
	opener, ok := lookupBackend(name)
	if !ok {
		return nil, NewUnavailableError(cfg, errors.Errorf("unknown source backend %q (have %v)", name, RegisteredBackends()))
	}

	reader, err := opener(ctx, cfg, logger)
	if err != nil {
		if IsUnavailable(err) {
			return nil, err
		}
		return nil, NewUnavailableError(cfg, err)
	}
	logger.CDebugw(ctx, "source opened", "backend", name, "target", cfg.Target())
	return Wrap(reader), nil
}
