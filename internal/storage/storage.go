package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
)

var (
	ErrNotFound    = errors.New("storage: object not found")
	ErrUnavailable = errors.New("storage: backend unavailable")
)

// ObjectStore resolves an asset's storage reference to a readable local
// path. Implementations may download remote objects to scratch space.
type ObjectStore interface {
	Fetch(ctx context.Context, storageRef string) (string, error)
}

// LocalStore serves objects from a directory on disk. References are
// paths relative to the root.
type LocalStore struct {
	Root string
}

func NewLocalStore(root string) *LocalStore {
	return &LocalStore{Root: root}
}

func (s *LocalStore) Fetch(_ context.Context, storageRef string) (string, error) {
	clean := filepath.Clean("/" + storageRef)
	path := filepath.Join(s.Root, clean)
	if !strings.HasPrefix(path, filepath.Clean(s.Root)+string(os.PathSeparator)) {
		return "", fmt.Errorf("storage: reference escapes root: %q", storageRef)
	}
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return "", fmt.Errorf("storage: reference is a directory: %q", storageRef)
	}
	return path, nil
}

// BreakerStore wraps an ObjectStore with a circuit breaker so a failing
// backend sheds load fast instead of tying up request handlers. Missing
// objects are not failures.
type BreakerStore struct {
	inner   ObjectStore
	breaker *gobreaker.CircuitBreaker[string]
}

func NewBreakerStore(inner ObjectStore, log *slog.Logger) *BreakerStore {
	cb := gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:    "object-store",
		Timeout: 15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("object store breaker state change",
				"from", from.String(), "to", to.String())
		},
	})
	return &BreakerStore{inner: inner, breaker: cb}
}

func (s *BreakerStore) Fetch(ctx context.Context, storageRef string) (string, error) {
	path, err := s.breaker.Execute(func() (string, error) {
		p, err := s.inner.Fetch(ctx, storageRef)
		if errors.Is(err, ErrNotFound) {
			// not a backend fault; don't trip the breaker
			return "", nil
		}
		return p, err
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "", ErrUnavailable
	}
	if err != nil {
		return "", err
	}
	if path == "" {
		return "", ErrNotFound
	}
	return path, nil
}
