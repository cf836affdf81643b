// Package platforms normalizes heterogeneous platform payloads into canonical
// interactions. One Adapter per platform, selected through a Registry.
package platforms

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/Mohd-umair/repmeup-backend/pkg/db/models"
)

// Adapter transforms one platform's raw payload into zero or more Interaction
// drafts. Implementations must tolerate partial payloads: a malformed item is
// skipped and reported, never allowed to abort its siblings.
type Adapter interface {
	Platform() models.Platform
	Normalize(ctx context.Context, raw json.RawMessage, conn *models.PlatformConnection) ([]models.Interaction, []error)
}

// AdapterError reports a single malformed or unexpected item inside a payload
type AdapterError struct {
	Platform models.Platform
	Item     string
	Err      error
}

func (e *AdapterError) Error() string {
	return fmt.Sprintf("%s adapter: item %q: %v", e.Platform, e.Item, e.Err)
}

func (e *AdapterError) Unwrap() error {
	return e.Err
}

// AnonymousAuthor is the fallback display name when a platform omits author info
const AnonymousAuthor = "Anonymous"

// Registry holds one adapter per platform
type Registry struct {
	mu       sync.RWMutex
	adapters map[models.Platform]Adapter
	logger   *logrus.Logger
}

func NewRegistry(logger *logrus.Logger) *Registry {
	if logger == nil {
		logger = logrus.New()
	}
	return &Registry{
		adapters: make(map[models.Platform]Adapter),
		logger:   logger,
	}
}

// Register adds an adapter; registering the same platform twice is a wiring bug
func (r *Registry) Register(adapter Adapter) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	platform := adapter.Platform()
	if _, exists := r.adapters[platform]; exists {
		return fmt.Errorf("adapter for platform %s already registered", platform)
	}

	r.adapters[platform] = adapter
	r.logger.WithField("platform", platform).Debug("Platform adapter registered")
	return nil
}

// Get returns the adapter for a platform
func (r *Registry) Get(platform models.Platform) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	adapter, exists := r.adapters[platform]
	if !exists {
		return nil, fmt.Errorf("no adapter registered for platform %s", platform)
	}
	return adapter, nil
}

// Platforms lists the registered platform identifiers
func (r *Registry) Platforms() []models.Platform {
	r.mu.RLock()
	defer r.mu.RUnlock()

	platforms := make([]models.Platform, 0, len(r.adapters))
	for p := range r.adapters {
		platforms = append(platforms, p)
	}
	return platforms
}

// NameOrAnonymous applies the author display-name default
func NameOrAnonymous(name string) string {
	if name == "" {
		return AnonymousAuthor
	}
	return name
}
