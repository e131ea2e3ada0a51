package recognize

import (
	"context"
	"io"
	"sort"
	"sync"

	"go.uber.org/zap"

	"pdf-ocr-batch/internal/command"
	"pdf-ocr-batch/internal/domain"
	"pdf-ocr-batch/internal/pages"
)

// Translator renders a page sequence into one artifact format.
type Translator interface {
	Translate(ctx context.Context, src pages.Source, w io.Writer) error
}

// TranslatorConfig is passed to factories when an engine is initialized.
type TranslatorConfig struct {
	ResourceDir   string
	Language      string
	DPI           int
	TesseractPath string
	WorkDir       string
	Runner        command.Runner
	Logger        *zap.Logger
}

// Factory creates a translator for one engine lifetime.
type Factory func(cfg TranslatorConfig) (Translator, error)

type registration struct {
	name    string
	factory Factory
}

// Registry maps artifact kinds to the translators linked into the binary.
type Registry struct {
	mu      sync.RWMutex
	entries map[domain.ArtifactKind]registration
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[domain.ArtifactKind]registration)}
}

// DefaultRegistry is populated by the translators compiled into the binary.
var DefaultRegistry = NewRegistry()

// Register installs factory for kind into DefaultRegistry.
func Register(kind domain.ArtifactKind, name string, factory Factory) {
	DefaultRegistry.Register(kind, name, factory)
}

// Register installs factory for kind, replacing any previous entry.
func (r *Registry) Register(kind domain.ArtifactKind, name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[kind] = registration{name: name, factory: factory}
}

// Lookup returns the translator name and factory registered for kind.
func (r *Registry) Lookup(kind domain.ArtifactKind) (string, Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.entries[kind]
	return reg.name, reg.factory, ok
}

// Supports reports whether a translator for kind is available.
func (r *Registry) Supports(kind domain.ArtifactKind) bool {
	_, _, ok := r.Lookup(kind)
	return ok
}

// Kinds lists registered kinds in a stable order.
func (r *Registry) Kinds() []domain.ArtifactKind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.ArtifactKind, 0, len(r.entries))
	for k := range r.entries {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Capabilities is the result of probing a registry once at startup.
type Capabilities struct {
	SearchablePDF bool
	PlainText     bool
	Layout        bool
}

// Probe queries the registry for every artifact kind.
func Probe(r *Registry) Capabilities {
	if r == nil {
		r = DefaultRegistry
	}
	return Capabilities{
		SearchablePDF: r.Supports(domain.ArtifactSearchablePDF),
		PlainText:     r.Supports(domain.ArtifactPlainText),
		Layout:        r.Supports(domain.ArtifactLayoutJSON),
	}
}
