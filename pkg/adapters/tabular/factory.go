package tabular

import (
	"context"
	"fmt"

	"github.com/insightlabs/insight-engine/pkg/models"
)

// EngineFactory creates tabular engines for registered source types.
type EngineFactory interface {
	// NewEngine creates an engine for the dataset's source type.
	NewEngine(ctx context.Context, ds *models.Dataset, opts Options) (Engine, error)
}

// EngineConstructor builds an engine for one source type.
type EngineConstructor func(ctx context.Context, ds *models.Dataset, opts Options) (Engine, error)

type registryFactory struct {
	constructors map[models.SourceType]EngineConstructor
}

// NewEngineFactory returns a factory over the given constructor registry.
func NewEngineFactory(constructors map[models.SourceType]EngineConstructor) EngineFactory {
	return &registryFactory{constructors: constructors}
}

func (f *registryFactory) NewEngine(ctx context.Context, ds *models.Dataset, opts Options) (Engine, error) {
	ctor, ok := f.constructors[ds.SourceType]
	if !ok {
		return nil, fmt.Errorf("unsupported source type: %s (not compiled in)", ds.SourceType)
	}
	return ctor(ctx, ds, opts)
}

var _ EngineFactory = (*registryFactory)(nil)
