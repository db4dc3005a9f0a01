package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/fx"

	storageConfig "github.com/tigerroll/citibike/pkg/batch/adapter/storage/config"
	config "github.com/tigerroll/citibike/pkg/batch/core/config"
	"github.com/tigerroll/citibike/pkg/batch/support/util/logger"
)

// ConnectionFactory opens a connection from its decoded configuration.
type ConnectionFactory func(cfg storageConfig.StorageConfig, name string) (StorageConnection, error)

// BaseProvider caches the connections of one storage type and opens them through its factory.
type BaseProvider struct {
	cfg         *config.Config
	storageType string
	factory     ConnectionFactory
	connections map[string]StorageConnection
	mu          sync.RWMutex
}

// NewBaseProvider creates a provider for storageType.
func NewBaseProvider(cfg *config.Config, storageType string, factory ConnectionFactory) *BaseProvider {
	return &BaseProvider{
		cfg:         cfg,
		storageType: storageType,
		factory:     factory,
		connections: make(map[string]StorageConnection),
	}
}

// Type returns the storage type.
func (p *BaseProvider) Type() string {
	return p.storageType
}

// GetConnection retrieves an existing connection or opens a new one.
func (p *BaseProvider) GetConnection(name string) (StorageConnection, error) {
	p.mu.RLock()
	conn, ok := p.connections[name]
	p.mu.RUnlock()
	if ok {
		return conn, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if conn, ok = p.connections[name]; ok {
		return conn, nil
	}

	var sc storageConfig.StorageConfig
	if err := config.DecodeAdapter(p.cfg.Citibike.Adapter.Storage, name, &sc); err != nil {
		return nil, fmt.Errorf("storage provider '%s': %w", p.storageType, err)
	}
	if sc.Type != p.storageType {
		return nil, fmt.Errorf("storage config type mismatch for '%s': expected '%s', got '%s'", name, p.storageType, sc.Type)
	}
	conn, err := p.factory(sc, name)
	if err != nil {
		return nil, err
	}
	p.connections[name] = conn
	logger.Debugf("Created new %s storage connection '%s'.", p.storageType, name)
	return conn, nil
}

// CloseAll closes all connections managed by this provider.
func (p *BaseProvider) CloseAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var result *multierror.Error
	for name, conn := range p.connections {
		if err := conn.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("failed to close %s storage connection '%s': %w", p.storageType, name, err))
		}
		delete(p.connections, name)
	}
	return result.ErrorOrNil()
}

// Resolver dispatches a connection name to the provider of its configured type.
type Resolver struct {
	providers map[string]StorageProvider
	cfg       *config.Config
}

// ResolverParams receives every StorageProvider registered in the storage_providers group.
type ResolverParams struct {
	fx.In
	Providers []StorageProvider `group:"storage_providers"`
	Cfg       *config.Config
}

// NewResolver creates a Resolver over the given providers.
func NewResolver(p ResolverParams) *Resolver {
	providers := make(map[string]StorageProvider, len(p.Providers))
	for _, sp := range p.Providers {
		providers[sp.Type()] = sp
	}
	return &Resolver{providers: providers, cfg: p.Cfg}
}

// ResolveStorageConnection returns the connection named name.
func (r *Resolver) ResolveStorageConnection(ctx context.Context, name string) (StorageConnection, error) {
	var connCfg struct {
		Type string `yaml:"type"`
	}
	if err := config.DecodeAdapter(r.cfg.Citibike.Adapter.Storage, name, &connCfg); err != nil {
		return nil, fmt.Errorf("StorageConnectionResolver: %w", err)
	}
	provider, ok := r.providers[connCfg.Type]
	if !ok {
		return nil, fmt.Errorf("StorageConnectionResolver: no provider registered for storage type '%s' (connection '%s')", connCfg.Type, name)
	}
	return provider.GetConnection(name)
}

// CloseAll closes the connections of every provider.
func (r *Resolver) CloseAll() error {
	var result *multierror.Error
	for _, p := range r.providers {
		if err := p.CloseAll(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

var _ StorageConnectionResolver = (*Resolver)(nil)

// NewResolverProvider builds the resolver and closes all connections when the application stops.
func NewResolverProvider(lc fx.Lifecycle, p ResolverParams) StorageConnectionResolver {
	r := NewResolver(p)
	lc.Append(fx.Hook{OnStop: func(context.Context) error { return r.CloseAll() }})
	return r
}

// Module exports the storage resolver. Backends are added by the local and gcs subpackages.
var Module = fx.Options(
	fx.Provide(NewResolverProvider),
)
