// Package dbbroker implements the DbBroker (§4.5): a cache of live
// database connections opened on demand and addressed by opaque
// connection id, presenting one uniform execute/fetch API across
// postgres, mysql, mongodb, and dynamodb.
package dbbroker

import (
	"context"

	"github.com/oriys/raikiri/internal/cache"
	"github.com/oriys/raikiri/internal/domain"
	"github.com/oriys/raikiri/internal/errkind"
)

// Row is one returned record, keyed by column/field name.
type Row map[string]any

// Connection is the uniform capability every backend driver exposes to
// the CapabilityBridge (§4.5 "Uniform command surface").
type Connection interface {
	// ExecuteCommand runs a statement with no expected result rows and
	// returns the number of rows affected.
	ExecuteCommand(ctx context.Context, command string, params []any) (int64, error)
	// FetchRows runs a statement expected to return rows.
	FetchRows(ctx context.Context, query string, params []any) ([]Row, error)
	// Close releases the underlying driver resources.
	Close() error
}

// Dialer opens a new Connection for a DSN. One Dialer is registered per
// domain.ConnectionKind.
type Dialer func(ctx context.Context, dsn string) (Connection, error)

// Config is what a caller supplies to open a connection the first time
// its id is seen.
type Config struct {
	Kind domain.ConnectionKind
	DSN  string
}

// Broker is the process-wide DbBroker. Connections are cached by the
// same KeyedCache the rest of the runtime uses (§4.1, §4.5). A call holds
// the cache entry's read guard only while looking the connection up, not
// while its statement runs, so Close does not wait for calls already in
// progress on that connection.
type Broker struct {
	dialers map[domain.ConnectionKind]Dialer
	configs *cache.KeyedCache[string, Config]
	conns   *cache.KeyedCache[string, Connection]
}

// New returns a Broker with the given dialers registered by kind.
func New(dialers map[domain.ConnectionKind]Dialer) *Broker {
	return &Broker{
		dialers: dialers,
		configs: cache.New[string, Config](),
		conns:   cache.New[string, Connection](),
	}
}

// Register associates connID (an opaque identifier chosen by the
// caller, typically a UUID minted by the CapabilityBridge) with cfg, without
// opening a connection. The connection is opened lazily on first use.
func (b *Broker) Register(connID string, cfg Config) {
	b.configs.LookupOrBuildSync(connID, func() Config { return cfg }).Read().Release()
}

func (b *Broker) get(ctx context.Context, connID string) (Connection, error) {
	cfgEntry, err := b.configs.LookupOrBuildAsync(ctx, connID, func(context.Context) (Config, error) {
		return Config{}, errkind.Wrapf(errkind.NotFound, "dbbroker: connection %q was never registered", connID)
	})
	if err != nil {
		return nil, err
	}
	cfgGuard := cfgEntry.Read()
	cfg := cfgGuard.Value()
	cfgGuard.Release()

	entry, err := b.conns.LookupOrBuildAsync(ctx, connID, func(ctx context.Context) (Connection, error) {
		dialer, ok := b.dialers[cfg.Kind]
		if !ok {
			return nil, errkind.Wrapf(errkind.Capability, "dbbroker: no dialer registered for kind %q", cfg.Kind)
		}
		return dialer(ctx, cfg.DSN)
	})
	if err != nil {
		return nil, err
	}
	g := entry.Read()
	defer g.Release()
	return g.Value(), nil
}

// ExecuteCommand runs command against the connection identified by
// connID.
func (b *Broker) ExecuteCommand(ctx context.Context, connID, command string, params []any) (int64, error) {
	conn, err := b.get(ctx, connID)
	if err != nil {
		return 0, err
	}
	return conn.ExecuteCommand(ctx, command, params)
}

// FetchRows runs query against the connection identified by connID.
func (b *Broker) FetchRows(ctx context.Context, connID, query string, params []any) ([]Row, error) {
	conn, err := b.get(ctx, connID)
	if err != nil {
		return nil, err
	}
	return conn.FetchRows(ctx, query, params)
}

// Close evicts connID from the cache and closes the underlying driver
// connection right away; it does not wait for in-flight calls on it.
func (b *Broker) Close(connID string) {
	entry, ok := b.conns.Peek(connID)
	b.conns.DestroyGracefully(connID)
	b.configs.DestroyGracefully(connID)
	if !ok {
		return
	}
	g := entry.Read()
	defer g.Release()
	_ = g.Value().Close()
}
