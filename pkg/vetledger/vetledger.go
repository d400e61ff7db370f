// Package vetledger is the embeddable core: drug resolution, the
// append-only encounter ledger and ledger sync behind one handle. Hosts
// (the desktop app, the clinic server, the CLI) construct a Core and reach
// the subsystems through it; nothing else in internal/ is exported.
package vetledger

import (
	"context"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/vetledger/vetledger/internal/config"
	"github.com/vetledger/vetledger/internal/domain/catalog"
	"github.com/vetledger/vetledger/internal/domain/draft"
	"github.com/vetledger/vetledger/internal/domain/export"
	"github.com/vetledger/vetledger/internal/domain/ledger"
	"github.com/vetledger/vetledger/internal/domain/patient"
	"github.com/vetledger/vetledger/internal/domain/resolver"
	"github.com/vetledger/vetledger/internal/domain/syncer"
	"github.com/vetledger/vetledger/internal/platform/apperr"
	"github.com/vetledger/vetledger/internal/platform/db"
	"github.com/vetledger/vetledger/internal/platform/ner"
	"github.com/vetledger/vetledger/internal/platform/transport"
)

// Core is one open vetledger database with every subsystem wired.
type Core struct {
	cfg   *config.Config
	store *db.Store
	log   zerolog.Logger

	Catalog  *catalog.Service
	Patients *patient.Service
	Resolver *resolver.Service
	Drafts   *draft.Service
	Ledger   *ledger.Service
	Exports  *export.Service

	engine    *syncer.Engine
	responder *syncer.Responder
}

// Open opens (and migrates) the database at cfg.DBPath and wires the
// subsystems. The sync engine is only constructed when SYNC_URL is set.
func Open(cfg *config.Config, log zerolog.Logger) (*Core, error) {
	if err := cfg.Validate(); err != nil {
		return nil, apperr.Wrap(err, apperr.InvalidInput, "config")
	}
	store, err := db.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	return assemble(cfg, store, log)
}

// OpenInMemory opens a throwaway in-memory core, for tests and demos.
func OpenInMemory(cfg *config.Config, log zerolog.Logger) (*Core, error) {
	if err := cfg.Validate(); err != nil {
		return nil, apperr.Wrap(err, apperr.InvalidInput, "config")
	}
	store, err := db.OpenInMemory()
	if err != nil {
		return nil, err
	}
	return assemble(cfg, store, log)
}

func assemble(cfg *config.Config, store *db.Store, log zerolog.Logger) (*Core, error) {
	cat := catalog.NewService(store, catalog.NewRepoSQLite(), log)
	res, err := resolver.NewService(cat, cfg.Weights(), log)
	if err != nil {
		store.Close()
		return nil, err
	}
	pats := patient.NewService(store, patient.NewRepoSQLite(), log)
	ledgerRepo := ledger.NewRepoSQLite()
	led := ledger.NewService(store, ledgerRepo, log)
	drafts := draft.NewService(store, draft.NewRepoSQLite(), patient.NewRepoSQLite(), res, led, log)

	c := &Core{
		cfg:       cfg,
		store:     store,
		log:       log,
		Catalog:   cat,
		Patients:  pats,
		Resolver:  res,
		Drafts:    drafts,
		Ledger:    led,
		Exports:   export.NewService(led, log),
		responder: syncer.NewResponder(store, ledgerRepo, log),
	}
	if cfg.SyncURL != "" {
		client := transport.NewHTTPClient(cfg.SyncURL, cfg.SyncTimeout(), log)
		c.engine = syncer.NewEngine(store, led, client, log)
	}
	return c, nil
}

func (c *Core) Close() error {
	return c.store.Close()
}

// Extractor builds the rule-based mention extractor over the current
// active catalog. Hosts with a real NER model ignore this.
func (c *Core) Extractor() (ner.Extractor, error) {
	items, err := c.Catalog.ListActive()
	if err != nil {
		return nil, err
	}
	var lexicon []string
	for _, it := range items {
		lexicon = append(lexicon, it.Name)
		lexicon = append(lexicon, it.Aliases...)
	}
	return ner.NewRuleBased(lexicon), nil
}

// Sync pushes unsynced ledger leaves to the configured peer.
func (c *Core) Sync(ctx context.Context) (*syncer.Result, error) {
	if c.engine == nil {
		return nil, apperr.New(apperr.InvalidState, "SYNC_URL is not configured")
	}
	return c.engine.Sync(ctx)
}

// SyncWith runs one sync over a caller-supplied transport, for hosts that
// bring their own channel.
func (c *Core) SyncWith(ctx context.Context, tr transport.Transport) (*syncer.Result, error) {
	return syncer.NewEngine(c.store, c.Ledger, tr, c.log).Sync(ctx)
}

// HasUnsyncedChanges reports whether any committed leaf is not yet covered
// by an acknowledged sync.
func (c *Core) HasUnsyncedChanges() (bool, error) {
	if c.engine != nil {
		return c.engine.HasUnsyncedChanges()
	}
	// Without a configured peer, fall back to an engine with no transport;
	// the watermark check never touches the network.
	return syncer.NewEngine(c.store, c.Ledger, nil, c.log).HasUnsyncedChanges()
}

// RegisterSyncRoutes mounts this core as the remote side of the sync
// protocol, for the clinic-server host.
func (c *Core) RegisterSyncRoutes(e *echo.Echo) {
	transport.RegisterSyncRoute(e, c.responder.Handle)
}

// VerifyLedger re-hashes every stored leaf and recomputes the root.
func (c *Core) VerifyLedger() error {
	return c.Ledger.Verify()
}

// SystemID identifies this device in compliance exports.
func (c *Core) SystemID() string {
	return c.cfg.SystemID
}

// SyncConfigured reports whether a sync peer is set, for hosts that
// surface sync status in the UI.
func (c *Core) SyncConfigured() bool { return c.engine != nil }
