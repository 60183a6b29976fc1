// Package dependency wires core velvetfox services using go.uber.org/dig.
package dependency

import (
	"time"

	"go.uber.org/dig"

	"github.com/velvetfox/velvetfox/internal/bus"
	"github.com/velvetfox/velvetfox/internal/channels"
	"github.com/velvetfox/velvetfox/internal/config"
	"github.com/velvetfox/velvetfox/internal/content"
	"github.com/velvetfox/velvetfox/internal/controller"
	"github.com/velvetfox/velvetfox/internal/maintenance"
	"github.com/velvetfox/velvetfox/internal/memory"
	"github.com/velvetfox/velvetfox/internal/providers"
	"github.com/velvetfox/velvetfox/internal/queue"
	"github.com/velvetfox/velvetfox/internal/schema"
	"github.com/velvetfox/velvetfox/internal/store"
	"github.com/velvetfox/velvetfox/internal/wizard"
)

// Container holds the resolved core service singletons.
// Callers use the typed getter methods; they never need to import dig directly.
type Container struct {
	provider schema.LLMProvider
	st       *store.SQLiteStore
	q        *queue.Queue
	msgBus   *bus.MessageBus
	ctrl     *controller.Controller
	sweeper  *maintenance.Sweeper
	chans    *channels.Manager
}

func (c *Container) Provider() schema.LLMProvider { return c.provider }
func (c *Container) Store() *store.SQLiteStore    { return c.st }
func (c *Container) Queue() *queue.Queue          { return c.q }
func (c *Container) MessageBus() *bus.MessageBus  { return c.msgBus }
func (c *Container) Controller() *controller.Controller {
	return c.ctrl
}
func (c *Container) Sweeper() *maintenance.Sweeper { return c.sweeper }
func (c *Container) Channels() *channels.Manager   { return c.chans }

// Close releases resources held by the container. Safe to call once the
// services have stopped.
func (c *Container) Close() error {
	return c.st.Close()
}

// WithCLI is a named bool type so dig can distinguish it from plain bools
// when injecting whether the terminal channel should be registered.
type WithCLI bool

// New builds and wires all core services from cfg. When withCLI is true the
// channel manager also registers the terminal channel, used by `velvetfox chat`.
func New(cfg *config.Config, withCLI bool) (*Container, error) {
	d := dig.New()

	if err := d.Provide(func() *config.Config { return cfg }); err != nil {
		return nil, err
	}
	if err := d.Provide(func() WithCLI { return WithCLI(withCLI) }); err != nil {
		return nil, err
	}
	if err := d.Provide(newProvider); err != nil {
		return nil, err
	}
	if err := d.Provide(newStore); err != nil {
		return nil, err
	}
	if err := d.Provide(newQueue); err != nil {
		return nil, err
	}
	if err := d.Provide(newCatalog); err != nil {
		return nil, err
	}
	if err := d.Provide(newWizard); err != nil {
		return nil, err
	}
	if err := d.Provide(newConsolidator); err != nil {
		return nil, err
	}
	if err := d.Provide(newMessageBus); err != nil {
		return nil, err
	}
	if err := d.Provide(newController); err != nil {
		return nil, err
	}
	if err := d.Provide(newSweeper); err != nil {
		return nil, err
	}
	if err := d.Provide(newChannelManager); err != nil {
		return nil, err
	}

	var result *Container
	err := d.Invoke(func(
		provider schema.LLMProvider,
		st *store.SQLiteStore,
		q *queue.Queue,
		msgBus *bus.MessageBus,
		ctrl *controller.Controller,
		sweeper *maintenance.Sweeper,
		chans *channels.Manager,
	) {
		result = &Container{
			provider: provider,
			st:       st,
			q:        q,
			msgBus:   msgBus,
			ctrl:     ctrl,
			sweeper:  sweeper,
			chans:    chans,
		}
	})
	return result, err
}

func newProvider(cfg *config.Config) schema.LLMProvider {
	return providers.NewOpenAIProvider(
		cfg.Provider.APIBase,
		cfg.Provider.APIKey,
		cfg.Provider.Model,
	)
}

func newStore(cfg *config.Config) (*store.SQLiteStore, error) {
	return store.Open(cfg.DatabasePath())
}

func newQueue(cfg *config.Config, p schema.LLMProvider) *queue.Queue {
	return queue.New(p, queue.Options{
		Capacity:   cfg.Queue.Capacity,
		Workers:    cfg.Queue.Workers,
		MaxRetries: cfg.Queue.MaxRetries,
		Timeout:    time.Duration(cfg.Queue.RequestTimeout) * time.Second,
	})
}

func newCatalog(cfg *config.Config) *content.Catalog {
	return content.LoadCatalog(cfg.DataPath())
}

func newWizard(cat *content.Catalog) *wizard.Machine {
	return wizard.New(cat)
}

func newConsolidator(cfg *config.Config, st *store.SQLiteStore, q *queue.Queue) *memory.Consolidator {
	return memory.New(st, q, cfg.Memory.ConsolidationThreshold, cfg.Provider.Model)
}

func newMessageBus() *bus.MessageBus {
	return bus.NewMessageBus(100)
}

func newController(
	st *store.SQLiteStore,
	q *queue.Queue,
	wiz *wizard.Machine,
	cons *memory.Consolidator,
	cat *content.Catalog,
	msgBus *bus.MessageBus,
	cfg *config.Config,
) *controller.Controller {
	return controller.New(st, q, wiz, cons, cat, msgBus, cfg.Provider, cfg.Memory.HistoryWindow)
}

func newSweeper(cfg *config.Config, st *store.SQLiteStore, cons *memory.Consolidator) *maintenance.Sweeper {
	return maintenance.New(st, cons, cfg.Memory.SweepSchedule)
}

func newChannelManager(cfg *config.Config, msgBus *bus.MessageBus, withCLI WithCLI) *channels.Manager {
	return channels.NewManager(cfg, msgBus, bool(withCLI))
}
