package backend

import (
	"fmt"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/relabs-tech/campus/core"
	"github.com/relabs-tech/campus/core/access"
	"github.com/relabs-tech/campus/core/logger"
	"github.com/relabs-tech/campus/core/schema"
)

// Backend is the generic rest backend
type Backend struct {
	config        Configuration
	notifier      core.Notifier
	router        *mux.Router
	repositories  map[string]Repository
	newRepository RepositoryFactory
	validator     *schema.Validator
	metrics       *metrics
}

// Builder is a builder helper for the Backend
type Builder struct {
	// Config is the JSON description of all resources. This is mandatory.
	Config string
	// Router is a mux router. This is mandatory.
	Router *mux.Router
	// Repositories creates the storage for each resource, see SQLRepositories and
	// RedisRepositories. This is mandatory.
	Repositories RepositoryFactory
	// Notifier receives a notification for every created, updated or deleted record.
	// This is optional.
	Notifier core.Notifier
	// Metrics is the prometheus registry for the request metrics. If nil, the
	// backend uses a registry of its own. Either way the metrics are served at /metrics.
	Metrics *prometheus.Registry
	// CORS enables the CORS middleware. This is optional.
	CORS bool
}

// New realizes the actual backend. It creates the storage for every resource
// and adds actual routes to router. New panics on an invalid configuration.
func New(bb *Builder) *Backend {
	config, err := ParseConfiguration([]byte(bb.Config))
	if err != nil {
		panic(err)
	}

	if bb.Router == nil {
		panic("Router is missing")
	}

	if bb.Repositories == nil {
		panic("Repositories is missing")
	}

	schemas := make([]string, len(config.Resources))
	for i := range config.Resources {
		schemas[i] = config.Resources[i].jsonSchema()
	}
	validator, err := schema.NewValidator(schemas...)
	if err != nil {
		panic(fmt.Errorf("invalid resource schema: %w", err))
	}

	b := &Backend{
		config:        config,
		notifier:      bb.Notifier,
		router:        bb.Router,
		repositories:  make(map[string]Repository),
		newRepository: bb.Repositories,
		validator:     validator,
		metrics:       newMetrics(bb.Metrics),
	}

	if bb.CORS {
		b.handleCORS()
	}

	access.HandleAuthorizationRoute(b.router)
	b.handleRoutes(b.router)
	b.handleVersion(b.router)
	b.handleStatistics(b.router)
	b.handleMetrics(b.router)
	return b
}

// handleRoutes adds all necessary handlers for the configured resources
func (b *Backend) handleRoutes(router *mux.Router) {
	logger.Default().Debugln("backend: handleRoutes")
	for i := range b.config.Resources {
		rc := &b.config.Resources[i]
		repository, err := b.newRepository(rc)
		if err != nil {
			panic(fmt.Errorf("cannot create storage for %s: %w", rc.Resource, err))
		}
		b.repositories[rc.Resource] = repository
		b.createResource(router, rc, repository)
	}
}

// Repository returns the repository of a resource, or nil if there is no such resource
func (b *Backend) Repository(resource string) Repository {
	return b.repositories[resource]
}

// Config returns the parsed configuration
func (b *Backend) Config() Configuration {
	return b.config
}
