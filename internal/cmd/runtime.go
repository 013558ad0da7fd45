// Package cmd implements the command modes of the storefront binary.
package cmd

import (
	"context"
	"errors"
	"io"

	"github.com/lojinha-app/storefront/internal/catalog"
	"github.com/lojinha-app/storefront/internal/config"
	"github.com/lojinha-app/storefront/internal/identity"
	"github.com/lojinha-app/storefront/internal/media"
	"github.com/lojinha-app/storefront/internal/store"
	"github.com/lojinha-app/storefront/internal/storefront"
	log "github.com/sirupsen/logrus"
)

// Runtime bundles the services shared by every command mode.
type Runtime struct {
	Config   *config.Config
	Store    store.SessionStore
	Hub      *identity.Hub
	Provider *identity.Provider
	// Catalog is nil when the API is not configured.
	Catalog *catalog.Client
	// Media is nil when the storage bucket is not configured.
	Media   *media.Store
	Service *storefront.Service
}

// NewRuntime wires the services from cfg. Missing sections disable the features that
// need them instead of failing.
func NewRuntime(cfg *config.Config, sessionStore store.SessionStore) (*Runtime, error) {
	if cfg == nil {
		cfg = &config.Config{}
		cfg.ApplyDefaults()
	}
	rt := &Runtime{Config: cfg, Store: sessionStore, Hub: identity.NewHub()}

	client, err := identity.NewClient(cfg)
	switch {
	case errors.Is(err, identity.ErrNotConfigured):
		log.Warn("authentication is not configured; sign-in is disabled")
	case err != nil:
		return nil, err
	}
	rt.Provider = identity.NewProvider(client, sessionStore, rt.Hub)

	var catalogSvc storefront.CatalogService
	rt.Catalog, err = catalog.NewClient(cfg, rt.Provider)
	switch {
	case errors.Is(err, catalog.ErrNotConfigured):
		log.Warn("product API is not configured; the catalog is disabled")
	case err != nil:
		return nil, err
	default:
		catalogSvc = rt.Catalog
	}

	var mediaSvc storefront.MediaService
	rt.Media, err = media.NewStore(cfg)
	switch {
	case errors.Is(err, media.ErrNotConfigured):
		log.Info("image storage is not configured; products are shown without images")
	case err != nil:
		return nil, err
	default:
		mediaSvc = rt.Media
	}

	rt.Service = storefront.NewService(rt.Provider, catalogSvc, mediaSvc)
	return rt, nil
}

// Start runs the event hub until ctx ends or Close is called.
func (rt *Runtime) Start(ctx context.Context) {
	rt.Hub.Start(ctx)
}

// Close stops the hub and releases the session store.
func (rt *Runtime) Close() {
	rt.Hub.Stop()
	if rt.Media != nil {
		rt.Media.Close()
	}
	if closer, ok := rt.Store.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			log.Errorf("failed to close session store: %v", err)
		}
	}
}
