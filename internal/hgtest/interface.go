package hgtest

import (
	"context"

	"github.com/AdguardTeam/golibs/service"
	"github.com/hostsguard/hostsguard/internal/errcoll"
	"github.com/hostsguard/hostsguard/internal/identity"
)

// Interface Mocks
//
// Keep entities within a module/package in alphabetic order.

// Module golibs

// type check
var _ service.Refresher = (*Refresher)(nil)

// Refresher is a [service.Refresher] for tests.
type Refresher struct {
	OnRefresh func(ctx context.Context) (err error)
}

// Refresh implements the [service.Refresher] interface for *Refresher.
func (r *Refresher) Refresh(ctx context.Context) (err error) {
	return r.OnRefresh(ctx)
}

// Package errcoll

// type check
var _ errcoll.Interface = (*ErrorCollector)(nil)

// ErrorCollector is an [errcoll.Interface] for tests.
type ErrorCollector struct {
	OnCollect func(ctx context.Context, err error)
}

// Collect implements the [errcoll.Interface] interface for *ErrorCollector.
func (c *ErrorCollector) Collect(ctx context.Context, err error) {
	c.OnCollect(ctx, err)
}

// NewErrorCollector returns an *ErrorCollector that ignores all errors.
func NewErrorCollector() (c *ErrorCollector) {
	return &ErrorCollector{
		OnCollect: func(_ context.Context, _ error) {},
	}
}

// Package identity

// type check
var _ identity.Storage = (*IdentityStorage)(nil)

// IdentityStorage is an [identity.Storage] for tests.
type IdentityStorage struct {
	OnLoad  func(ctx context.Context) (id identity.Identity, err error)
	OnStore func(ctx context.Context, id identity.Identity) (err error)
}

// Load implements the [identity.Storage] interface for *IdentityStorage.
func (s *IdentityStorage) Load(ctx context.Context) (id identity.Identity, err error) {
	return s.OnLoad(ctx)
}

// Store implements the [identity.Storage] interface for *IdentityStorage.
func (s *IdentityStorage) Store(ctx context.Context, id identity.Identity) (err error) {
	return s.OnStore(ctx, id)
}
