package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/maauso/recitation-api/internal/assembler"
	"github.com/maauso/recitation-api/internal/bootstrap"
	"github.com/maauso/recitation-api/internal/bulk"
	"github.com/maauso/recitation-api/internal/catalog"
	"github.com/maauso/recitation-api/internal/config"
	"github.com/maauso/recitation-api/internal/progress"
)

type segmentAssembler interface {
	Assemble(ctx context.Context, req assembler.Request) ([]byte, error)
}

type groupDownloader interface {
	Download(ctx context.Context, groupIDs []int, reporter progress.Reporter) (bulk.Result, error)
}

type unitCache interface {
	ListGroups(ctx context.Context) ([]int, error)
	ListUnitIndices(ctx context.Context, groupID int) ([]int, error)
	DeleteGroup(ctx context.Context, groupID int) error
	ClearAll(ctx context.Context) error
	Count(ctx context.Context) (int, error)
}

// services is what the subcommands operate on.
type services struct {
	Catalog    catalog.Catalog
	Assembler  segmentAssembler
	Downloader groupDownloader
	Cache      unitCache
}

// commandContext opens the services on first use and closes them once the
// command finishes.
type commandContext struct {
	logLevel string

	once   sync.Once
	svc    *services
	err    error
	closer func(context.Context) error
}

// newCommandContext returns a context backed by svc, or by the
// environment's configuration when svc is nil.
func newCommandContext(svc *services) *commandContext {
	c := &commandContext{svc: svc}
	if svc != nil {
		c.once.Do(func() {})
	}
	return c
}

func (c *commandContext) services(ctx context.Context) (*services, error) {
	c.once.Do(func() {
		cfg, err := config.Load()
		if err != nil {
			c.err = fmt.Errorf("load config: %w", err)
			return
		}
		if c.logLevel != "" {
			cfg.LogLevel = c.logLevel
		}
		logger := cfg.NewLogger()
		slog.SetDefault(logger)

		deps, err := bootstrap.NewDependencies(ctx, cfg, logger)
		if err != nil {
			c.err = err
			return
		}
		c.closer = deps.Close
		c.svc = &services{
			Catalog:    deps.Catalog,
			Assembler:  deps.Assembler,
			Downloader: deps.Downloader,
			Cache:      deps.Store,
		}
	})
	return c.svc, c.err
}

func (c *commandContext) close(ctx context.Context) {
	if c.closer == nil {
		return
	}
	if err := c.closer(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "close: %v\n", err)
	}
	c.closer = nil
}
