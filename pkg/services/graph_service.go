package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/spendlens/graphcache/pkg/models"
	"github.com/spendlens/graphcache/pkg/repositories"
)

// GraphService is the single entry point for graph consumers: load-or-build
// with write-through caching, forced refresh, and cache invalidation.
type GraphService interface {
	// GetGraph serves a translated graph, from cache when possible.
	GetGraph(ctx context.Context, dataSource string, opts models.GraphOptions) (*models.GraphData, error)

	// RefreshCache forces a rebuild. A nil mode rebuilds both modes.
	RefreshCache(ctx context.Context, dataSource string, mode *models.Mode) (*models.RefreshResult, error)

	// Invalidate clears cached ontologies; nil on either axis means "all".
	Invalidate(ctx context.Context, dataSource *string, mode *models.Mode) (*models.ClearResult, error)

	// Statistics reports per-ontology node/edge counts and last update.
	Statistics(ctx context.Context) ([]models.OntologyStats, error)
}

type graphService struct {
	repo       repositories.GraphRepository
	builder    GraphBuilder
	translator GraphTranslator
	logger     *zap.Logger

	// Writers to the same (data_source, mode) pair serialize here; distinct
	// pairs rebuild in parallel. Concurrent cache misses for one pair
	// additionally collapse into a single build via singleflight.
	mu        sync.Mutex
	pairLocks map[string]*sync.Mutex
	group     singleflight.Group
}

// NewGraphService creates the orchestrator.
func NewGraphService(repo repositories.GraphRepository, builder GraphBuilder, translator GraphTranslator, logger *zap.Logger) GraphService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &graphService{
		repo:       repo,
		builder:    builder,
		translator: translator,
		logger:     logger,
		pairLocks:  make(map[string]*sync.Mutex),
	}
}

var _ GraphService = (*graphService)(nil)

func (s *graphService) GetGraph(ctx context.Context, dataSource string, opts models.GraphOptions) (*models.GraphData, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	if opts.UseCache {
		exists, err := s.repo.CacheExists(ctx, dataSource, opts.Mode)
		if err != nil {
			return nil, err
		}
		if exists {
			nodes, edges, err := s.repo.LoadGraph(ctx, dataSource, opts.Mode)
			if err != nil {
				return nil, err
			}

			graph := s.translator.Translate(nodes, edges, opts.Mode)
			graph.Stats.FromCache = true

			s.logger.Debug("Served graph from cache",
				zap.String("datasource", dataSource),
				zap.String("mode", string(opts.Mode)),
				zap.Int("nodes", graph.Stats.NodeCount),
				zap.Int("edges", graph.Stats.EdgeCount))

			return graph, nil
		}
	}

	key := pairKey(dataSource, opts.Mode)
	result, err, _ := s.group.Do(key, func() (any, error) {
		_, graph, err := s.rebuild(ctx, dataSource, opts, uuid.NewString())
		return graph, err
	})
	if err != nil {
		return nil, err
	}

	return result.(*models.GraphData), nil
}

func (s *graphService) RefreshCache(ctx context.Context, dataSource string, mode *models.Mode) (*models.RefreshResult, error) {
	modes := models.AllModes
	if mode != nil {
		if _, err := models.ParseMode(string(*mode)); err != nil {
			return nil, err
		}
		modes = []models.Mode{*mode}
	}

	start := time.Now()
	result := &models.RefreshResult{BuildID: uuid.NewString()}

	for _, m := range modes {
		opts := models.DefaultGraphOptions(m)
		opts.UseCache = false

		out, _, err := s.rebuild(ctx, dataSource, opts, result.BuildID)
		if err != nil {
			return nil, err
		}

		result.Discovered += len(out.Hints)
		result.NodesWritten += len(out.Nodes)
		result.EdgesWritten += len(out.Edges)
	}

	result.DurationMS = time.Since(start).Milliseconds()

	s.logger.Info("Cache refreshed",
		zap.String("datasource", dataSource),
		zap.String("build_id", result.BuildID),
		zap.Int("discovered", result.Discovered),
		zap.Int("nodes_written", result.NodesWritten),
		zap.Int("edges_written", result.EdgesWritten),
		zap.Int64("duration_ms", result.DurationMS))

	return result, nil
}

func (s *graphService) Invalidate(ctx context.Context, dataSource *string, mode *models.Mode) (*models.ClearResult, error) {
	if mode != nil {
		if _, err := models.ParseMode(string(*mode)); err != nil {
			return nil, err
		}
	}

	deleted, err := s.repo.Clear(ctx, dataSource, mode)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Cache invalidated", zap.Int64("deleted", deleted))

	return &models.ClearResult{Deleted: deleted}, nil
}

func (s *graphService) Statistics(ctx context.Context) ([]models.OntologyStats, error) {
	return s.repo.Statistics(ctx)
}

// rebuild runs the full pipeline for one pair: build, write-through, translate.
// The pair lock guarantees a single writer per (data_source, mode); the store's
// transaction guarantees readers never observe a partial graph.
func (s *graphService) rebuild(ctx context.Context, dataSource string, opts models.GraphOptions, buildID string) (*BuildOutput, *models.GraphData, error) {
	lock := s.pairLock(pairKey(dataSource, opts.Mode))
	lock.Lock()
	defer lock.Unlock()

	start := time.Now()

	var (
		out *BuildOutput
		err error
	)
	switch opts.Mode {
	case models.ModeSchema:
		out, err = s.builder.BuildSchemaGraph(ctx, dataSource, opts.Tables)
	case models.ModeData:
		out, err = s.builder.BuildDataGraph(ctx, dataSource, opts.Tables, opts.MaxRecords, opts.FilterOrphans)
	default:
		return nil, nil, fmt.Errorf("unreachable mode %q", opts.Mode)
	}
	if err != nil {
		return nil, nil, err
	}

	description := fmt.Sprintf("%s-mode graph for %s", opts.Mode, dataSource)
	ont, err := s.repo.UpsertOntology(ctx, dataSource, opts.Mode, description, out.SchemaVersion)
	if err != nil {
		return nil, nil, err
	}

	if err := s.repo.ReplaceGraph(ctx, ont, out.Nodes, out.Edges); err != nil {
		return nil, nil, err
	}

	graph := s.translator.Translate(out.Nodes, out.Edges, opts.Mode)
	graph.Stats.FromCache = false
	graph.Stats.OrphansFiltered = out.OrphansFiltered
	graph.Stats.BuildID = buildID
	graph.Stats.DurationMS = time.Since(start).Milliseconds()

	s.logger.Info("Rebuilt graph",
		zap.String("datasource", dataSource),
		zap.String("mode", string(opts.Mode)),
		zap.String("build_id", buildID),
		zap.String("schema_version", out.SchemaVersion),
		zap.Int("nodes", len(out.Nodes)),
		zap.Int("edges", len(out.Edges)),
		zap.Int64("duration_ms", graph.Stats.DurationMS))

	return out, graph, nil
}

func (s *graphService) pairLock(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.pairLocks[key]
	if !ok {
		lock = &sync.Mutex{}
		s.pairLocks[key] = lock
	}
	return lock
}

func pairKey(dataSource string, mode models.Mode) string {
	return dataSource + "|" + string(mode)
}
