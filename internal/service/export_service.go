package service

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/mooc-session-miner/internal/models"
	appErrors "github.com/noah-isme/mooc-session-miner/pkg/errors"
	"github.com/noah-isme/mooc-session-miner/pkg/export"
)

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

// ExportRequest selects the documents of one collection.
type ExportRequest struct {
	Collection string
	Filter     map[string]interface{}
	Limit      int
}

// ExportResult describes a written export file.
type ExportResult struct {
	RelativePath string    `json:"relative_path"`
	Rows         int       `json:"rows"`
	GeneratedAt  time.Time `json:"generated_at"`
}

// ExportService renders stored collections as CSV files.
type ExportService struct {
	store   DocumentStore
	storage fileStorage
	csv     csvRenderer
	logger  *zap.Logger
	now     func() time.Time
}

// NewExportService constructs an ExportService. csv defaults to the CSV exporter.
func NewExportService(store DocumentStore, storage fileStorage, csv csvRenderer, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	return &ExportService{store: store, storage: storage, csv: csv, logger: logger, now: time.Now}
}

// Export writes the selected documents to <collection>/<collection>_<timestamp>.csv.
func (s *ExportService) Export(ctx context.Context, req ExportRequest) (*ExportResult, error) {
	if !knownCollection(req.Collection) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown collection %q", req.Collection))
	}
	docs, err := s.store.Query(ctx, req.Collection, req.Filter, req.Limit)
	if err != nil {
		return nil, fmt.Errorf("query %s for export: %w", req.Collection, err)
	}
	if len(docs) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("no %s documents match", req.Collection))
	}

	data, err := export.DatasetFromJSON(docs)
	if err != nil {
		return nil, fmt.Errorf("build %s dataset: %w", req.Collection, err)
	}
	payload, err := s.csv.Render(data)
	if err != nil {
		return nil, fmt.Errorf("render %s csv: %w", req.Collection, err)
	}

	generated := s.now().UTC()
	name := filepath.Join(req.Collection, fmt.Sprintf("%s_%s.csv", req.Collection, generated.Format("20060102T150405")))
	rel, err := s.storage.Save(name, payload)
	if err != nil {
		return nil, err
	}
	s.logger.Info("collection exported", zap.String("collection", req.Collection), zap.Int("rows", len(docs)), zap.String("path", rel))
	return &ExportResult{RelativePath: rel, Rows: len(docs), GeneratedAt: generated}, nil
}

// Cleanup removes export files older than ttl.
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		return nil, nil
	}
	return s.storage.CleanupOlderThan(ttl)
}

func knownCollection(name string) bool {
	if name == models.CollectionClickstream {
		return true
	}
	for _, c := range models.Collections {
		if c == name {
			return true
		}
	}
	return false
}
