package service

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/mooc-session-miner/internal/coursemodel"
	"github.com/noah-isme/mooc-session-miner/internal/models"
	appErrors "github.com/noah-isme/mooc-session-miner/pkg/errors"
)

// DocumentStore is the storage sink contract shared by the services.
type DocumentStore interface {
	Insert(ctx context.Context, collection string, docs []models.Document) (int, error)
	Query(ctx context.Context, collection string, filter map[string]interface{}, limit int) ([]json.RawMessage, error)
}

const courseModelKeyPrefix = "coursemodel:"

// CourseModelService builds course models from structure files, stores them in
// the metadata collection and serves them back through the cache.
type CourseModelService struct {
	store  DocumentStore
	cache  *CacheService
	ttl    time.Duration
	logger *zap.Logger
}

// NewCourseModelService constructs the service. cache may be nil.
func NewCourseModelService(store DocumentStore, cache *CacheService, ttl time.Duration, logger *zap.Logger) *CourseModelService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CourseModelService{store: store, cache: cache, ttl: ttl, logger: logger}
}

// Build parses the course structure file of a run and persists the model, its
// quiz questions and its course elements.
func (s *CourseModelService) Build(ctx context.Context, runName, structurePath string) (*coursemodel.Model, error) {
	f, err := os.Open(structurePath)
	if err != nil {
		return nil, fmt.Errorf("open course structure: %w", err)
	}
	defer f.Close()

	model, err := coursemodel.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("build course model for %s: %w", runName, err)
	}

	if _, err := s.store.Insert(ctx, models.CollectionMetadata, []models.Document{model.Document(runName)}); err != nil {
		return nil, fmt.Errorf("store course model %s: %w", runName, err)
	}
	s.cache.Invalidate(ctx, courseModelKey(runName))

	questions := model.QuizQuestions()
	if _, err := s.store.Insert(ctx, models.CollectionQuizQuestions, documents(questions)); err != nil {
		return nil, fmt.Errorf("store quiz questions %s: %w", runName, err)
	}
	elements := model.CourseElements()
	if _, err := s.store.Insert(ctx, models.CollectionCourseElements, documents(elements)); err != nil {
		return nil, fmt.Errorf("store course elements %s: %w", runName, err)
	}

	s.logger.Info("course model built",
		zap.String("run", runName),
		zap.String("course_id", model.CourseID()),
		zap.Int("elements", model.Len()),
		zap.Int("quiz_questions", len(questions)),
	)
	return model, nil
}

// Fetch returns the stored model of a run, or ErrMissingCourseModel.
func (s *CourseModelService) Fetch(ctx context.Context, runName string) (*coursemodel.Model, error) {
	key := courseModelKey(runName)
	var doc coursemodel.Document
	if s.cache.Get(ctx, key, &doc) {
		return coursemodel.FromDocument(doc), nil
	}

	raw, err := s.store.Query(ctx, models.CollectionMetadata, map[string]interface{}{"name": runName}, 1)
	if err != nil {
		return nil, fmt.Errorf("query course model %s: %w", runName, err)
	}
	if len(raw) == 0 {
		return nil, appErrors.Clone(appErrors.ErrMissingCourseModel, fmt.Sprintf("no course model stored for %s", runName))
	}
	if err := json.Unmarshal(raw[0], &doc); err != nil {
		return nil, fmt.Errorf("decode course model %s: %w", runName, err)
	}
	s.cache.Set(ctx, key, doc, s.ttl)
	return coursemodel.FromDocument(doc), nil
}

func courseModelKey(runName string) string {
	return courseModelKeyPrefix + runName
}

func documents[S models.Document](in []S) []models.Document {
	out := make([]models.Document, 0, len(in))
	for _, d := range in {
		out = append(out, d)
	}
	return out
}
