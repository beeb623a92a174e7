package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/mooc-session-miner/internal/coursemodel"
	"github.com/noah-isme/mooc-session-miner/internal/eventlog"
	"github.com/noah-isme/mooc-session-miner/internal/manifest"
	"github.com/noah-isme/mooc-session-miner/internal/models"
	"github.com/noah-isme/mooc-session-miner/internal/sessionizer"
	appErrors "github.com/noah-isme/mooc-session-miner/pkg/errors"
)

const (
	defaultChunkSize = 20000
	// chunks buffered per segmenter before the reader blocks
	segmenterBacklog = 2
)

type courseModelSource interface {
	Build(ctx context.Context, runName, structurePath string) (*coursemodel.Model, error)
	Fetch(ctx context.Context, runName string) (*coursemodel.Model, error)
}

// SessionPublisher mirrors written collections to a message bus.
type SessionPublisher interface {
	Publish(ctx context.Context, run, collection string, docs []models.Document) error
}

// PipelineConfig tunes the course-run pipeline.
type PipelineConfig struct {
	Session     sessionizer.Config
	ChunkSize   int
	Prefilter   bool
	MaxLineSize int
}

// PipelineService segments one course run end to end: course model, event
// stream, segmenters and storage.
type PipelineService struct {
	courseModels courseModelSource
	store        DocumentStore
	publisher    SessionPublisher
	metrics      *MetricsService
	cfg          PipelineConfig
	logger       *zap.Logger
}

// NewPipelineService constructs the pipeline. publisher and metrics may be nil.
func NewPipelineService(courseModels courseModelSource, store DocumentStore, publisher SessionPublisher, metrics *MetricsService, cfg PipelineConfig, logger *zap.Logger) *PipelineService {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = defaultChunkSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PipelineService{
		courseModels: courseModels,
		store:        store,
		publisher:    publisher,
		metrics:      metrics,
		cfg:          cfg,
		logger:       logger,
	}
}

// Run processes a course run. Storage failures leave the other collections
// written and are reported as ErrStorageWrite together with the stats.
func (s *PipelineService) Run(ctx context.Context, req models.RunRequest) (models.RunStats, error) {
	stats := models.RunStats{
		Malformed: make(map[string]int),
		Written:   make(map[string]int),
		Failed:    make(map[string]int),
	}
	log := s.logger.With(zap.String("run", req.Name))

	if _, err := s.courseModels.Build(ctx, req.Name, req.CourseStructure); err != nil {
		return stats, err
	}
	model, err := s.courseModels.Fetch(ctx, req.Name)
	if err != nil {
		if errors.Is(err, appErrors.ErrMissingCourseModel) {
			log.Warn("course model missing, run skipped", zap.Error(err))
		}
		return stats, err
	}

	var posts []models.Document
	if req.Posts != "" {
		if posts, err = s.readPosts(req.Posts, model, &stats); err != nil {
			return stats, err
		}
	}

	runners := sessionizer.NewRunners(s.cfg.Session, model)
	results, err := s.segment(ctx, req, model, runners, &stats)
	if err != nil {
		return stats, err
	}
	if len(posts) > 0 {
		results[models.CollectionForumInteractions] = posts
	}

	var failed []string
	for _, collection := range models.Collections {
		docs, ok := results[collection]
		if !ok {
			continue
		}
		if err := s.write(ctx, req.Name, collection, docs, &stats); err != nil {
			log.Error("collection write failed",
				zap.String("collection", collection),
				zap.Int("batch_size", len(docs)),
				zap.Error(err),
			)
			failed = append(failed, collection)
		}
	}

	log.Info("run segmented",
		zap.Int("files", stats.Files),
		zap.Int("events", stats.Events),
		zap.Int("unresolved", stats.Unresolved),
		zap.Int("late", stats.Late),
		zap.Int("posts", stats.Posts),
		zap.Any("written", stats.Written),
	)
	if len(failed) > 0 {
		return stats, appErrors.Wrapf(appErrors.ErrStorageWrite, nil, "%s", strings.Join(failed, ", "))
	}
	return stats, nil
}

// segment streams the run's events to every runner concurrently and collects
// the flushed records by collection.
func (s *PipelineService) segment(ctx context.Context, req models.RunRequest, model *coursemodel.Model, runners []sessionizer.Runner, stats *models.RunStats) (map[string][]models.Document, error) {
	g, gctx := errgroup.WithContext(ctx)

	feeds := make([]chan []eventlog.Event, len(runners))
	outputs := make([]map[string][]models.Document, len(runners))
	counters := make([][2]int, len(runners))
	for i, r := range runners {
		i, r := i, r
		feeds[i] = make(chan []eventlog.Event, segmenterBacklog)
		g.Go(func() error {
			var unresolved, late int
			for chunk := range feeds[i] {
				r.Advance(chunk)
				s.metrics.RecordSegmenter(r.Name(), r.OpenLearners(), r.Unresolved()-unresolved, r.Late()-late)
				unresolved, late = r.Unresolved(), r.Late()
			}
			if err := gctx.Err(); err != nil {
				return err
			}
			counters[i] = [2]int{unresolved, late}
			outputs[i] = r.Finish()
			return nil
		})
	}

	g.Go(func() error {
		defer func() {
			for _, feed := range feeds {
				close(feed)
			}
		}()
		broadcast := func(chunk []eventlog.Event) error {
			for _, feed := range feeds {
				select {
				case <-gctx.Done():
					return gctx.Err()
				case feed <- chunk:
				}
			}
			return nil
		}
		if req.FromStore {
			return s.streamStore(gctx, model, broadcast, stats)
		}
		return s.streamFiles(gctx, req, model, broadcast, stats)
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	results := make(map[string][]models.Document)
	for i, out := range outputs {
		stats.Unresolved += counters[i][0]
		stats.Late += counters[i][1]
		for collection, docs := range out {
			results[collection] = append(results[collection], docs...)
		}
	}
	return results, nil
}

func (s *PipelineService) streamFiles(ctx context.Context, req models.RunRequest, model *coursemodel.Model, broadcast func([]eventlog.Event) error, stats *models.RunStats) error {
	files, err := manifest.LogFiles(req)
	if err != nil {
		return err
	}
	opts := eventlog.Options{MaxLineSize: s.cfg.MaxLineSize, Logger: s.logger}
	if s.cfg.Prefilter {
		opts.Filter = eventlog.PrefilterToken(model.CourseID())
	}

	chunk := make([]eventlog.Event, 0, s.cfg.ChunkSize)
	for _, path := range files {
		reader, err := eventlog.Open(path, opts)
		if err != nil {
			return err
		}
		for reader.Next() {
			chunk = append(chunk, reader.Event())
			if len(chunk) == s.cfg.ChunkSize {
				if err := broadcast(chunk); err != nil {
					_ = reader.Close()
					return err
				}
				chunk = make([]eventlog.Event, 0, s.cfg.ChunkSize)
			}
		}
		readErr := reader.Err()
		fileStats := reader.Stats()
		_ = reader.Close()
		if readErr != nil {
			return readErr
		}
		s.account(path, fileStats, stats)
	}
	if len(chunk) > 0 {
		return broadcast(chunk)
	}
	return nil
}

// streamStore replays events previously loaded into the clickstream collection.
func (s *PipelineService) streamStore(ctx context.Context, model *coursemodel.Model, broadcast func([]eventlog.Event) error, stats *models.RunStats) error {
	filter := map[string]interface{}{"context": map[string]interface{}{"course_id": model.CourseID()}}
	raw, err := s.store.Query(ctx, models.CollectionClickstream, filter, 0)
	if err != nil {
		return fmt.Errorf("load clickstream: %w", err)
	}
	events, decodeStats := eventlog.DecodeDocuments(raw)
	eventlog.SortByTime(events)
	s.account(models.CollectionClickstream, decodeStats, stats)

	for start := 0; start < len(events); start += s.cfg.ChunkSize {
		end := start + s.cfg.ChunkSize
		if end > len(events) {
			end = len(events)
		}
		if err := broadcast(events[start:end:end]); err != nil {
			return err
		}
	}
	return nil
}

// readPosts loads the forum dump of a run. Posts are not events: they are
// counted apart and never reach the segmenters.
func (s *PipelineService) readPosts(path string, model *coursemodel.Model, stats *models.RunStats) ([]models.Document, error) {
	posts, fs, err := eventlog.ReadPosts(path, eventlog.Options{MaxLineSize: s.cfg.MaxLineSize, Logger: s.logger})
	if err != nil {
		return nil, err
	}
	for reason, n := range fs.Malformed {
		stats.Malformed[reason] += n
	}
	s.metrics.RecordEvents(0, 0, fs.Malformed)

	records := sessionizer.ForumPosts(model.CourseID(), model.End(), posts)
	stats.Posts = len(records)
	s.logger.Debug("forum posts processed",
		zap.String("source", path),
		zap.Int("decoded", fs.Decoded),
		zap.Int("kept", len(records)),
	)
	return toDocuments(records), nil
}

func (s *PipelineService) account(source string, fs eventlog.Stats, stats *models.RunStats) {
	stats.Files++
	stats.Events += fs.Decoded
	for reason, n := range fs.Malformed {
		stats.Malformed[reason] += n
	}
	s.metrics.RecordEvents(fs.Decoded, fs.Filtered, fs.Malformed)
	s.logger.Debug("source processed",
		zap.String("source", source),
		zap.Int("lines", fs.Lines),
		zap.Int("decoded", fs.Decoded),
		zap.Int("malformed", fs.MalformedTotal()),
	)
}

func (s *PipelineService) write(ctx context.Context, run, collection string, docs []models.Document, stats *models.RunStats) error {
	docs = dedupe(docs)
	start := time.Now()
	n, err := s.store.Insert(ctx, collection, docs)
	s.metrics.RecordWrite(collection, n, time.Since(start), err)
	if err != nil {
		stats.Failed[collection] = len(docs)
		return err
	}
	stats.Written[collection] = n

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, run, collection, docs); err != nil {
			s.logger.Warn("publish failed", zap.String("run", run), zap.String("collection", collection), zap.Error(err))
		}
	}
	return nil
}

// dedupe keeps the first document of every id, ordered by id.
func dedupe(docs []models.Document) []models.Document {
	sorted := append([]models.Document(nil), docs...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].DocumentID() < sorted[j].DocumentID() })
	out := make([]models.Document, 0, len(sorted))
	for _, d := range sorted {
		if len(out) > 0 && d.DocumentID() == out[len(out)-1].DocumentID() {
			continue
		}
		out = append(out, d)
	}
	return out
}

func toDocuments[S models.Document](in []S) []models.Document {
	out := make([]models.Document, len(in))
	for i, d := range in {
		out[i] = d
	}
	return out
}
