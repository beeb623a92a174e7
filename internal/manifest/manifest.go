// Package manifest loads the YAML description of the course runs to segment.
package manifest

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/noah-isme/mooc-session-miner/internal/models"
	appErrors "github.com/noah-isme/mooc-session-miner/pkg/errors"
)

// LogPattern matches the daily tracking-log files of a log directory.
const LogPattern = "*.log.gz"

// Manifest lists course runs in processing order.
type Manifest struct {
	Runs []models.RunRequest `yaml:"runs" validate:"required,min=1,dive"`
}

// Load reads a manifest file. Relative paths in the manifest are resolved
// against the manifest's directory.
func Load(path string, validate *validator.Validate) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	defer f.Close()

	m, err := Parse(f, validate)
	if err != nil {
		return nil, err
	}
	base := filepath.Dir(path)
	for i := range m.Runs {
		m.Runs[i] = resolvePaths(base, m.Runs[i])
	}
	return m, nil
}

// Parse decodes and validates a manifest.
func Parse(r io.Reader, validate *validator.Validate) (*Manifest, error) {
	if validate == nil {
		validate = validator.New()
	}
	var m Manifest
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid manifest")
	}
	if err := validate.Struct(m); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid manifest")
	}

	seen := make(map[string]struct{}, len(m.Runs))
	for _, run := range m.Runs {
		if err := Validate(validate, run); err != nil {
			return nil, err
		}
		if _, dup := seen[run.Name]; dup {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("duplicate run %q", run.Name))
		}
		seen[run.Name] = struct{}{}
	}
	return &m, nil
}

// Validate checks a single run request, including that exactly one event
// source is configured.
func Validate(validate *validator.Validate, run models.RunRequest) error {
	if validate == nil {
		validate = validator.New()
	}
	if err := validate.Struct(run); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid run "+run.Name)
	}
	sources := 0
	if len(run.Logs) > 0 {
		sources++
	}
	if run.LogDir != "" {
		sources++
	}
	if run.FromStore {
		sources++
	}
	if sources != 1 {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("run %q needs exactly one of logs, log_dir or from_store", run.Name))
	}
	return nil
}

// LogFiles returns the log files of a run in processing order. Explicit lists
// keep their order; directory listings are sorted lexically, which is date
// order for the platform's daily file names.
func LogFiles(run models.RunRequest) ([]string, error) {
	if len(run.Logs) > 0 {
		return append([]string(nil), run.Logs...), nil
	}
	if run.LogDir == "" {
		return nil, nil
	}
	files, err := filepath.Glob(filepath.Join(run.LogDir, LogPattern))
	if err != nil {
		return nil, fmt.Errorf("list log dir: %w", err)
	}
	sort.Strings(files)
	return files, nil
}

func resolvePaths(base string, run models.RunRequest) models.RunRequest {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(base, p)
	}
	run.CourseStructure = abs(run.CourseStructure)
	run.LogDir = abs(run.LogDir)
	run.Posts = abs(run.Posts)
	if len(run.Logs) > 0 {
		logs := make([]string, len(run.Logs))
		for i, l := range run.Logs {
			logs[i] = abs(l)
		}
		run.Logs = logs
	}
	return run
}
