package eventlog

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
)

// DefaultMaxLineSize bounds a single log line.
const DefaultMaxLineSize = 16 << 20

// Options configures a Reader.
type Options struct {
	// Filter skips lines that do not contain this substring before decoding.
	Filter      string
	MaxLineSize int
	Logger      *zap.Logger
}

// Stats counts what a Reader saw.
type Stats struct {
	Lines     int
	Decoded   int
	Filtered  int
	Malformed map[string]int
}

// MalformedTotal sums malformed lines over every reason.
func (s Stats) MalformedTotal() int {
	total := 0
	for _, n := range s.Malformed {
		total += n
	}
	return total
}

// Reader streams events out of one gzip-compressed, newline-delimited log.
type Reader struct {
	name    string
	file    io.Closer
	gz      *gzip.Reader
	scanner *bufio.Scanner
	filter  []byte
	logger  *zap.Logger

	current Event
	stats   Stats
	err     error
}

// Open opens a compressed log file. A file that is not valid gzip is an error.
func Open(path string, opts Options) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open log %s: %w", path, err)
	}
	r, err := newReader(path, f, opts)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	r.file = f
	return r, nil
}

// NewReader wraps an already opened gzip stream.
func NewReader(name string, src io.Reader, opts Options) (*Reader, error) {
	return newReader(name, src, opts)
}

func newReader(name string, src io.Reader, opts Options) (*Reader, error) {
	gz, err := gzip.NewReader(src)
	if err != nil {
		return nil, fmt.Errorf("read gzip header %s: %w", name, err)
	}
	if opts.MaxLineSize <= 0 {
		opts.MaxLineSize = DefaultMaxLineSize
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	initial := 64 * 1024
	if initial > opts.MaxLineSize {
		initial = opts.MaxLineSize
	}
	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 0, initial), opts.MaxLineSize)

	r := &Reader{
		name:    name,
		gz:      gz,
		scanner: scanner,
		logger:  opts.Logger,
		stats:   Stats{Malformed: make(map[string]int)},
	}
	if opts.Filter != "" {
		r.filter = []byte(opts.Filter)
	}
	return r, nil
}

// Next advances to the next decodable event. It returns false at end of
// stream or on a read error; check Err afterwards.
func (r *Reader) Next() bool {
	if r.err != nil {
		return false
	}
	for r.scanner.Scan() {
		r.stats.Lines++
		line := bytes.TrimSpace(r.scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if r.filter != nil && !bytes.Contains(line, r.filter) {
			r.stats.Filtered++
			continue
		}
		ev, err := Decode(line)
		if err != nil {
			reason := Reason(err)
			r.stats.Malformed[reason]++
			r.logger.Debug("skipping malformed event",
				zap.String("file", r.name),
				zap.Int("line", r.stats.Lines),
				zap.String("reason", reason),
				zap.Error(err),
			)
			continue
		}
		r.stats.Decoded++
		r.current = ev
		return true
	}
	if err := r.scanner.Err(); err != nil {
		r.err = fmt.Errorf("scan log %s: %w", r.name, err)
	}
	return false
}

// Event returns the event produced by the last successful Next.
func (r *Reader) Event() Event { return r.current }

// Err returns the first read error, if any.
func (r *Reader) Err() error { return r.err }

// Stats returns a snapshot of the counters.
func (r *Reader) Stats() Stats {
	out := r.stats
	out.Malformed = make(map[string]int, len(r.stats.Malformed))
	for k, v := range r.stats.Malformed {
		out.Malformed[k] = v
	}
	return out
}

// Close releases the gzip stream and the underlying file.
func (r *Reader) Close() error {
	err := r.gz.Close()
	if r.file != nil {
		if cerr := r.file.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
