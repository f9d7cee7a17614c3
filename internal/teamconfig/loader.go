package teamconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/gobwas/glob"
	"github.com/sourcegraph/conc/iter"
	"github.com/spf13/afero"

	"github.com/Iron-Ham/teamrun/internal/errors"
	"github.com/Iron-Ham/teamrun/internal/event"
	"github.com/Iron-Ham/teamrun/internal/logging"
)

// Loaded is a successfully loaded directory entry.
type Loaded struct {
	Path   string
	Config TeamConfig
}

// Failure is a directory entry that could not be loaded.
type Failure struct {
	Path   string
	Reason error
}

// DirectoryResult partitions the recognized files of a directory. Both
// lists are in lexicographic path order and every file appears exactly once.
type DirectoryResult struct {
	Succeeded []Loaded
	Failed    []Failure
}

// Configs returns the successfully loaded configs.
func (r DirectoryResult) Configs() []TeamConfig {
	out := make([]TeamConfig, len(r.Succeeded))
	for i, l := range r.Succeeded {
		out[i] = l.Config
	}
	return out
}

// Loader reads team configurations. It holds no per-call state and is
// safe for concurrent use.
type Loader struct {
	fs      afero.Fs
	match   glob.Glob
	pattern string
	workers int
	logger  *logging.Logger
	bus     *event.Bus
}

// Option configures a Loader.
type Option func(*Loader) error

// WithFs sets the filesystem. Defaults to the OS filesystem.
func WithFs(fs afero.Fs) Option {
	return func(l *Loader) error {
		l.fs = fs
		return nil
	}
}

// WithMatch restricts directory loads to base names matching pattern.
func WithMatch(pattern string) Option {
	return func(l *Loader) error {
		if pattern == "" {
			l.match, l.pattern = nil, ""
			return nil
		}
		g, err := glob.Compile(pattern)
		if err != nil {
			return errors.Wrapf(err, "invalid match pattern %q", pattern)
		}
		l.match, l.pattern = g, pattern
		return nil
	}
}

// WithMaxWorkers bounds how many files a directory load parses at once.
func WithMaxWorkers(n int) Option {
	return func(l *Loader) error {
		if n < 1 {
			return fmt.Errorf("max workers must be positive, got %d", n)
		}
		l.workers = n
		return nil
	}
}

// WithLogger sets the logger used to report skipped files.
func WithLogger(logger *logging.Logger) Option {
	return func(l *Loader) error {
		l.logger = logger
		return nil
	}
}

// WithBus publishes config.loaded and config.rejected events to bus.
func WithBus(bus *event.Bus) Option {
	return func(l *Loader) error {
		l.bus = bus
		return nil
	}
}

// NewLoader creates a Loader.
func NewLoader(opts ...Option) (*Loader, error) {
	l := &Loader{
		fs:      afero.NewOsFs(),
		workers: runtime.GOMAXPROCS(0),
		logger:  logging.NopLogger(),
	}
	for _, opt := range opts {
		if err := opt(l); err != nil {
			return nil, err
		}
	}
	if l.logger == nil {
		l.logger = logging.NopLogger()
	}
	l.logger = l.logger.WithComponent("teamconfig")
	return l, nil
}

// Fs returns the loader's filesystem.
func (l *Loader) Fs() afero.Fs { return l.fs }

// LoadOne loads a single document, choosing the decoder by file extension.
func (l *Loader) LoadOne(path string) (TeamConfig, error) {
	cfg, err := l.loadFile(path)
	if err != nil {
		return TeamConfig{}, err
	}
	l.bus.Publish(event.NewConfigLoadedEvent(path, cfg.Kind(), cfg.Label))
	return cfg, nil
}

func (l *Loader) loadFile(path string) (TeamConfig, error) {
	info, err := l.fs.Stat(path)
	if err != nil {
		return TeamConfig{}, errors.NewConfigFormatError("cannot read config file", err).WithSource(path)
	}
	if info.IsDir() {
		return TeamConfig{}, errors.NewConfigFormatError("path is a directory", nil).WithSource(path)
	}
	format, ok := FormatForPath(path)
	if !ok {
		return TeamConfig{}, errors.NewConfigFormatError(
			fmt.Sprintf("unsupported file format %q", filepath.Ext(path)),
			errors.ErrUnsupportedFormat,
		).WithSource(path)
	}

	data, err := afero.ReadFile(l.fs, path)
	if err != nil {
		return TeamConfig{}, errors.NewConfigFormatError("cannot read config file", err).WithSource(path)
	}
	return parse(data, format, path)
}

func parse(data []byte, format Format, source string) (TeamConfig, error) {
	doc, err := decodeDocument(data, format)
	if err != nil {
		var fe *errors.ConfigFormatError
		if errors.As(err, &fe) {
			fe.WithSource(source)
		}
		return TeamConfig{}, err
	}
	return fromMap(doc, source)
}

// LoadBytes parses an in-memory document of the given MIME type.
func (l *Loader) LoadBytes(data []byte, contentType string) (TeamConfig, error) {
	format, ok := FormatForContentType(contentType)
	if !ok {
		return TeamConfig{}, errors.NewConfigFormatError(
			fmt.Sprintf("unsupported content type %q", contentType),
			errors.ErrUnsupportedFormat,
		)
	}
	return parse(data, format, "")
}

// LoadPayload accepts an already-materialized config: a decoded mapping, a
// TeamConfig (or pointer), or raw document bytes whose format is sniffed.
// Any other type is rejected with ErrUnsupportedSource.
func (l *Loader) LoadPayload(value any) (TeamConfig, error) {
	switch v := value.(type) {
	case map[string]any:
		m, _ := normalize(v).(map[string]any)
		return fromMap(m, "")
	case TeamConfig:
		if err := v.Validate(); err != nil {
			return TeamConfig{}, err
		}
		return v.Clone(), nil
	case *TeamConfig:
		if v != nil {
			return l.LoadPayload(*v)
		}
	case json.RawMessage:
		return parse(v, FormatJSON, "")
	case []byte:
		return parse(v, sniff(v), "")
	}
	return TeamConfig{}, errors.NewConfigFormatError(
		fmt.Sprintf("cannot load %T", value),
		errors.ErrUnsupportedSource,
	)
}

// LoadDirectory loads every recognized file directly inside dir.
// Subdirectories and files with other extensions are skipped silently.
// Invalid files land in Failed without affecting the rest. The error is
// non-nil only when dir itself cannot be read.
func (l *Loader) LoadDirectory(dir string) (DirectoryResult, error) {
	entries, err := afero.ReadDir(l.fs, dir)
	if err != nil {
		return DirectoryResult{}, errors.NewConfigFormatError("cannot read config directory", err).WithSource(dir)
	}

	var paths []string
	for _, e := range entries {
		if !isCandidate(e) {
			continue
		}
		if l.match != nil && !l.match.Match(e.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}

	type outcome struct {
		cfg TeamConfig
		err error
	}
	mapper := iter.Mapper[string, outcome]{MaxGoroutines: l.workers}
	outcomes := mapper.Map(paths, func(path *string) outcome {
		cfg, err := l.loadFile(*path)
		return outcome{cfg: cfg, err: err}
	})

	var res DirectoryResult
	for i, o := range outcomes {
		path := paths[i]
		if o.err != nil {
			l.logger.Warn("skipping invalid team config", "path", path, "error", o.err.Error())
			l.bus.Publish(event.NewConfigRejectedEvent(path, o.err))
			res.Failed = append(res.Failed, Failure{Path: path, Reason: o.err})
			continue
		}
		l.bus.Publish(event.NewConfigLoadedEvent(path, o.cfg.Kind(), o.cfg.Label))
		res.Succeeded = append(res.Succeeded, Loaded{Path: path, Config: o.cfg})
	}
	l.logger.Debug("loaded team config directory",
		"dir", dir,
		"loaded", len(res.Succeeded),
		"failed", len(res.Failed))
	return res, nil
}

func isCandidate(e os.FileInfo) bool {
	if e.IsDir() {
		return false
	}
	_, ok := FormatForPath(e.Name())
	return ok
}
