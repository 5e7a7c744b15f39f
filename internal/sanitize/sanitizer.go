package sanitize

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency is the number of files rewritten in parallel by Dir.
const DefaultConcurrency = 4

// LogFileSuffix selects the files rewritten by Dir.
const LogFileSuffix = ".log"

// ErrTargetNotFound is returned when the file or directory to sanitize does not exist.
var ErrTargetNotFound = errors.New("sanitize target does not exist")

// Sanitizer applies an ordered list of rules to text.
// A Sanitizer is immutable after construction and safe for concurrent use.
type Sanitizer struct {
	rules       []Rule
	concurrency int
	logger      *slog.Logger
}

// Option configures a Sanitizer.
type Option func(*Sanitizer)

// WithRules replaces the rule set.
func WithRules(rules []Rule) Option {
	return func(s *Sanitizer) {
		s.rules = rules
	}
}

// WithConcurrency sets how many files Dir rewrites at once.
func WithConcurrency(n int) Option {
	return func(s *Sanitizer) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithLogger sets the logger used to report per-file failures.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Sanitizer) {
		s.logger = logger
	}
}

// New creates a Sanitizer using DefaultPatterns unless overridden.
func New(opts ...Option) *Sanitizer {
	s := &Sanitizer{
		rules:       DefaultPatterns(),
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Line returns the input with every rule applied in order.
func (s *Sanitizer) Line(line string) string {
	for _, r := range s.rules {
		line = r.Pattern.ReplaceAllString(line, r.Replacement)
	}
	return line
}

// File rewrites a single file in place.
// The sanitized content is written to "<path>.tmp" and renamed over the
// original. The original file mode is preserved. Invalid UTF-8 is dropped.
func (s *Sanitizer) File(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrTargetNotFound, path)
		}
		return err
	}

	src, err := os.Open(path) //nolint:gosec // Operator-provided log path is intentional
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer src.Close()

	tmpPath := path + ".tmp"
	dst, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm()) //nolint:gosec // Sibling of the operator-provided path
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}

	if err := s.copySanitized(dst, src); err != nil {
		_ = dst.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to sanitize %s: %w", path, err)
	}
	if err := dst.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to close temporary file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

// copySanitized streams src to dst line by line, applying the rules.
// Line endings are preserved, including a missing final newline.
func (s *Sanitizer) copySanitized(dst io.Writer, src io.Reader) error {
	reader := bufio.NewReader(src)
	writer := bufio.NewWriter(dst)

	for {
		line, readErr := reader.ReadString('\n')
		if line != "" {
			clean := s.Line(strings.ToValidUTF8(line, ""))
			if _, err := writer.WriteString(clean); err != nil {
				return err
			}
		}
		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			return readErr
		}
	}
	return writer.Flush()
}

// Dir rewrites every *.log file below root.
// Files are processed concurrently; a failure on one file is logged and
// counted but does not stop the others. The number of files rewritten is
// returned along with an error summarizing failures.
func (s *Sanitizer) Dir(ctx context.Context, root string) (int, error) {
	info, err := os.Stat(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, fmt.Errorf("%w: %s", ErrTargetNotFound, root)
		}
		return 0, err
	}
	if !info.IsDir() {
		return 0, fmt.Errorf("%s is not a directory", root)
	}

	var files []string
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			s.logger.Debug("skipping unreadable path", "path", path, "error", err)
			return nil
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), LogFileSuffix) {
			files = append(files, path)
		}
		return nil
	})
	if walkErr != nil {
		return 0, walkErr
	}

	results := make([]error, len(files))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for i, path := range files {
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			if err := s.File(path); err != nil {
				s.logger.Error("failed to sanitize file", "path", path, "error", err)
				results[i] = err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	done := 0
	var failed []error
	for _, err := range results {
		if err != nil {
			failed = append(failed, err)
			continue
		}
		done++
	}
	return done, errors.Join(failed...)
}

// Path sanitizes a file or every log file in a directory.
func (s *Sanitizer) Path(ctx context.Context, target string) (int, error) {
	info, err := os.Stat(target)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, fmt.Errorf("%w: %s", ErrTargetNotFound, target)
		}
		return 0, err
	}
	if info.IsDir() {
		return s.Dir(ctx, target)
	}
	if err := s.File(target); err != nil {
		return 0, err
	}
	return 1, nil
}
