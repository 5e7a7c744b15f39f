package integrity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/nao1215/onionsentry/internal/model"
)

// Snapshot maps absolute file paths to lowercase hex SHA-256 digests.
type Snapshot map[string]string

// Equal reports whether two snapshots hold the same paths and digests.
func Equal(a, b Snapshot) bool {
	return maps.Equal(a, b)
}

// DefaultSuspiciousExtensions lists extensions whose addition or
// modification is critical.
func DefaultSuspiciousExtensions() []string {
	return []string{".php", ".sh", ".py", ".pl", ".rb", ".exe", ".bin"}
}

// Scanner hashes the files below a root directory.
type Scanner struct {
	root       string
	suspicious map[string]struct{}
	logger     *slog.Logger
}

// ScannerOption configures a Scanner.
type ScannerOption func(*Scanner)

// WithSuspiciousExtensions replaces the suspicious extension set.
// Extensions include the leading dot and are matched case-insensitively.
func WithSuspiciousExtensions(exts []string) ScannerOption {
	return func(s *Scanner) {
		s.suspicious = make(map[string]struct{}, len(exts))
		for _, ext := range exts {
			s.suspicious[strings.ToLower(ext)] = struct{}{}
		}
	}
}

// WithScannerLogger sets the logger.
func WithScannerLogger(logger *slog.Logger) ScannerOption {
	return func(s *Scanner) {
		s.logger = logger
	}
}

// NewScanner creates a Scanner for root.
func NewScanner(root string, opts ...ScannerOption) *Scanner {
	s := &Scanner{root: filepath.Clean(root)}
	WithSuspiciousExtensions(DefaultSuspiciousExtensions())(s)
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Root returns the scanned directory.
func (s *Scanner) Root() string {
	return s.root
}

// Scan is ScanRoot with the missing-root error logged and an empty
// snapshot returned instead.
func (s *Scanner) Scan() Snapshot {
	snap, err := s.ScanRoot()
	if err != nil {
		s.logger.Error("integrity scan failed", "root", s.root, "error", err)
		return Snapshot{}
	}
	return snap
}

// ScanRoot hashes every non-empty regular file below the root.
// Hidden subdirectories are skipped, symlinks to regular files are
// followed and unreadable files are skipped with a debug log.
func (s *Scanner) ScanRoot() (Snapshot, error) {
	info, err := os.Stat(s.root)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrRootMissing, s.root)
	}

	snap := make(Snapshot)
	err = filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			s.logger.Debug("cannot read path", "path", s.rel(path), "error", err)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if path != s.root && isHidden(d.Name()) {
				return fs.SkipDir
			}
			return nil
		}

		// Stat follows symlinks; anything that is not a regular file
		// afterwards (device, socket, dangling link, link to a directory)
		// is ignored.
		fi, err := os.Stat(path)
		if err != nil || !fi.Mode().IsRegular() || fi.Size() == 0 {
			return nil
		}

		digest, err := hashFile(path)
		if err != nil {
			s.logger.Debug("cannot hash file", "path", s.rel(path), "error", err)
			return nil
		}
		snap[path] = digest
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path) //nolint:gosec // Paths come from walking the configured root
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Diff compares two snapshots. Each list in the result is sorted by path.
func (s *Scanner) Diff(old, current Snapshot) model.ChangeSet {
	var cs model.ChangeSet

	for _, path := range sortedKeys(current) {
		oldDigest, ok := old[path]
		switch {
		case !ok:
			cs.Added = append(cs.Added, s.change(path, model.ChangeAdded))
		case oldDigest != current[path]:
			cs.Modified = append(cs.Modified, s.change(path, model.ChangeModified))
		}
	}
	for _, path := range sortedKeys(old) {
		if _, ok := current[path]; !ok {
			cs.Removed = append(cs.Removed, s.change(path, model.ChangeRemoved))
		}
	}
	return cs
}

func (s *Scanner) change(path string, kind model.ChangeKind) model.Change {
	return model.Change{Path: path, Kind: kind, Severity: s.Classify(path, kind)}
}

// Classify returns the severity of a change to path.
// Suspicious extensions make additions and modifications critical.
// Removals are always notices.
func (s *Scanner) Classify(path string, kind model.ChangeKind) model.Severity {
	suspicious := s.IsSuspicious(path)
	switch kind {
	case model.ChangeAdded:
		if suspicious {
			return model.SeverityCritical
		}
		return model.SeverityWarning
	case model.ChangeModified:
		if suspicious {
			return model.SeverityCritical
		}
		return model.SeverityNotice
	default:
		return model.SeverityNotice
	}
}

// IsSuspicious reports whether the path has a suspicious extension.
func (s *Scanner) IsSuspicious(path string) bool {
	_, ok := s.suspicious[strings.ToLower(filepath.Ext(path))]
	return ok
}

// rel returns path relative to the root for logging, or the base name when
// path lies outside it.
func (s *Scanner) rel(path string) string {
	r, err := filepath.Rel(s.root, path)
	if err != nil || strings.HasPrefix(r, "..") {
		return filepath.Base(path)
	}
	return r
}

func sortedKeys(m Snapshot) []string {
	return slices.Sorted(maps.Keys(m))
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}
