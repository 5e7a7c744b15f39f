package integrity

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/nao1215/onionsentry/internal/model"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		t.Fatalf("failed to create dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

func digest(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// TestScanRoot tests which files end up in a snapshot.
func TestScanRoot(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "index.html"), "<h1>hi</h1>")
	writeFile(t, filepath.Join(root, "img", "logo.png"), "png")
	writeFile(t, filepath.Join(root, ".git", "HEAD"), "ref")
	writeFile(t, filepath.Join(root, ".htaccess"), "deny")
	writeFile(t, filepath.Join(root, "empty.txt"), "")
	if err := os.Symlink(filepath.Join(root, "index.html"), filepath.Join(root, "link.html")); err != nil {
		t.Fatalf("failed to create symlink: %v", err)
	}
	if err := os.Symlink(filepath.Join(root, "missing"), filepath.Join(root, "dangling")); err != nil {
		t.Fatalf("failed to create symlink: %v", err)
	}

	snap, err := NewScanner(root).ScanRoot()
	if err != nil {
		t.Fatalf("ScanRoot() returned error: %v", err)
	}

	expected := Snapshot{
		filepath.Join(root, "index.html"):      digest("<h1>hi</h1>"),
		filepath.Join(root, "link.html"):       digest("<h1>hi</h1>"),
		filepath.Join(root, "img", "logo.png"): digest("png"),
		filepath.Join(root, ".htaccess"):       digest("deny"),
	}
	if !Equal(snap, expected) {
		t.Errorf("snapshot = %v\nexpected %v", snap, expected)
	}
}

// TestScanMissingRoot tests the missing root behavior of both scan variants.
func TestScanMissingRoot(t *testing.T) {
	t.Parallel()

	s := NewScanner(filepath.Join(t.TempDir(), "gone"))

	if _, err := s.ScanRoot(); !errors.Is(err, ErrRootMissing) {
		t.Errorf("expected ErrRootMissing, got %v", err)
	}
	if snap := s.Scan(); len(snap) != 0 {
		t.Errorf("Scan() = %v, expected empty snapshot", snap)
	}
}

// TestDiff tests change detection and severity classification.
func TestDiff(t *testing.T) {
	t.Parallel()

	s := NewScanner("/srv")

	old := Snapshot{
		"/srv/index.html": "a",
		"/srv/about.txt":  "b",
		"/srv/old.txt":    "c",
		"/srv/app.php":    "d",
	}
	current := Snapshot{
		"/srv/index.html": "a",
		"/srv/about.txt":  "B",
		"/srv/app.php":    "D",
		"/srv/shell.SH":   "e",
		"/srv/new.html":   "f",
	}

	cs := s.Diff(old, current)

	expected := model.ChangeSet{
		Added: []model.Change{
			{Path: "/srv/new.html", Kind: model.ChangeAdded, Severity: model.SeverityWarning},
			{Path: "/srv/shell.SH", Kind: model.ChangeAdded, Severity: model.SeverityCritical},
		},
		Removed: []model.Change{
			{Path: "/srv/old.txt", Kind: model.ChangeRemoved, Severity: model.SeverityNotice},
		},
		Modified: []model.Change{
			{Path: "/srv/about.txt", Kind: model.ChangeModified, Severity: model.SeverityNotice},
			{Path: "/srv/app.php", Kind: model.ChangeModified, Severity: model.SeverityCritical},
		},
	}

	compare := func(name string, got, want []model.Change) {
		if len(got) != len(want) {
			t.Fatalf("%s = %v, expected %v", name, got, want)
		}
		for i := range got {
			if got[i] != want[i] {
				t.Errorf("%s[%d] = %+v, expected %+v", name, i, got[i], want[i])
			}
		}
	}
	compare("Added", cs.Added, expected.Added)
	compare("Removed", cs.Removed, expected.Removed)
	compare("Modified", cs.Modified, expected.Modified)

	if !s.Diff(current, current).IsEmpty() {
		t.Error("Diff(S, S) should be empty")
	}
}

// TestClassify tests severity rules per change kind.
func TestClassify(t *testing.T) {
	t.Parallel()

	s := NewScanner("/srv", WithSuspiciousExtensions([]string{".PHP", ".cgi"}))

	tests := []struct {
		name     string
		path     string
		kind     model.ChangeKind
		expected model.Severity
	}{
		{"added script", "/srv/x.php", model.ChangeAdded, model.SeverityCritical},
		{"added custom extension", "/srv/run.CGI", model.ChangeAdded, model.SeverityCritical},
		{"added page", "/srv/x.html", model.ChangeAdded, model.SeverityWarning},
		{"removed script", "/srv/x.php", model.ChangeRemoved, model.SeverityNotice},
		{"modified page", "/srv/x.txt", model.ChangeModified, model.SeverityNotice},
		{"modified script", "/srv/x.php", model.ChangeModified, model.SeverityCritical},
		{"replaced default set", "/srv/x.sh", model.ChangeAdded, model.SeverityWarning},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := s.Classify(tt.path, tt.kind); got != tt.expected {
				t.Errorf("Classify(%q, %v) = %v, expected %v", tt.path, tt.kind, got, tt.expected)
			}
		})
	}
}
