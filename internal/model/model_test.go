package model

import (
	"encoding/json"
	"strings"
	"testing"
)

// TestSeverityString tests the String method of Severity.
func TestSeverityString(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		severity Severity
		expected string
	}{
		{SeverityNotice, "NOTICE"},
		{SeverityWarning, "WARNING"},
		{SeverityCritical, "CRITICAL"},
		{Severity(999), "UNKNOWN"},
	}

	for _, tc := range testCases {
		t.Run(tc.expected, func(t *testing.T) {
			t.Parallel()
			if tc.severity.String() != tc.expected {
				t.Errorf("got %q, expected %q", tc.severity.String(), tc.expected)
			}
		})
	}
}

// TestParseSeverity tests round-tripping severity names.
func TestParseSeverity(t *testing.T) {
	t.Parallel()

	for _, s := range AllSeverities() {
		got, ok := ParseSeverity(s.String())
		if !ok || got != s {
			t.Errorf("ParseSeverity(%q) = %v, %v; expected %v, true", s.String(), got, ok, s)
		}
	}

	if got, ok := ParseSeverity(" critical "); !ok || got != SeverityCritical {
		t.Errorf("ParseSeverity should be case-insensitive, got %v, %v", got, ok)
	}
	if _, ok := ParseSeverity("HIGH"); ok {
		t.Error("ParseSeverity(\"HIGH\") should not be recognized")
	}
}

// TestSeverityOrdering tests that severity levels are ordered correctly.
func TestSeverityOrdering(t *testing.T) {
	t.Parallel()

	if !(SeverityNotice < SeverityWarning && SeverityWarning < SeverityCritical) {
		t.Error("expected Notice < Warning < Critical")
	}
}

// TestChangeKindString tests the ChangeKind names and parsing.
func TestChangeKindString(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		kind     ChangeKind
		expected string
	}{
		{ChangeAdded, "added"},
		{ChangeRemoved, "removed"},
		{ChangeModified, "modified"},
		{ChangeKind(42), "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.expected, func(t *testing.T) {
			t.Parallel()
			if tc.kind.String() != tc.expected {
				t.Errorf("got %q, expected %q", tc.kind.String(), tc.expected)
			}
			if tc.expected == "unknown" {
				return
			}
			parsed, ok := ParseChangeKind(tc.expected)
			if !ok || parsed != tc.kind {
				t.Errorf("ParseChangeKind(%q) = %v, %v", tc.expected, parsed, ok)
			}
		})
	}
}

// TestChangeSet tests the ChangeSet helpers.
func TestChangeSet(t *testing.T) {
	t.Parallel()

	t.Run("zero value is empty", func(t *testing.T) {
		t.Parallel()
		var cs ChangeSet
		if !cs.IsEmpty() {
			t.Error("expected zero ChangeSet to be empty")
		}
		if len(cs.All()) != 0 {
			t.Errorf("All() length = %d, expected 0", len(cs.All()))
		}
	})

	t.Run("counts and ordering", func(t *testing.T) {
		t.Parallel()
		cs := ChangeSet{
			Added:    []Change{{Path: "/a.sh", Kind: ChangeAdded, Severity: SeverityCritical}},
			Removed:  []Change{{Path: "/b.txt", Kind: ChangeRemoved, Severity: SeverityNotice}},
			Modified: []Change{{Path: "/c.txt", Kind: ChangeModified, Severity: SeverityNotice}},
		}

		if cs.Len() != 3 {
			t.Errorf("Len() = %d, expected 3", cs.Len())
		}

		all := cs.All()
		if all[0].Kind != ChangeAdded || all[1].Kind != ChangeRemoved || all[2].Kind != ChangeModified {
			t.Errorf("All() order = %v, expected added, removed, modified", all)
		}

		counts := cs.CountBySeverity()
		if counts[SeverityCritical] != 1 || counts[SeverityNotice] != 2 {
			t.Errorf("CountBySeverity() = %v", counts)
		}
	})
}

// TestOutcomeAndWindowString tests the defense enums.
func TestOutcomeAndWindowString(t *testing.T) {
	t.Parallel()

	outcomes := map[Outcome]string{
		OutcomeTriggered:   "triggered",
		OutcomeRateLimited: "rate_limited",
		OutcomeFailed:      "failed",
		Outcome(9):         "unknown",
	}
	for o, expected := range outcomes {
		if o.String() != expected {
			t.Errorf("Outcome(%d).String() = %q, expected %q", o, o.String(), expected)
		}
	}

	for _, o := range AllOutcomes() {
		if got, ok := ParseOutcome(o.String()); !ok || got != o {
			t.Errorf("ParseOutcome(%q) = %v, %v", o.String(), got, ok)
		}
	}
	if _, ok := ParseOutcome("exploded"); ok {
		t.Error("ParseOutcome(\"exploded\") should not be recognized")
	}

	if WindowMinute.String() != "1min" || WindowBurst.String() != "10sec" {
		t.Errorf("unexpected window names: %q, %q", WindowMinute, WindowBurst)
	}
}

// TestAuditResult tests the pass/fail label.
func TestAuditResult(t *testing.T) {
	t.Parallel()

	if (AuditResult{OK: true}).Result() != "pass" {
		t.Error("expected pass for OK result")
	}
	if (AuditResult{OK: false}).Result() != "fail" {
		t.Error("expected fail for non-OK result")
	}
}

// TestJSONNames tests that enums are encoded by name, including map keys.
func TestJSONNames(t *testing.T) {
	t.Parallel()

	ev := DefenseEvent{
		Detection: Detection{Window: WindowBurst, Observed: 16, Threshold: 15},
		Outcome:   OutcomeRateLimited,
	}
	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("Marshal() returned error: %v", err)
	}
	for _, want := range []string{`"window":"10sec"`, `"outcome":"rate_limited"`} {
		if !strings.Contains(string(data), want) {
			t.Errorf("JSON %s missing %s", data, want)
		}
	}

	counts := map[Severity]int{SeverityCritical: 2}
	data, err = json.Marshal(counts)
	if err != nil || string(data) != `{"CRITICAL":2}` {
		t.Errorf("Marshal(map) = %s, %v", data, err)
	}

	var decoded map[Severity]int
	if err := json.Unmarshal(data, &decoded); err != nil || decoded[SeverityCritical] != 2 {
		t.Errorf("Unmarshal(map) = %v, %v", decoded, err)
	}

	var k ChangeKind
	if err := k.UnmarshalText([]byte("sideways")); err == nil {
		t.Error("expected error for unknown change kind")
	}
}
