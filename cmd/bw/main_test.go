package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/vanderheijden86/breathwork/internal/datasource"
	"github.com/vanderheijden86/breathwork/pkg/model"
	"github.com/vanderheijden86/breathwork/pkg/session"
	"github.com/vanderheijden86/breathwork/pkg/testutil"
	"github.com/vanderheijden86/breathwork/pkg/version"
)

type cli struct {
	t   *testing.T
	dir string
	cfg string
}

func newCLI(t *testing.T) *cli {
	t.Helper()
	t.Setenv("BW_DATA_DIR", "")
	dir := t.TempDir()
	cfg := filepath.Join(dir, "config.yaml")
	// A low threshold keeps the one-second apnea of the scenario an apnea.
	yaml := "data_dir: " + filepath.Join(dir, "data") + "\nsegmentation:\n  apnea_threshold_factor: 0.1\n"
	if err := os.WriteFile(cfg, []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}
	return &cli{t: t, dir: dir, cfg: cfg}
}

// run executes one bw invocation and returns stdout, stderr and the error.
func (c *cli) run(args ...string) (string, string, error) {
	c.t.Helper()
	var out, errOut bytes.Buffer
	a := newApp(&out, &errOut)
	root := newRootCmd(a)
	root.SetArgs(append([]string{"--config", c.cfg}, args...))
	err := root.ExecuteContext(context.Background())
	a.close()
	if err != nil {
		a.reportError(err)
	}
	return out.String(), errOut.String(), err
}

func (c *cli) ok(args ...string) string {
	c.t.Helper()
	out, stderr, err := c.run(args...)
	if err != nil {
		c.t.Fatalf("bw %s: %v\n%s", strings.Join(args, " "), err, stderr)
	}
	return out
}

func (c *cli) result(args ...string) session.Result {
	c.t.Helper()
	var res session.Result
	out := c.ok(append(args, "--json")...)
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		c.t.Fatalf("decode %q: %v", out, err)
	}
	return res
}

// failCode runs a command expected to fail and returns the JSON error code.
func (c *cli) failCode(args ...string) model.ErrorCode {
	c.t.Helper()
	out, _, err := c.run(append(args, "--json")...)
	if err == nil {
		c.t.Fatalf("bw %s: expected error", strings.Join(args, " "))
	}
	var body struct {
		Error struct {
			Code    model.ErrorCode `json:"code"`
			Message string          `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal([]byte(out), &body); err != nil {
		c.t.Fatalf("decode error body %q: %v", out, err)
	}
	if body.Error.Message == "" {
		c.t.Errorf("error body without message: %q", out)
	}
	return body.Error.Code
}

func (c *cli) importScenario() session.Result {
	c.t.Helper()
	rec := testutil.WriteRecording(c.t, filepath.Join(c.dir, "in"), "breath", testutil.Scenario())
	return c.result("import", rec, "--participant", "Ana")
}

func TestImportListShow(t *testing.T) {
	c := newCLI(t)
	res := c.importScenario()
	if res.ID != 1 {
		t.Fatalf("first session id = %d", res.ID)
	}
	testutil.AssertIDs(t, res.Events, 1, 2, 3)
	testutil.AssertTypes(t, res.Events, model.Inhalation, model.Exhalation, model.Apnea)

	var sums []session.Summary
	if err := json.Unmarshal([]byte(c.ok("list", "--json")), &sums); err != nil {
		t.Fatal(err)
	}
	if len(sums) != 1 || sums[0].Participant != "Ana" || sums[0].Filename != "breath.wav" {
		t.Errorf("list = %+v", sums)
	}
	if text := c.ok("list"); !strings.Contains(text, "Ana") || !strings.Contains(text, "breath.wav") {
		t.Errorf("list text:\n%s", text)
	}

	show := c.ok("show", "1")
	for _, want := range []string{"Session 1", "inhalation", "apnea", "Overall"} {
		if !strings.Contains(show, want) {
			t.Errorf("show missing %q:\n%s", want, show)
		}
	}
}

func TestEditUndoCycle(t *testing.T) {
	c := newCLI(t)
	c.importScenario()

	if code := c.failCode("split", "1", "1", "99"); code != model.CodeInvalidSplitPoint {
		t.Errorf("split outside event: code %q", code)
	}
	if code := c.failCode("merge", "1", "1", "3"); code != model.CodeNonContiguousMerge {
		t.Errorf("non-contiguous merge: code %q", code)
	}

	res := c.result("split", "1", "2", "7")
	testutil.AssertIDs(t, res.Events, 1, 2, 4, 3)
	testutil.AssertTypes(t, res.Events, model.Inhalation, model.Exhalation, model.Inhalation, model.Apnea)
	if !res.UndoAvailable {
		t.Error("split should leave an undo version")
	}

	res = c.result("undo", "1")
	testutil.AssertIDs(t, res.Events, 1, 2, 3)
	if code := c.failCode("undo", "1"); code != model.CodeNoUndoAvailable {
		t.Errorf("second undo: code %q", code)
	}

	res = c.result("merge", "1", "1", "2")
	testutil.AssertIDs(t, res.Events, 4, 3)
	testutil.AssertBounds(t, res.Events, 0, 9, 9, 10)

	res = c.result("delete", "1", "3")
	testutil.AssertIDs(t, res.Events, 4)

	res = c.result("delete", "1", "42")
	testutil.AssertIDs(t, res.Events, 4)
	res = c.result("delete", "1")
	testutil.AssertIDs(t, res.Events, 4)

	res = c.result("merge", "1", "4")
	testutil.AssertIDs(t, res.Events, 5)
	testutil.AssertBounds(t, res.Events, 0, 9)
}

func TestErrors(t *testing.T) {
	c := newCLI(t)
	if code := c.failCode("show", "99"); code != model.CodeSessionNotFound {
		t.Errorf("unknown session: code %q", code)
	}

	bad := filepath.Join(c.dir, "notes.txt")
	if err := os.WriteFile(bad, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if code := c.failCode("import", bad); code != model.CodeUnsupportedFile {
		t.Errorf("unsupported file: code %q", code)
	}

	_, stderr, err := c.run("show", "abc")
	if err == nil || !strings.Contains(stderr, "invalid session id") {
		t.Errorf("bad id: err=%v stderr=%q", err, stderr)
	}
	if !strings.HasPrefix(stderr, "Error: ") {
		t.Errorf("internal errors print without a code: %q", stderr)
	}

	imported := c.importScenario()
	for _, at := range []string{"7abc", "NaN", "Inf", ""} {
		if _, stderr, err := c.run("split", "1", "2", at); err == nil || !strings.Contains(stderr, "invalid split time") {
			t.Errorf("split at %q: err=%v stderr=%q", at, err, stderr)
		}
	}
	if _, _, err := c.run("scores", "1", "--weight", "pace=0.5x"); err == nil {
		t.Error("malformed weight should fail")
	}
	// Rejected input never reaches the engine, so no backup was taken.
	_, stderr, _ = c.run("undo", "1")
	if !strings.Contains(stderr, "Error [NO_UNDO_AVAILABLE]") {
		t.Errorf("coded error text: %q", stderr)
	}
	if res := c.result("show", "1"); res.Version != imported.Version {
		t.Errorf("version = %d after rejected input", res.Version)
	}

	if code := c.failCode("merge", "1", "42"); code != model.CodeSegmentsNotFound {
		t.Errorf("merge unknown: code %q", code)
	}
}

func TestScores(t *testing.T) {
	c := newCLI(t)
	c.importScenario()

	var base, fast model.Scores
	if err := json.Unmarshal([]byte(c.ok("scores", "1", "--json")), &base); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal([]byte(c.ok("scores", "1", "--target-bpm", "12", "--json")), &fast); err != nil {
		t.Fatal(err)
	}
	if base.Pillars["pace"] == fast.Pillars["pace"] {
		t.Errorf("target override did not change the pace pillar: %v", base.Pillars)
	}

	override := filepath.Join(c.dir, "scoring.yaml")
	if err := os.WriteFile(override, []byte("weights:\n  pace: 1\n  rhythm: 0\n  ratio: 0\n  apnea: 0\n"), 0644); err != nil {
		t.Fatal(err)
	}
	var paceOnly model.Scores
	if err := json.Unmarshal([]byte(c.ok("scores", "1", "--override", override, "--json")), &paceOnly); err != nil {
		t.Fatal(err)
	}
	testutil.AssertFloat(t, "overall", paceOnly.Overall, paceOnly.Pillars["pace"])

	if _, _, err := c.run("scores", "1", "--weight", "bogus=1"); err == nil {
		t.Error("unknown pillar should fail")
	}
	// Scores are a view: the stored session is untouched.
	if res := c.result("show", "1"); res.Scores.Overall != base.Overall {
		t.Errorf("stored overall changed to %g", res.Scores.Overall)
	}
}

func TestReportAndFigure(t *testing.T) {
	c := newCLI(t)
	c.importScenario()

	md := c.ok("report", "1", "--title", "Morning")
	if !strings.HasPrefix(md, "# Morning") {
		t.Errorf("report:\n%s", md)
	}

	path := filepath.Join(c.dir, "out", "report.md")
	c.ok("report", "1", "-o", path)
	if data, err := os.ReadFile(path); err != nil || !strings.Contains(string(data), "Ana") {
		t.Errorf("report file: %v", err)
	}

	png := filepath.Join(c.dir, "out", "timeline.png")
	if out := c.ok("figure", "1", "-o", png); !strings.Contains(out, png) {
		t.Errorf("figure output %q", out)
	}
	if _, err := os.Stat(png); err != nil {
		t.Error(err)
	}

	svg := filepath.Join(c.dir, "out", "timeline")
	c.ok("figure", "1", "-o", svg)
	if _, err := os.Stat(svg + ".svg"); err != nil {
		t.Error(err)
	}
}

func TestReconcileAndClear(t *testing.T) {
	c := newCLI(t)
	c.importScenario()
	c.ok("split", "1", "2", "7")

	var report datasource.Report
	if err := json.Unmarshal([]byte(c.ok("reconcile", "--json")), &report); err != nil {
		t.Fatal(err)
	}
	if !report.Clean() || len(report.Findings) != 1 {
		t.Errorf("reconcile = %+v", report)
	}

	if _, _, err := c.run("clear"); err == nil {
		t.Error("clear without --yes and without a terminal should refuse")
	}
	if out := c.ok("clear", "--yes"); !strings.Contains(out, "Deleted 1 index rows") {
		t.Errorf("clear output %q", out)
	}
	if out := c.ok("list"); !strings.Contains(out, "No sessions") {
		t.Errorf("list after clear %q", out)
	}

	// The snapshot survives as an orphan.
	if err := json.Unmarshal([]byte(c.ok("reconcile", "--json")), &report); err != nil {
		t.Fatal(err)
	}
	if len(report.Orphans) != 1 {
		t.Errorf("orphans = %v", report.Orphans)
	}
	if _, _, err := c.run("reconcile", "--strict"); err == nil {
		t.Error("--strict should fail with an orphan")
	}
}

func TestWatchReportsCurrentState(t *testing.T) {
	c := newCLI(t)
	c.importScenario()
	out := c.ok("watch", "1", "--for", "50ms")
	if !strings.Contains(out, "ok: version") || !strings.Contains(out, "3 events") {
		t.Errorf("watch output %q", out)
	}
}

func TestVersionAndTimings(t *testing.T) {
	c := newCLI(t)
	if out := c.ok("version"); !strings.HasPrefix(out, "bw "+version.Version) {
		t.Errorf("version output %q", out)
	}
	c.importScenario()
	_, stderr, err := c.run("split", "1", "2", "7", "--timings")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(stderr, "timings:") || !strings.Contains(stderr, "edit_split") {
		t.Errorf("timings output %q", stderr)
	}
}

func TestParseArgs(t *testing.T) {
	tests := []struct {
		in   string
		want int64
		ok   bool
	}{
		{"1", 1, true},
		{"42", 42, true},
		{"0", 0, false},
		{"-3", 0, false},
		{"x", 0, false},
	}
	for _, tt := range tests {
		got, err := parseSessionID(tt.in)
		if (err == nil) != tt.ok || got != tt.want {
			t.Errorf("parseSessionID(%q) = %d, %v", tt.in, got, err)
		}
	}

	ids, err := parseEventIDs([]string{"3", "1"})
	if err != nil || len(ids) != 2 || ids[0] != 3 {
		t.Errorf("parseEventIDs = %v, %v", ids, err)
	}
	if _, err := parseEventIDs([]string{"1", "two"}); err == nil {
		t.Error("expected error for non-numeric id")
	}
}

func TestBuildOverride(t *testing.T) {
	o, err := buildOverride("", 10, 2, []string{"pace=0.5", " apnea = 0.5"})
	if err != nil {
		t.Fatal(err)
	}
	if o.TargetBPM != 10 || o.TargetIERatio != 2 || o.Weights["pace"] != 0.5 || o.Weights["apnea"] != 0.5 {
		t.Errorf("override = %+v", o)
	}
	for _, bad := range []string{"pace", "pace=x", "pace=0.5x", "pace=NaN", "pace=+Inf"} {
		if _, err := buildOverride("", 0, 0, []string{bad}); err == nil {
			t.Errorf("weight %q: expected error", bad)
		}
	}
	if _, err := buildOverride(filepath.Join(t.TempDir(), "missing.yaml"), 0, 0, nil); err == nil {
		t.Error("missing override file should fail")
	}
}

func TestSuppressTTYQueries(t *testing.T) {
	tests := []struct {
		args    []string
		envTest bool
		want    bool
	}{
		{[]string{"bw", "list"}, false, false},
		{[]string{"bw", "--json", "list"}, false, true},
		{[]string{"bw", "show", "1", "--json=true"}, false, true},
		{[]string{"bw", "--version"}, false, true},
		{[]string{"bw", "edit", "1"}, true, true},
	}
	for _, tt := range tests {
		if got := suppressTTYQueries(tt.args, tt.envTest); got != tt.want {
			t.Errorf("suppressTTYQueries(%v, %v) = %v, want %v", tt.args, tt.envTest, got, tt.want)
		}
	}
}
