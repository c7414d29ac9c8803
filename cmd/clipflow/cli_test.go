package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/hpungsan/clipflow/internal/clipboard"
	"github.com/hpungsan/clipflow/internal/config"
	"github.com/hpungsan/clipflow/internal/db"
	"github.com/hpungsan/clipflow/internal/ops"
	"github.com/hpungsan/clipflow/internal/pipeline"
)

const wrappedProse = "    The quick brown fox jumps over the lazy dog and keeps on\n" +
	"    running through the long grass of the field until the sun\n" +
	"    goes down behind the hills where nobody can see it anymore."

// setupTestEnv creates a temporary database and in-memory clipboard for testing.
func setupTestEnv(t *testing.T) (*appEnv, *clipboard.Memory) {
	t.Helper()
	database, err := db.Init(t.TempDir())
	if err != nil {
		t.Fatalf("failed to init test db: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	mem := clipboard.NewMemory()
	return &appEnv{
		db:   database,
		cfg:  config.DefaultConfig(),
		log:  zap.NewNop(),
		clip: mem,
	}, mem
}

// runCLI runs args against a fresh app with the given stdin.
func runCLI(t *testing.T, env *appEnv, stdin string, args ...string) (string, error) {
	t.Helper()
	app := newCLIApp(env)
	var out bytes.Buffer
	app.Writer = &out
	app.ErrWriter = &bytes.Buffer{}
	app.Reader = strings.NewReader(stdin)
	err := app.Run(append([]string{"clipflow"}, args...))
	return out.String(), err
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		input   string
		want    int
		wantErr bool
	}{
		{"7d", 7, false},
		{"0d", 0, false},
		{"30d", 30, false},
		{"-1d", 0, true},
		{"7", 0, true},
		{"7h", 0, true},
		{"abcd", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseDuration(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseDuration(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("parseDuration(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestReadLimited(t *testing.T) {
	got, err := readLimited(strings.NewReader("small content"), 1000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "small content" {
		t.Errorf("got %q", got)
	}

	if _, err := readLimited(strings.NewReader(strings.Repeat("x", 100)), 50); err == nil {
		t.Error("expected error for content exceeding limit, got nil")
	}
}

func TestCLIStrip(t *testing.T) {
	env, _ := setupTestEnv(t)

	out, err := runCLI(t, env, "    alpha\n      beta\n    gamma", "strip")
	if err != nil {
		t.Fatalf("strip failed: %v", err)
	}
	if out != "alpha\n  beta\ngamma\n" {
		t.Errorf("strip output = %q", out)
	}

	out, err = runCLI(t, env, "", "strip", "--json", "   hello   ")
	if err != nil {
		t.Fatalf("strip --json failed: %v", err)
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(out), &payload); err != nil {
		t.Fatalf("failed to parse output: %v\nOutput: %s", err, out)
	}
	if payload["text"] != "hello" || payload["changed"] != true {
		t.Errorf("payload = %v", payload)
	}
}

func TestCLIUnwrap(t *testing.T) {
	env, _ := setupTestEnv(t)

	stripped, err := pipeline.Strip(env.cfg).Apply(wrappedProse)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	want, err := pipeline.Unwrap(env.cfg).Apply(stripped)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	out, err := runCLI(t, env, stripped, "unwrap")
	if err != nil {
		t.Fatalf("unwrap failed: %v", err)
	}
	if strings.TrimSuffix(out, "\n") != want {
		t.Errorf("unwrap output = %q, want %q", out, want)
	}
}

func TestCLIDetect(t *testing.T) {
	env, _ := setupTestEnv(t)

	out, err := runCLI(t, env, "```go\nfunc main() {}\n```", "detect")
	if err != nil {
		t.Fatalf("detect failed: %v", err)
	}
	var report map[string]any
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("failed to parse output: %v\nOutput: %s", err, out)
	}
	if report["skip"] != true {
		t.Errorf("fenced code should be skipped: %v", report)
	}

	if _, err := runCLI(t, env, "   ", "detect"); err == nil {
		t.Error("expected EMPTY_INPUT error, got nil")
	}
}

func TestCLITransform(t *testing.T) {
	env, mem := setupTestEnv(t)

	want, err := pipeline.New(pipeline.Heuristics(env.cfg), pipeline.Config{}).Execute(t.Context(), wrappedProse)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	out, err := runCLI(t, env, wrappedProse, "transform")
	if err != nil {
		t.Fatalf("transform failed: %v", err)
	}
	if strings.TrimSuffix(out, "\n") != want.FinalOutput {
		t.Errorf("transform output = %q, want %q", out, want.FinalOutput)
	}
	if mem.Writes() != 0 {
		t.Error("text transform should not touch the clipboard")
	}

	// The run was recorded before the command returned.
	list, err := ops.ListRuns(t.Context(), env.db, ops.ListInput{Trigger: "cli"})
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if list.Pagination.Total != 1 {
		t.Errorf("history total = %d, want 1", list.Pagination.Total)
	}
}

func TestCLITransform_Clipboard(t *testing.T) {
	env, mem := setupTestEnv(t)
	mem.SetText(wrappedProse)

	out, err := runCLI(t, env, "", "transform", "--clipboard", "--json")
	if err != nil {
		t.Fatalf("transform --clipboard failed: %v", err)
	}
	var summary pipeline.Summary
	if err := json.Unmarshal([]byte(out), &summary); err != nil {
		t.Fatalf("failed to parse output: %v\nOutput: %s", err, out)
	}
	if summary.Outcome != pipeline.OutcomeSuccess {
		t.Errorf("outcome = %s, want success", summary.Outcome)
	}
	if mem.Text() != summary.Output {
		t.Errorf("clipboard = %q, want %q", mem.Text(), summary.Output)
	}
	if len(summary.RequestID) != 26 {
		t.Errorf("request_id = %q, want a ULID", summary.RequestID)
	}
}

func TestCLITransform_RemoteStage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Text string `json:"text"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		_ = json.NewEncoder(w).Encode(map[string]string{"text": strings.ToUpper(body.Text)})
	}))
	defer srv.Close()

	env, _ := setupTestEnv(t)
	env.cfg.Stages = []string{config.StageWhitespaceStrip, config.StageRemote}
	env.cfg.Remote.URL = srv.URL

	out, err := runCLI(t, env, "", "transform", "  shout  ")
	if err != nil {
		t.Fatalf("transform failed: %v", err)
	}
	if out != "SHOUT\n" {
		t.Errorf("output = %q, want SHOUT", out)
	}
}

func TestCLIHistory(t *testing.T) {
	env, _ := setupTestEnv(t)

	for _, text := range []string{"one", "two", "three"} {
		if _, err := runCLI(t, env, "", "transform", text); err != nil {
			t.Fatalf("transform failed: %v", err)
		}
	}

	out, err := runCLI(t, env, "", "history", "list", "--limit=2")
	if err != nil {
		t.Fatalf("history list failed: %v", err)
	}
	var list ops.ListOutput
	if err := json.Unmarshal([]byte(out), &list); err != nil {
		t.Fatalf("failed to parse output: %v\nOutput: %s", err, out)
	}
	if len(list.Items) != 2 || !list.Pagination.HasMore {
		t.Fatalf("list = %+v", list)
	}

	out, err = runCLI(t, env, "", "history", "show", list.Items[0].ID)
	if err != nil {
		t.Fatalf("history show failed: %v", err)
	}
	var run map[string]any
	if err := json.Unmarshal([]byte(out), &run); err != nil {
		t.Fatalf("failed to parse output: %v\nOutput: %s", err, out)
	}
	if run["id"] != list.Items[0].ID {
		t.Errorf("id = %v, want %s", run["id"], list.Items[0].ID)
	}

	out, err = runCLI(t, env, "", "history", "stats")
	if err != nil {
		t.Fatalf("history stats failed: %v", err)
	}
	if !strings.Contains(out, `"total": 3`) {
		t.Errorf("stats output = %s", out)
	}

	out, err = runCLI(t, env, "", "history", "purge", "--all")
	if err != nil {
		t.Fatalf("history purge failed: %v", err)
	}
	if !strings.Contains(out, `"purged": 3`) {
		t.Errorf("purge output = %s", out)
	}
}

func TestCLIHistory_HistoryDisabled(t *testing.T) {
	env, _ := setupTestEnv(t)
	disabled := false
	env.cfg.HistoryEnabled = &disabled

	if _, err := runCLI(t, env, "", "transform", "quiet"); err != nil {
		t.Fatalf("transform failed: %v", err)
	}
	stats, err := ops.Stats(t.Context(), env.db)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Total != 0 {
		t.Errorf("Total = %d, want 0 with history disabled", stats.Total)
	}
}

// TestCLIErrorHandling tests error handling in CLI commands.
func TestCLIErrorHandling(t *testing.T) {
	env, _ := setupTestEnv(t)

	tests := []struct {
		name  string
		stdin string
		args  []string
	}{
		{"show not found", "", []string{"history", "show", "nonexistent"}},
		{"show without id", "", []string{"history", "show"}},
		{"invalid duration", "", []string{"history", "purge", "--older-than=invalid"}},
		{"bad outcome filter", "", []string{"history", "list", "--outcome=maybe"}},
		{"empty strip input", "  \n ", []string{"strip"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// cli.Exit writes to stderr, so just verify the error is returned
			if _, err := runCLI(t, env, tt.stdin, tt.args...); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}

	t.Run("remote stage without url", func(t *testing.T) {
		env, _ := setupTestEnv(t)
		env.cfg.Stages = []string{config.StageRemote}
		if _, err := runCLI(t, env, "", "transform", "text"); err == nil {
			t.Error("expected error, got nil")
		}
	})

	t.Run("purge without bounds", func(t *testing.T) {
		env, _ := setupTestEnv(t)
		env.cfg.HistoryRetentionDays = 0
		if _, err := runCLI(t, env, "", "history", "purge"); err == nil {
			t.Error("expected error, got nil")
		}
	})
}

func TestOutputError(t *testing.T) {
	env, _ := setupTestEnv(t)

	_, err := runCLI(t, env, "", "history", "show", "missing")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "[NOT_FOUND]") {
		t.Errorf("error = %q, want [NOT_FOUND] prefix", err.Error())
	}
}

// TestIsCLIMode tests the isCLIMode function.
func TestIsCLIMode(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected bool
	}{
		{"no args", []string{"clipflow"}, false},
		{"watch command", []string{"clipflow", "watch"}, true},
		{"history command", []string{"clipflow", "history"}, true},
		{"strip command", []string{"clipflow", "strip"}, true},
		{"debug flag", []string{"clipflow", "--debug", "watch"}, true},
		{"help flag", []string{"clipflow", "--help"}, true},
		{"short version flag", []string{"clipflow", "-v"}, true},
		{"unknown arg defaults to MCP", []string{"clipflow", "--unknown"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			oldArgs := os.Args
			defer func() { os.Args = oldArgs }()

			os.Args = tt.args
			if result := isCLIMode(); result != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, result)
			}
		})
	}
}

// TestIsHelpOrVersion tests the isHelpOrVersion function.
func TestIsHelpOrVersion(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected bool
	}{
		{"no args", []string{"clipflow"}, false},
		{"help flag", []string{"clipflow", "--help"}, true},
		{"short help flag", []string{"clipflow", "-h"}, true},
		{"version flag", []string{"clipflow", "--version"}, true},
		{"help subcommand", []string{"clipflow", "help"}, true},
		{"transform is not help", []string{"clipflow", "transform"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			oldArgs := os.Args
			defer func() { os.Args = oldArgs }()

			os.Args = tt.args
			if result := isHelpOrVersion(); result != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, result)
			}
		})
	}
}

func TestStages(t *testing.T) {
	env, _ := setupTestEnv(t)
	env.cfg.Stages = []string{config.StageWhitespaceStrip, config.StageSmartUnwrap, config.StageRemote}
	env.cfg.Remote.URL = "http://127.0.0.1:1"

	stages, err := env.stages()
	if err != nil {
		t.Fatalf("stages failed: %v", err)
	}
	ids := make([]string, len(stages))
	for i, s := range stages {
		ids[i] = s.ID()
	}
	if strings.Join(ids, ",") != "whitespace_strip,smart_unwrap,remote" {
		t.Errorf("stage ids = %v", ids)
	}
}
