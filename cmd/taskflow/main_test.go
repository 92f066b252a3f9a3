package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/taskflow/internal/demo"
	"github.com/randalmurphal/taskflow/pkg/taskflow"
)

// execute runs a fresh command tree and returns what it printed to stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--log-level", "error"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "taskflow dev\n", out)
}

func TestDemo_DefaultPath(t *testing.T) {
	out, err := execute(t, "demo")
	require.NoError(t, err)

	assert.Contains(t, out, "(finished)")
	assert.Contains(t, out, "path:    A -> B -> C -> D -> G -> H\n")
	assert.Contains(t, out, "message: a message comes from task H\n")
	assert.NotContains(t, out, "error:")
}

func TestDemo_Choices(t *testing.T) {
	tests := []struct {
		name    string
		choices string
		path    string
		failed  bool
	}{
		{"nested", "1,0", "A -> B -> C -> E -> I -> J -> D -> G -> H", false},
		{"unhandled", "2", "A -> B -> C -> F -> " + taskflow.UnhandledExceptionTask, true},
		{"handled", "3", "A -> B -> C -> K -> " + demo.HandledExceptionTask, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, "demo", "--choices", tt.choices)
			require.NoError(t, err)

			assert.Contains(t, out, "path:    "+tt.path+"\n")
			if tt.failed {
				assert.Contains(t, out, "error:   task F: exception thrown by F")
			} else {
				assert.NotContains(t, out, "error:")
			}
		})
	}
}

func TestDemo_ConcurrentRuns(t *testing.T) {
	out, err := execute(t, "demo", "--runs", "4", "--seed", "11")
	require.NoError(t, err)

	assert.Equal(t, 4, strings.Count(out, "(finished)"))
	assert.Equal(t, 4, strings.Count(out, "path:    A -> B -> C"))
}

func TestDemo_InvalidFlags(t *testing.T) {
	tests := []struct {
		name string
		args []string
		msg  string
	}{
		{"bad choice", []string{"demo", "--choices", "1,x"}, `invalid --choices entry "x"`},
		{"negative choice", []string{"demo", "--choices", "-1"}, "must not be negative"},
		{"zero runs", []string{"demo", "--runs", "0"}, "--runs must be at least 1"},
		{"resume without journal", []string{"demo", "--resume", "abc"}, "--resume requires --journal"},
		{"missing config", []string{"--config", "/does/not/exist.yaml", "demo"}, "load config"},
		{"bad log level", []string{"--log-level", "loud", "demo"}, "configure logging"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestDemo_JournalAndResume(t *testing.T) {
	db := filepath.Join(t.TempDir(), "journal.db")
	cfg := writeFile(t, "taskflow.yaml", "run:\n  run_id: fixed-run\n")

	out, err := execute(t, "--config", cfg, "demo", "--journal", db, "--max-steps", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "run fixed-run (finished)")
	assert.Contains(t, out, "path:    A -> B\n")
	assert.Contains(t, out, "exceeded maximum steps")

	out, err = execute(t, "demo", "--journal", db, "--resume", "fixed-run")
	require.NoError(t, err)
	assert.Contains(t, out, "run fixed-run (finished)")
	assert.Contains(t, out, "path:    C -> D -> G -> H\n")
	assert.Contains(t, out, "message: a message comes from task H\n")

	_, err = execute(t, "demo", "--journal", db, "--resume", "unknown-run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resume unknown-run")
}

func TestDemo_Events(t *testing.T) {
	out, err := execute(t, "demo", "--events")
	require.NoError(t, err)

	var types []string
	for _, line := range strings.Split(out, "\n") {
		if !strings.HasPrefix(line, "{") {
			continue
		}
		var evt eventLine
		require.NoError(t, json.Unmarshal([]byte(line), &evt))
		assert.NotEmpty(t, evt.RunID)
		types = append(types, evt.Type)
	}

	require.NotEmpty(t, types)
	assert.Equal(t, string(taskflow.RunStarted), types[0])
	assert.Equal(t, string(taskflow.RunCompleted), types[len(types)-1])
	assert.Equal(t, 6, strings.Count(strings.Join(types, " "), string(taskflow.StateChanged)))

	summary := strings.Index(out, "run ")
	lastEvent := strings.LastIndex(out, "{")
	assert.Greater(t, summary, lastEvent, "events print before the summary")
}

func TestDemo_LogFile(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "taskflow.log")

	_, err := execute(t, "--log-level", "info", "--log-file", logPath, "demo")
	require.NoError(t, err)

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "run task")
	assert.Contains(t, string(data), "task=H")
}

func TestDiagram_Formats(t *testing.T) {
	dot, err := execute(t, "diagram", "--title", "Sample")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(dot, "digraph g {\n"), dot)
	assert.Contains(t, dot, `label = "Sample";`)
	assert.Contains(t, dot, `"C" -> "F" [color="0.650 0.700 0.700", label="2"];`)

	mermaid, err := execute(t, "diagram", "--format", "mermaid")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(mermaid, "graph LR\n"), mermaid)
	assert.Contains(t, mermaid, `n2["C"]:::branching`)
	assert.Contains(t, mermaid, `n5["F"]:::linear`)
	assert.Contains(t, mermaid, `n2 -->|"2"| n5`)

	_, err = execute(t, "diagram", "--format", "svg")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown format "svg"`)
}

func fakeDot(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported")
	}
	return writeFile(t, "dot", "#!/bin/sh\n"+body+"\n")
}

func TestDiagram_Render(t *testing.T) {
	dot := fakeDot(t, "cat")
	require.NoError(t, os.Chmod(dot, 0o755))
	dir := t.TempDir()
	target := filepath.Join(dir, "out.png")

	_, err := execute(t, "diagram", "--render", "--dot", dot, "--title", "Sample",
		"--out", target, "--save", "--dir", dir)
	require.NoError(t, err)

	want, err := demo.Build(demo.Options{}).DOT("Sample")
	require.NoError(t, err)

	img, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, want, string(img))

	saved, err := os.ReadFile(filepath.Join(dir, "Sample.png"))
	require.NoError(t, err)
	assert.Equal(t, want, string(saved))
}

func TestDiagram_RenderToStdout(t *testing.T) {
	dot := fakeDot(t, `echo rendered "$1"`)
	require.NoError(t, os.Chmod(dot, 0o755))

	out, err := execute(t, "diagram", "--render", "--dot", dot)
	require.NoError(t, err)
	assert.Equal(t, "rendered -Tpng\n", out)
}

func TestDiagram_RenderFailure(t *testing.T) {
	dot := fakeDot(t, "echo broken >&2; exit 1")
	require.NoError(t, os.Chmod(dot, 0o755))

	_, err := execute(t, "diagram", "--render", "--dot", dot)
	require.Error(t, err)

	var derr *taskflow.DiagramError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, "render", derr.Op)
	assert.Contains(t, err.Error(), "broken")
}
