package demo

import (
	"context"
	"strings"
	"testing"

	"github.com/randalmurphal/taskflow/pkg/taskflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, choices ...int) (Payload, *taskflow.History) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := taskflow.NewHistory()
	out := Build(Options{Choose: Scripted(choices...)}).Run(ctx, Payload{Message: "initialize"}, taskflow.WithListener(h))
	return out, h
}

func TestBuild_Graph(t *testing.T) {
	f := Build(Options{})

	assert.Equal(t, "A", f.Initial())
	assert.Equal(t, []string{"D", "E", "F", "K", "L"}, f.Successors("C"))
	assert.Equal(t, []string{"I", "B", "C", "E"}, f.Successors("E"))
	assert.Equal(t, []string{"D"}, f.Successors("J"))
	assert.Equal(t, []string{"A"}, f.Successors("F"))
	assert.Nil(t, f.Successors("H"))
	assert.Equal(t, []string{HandledExceptionTask, AnotherHandledExceptionTask}, f.HandledExceptionTasks())
	assert.True(t, f.HasUnhandledExceptionTask())
}

func TestRun_Paths(t *testing.T) {
	tests := []struct {
		name    string
		choices []int
		want    []string
		errors  int
	}{
		{"default branch", nil, []string{"A", "B", "C", "D", "G", "H"}, 0},
		{"nested branch", []int{1, 0}, []string{"A", "B", "C", "E", "I", "J", "D", "G", "H"}, 0},
		{"loop back", []int{1, 2, 0}, []string{"A", "B", "C", "E", "C", "D", "G", "H"}, 0},
		{"unhandled", []int{2}, []string{"A", "B", "C", "F", taskflow.UnhandledExceptionTask}, 1},
		{"handled", []int{3}, []string{"A", "B", "C", "K", HandledExceptionTask}, 0},
		{"another handled", []int{4}, []string{"A", "B", "C", "L", AnotherHandledExceptionTask}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, h := run(t, tt.choices...)

			assert.Equal(t, tt.want, h.Visited())
			assert.Len(t, h.Errors(), tt.errors)
		})
	}
}

func TestRun_PayloadThreaded(t *testing.T) {
	out, _ := run(t)

	assert.Equal(t, "a message comes from task H", out.Message)
	assert.Equal(t, "run task A", out.Log[0])
}

func TestRun_UnhandledKeepsPayload(t *testing.T) {
	out, _ := run(t, 2)

	last := out.Log[len(out.Log)-1]
	assert.True(t, strings.Contains(last, "unhandled exception"), last)
	assert.NotContains(t, out.Log, "run task F", "failing step output is discarded")
}

func TestRandom_Deterministic(t *testing.T) {
	a, b := Random(7), Random(7)
	for i := 0; i < 20; i++ {
		x := a("C", 5)
		require.Equal(t, x, b("C", 5))
		assert.GreaterOrEqual(t, x, 0)
		assert.Less(t, x, 5)
	}
}

func TestScripted(t *testing.T) {
	c := Scripted(2, 1)

	assert.Equal(t, 2, c("C", 5))
	assert.Equal(t, 1, c("E", 4))
	assert.Equal(t, 0, c("C", 5))
}

func TestDOT(t *testing.T) {
	dot, err := Build(Options{}).DOT("TestDiagram")
	require.NoError(t, err)

	for _, task := range []string{"A", "B", "C", "D", "E", "F", "G", "H", "I", "J", "K", "L"} {
		assert.Contains(t, dot, `"`+task+`" [color=`)
	}
	assert.Contains(t, dot, `"C" -> "L" [color="0.650 0.700 0.700", label="4"];`)
}
