package route

import (
	"context"
	"testing"

	"github.com/randalmurphal/taskflow/pkg/taskflow"
	"github.com/randalmurphal/taskflow/pkg/taskflow/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type order struct {
	Total   int
	Country string
	Choice  int
}

func TestRouter_FirstMatchWins(t *testing.T) {
	r := MustCompile(
		Case{When: "Total > 1000", Then: "review"},
		Case{When: "Total > 100", Then: "priority"},
		Case{When: "true", Then: "standard"},
	)

	tests := []struct {
		total int
		want  string
	}{
		{5000, "review"},
		{500, "priority"},
		{50, "standard"},
	}
	for _, tt := range tests {
		got, ok, err := r.Select(order{Total: tt.total})
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, tt.want, got, "total %d", tt.total)
	}
}

func TestRouter_NoMatch(t *testing.T) {
	r := MustCompile(Case{When: "Country == 'FR'", Then: "export"})

	got, ok, err := r.Select(order{Country: "US"})

	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, got)
}

func TestRouter_UndefinedVariableIsFalse(t *testing.T) {
	r := MustCompile(Case{When: "missing == 1", Then: "x"})

	_, ok, err := r.Select(map[string]any{})

	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCompile_Errors(t *testing.T) {
	_, err := Compile(Case{When: "Total >", Then: "x"})
	assert.Error(t, err)

	_, err = Compile(Case{When: "true"})
	assert.ErrorContains(t, err, "when and then are required")

	assert.Panics(t, func() { MustCompile(Case{Then: "x"}) })
}

func TestRouter_Targets(t *testing.T) {
	r := MustCompile(
		Case{When: "true", Then: "a"},
		Case{When: "false", Then: "b"},
	)

	assert.Equal(t, []string{"a", "b"}, r.Targets())
}

func TestStep_SetsNextTask(t *testing.T) {
	r := MustCompile(Case{When: "payload.Total > 1000", Then: "review"})
	step := Step(r, func(_ taskflow.Context, o order) (order, error) {
		o.Total *= 10
		return o, nil
	})

	ctx := taskflow.NewContext(context.Background(),
		taskflow.WithContextTask("classify", "ship", "review"))
	out, err := step(ctx, order{Total: 200})

	require.NoError(t, err)
	assert.Equal(t, 2000, out.Total)
	assert.Equal(t, "review", ctx.NextTask(), "routes on the wrapped step's output")
}

func TestStep_NoMatchKeepsDefault(t *testing.T) {
	r := MustCompile(Case{When: "payload.Total > 1000", Then: "review"})
	step := Step[order](r, nil)

	ctx := taskflow.NewContext(context.Background(),
		taskflow.WithContextTask("classify", "ship", "review"))
	_, err := step(ctx, order{Total: 1})

	require.NoError(t, err)
	assert.Equal(t, "ship", ctx.NextTask())
}

func TestStep_EnvExposesTask(t *testing.T) {
	r := MustCompile(Case{When: "task == 'classify' && len(successors) == 2", Then: "review"})
	step := Step[order](r, nil)

	ctx := taskflow.NewContext(context.Background(),
		taskflow.WithContextTask("classify", "ship", "review"))
	_, err := step(ctx, order{})

	require.NoError(t, err)
	assert.Equal(t, "review", ctx.NextTask())
}

func TestIndexStep(t *testing.T) {
	s, err := CompileIndex("payload.Choice")
	require.NoError(t, err)
	step := IndexStep[order](s, nil)

	ctx := taskflow.NewContext(context.Background(),
		taskflow.WithContextTask("pick", "a", "b", "c"))
	_, err = step(ctx, order{Choice: 2})

	require.NoError(t, err)
	assert.Equal(t, "c", ctx.NextTask())
}

func TestIndexStep_Errors(t *testing.T) {
	ctx := taskflow.NewContext(context.Background(),
		taskflow.WithContextTask("pick", "a", "b"))

	s, err := CompileIndex("payload.Choice")
	require.NoError(t, err)
	_, err = IndexStep[order](s, nil)(ctx, order{Choice: 5})
	assert.ErrorIs(t, err, ErrIndexOutOfRange)

	s, err = CompileIndex("'first'")
	require.NoError(t, err)
	_, err = IndexStep[order](s, nil)(ctx, order{})
	assert.ErrorIs(t, err, ErrNotInteger)
}

func TestStep_InFlow(t *testing.T) {
	r := MustCompile(Case{When: "payload.Country != 'US'", Then: "export"})
	var visited []string
	track := func(name string) taskflow.StepFunc[order] {
		return func(_ taskflow.Context, o order) (order, error) {
			visited = append(visited, name)
			return o, nil
		}
	}

	f := taskflow.NewFlow[order]().
		RegisterTask("classify", Step(r, track("classify"))).
		RegisterTask("domestic", track("domestic")).
		RegisterTask("export", track("export")).
		StartWith("classify").
		ConditionalFlow(
			taskflow.NewFlow[order]().StartWith("domestic"),
			taskflow.NewFlow[order]().StartWith("export"),
		)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.Run(ctx, order{Country: "FR"})

	assert.Equal(t, []string{"classify", "export"}, visited)
}

func TestCasesFromConfig(t *testing.T) {
	cfg, err := config.FromYAML([]byte(`
routes:
  classify:
    - when: "payload.Total > 1000"
      then: review
    - when: "true"
      then: ship
`))
	require.NoError(t, err)

	cases, err := CasesFromConfig(cfg.Sub("routes"), "classify")
	require.NoError(t, err)
	assert.Equal(t, []Case{
		{When: "payload.Total > 1000", Then: "review"},
		{When: "true", Then: "ship"},
	}, cases)

	none, err := CasesFromConfig(cfg.Sub("routes"), "missing")
	require.NoError(t, err)
	assert.Nil(t, none)

	_, err = CasesFromConfig(config.New(map[string]any{"bad": "x"}), "bad")
	assert.Error(t, err)
}
