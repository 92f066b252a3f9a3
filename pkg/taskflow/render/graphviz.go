// Package render rasterizes flow diagrams with the Graphviz dot binary.
package render

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/randalmurphal/taskflow/pkg/taskflow"
)

// Error describes a failed render or save.
type Error struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("graphviz %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Graphviz implements taskflow.Renderer by piping DOT into dot.
type Graphviz struct {
	path    string
	format  string
	dir     string
	timeout time.Duration
}

var _ taskflow.Renderer = (*Graphviz)(nil)

// Option configures Graphviz.
type Option func(*Graphviz)

// NewGraphviz creates a renderer.
// Assumes "dot" is available in PATH unless overridden with WithPath.
func NewGraphviz(opts ...Option) *Graphviz {
	g := &Graphviz{
		path:    "dot",
		format:  "png",
		timeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// WithPath sets the path to the dot binary.
func WithPath(path string) Option {
	return func(g *Graphviz) { g.path = path }
}

// WithFormat sets the output format passed as -T. Default: png.
func WithFormat(format string) Option {
	return func(g *Graphviz) { g.format = format }
}

// WithOutputDir sets the directory relative save targets are written to.
func WithOutputDir(dir string) Option {
	return func(g *Graphviz) { g.dir = dir }
}

// WithTimeout bounds a single render. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(g *Graphviz) { g.timeout = d }
}

// Available reports whether the dot binary can be found.
func (g *Graphviz) Available() bool {
	_, err := exec.LookPath(g.path)
	return err == nil
}

// Render implements taskflow.Renderer. When saveAs is set the image is also
// written there; a save failure is returned with the image.
func (g *Graphviz) Render(ctx context.Context, source, saveAs string) ([]byte, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, g.path, "-T"+g.format)
	cmd.Stdin = strings.NewReader(source)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, &Error{Op: "render", Err: ctx.Err()}
		}
		return nil, &Error{Op: "render", Err: fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))}
	}

	img := stdout.Bytes()
	if saveAs == "" {
		return img, nil
	}

	target := saveAs
	if g.dir != "" && !filepath.IsAbs(target) {
		target = filepath.Join(g.dir, target)
	}
	if err := os.WriteFile(target, img, 0o644); err != nil {
		return img, &Error{Op: "save", Err: err}
	}
	return img, nil
}
