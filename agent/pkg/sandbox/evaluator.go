// Package sandbox evaluates generated chart programs. Programs are expr-lang
// expressions compiled against a fixed environment: the query rows, the
// question text, a plotting namespace (plt) and a graph namespace (nx).
// Nothing else is reachable from a program.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/expr-lang/expr"
)

const (
	defaultTimeout  = 5 * time.Second
	defaultMaxNodes = 10000
)

var (
	// ErrNoFigure is returned when a program completes without producing a figure.
	ErrNoFigure = errors.New("program produced no figure")
	// ErrTimeout is returned when a program exceeds its wall-clock limit.
	ErrTimeout = errors.New("program timed out")
)

// env is the complete set of names visible to a program.
type env struct {
	Rows     []map[string]any `expr:"rows"`
	Question string           `expr:"question"`
	Plt      *Plot            `expr:"plt"`
	Nx       *Graph           `expr:"nx"`
}

type Config struct {
	Logger *slog.Logger

	// Timeout bounds a single evaluation. Defaults to 5s.
	Timeout time.Duration

	// MaxNodes caps the size of a compiled program. Defaults to 10000.
	MaxNodes uint
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.MaxNodes == 0 {
		c.MaxNodes = defaultMaxNodes
	}
	return nil
}

type Evaluator struct {
	log *slog.Logger
	cfg Config
}

func New(cfg Config) (*Evaluator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid sandbox config: %w", err)
	}
	return &Evaluator{log: cfg.Logger, cfg: cfg}, nil
}

type evalResult struct {
	out any
	err error
}

// Evaluate compiles and runs code against rows and question. It returns the
// program's value when that is a figure, otherwise the last figure drawn, or
// ErrNoFigure when nothing was drawn.
func (e *Evaluator) Evaluate(ctx context.Context, code string, rows []map[string]any, question string) (*Figure, error) {
	program, err := expr.Compile(code, expr.Env(env{}), expr.MaxNodes(e.cfg.MaxNodes))
	if err != nil {
		return nil, fmt.Errorf("failed to compile program: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	c := &canvas{ctx: ctx}
	vars := env{
		Rows:     rows,
		Question: question,
		Plt:      &Plot{c: c},
		Nx:       &Graph{c: c},
	}

	// A timed-out run is abandoned rather than interrupted. Drawing calls stop
	// at the next row once ctx is done, and expr's default memory budget caps
	// ranges and builtin loops.
	done := make(chan evalResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- evalResult{err: fmt.Errorf("program panicked: %v", r)}
			}
		}()
		out, err := expr.Run(program, vars)
		done <- evalResult{out: out, err: err}
	}()

	var res evalResult
	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, ctx.Err()
	case res = <-done:
	}

	if res.err != nil {
		return nil, fmt.Errorf("failed to run program: %w", res.err)
	}

	if fig, ok := res.out.(*Figure); ok && fig != nil {
		return fig, nil
	}
	if fig := c.current(); fig != nil {
		return fig, nil
	}

	e.log.Debug("sandbox: program returned no figure", "result_type", fmt.Sprintf("%T", res.out))
	return nil, ErrNoFigure
}
