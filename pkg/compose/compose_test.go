package compose

import (
	"errors"
	"slices"
	"testing"
)

type traceCtx struct {
	trace []string
	kind  string
}

func tracing(name string) Handler[*traceCtx] {
	return func(c *traceCtx, next Next) error {
		c.trace = append(c.trace, name+"-enter")
		err := next()
		c.trace = append(c.trace, name+"-exit")
		return err
	}
}

func stopping(name string) Handler[*traceCtx] {
	return func(c *traceCtx, _ Next) error {
		c.trace = append(c.trace, name+"-enter")
		c.trace = append(c.trace, name+"-exit")
		return nil
	}
}

func TestComposeOnionOrder(t *testing.T) {
	t.Parallel()

	c := &traceCtx{}
	if err := Run(Compose(tracing("a"), tracing("b"), tracing("c")), c); err != nil {
		t.Fatalf("Run error: %v", err)
	}

	want := []string{"a-enter", "b-enter", "c-enter", "c-exit", "b-exit", "a-exit"}
	if !slices.Equal(c.trace, want) {
		t.Fatalf("trace = %v, want %v", c.trace, want)
	}
}

func TestComposeShortCircuit(t *testing.T) {
	t.Parallel()

	c := &traceCtx{}
	if err := Run(Compose(tracing("a"), stopping("b"), tracing("c")), c); err != nil {
		t.Fatalf("Run error: %v", err)
	}

	want := []string{"a-enter", "b-enter", "b-exit", "a-exit"}
	if !slices.Equal(c.trace, want) {
		t.Fatalf("trace = %v, want %v", c.trace, want)
	}
}

func TestComposePropagatesError(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	c := &traceCtx{}
	failing := func(c *traceCtx, _ Next) error {
		c.trace = append(c.trace, "b-enter")
		return boom
	}

	err := Run(Compose(tracing("a"), failing, tracing("c")), c)
	if err != boom {
		t.Fatalf("error = %v, want exact %v", err, boom)
	}

	want := []string{"a-enter", "b-enter", "a-exit"}
	if !slices.Equal(c.trace, want) {
		t.Fatalf("trace = %v, want %v", c.trace, want)
	}
}

func TestComposeEmpty(t *testing.T) {
	t.Parallel()

	reached := false
	err := Compose[*traceCtx]()(&traceCtx{}, func() error {
		reached = true
		return nil
	})
	if err != nil {
		t.Fatalf("error = %v", err)
	}
	if !reached {
		t.Fatal("expected empty composition to continue")
	}
}

func TestComposeNested(t *testing.T) {
	t.Parallel()

	c := &traceCtx{}
	inner := Compose(tracing("b"), tracing("c"))
	if err := Run(Compose(tracing("a"), inner, tracing("d")), c); err != nil {
		t.Fatalf("Run error: %v", err)
	}

	want := []string{"a-enter", "b-enter", "c-enter", "d-enter", "d-exit", "c-exit", "b-exit", "a-exit"}
	if !slices.Equal(c.trace, want) {
		t.Fatalf("trace = %v, want %v", c.trace, want)
	}
}

func TestComposeNextCalledTwice(t *testing.T) {
	t.Parallel()

	var second error
	twice := func(_ *traceCtx, next Next) error {
		if err := next(); err != nil {
			return err
		}
		second = next()
		return nil
	}

	c := &traceCtx{}
	if err := Run(Compose(twice, tracing("b")), c); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if !errors.Is(second, ErrNextCalledTwice) {
		t.Fatalf("second next() = %v, want ErrNextCalledTwice", second)
	}
	if len(c.trace) != 2 {
		t.Fatalf("trace = %v, want b to run once", c.trace)
	}
}

func TestComposeReusable(t *testing.T) {
	t.Parallel()

	h := Compose(tracing("a"), tracing("b"))
	for range 2 {
		c := &traceCtx{}
		if err := Run(h, c); err != nil {
			t.Fatalf("Run error: %v", err)
		}
		if len(c.trace) != 4 {
			t.Fatalf("trace = %v, want 4 entries", c.trace)
		}
	}
}

func TestGatedOn(t *testing.T) {
	t.Parallel()

	isText := func(c *traceCtx) bool { return c.kind == "text" }
	chain := Compose(tracing("a"), GatedOn(isText, tracing("g")), tracing("z"))

	matched := &traceCtx{kind: "text"}
	if err := Run(chain, matched); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	want := []string{"a-enter", "g-enter", "z-enter", "z-exit", "g-exit", "a-exit"}
	if !slices.Equal(matched.trace, want) {
		t.Fatalf("matched trace = %v, want %v", matched.trace, want)
	}

	skipped := &traceCtx{kind: "photo"}
	if err := Run(chain, skipped); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	want = []string{"a-enter", "z-enter", "z-exit", "a-exit"}
	if !slices.Equal(skipped.trace, want) {
		t.Fatalf("skipped trace = %v, want %v", skipped.trace, want)
	}
}

func TestGatedOnShortCircuitStopsOuterChain(t *testing.T) {
	t.Parallel()

	always := func(*traceCtx) bool { return true }
	c := &traceCtx{}
	if err := Run(Compose(GatedOn(always, stopping("g")), tracing("z")), c); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if slices.Contains(c.trace, "z-enter") {
		t.Fatalf("trace = %v, want z skipped", c.trace)
	}
}

func TestBranch(t *testing.T) {
	t.Parallel()

	isText := func(c *traceCtx) bool { return c.kind == "text" }
	h := Branch(isText, tracing("yes"), tracing("no"))

	c := &traceCtx{kind: "text"}
	_ = Run(h, c)
	if c.trace[0] != "yes-enter" {
		t.Fatalf("trace = %v, want yes branch", c.trace)
	}

	c = &traceCtx{kind: "sticker"}
	_ = Run(h, c)
	if c.trace[0] != "no-enter" {
		t.Fatalf("trace = %v, want no branch", c.trace)
	}

	c = &traceCtx{}
	if err := Run(Branch[*traceCtx](isText, nil, nil), c); err != nil {
		t.Fatalf("nil branches error: %v", err)
	}
}
