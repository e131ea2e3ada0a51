package command

import (
	"bytes"
	"context"
	"io"
	"sync"
)

// Call is one invocation recorded by FakeRunner.
type Call struct {
	Name  string
	Args  []string
	Stdin []byte
}

// FakeRunner records invocations and delegates to RunFunc. It is safe for
// concurrent use.
type FakeRunner struct {
	RunFunc func(ctx context.Context, stdin io.Reader, name string, args ...string) (Result, error)

	mu    sync.Mutex
	calls []Call
}

// Run records the call and delegates to injected behavior.
func (f *FakeRunner) Run(ctx context.Context, stdin io.Reader, name string, args ...string) (Result, error) {
	var input []byte
	if stdin != nil {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return Result{ExitCode: -1}, err
		}
		input = data
	}

	f.mu.Lock()
	f.calls = append(f.calls, Call{Name: name, Args: append([]string(nil), args...), Stdin: input})
	f.mu.Unlock()

	if f.RunFunc == nil {
		return Result{}, nil
	}
	var r io.Reader
	if input != nil {
		r = bytes.NewReader(input)
	}
	return f.RunFunc(ctx, r, name, args...)
}

// Calls returns a copy of the recorded invocations.
func (f *FakeRunner) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}
