package bluetooth

import (
	"context"
	"strings"
	"sync"

	"github.com/pageramp/pageramp/internal/execx"
)

// fakeRunner scripts external tool output for tests. Outputs are queued per
// exact command line; the last queued output repeats once the queue drains.
type fakeRunner struct {
	mu         sync.Mutex
	calls      []string
	startCalls []string
	outputs    map[string][]string
	errs       map[string]error
	startErr   error
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		outputs: make(map[string][]string),
		errs:    make(map[string]error),
	}
}

func (f *fakeRunner) respond(cmdline string, outputs ...string) {
	f.outputs[cmdline] = append(f.outputs[cmdline], outputs...)
}

func (f *fakeRunner) Run(_ context.Context, cmd execx.Command) (string, error) {
	key := cmdKey(cmd)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, key)
	if err, ok := f.errs[key]; ok {
		return "", err
	}
	queue := f.outputs[key]
	if len(queue) == 0 {
		return "", nil
	}
	out := queue[0]
	if len(queue) > 1 {
		f.outputs[key] = queue[1:]
	}
	return out, nil
}

func (f *fakeRunner) Start(cmd execx.Command) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startCalls = append(f.startCalls, cmdKey(cmd))
	return f.startErr
}

func (f *fakeRunner) countCalls(cmdline string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == cmdline {
			n++
		}
	}
	return n
}

// callIndex returns the position of the first call matching cmdline, or -1.
func (f *fakeRunner) callIndex(cmdline string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, c := range f.calls {
		if c == cmdline {
			return i
		}
	}
	return -1
}

func cmdKey(cmd execx.Command) string {
	if len(cmd.Args) == 0 {
		return cmd.Path
	}
	return cmd.Path + " " + strings.Join(cmd.Args, " ")
}
