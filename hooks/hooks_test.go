package hooks

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/dwalleck/cyril/exec"
	"github.com/dwalleck/cyril/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	logger.Reset()
	if err := logger.Init(os.DevNull); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

type fakeHook struct {
	name   string
	timing Timing
	target Target
	result Result
	calls  *[]string
}

func (f fakeHook) Name() string   { return f.name }
func (f fakeHook) Timing() Timing { return f.timing }
func (f fakeHook) Target() Target { return f.target }
func (f fakeHook) Run(_ context.Context, hc Context) Result {
	*f.calls = append(*f.calls, f.name)
	return f.result
}

func strPtr(s string) *string { return &s }

func TestRegistry_RunBeforeShortCircuits(t *testing.T) {
	var calls []string
	r := NewRegistry(
		fakeHook{"a", Before, FsWrite, Continue(), &calls},
		fakeHook{"other-target", Before, FsRead, Blocked("nope"), &calls},
		fakeHook{"after", After, FsWrite, FeedbackPrompt("x"), &calls},
		fakeHook{"b", Before, FsWrite, Blocked("stop here"), &calls},
		fakeHook{"c", Before, FsWrite, Blocked("never"), &calls},
	)

	res := r.RunBefore(context.Background(), Context{Target: FsWrite})
	assert.Equal(t, KindBlocked, res.Kind)
	assert.Equal(t, "stop here", res.Reason)
	assert.Equal(t, []string{"a", "b"}, calls)
}

func TestRegistry_RunBeforeAllContinue(t *testing.T) {
	var calls []string
	r := NewRegistry(
		fakeHook{"a", Before, Terminal, Continue(), &calls},
		fakeHook{"b", Before, Terminal, Continue(), &calls},
	)

	res := r.RunBefore(context.Background(), Context{Target: Terminal})
	assert.Equal(t, KindContinue, res.Kind)
	assert.Equal(t, []string{"a", "b"}, calls)

	res = NewRegistry().RunBefore(context.Background(), Context{Target: FsRead})
	assert.Equal(t, KindContinue, res.Kind)

	var nilReg *Registry
	assert.Equal(t, KindContinue, nilReg.RunBefore(context.Background(), Context{}).Kind)
	assert.Empty(t, nilReg.RunAfter(context.Background(), Context{}))
}

func TestRegistry_RunAfterRunsEverything(t *testing.T) {
	var calls []string
	r := NewRegistry(
		fakeHook{"first", After, FsWrite, FeedbackPrompt("one"), &calls},
		fakeHook{"quiet", After, FsWrite, Continue(), &calls},
		fakeHook{"blocker", After, FsWrite, Blocked("ignored by nobody"), &calls},
		fakeHook{"last", After, FsWrite, FeedbackPrompt("two"), &calls},
		fakeHook{"before", Before, FsWrite, Blocked("x"), &calls},
	)

	results := r.RunAfter(context.Background(), Context{Target: FsWrite})
	require.Len(t, results, 3)
	assert.Equal(t, "one", results[0].Text)
	assert.Equal(t, "ignored by nobody", results[1].Reason)
	assert.Equal(t, "two", results[2].Text)
	assert.Equal(t, []string{"first", "quiet", "blocker", "last"}, calls)
}

func TestRegistry_HooksIsCopy(t *testing.T) {
	var calls []string
	r := NewRegistry(fakeHook{"a", Before, FsRead, Continue(), &calls})
	hs := r.Hooks()
	hs[0] = nil
	assert.NotNil(t, r.Hooks()[0])
	assert.Equal(t, 1, r.Len())
}

func TestParseEvent(t *testing.T) {
	tests := []struct {
		event  string
		timing Timing
		target Target
	}{
		{"beforeRead", Before, FsRead},
		{"afterRead", After, FsRead},
		{"beforeWrite", Before, FsWrite},
		{"afterWrite", After, FsWrite},
		{"beforeTerminal", Before, Terminal},
		{"afterTerminal", After, Terminal},
		{"turnEnd", After, TurnEnd},
	}
	for _, tt := range tests {
		timing, target, ok := ParseEvent(tt.event)
		require.True(t, ok, tt.event)
		assert.Equal(t, tt.timing, timing, tt.event)
		assert.Equal(t, tt.target, target, tt.event)
	}

	_, _, ok := ParseEvent("onSave")
	assert.False(t, ok)
	_, _, ok = ParseEvent("beforeTurnEnd")
	assert.False(t, ok)
}

func TestResultMessage(t *testing.T) {
	assert.Equal(t, "r", Blocked("r").Message())
	assert.Equal(t, "t", FeedbackPrompt("t").Message())
	assert.Equal(t, "", Continue().Message())
	assert.Equal(t, "", ModifiedArgs(strPtr("c")).Message())
	assert.Equal(t, "blocked", KindBlocked.String())
	assert.Equal(t, "fs_write", FsWrite.String())
	assert.Equal(t, "after", After.String())
}

func TestPathValidationHook(t *testing.T) {
	root := t.TempDir()
	h := NewPathValidationHook(root, "linux")
	ctx := context.Background()

	assert.Equal(t, PathValidationName, h.Name())
	assert.Equal(t, Before, h.Timing())
	assert.Equal(t, FsWrite, h.Target())

	tests := []struct {
		name    string
		path    *string
		blocked bool
	}{
		{"inside", strPtr(root + "/src/main.go"), false},
		{"root itself", strPtr(root), false},
		{"relative inside", strPtr("src/main.go"), false},
		{"sibling with shared prefix", strPtr(root + "-other/x"), true},
		{"escape with dotdot", strPtr(root + "/../evil.txt"), true},
		{"absolute elsewhere", strPtr("/etc/passwd"), true},
		{"no path", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := h.Run(ctx, Context{Target: FsWrite, Timing: Before, Path: tt.path})
			if !tt.blocked {
				assert.Equal(t, KindContinue, res.Kind)
				return
			}
			require.Equal(t, KindBlocked, res.Kind)
			assert.Equal(t, "Write blocked: "+*tt.path+" is outside project root "+h.Root(), res.Reason)
		})
	}
}

func TestPathValidationHook_FoldsCaseOnWindows(t *testing.T) {
	h := NewPathValidationHook("/Work/Project", "windows")
	res := h.Run(context.Background(), Context{Path: strPtr("/work/project/a.txt")})
	assert.Equal(t, KindContinue, res.Kind)

	h = NewPathValidationHook("/Work/Project", "linux")
	res = h.Run(context.Background(), Context{Path: strPtr("/work/project/a.txt")})
	assert.Equal(t, KindBlocked, res.Kind)
}

func TestBuild_RegistersValidationFirst(t *testing.T) {
	mock := exec.NewMockExecutor(nil)
	defs := []Def{
		{Name: "fmt", Event: "afterWrite", Command: "gofmt -w ${file}"},
		{Name: "bogus", Event: "onSave", Command: "true"},
		{Name: "guard", Event: "beforeTerminal", Command: "check"},
	}

	r := Build(defs, Options{ProjectRoot: t.TempDir(), ValidatePaths: true, Executor: mock, GOOS: "linux"})
	hs := r.Hooks()
	require.Len(t, hs, 3)
	assert.Equal(t, PathValidationName, hs[0].Name())
	assert.Equal(t, "fmt", hs[1].Name())
	assert.Equal(t, "guard", hs[2].Name())

	r = Build(defs, Options{ProjectRoot: t.TempDir(), Executor: mock})
	assert.Equal(t, 2, r.Len())
}

func TestShellHook_UnknownEvent(t *testing.T) {
	_, ok := NewShellHook(Def{Name: "x", Event: "whenever", Command: "true"}, Options{})
	assert.False(t, ok)
}

func TestShellHook_Interpretation(t *testing.T) {
	failing := exec.MockResponse{Stdout: []byte("out\n"), Stderr: []byte("err\n"), Err: &exec.MockExitError{Code: 1}}
	quietOK := exec.MockResponse{}
	noisyOK := exec.MockResponse{Stdout: []byte("3 files formatted\n")}
	blankOK := exec.MockResponse{Stdout: []byte("  \n")}
	spawnFail := exec.MockResponse{Err: errors.New(`exec: "sh": executable file not found in $PATH`)}

	const failMsg = "Hook 'h' failed (exit 1):\nout\nerr\n"

	tests := []struct {
		name     string
		event    string
		feedback bool
		resp     exec.MockResponse
		want     Result
	}{
		{"before failing blocks", "beforeWrite", false, failing, Blocked(failMsg)},
		{"before failing with feedback prompts", "beforeWrite", true, failing, FeedbackPrompt(failMsg)},
		{"after failing continues", "afterWrite", false, failing, Continue()},
		{"after failing with feedback prompts", "afterWrite", true, failing, FeedbackPrompt(failMsg)},
		{"success without feedback", "afterWrite", false, noisyOK, Continue()},
		{"success with feedback and output", "afterWrite", true, noisyOK, FeedbackPrompt("Hook 'h' output:\n3 files formatted\n")},
		{"success with feedback and no output", "afterWrite", true, quietOK, Continue()},
		{"success with feedback and blank output", "afterWrite", true, blankOK, Continue()},
		{"before spawn failure blocks", "beforeRead", false, spawnFail,
			Blocked(`Hook 'h' failed to execute: exec: "sh": executable file not found in $PATH`)},
		{"after spawn failure continues", "afterWrite", true, spawnFail, Continue()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := exec.NewMockExecutor(nil)
			mock.AddPrefixMatch("sh", []string{"-c"}, tt.resp)

			h, ok := NewShellHook(Def{Name: "h", Event: tt.event, Command: "check", Feedback: tt.feedback},
				Options{Executor: mock, GOOS: "linux"})
			require.True(t, ok)

			got := h.Run(context.Background(), Context{Target: h.Target(), Timing: h.Timing(), Path: strPtr("/p/a.go")})
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestShellHook_SignalExitReportsMinusOne(t *testing.T) {
	mock := exec.NewMockExecutor(nil)
	mock.AddPrefixMatch("sh", []string{"-c"}, exec.MockResponse{Err: &exec.MockExitError{Code: -1}})

	h, _ := NewShellHook(Def{Name: "h", Event: "beforeTerminal", Command: "x"}, Options{Executor: mock, GOOS: "linux"})
	got := h.Run(context.Background(), Context{Target: Terminal})
	assert.Equal(t, Blocked("Hook 'h' failed (exit -1):\n"), got)
}

func TestShellHook_Glob(t *testing.T) {
	tests := []struct {
		name    string
		pattern *string
		path    *string
		fires   bool
	}{
		{"extension mismatch", strPtr("*.rs"), strPtr("src/main.py"), false},
		{"filename match", strPtr("*.rs"), strPtr("main.rs"), true},
		{"filename match in nested path", strPtr("*.rs"), strPtr("/home/u/src/main.rs"), true},
		{"windows separators", strPtr("src/**/*.rs"), strPtr(`src\a\b\lib.rs`), true},
		{"doublestar full path", strPtr("**/tests/*.go"), strPtr("repo/pkg/tests/x_test.go"), true},
		{"star crosses directories", strPtr("/home/u/proj/*"), strPtr("/home/u/proj/sub/x.go"), true},
		{"star crosses directories on windows paths", strPtr("C:/proj/*"), strPtr(`C:\proj\sub\x.go`), true},
		{"prefix outside pattern", strPtr("/home/u/proj/*"), strPtr("/home/u/other/x.go"), false},
		{"invalid pattern never fires", strPtr("[unclosed"), strPtr("main.rs"), false},
		{"invalid pattern never fires on bracket name", strPtr("[unclosed"), strPtr("[unclosed"), false},
		{"no pattern fires", nil, strPtr("anything.txt"), true},
		{"no path fires even with pattern", strPtr("*.rs"), nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := exec.NewMockExecutor(nil)
			h, ok := NewShellHook(Def{Name: "g", Event: "beforeRead", Pattern: tt.pattern, Command: "true"},
				Options{Executor: mock, GOOS: "linux"})
			require.True(t, ok)

			h.Run(context.Background(), Context{Target: FsRead, Path: tt.path})
			assert.Equal(t, tt.fires, len(mock.GetCalls()) == 1)
		})
	}
}

func TestShellHook_ExpandsFilePlaceholder(t *testing.T) {
	mock := exec.NewMockExecutor(nil)
	root := t.TempDir()

	h, _ := NewShellHook(Def{Name: "fmt", Event: "afterWrite", Command: "rustfmt ${file} && echo ${file}"},
		Options{Executor: mock, GOOS: "linux", ProjectRoot: root})
	h.Run(context.Background(), Context{Target: FsWrite, Path: strPtr("/src/lib.rs")})

	h2, _ := NewShellHook(Def{Name: "t", Event: "beforeTerminal", Command: "echo ${file}"},
		Options{Executor: mock, GOOS: "windows", ProjectRoot: root})
	h2.Run(context.Background(), Context{Target: Terminal, Command: strPtr("ls")})

	calls := mock.GetCalls()
	require.Len(t, calls, 2)
	assert.Equal(t, exec.MockCall{Dir: root, Name: "sh", Args: []string{"-c", "rustfmt /src/lib.rs && echo /src/lib.rs"}}, calls[0])
	assert.Equal(t, exec.MockCall{Dir: root, Name: "cmd", Args: []string{"/C", "echo ${file}"}}, calls[1])
}

func TestShellHook_Accessors(t *testing.T) {
	h, _ := NewShellHook(Def{Name: "a", Event: "turnEnd", Pattern: strPtr("*.go"), Command: "make"}, Options{})
	assert.Equal(t, "a", h.Name())
	assert.Equal(t, After, h.Timing())
	assert.Equal(t, TurnEnd, h.Target())
	assert.Equal(t, "*.go", h.Pattern())
	assert.Equal(t, "make", h.Command())

	h, _ = NewShellHook(Def{Name: "b", Event: "turnEnd", Command: "make"}, Options{})
	assert.Equal(t, "", h.Pattern())
}
