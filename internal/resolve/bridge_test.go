package resolve

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/heimdex/heimdex-render/internal/logging"
)

// fakePython writes a shell script standing in for `python -m <module>`.
// The script appends its arguments to calls.log and runs body.
func fakePython(t *testing.T, body string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	logPath := filepath.Join(dir, "calls.log")
	script := "#!/bin/sh\n" +
		"echo \"$*\" >> " + logPath + "\n" +
		"shift 2\n" +
		body + "\n"
	path := filepath.Join(dir, "python")
	if err := os.WriteFile(path, []byte(script), 0755); err != nil {
		t.Fatal(err)
	}
	return path, logPath
}

func newTestBridge(t *testing.T, body string) (*Bridge, string) {
	t.Helper()
	python, logPath := fakePython(t, body)
	b, err := NewBridge(BridgeConfig{
		PythonPath: python,
		ModuleName: "fake_bridge",
		Timeout:    5 * time.Second,
		Logger:     logging.Discard(),
	})
	if err != nil {
		t.Fatalf("NewBridge: %v", err)
	}
	return b, logPath
}

func readCalls(t *testing.T, logPath string) []string {
	t.Helper()
	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatal(err)
	}
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

func TestNewBridge_Validation(t *testing.T) {
	if _, err := NewBridge(BridgeConfig{PythonPath: "/nonexistent/python999", ModuleName: "m", Logger: logging.Discard()}); err == nil {
		t.Error("expected error for missing python")
	}
	python, _ := fakePython(t, "")
	if _, err := NewBridge(BridgeConfig{PythonPath: python, Logger: logging.Discard()}); err == nil {
		t.Error("expected error for empty module name")
	}
}

func TestBridge_Ping(t *testing.T) {
	b, logPath := newTestBridge(t, `echo '{"ok":true,"result":{"product":"DaVinci Resolve","version":"19.0"}}'`)

	info, err := b.Ping(context.Background())
	if err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if info.Product != "DaVinci Resolve" || info.Version != "19.0" {
		t.Errorf("unexpected info: %+v", info)
	}

	calls := readCalls(t, logPath)
	if len(calls) != 1 || calls[0] != "-m fake_bridge ping" {
		t.Errorf("calls = %q", calls)
	}
}

func TestBridge_EnvelopeError(t *testing.T) {
	b, _ := newTestBridge(t, `echo '{"ok":false,"error":"project exists"}'`)

	_, err := b.ProjectManager().CreateProject(context.Background(), "clip_Film")
	var bErr *BridgeError
	if !errors.As(err, &bErr) {
		t.Fatalf("expected *BridgeError, got %v", err)
	}
	if bErr.Command != "project create" {
		t.Errorf("Command = %q, want %q", bErr.Command, "project create")
	}
	if bErr.Message != "project exists" {
		t.Errorf("Message = %q", bErr.Message)
	}
}

func TestBridge_NonZeroExitKeepsStderrTail(t *testing.T) {
	b, _ := newTestBridge(t, `echo "Traceback: no module named DaVinciResolveScript" >&2; exit 3`)

	err := b.Quit(context.Background())
	var bErr *BridgeError
	if !errors.As(err, &bErr) {
		t.Fatalf("expected *BridgeError, got %v", err)
	}
	if bErr.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", bErr.ExitCode)
	}
	if !strings.Contains(bErr.StderrTail, "DaVinciResolveScript") {
		t.Errorf("StderrTail = %q", bErr.StderrTail)
	}
	if !strings.Contains(bErr.Error(), "DaVinciResolveScript") {
		t.Errorf("Error() should fall back to stderr: %q", bErr.Error())
	}
}

func TestBridge_InvalidOutput(t *testing.T) {
	b, _ := newTestBridge(t, `echo "not json"`)

	_, err := b.Ping(context.Background())
	var bErr *BridgeError
	if !errors.As(err, &bErr) {
		t.Fatalf("expected *BridgeError, got %v", err)
	}
	if !strings.Contains(bErr.Message, "invalid bridge output") {
		t.Errorf("Message = %q", bErr.Message)
	}
}

func TestBridge_Timeout(t *testing.T) {
	python, _ := fakePython(t, "exec sleep 5")
	b, err := NewBridge(BridgeConfig{
		PythonPath: python,
		ModuleName: "fake_bridge",
		Timeout:    100 * time.Millisecond,
		Logger:     logging.Discard(),
	})
	if err != nil {
		t.Fatal(err)
	}

	_, err = b.Ping(context.Background())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestBridge_ProjectCommands(t *testing.T) {
	body := `case "$1 $2" in
  "project create") echo '{"ok":true}' ;;
  "media import") echo '{"ok":true,"result":[{"id":"m1","name":"a.mov"}]}' ;;
  "render add-job") echo '{"ok":true,"result":{"job_id":"job-7"}}' ;;
  "render status") echo '{"ok":true,"result":{"JobStatus":"Rendering","CompletionPercentage":40}}' ;;
  *) echo '{"ok":true}' ;;
esac`
	b, logPath := newTestBridge(t, body)
	ctx := context.Background()

	p, err := b.ProjectManager().CreateProject(ctx, "a_Film")
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	items, err := p.ImportMedia(ctx, []string{"/in/a.mov"})
	if err != nil || len(items) != 1 || items[0].ID != "m1" {
		t.Fatalf("ImportMedia = %v, %v", items, err)
	}
	if err := p.CreateTimeline(ctx, "timeline", items); err != nil {
		t.Fatalf("CreateTimeline: %v", err)
	}
	if err := p.SetRenderSettings(ctx, map[string]interface{}{"TargetDir": "/out/a_Film"}); err != nil {
		t.Fatalf("SetRenderSettings: %v", err)
	}
	jobID, err := p.AddRenderJob(ctx)
	if err != nil || jobID != "job-7" {
		t.Fatalf("AddRenderJob = %q, %v", jobID, err)
	}
	if err := p.StartRendering(ctx, jobID); err != nil {
		t.Fatalf("StartRendering: %v", err)
	}
	st, err := p.RenderStatus(ctx, jobID)
	if err != nil {
		t.Fatalf("RenderStatus: %v", err)
	}
	if st.JobStatus != StatusRendering || st.CompletionPercentage != 40 || st.Terminal() {
		t.Errorf("unexpected status: %+v", st)
	}

	calls := readCalls(t, logPath)
	want := []string{
		"-m fake_bridge project create --name a_Film",
		"-m fake_bridge media import --project a_Film --path /in/a.mov",
		"-m fake_bridge timeline create --project a_Film --name timeline --item m1",
		`-m fake_bridge render settings --project a_Film --json {"TargetDir":"/out/a_Film"}`,
		"-m fake_bridge render add-job --project a_Film",
		"-m fake_bridge render start --project a_Film --job job-7",
		"-m fake_bridge render status --project a_Film --job job-7",
	}
	if len(calls) != len(want) {
		t.Fatalf("got %d calls, want %d: %q", len(calls), len(want), calls)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("call %d = %q, want %q", i, calls[i], want[i])
		}
	}
}

func TestBridge_EmptyJobID(t *testing.T) {
	b, _ := newTestBridge(t, `echo '{"ok":true,"result":{}}'`)
	p := &bridgeProject{b: b, name: "x"}
	if _, err := p.AddRenderJob(context.Background()); err == nil {
		t.Error("expected error for empty job id")
	}
}

func TestRenderStatus_Terminal(t *testing.T) {
	tests := []struct {
		status string
		want   bool
	}{
		{StatusReady, false},
		{StatusRendering, false},
		{StatusComplete, true},
		{StatusFailed, true},
		{StatusCancelled, true},
		{"", false},
	}
	for _, tt := range tests {
		if got := (RenderStatus{JobStatus: tt.status}).Terminal(); got != tt.want {
			t.Errorf("Terminal(%q) = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestCommandName(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"ping"}, "ping"},
		{[]string{"render", "status", "--project", "p", "--job", "j"}, "render status"},
		{nil, ""},
	}
	for _, tt := range tests {
		if got := commandName(tt.args); got != tt.want {
			t.Errorf("commandName(%q) = %q, want %q", tt.args, got, tt.want)
		}
	}
}

func TestLimitedWriter_KeepsOnlyTail(t *testing.T) {
	var buf bytes.Buffer
	lw := &limitedWriter{w: &buf, limit: 10}

	lw.Write([]byte("hello"))
	if buf.String() != "hello" {
		t.Errorf("after short write got %q, want %q", buf.String(), "hello")
	}

	lw.Write([]byte(" world of test data"))
	if got := buf.String(); got != " test data" {
		t.Errorf("after overflow got %q, want %q", got, " test data")
	}
}

func TestLimitedWriter_KeepHead(t *testing.T) {
	var buf bytes.Buffer
	lw := &limitedWriter{w: &buf, limit: 5, keepHead: true}

	n, err := lw.Write([]byte("1234567"))
	if err != nil || n != 7 {
		t.Fatalf("Write = %d, %v", n, err)
	}
	lw.Write([]byte("89"))
	if buf.String() != "12345" {
		t.Errorf("got %q, want %q", buf.String(), "12345")
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		input  string
		maxLen int
		want   string
	}{
		{"hello", 10, "hello"},
		{"hello", 5, "hello"},
		{"hello world", 5, "...world"},
	}
	for _, tt := range tests {
		if got := truncate(tt.input, tt.maxLen); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.input, tt.maxLen, got, tt.want)
		}
	}
}
