package resolve

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/heimdex/heimdex-render/internal/logging"
)

const (
	maxStderrBytes = 8 * 1024 // 8 KB tail of stderr kept for diagnostics
	maxStdoutBytes = 1 << 20
)

// BridgeError is a failed bridge command: a non-zero exit, an unreadable
// envelope or an envelope with ok=false.
type BridgeError struct {
	Command    string
	ExitCode   int
	Message    string
	StderrTail string
}

func (e *BridgeError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = truncate(strings.TrimSpace(e.StderrTail), 256)
	}
	return fmt.Sprintf("resolve %s failed (exit %d): %s", e.Command, e.ExitCode, msg)
}

// envelope is what every bridge command prints on stdout.
type envelope struct {
	OK     bool            `json:"ok"`
	Error  string          `json:"error,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
}

// BridgeConfig holds the bridge's configuration.
type BridgeConfig struct {
	PythonPath string        // path to python binary; empty = auto-detect
	ModuleName string        // e.g. heimdex_resolve_bridge
	Timeout    time.Duration // per command
	Logger     *slog.Logger
}

// Bridge is the production Session backed by the Python bridge module.
type Bridge struct {
	cfg    BridgeConfig
	python string
}

// NewBridge creates a Bridge, resolving the Python binary path.
func NewBridge(cfg BridgeConfig) (*Bridge, error) {
	python, err := resolvePython(cfg.PythonPath)
	if err != nil {
		return nil, fmt.Errorf("cannot locate python: %w", err)
	}
	if cfg.ModuleName == "" {
		return nil, errors.New("bridge module name is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}

	cfg.Logger.Debug("resolve bridge initialised", "python", python, "module", cfg.ModuleName)
	return &Bridge{cfg: cfg, python: python}, nil
}

func (b *Bridge) Ping(ctx context.Context) (*AppInfo, error) {
	var info AppInfo
	if err := b.call(ctx, &info, "ping"); err != nil {
		return nil, err
	}
	return &info, nil
}

func (b *Bridge) ProjectManager() ProjectManager {
	return &bridgeProjectManager{b: b}
}

func (b *Bridge) Quit(ctx context.Context) error {
	return b.call(ctx, nil, "app", "quit")
}

// call runs one bridge command and decodes its result into out (may be nil).
func (b *Bridge) call(ctx context.Context, out interface{}, args ...string) error {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	command := commandName(args)
	start := time.Now()

	cmdArgs := append([]string{"-m", b.cfg.ModuleName}, args...)
	cmd := exec.CommandContext(ctx, b.python, cmdArgs...)
	cmd.WaitDelay = 2 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &limitedWriter{w: &stdout, limit: maxStdoutBytes, keepHead: true}
	cmd.Stderr = io.Writer(&limitedWriter{w: &stderr, limit: maxStderrBytes})

	err := cmd.Run()
	elapsed := time.Since(start)

	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
	}

	if ctx.Err() != nil {
		return fmt.Errorf("resolve %s: %w", command, ctx.Err())
	}

	var env envelope
	decodeErr := json.Unmarshal(bytes.TrimSpace(stdout.Bytes()), &env)

	if exitCode != 0 || decodeErr != nil || !env.OK {
		bErr := &BridgeError{
			Command:    command,
			ExitCode:   exitCode,
			Message:    env.Error,
			StderrTail: stderr.String(),
		}
		if bErr.Message == "" && decodeErr != nil && exitCode == 0 {
			bErr.Message = fmt.Sprintf("invalid bridge output: %v", decodeErr)
		}
		b.cfg.Logger.Debug("bridge command failed",
			"command", command,
			"exit_code", exitCode,
			"duration_ms", elapsed.Milliseconds(),
			"stderr_tail", truncate(stderr.String(), 512),
		)
		return bErr
	}

	b.cfg.Logger.Debug("bridge command succeeded", "command", command, "duration_ms", elapsed.Milliseconds())

	if out == nil || len(env.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return &BridgeError{Command: command, Message: fmt.Sprintf("cannot parse result: %v", err)}
	}
	return nil
}

// commandName is the command part of args, without flags.
func commandName(args []string) string {
	var parts []string
	for _, a := range args {
		if strings.HasPrefix(a, "--") {
			break
		}
		parts = append(parts, a)
	}
	return strings.Join(parts, " ")
}

type bridgeProjectManager struct {
	b *Bridge
}

func (m *bridgeProjectManager) ListProjects(ctx context.Context) ([]string, error) {
	var names []string
	if err := m.b.call(ctx, &names, "project", "list"); err != nil {
		return nil, err
	}
	return names, nil
}

func (m *bridgeProjectManager) CreateProject(ctx context.Context, name string) (Project, error) {
	if err := m.b.call(ctx, nil, "project", "create", "--name", name); err != nil {
		return nil, err
	}
	return &bridgeProject{b: m.b, name: name}, nil
}

func (m *bridgeProjectManager) CloseProject(ctx context.Context, p Project) error {
	return m.b.call(ctx, nil, "project", "close", "--name", p.Name())
}

// bridgeProject addresses a project by name; the bridge loads it as the
// current project before each command.
type bridgeProject struct {
	b    *Bridge
	name string
}

func (p *bridgeProject) Name() string {
	return p.name
}

func (p *bridgeProject) ImportMedia(ctx context.Context, paths []string) ([]MediaItem, error) {
	args := []string{"media", "import", "--project", p.name}
	for _, path := range paths {
		args = append(args, "--path", path)
	}
	var items []MediaItem
	if err := p.b.call(ctx, &items, args...); err != nil {
		return nil, err
	}
	return items, nil
}

func (p *bridgeProject) CreateTimeline(ctx context.Context, name string, items []MediaItem) error {
	args := []string{"timeline", "create", "--project", p.name, "--name", name}
	for _, it := range items {
		args = append(args, "--item", it.ID)
	}
	return p.b.call(ctx, nil, args...)
}

func (p *bridgeProject) RenderPresets(ctx context.Context) ([]string, error) {
	var presets []string
	if err := p.b.call(ctx, &presets, "render", "presets", "--project", p.name); err != nil {
		return nil, err
	}
	return presets, nil
}

func (p *bridgeProject) LoadRenderPreset(ctx context.Context, name string) error {
	return p.b.call(ctx, nil, "render", "load-preset", "--project", p.name, "--name", name)
}

func (p *bridgeProject) SetRenderSettings(ctx context.Context, settings map[string]interface{}) error {
	data, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("cannot encode render settings: %w", err)
	}
	return p.b.call(ctx, nil, "render", "settings", "--project", p.name, "--json", string(data))
}

func (p *bridgeProject) SetRenderFormatAndCodec(ctx context.Context, format, codec string) error {
	return p.b.call(ctx, nil, "render", "format", "--project", p.name, "--format", format, "--codec", codec)
}

func (p *bridgeProject) AddRenderJob(ctx context.Context) (string, error) {
	var res struct {
		JobID string `json:"job_id"`
	}
	if err := p.b.call(ctx, &res, "render", "add-job", "--project", p.name); err != nil {
		return "", err
	}
	if res.JobID == "" {
		return "", &BridgeError{Command: "render add-job", Message: "empty job id"}
	}
	return res.JobID, nil
}

func (p *bridgeProject) StartRendering(ctx context.Context, jobIDs ...string) error {
	args := []string{"render", "start", "--project", p.name}
	for _, id := range jobIDs {
		args = append(args, "--job", id)
	}
	return p.b.call(ctx, nil, args...)
}

func (p *bridgeProject) RenderStatus(ctx context.Context, jobID string) (RenderStatus, error) {
	var st RenderStatus
	err := p.b.call(ctx, &st, "render", "status", "--project", p.name, "--job", jobID)
	return st, err
}

// resolvePython finds a usable python binary.
func resolvePython(preferred string) (string, error) {
	if preferred != "" {
		if p, err := exec.LookPath(preferred); err == nil {
			return p, nil
		}
		return "", fmt.Errorf("configured python %q not found", preferred)
	}
	for _, name := range []string{"python3", "python"} {
		if p, err := exec.LookPath(name); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("no python binary found on PATH (tried python3, python)")
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return "..." + s[len(s)-maxLen:]
}

// limitedWriter is an io.Writer that keeps at most limit bytes: the tail by
// default, or the head when keepHead is set.
type limitedWriter struct {
	w        *bytes.Buffer
	limit    int
	keepHead bool
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	if lw.keepHead {
		if room := lw.limit - lw.w.Len(); room > 0 {
			if len(p) > room {
				p = p[:room]
			}
			lw.w.Write(p)
		}
		return n, nil
	}

	lw.w.Write(p)
	if lw.w.Len() > lw.limit {
		// Keep only the tail
		b := lw.w.Bytes()
		tail := append([]byte(nil), b[len(b)-lw.limit:]...)
		lw.w.Reset()
		lw.w.Write(tail)
	}
	return n, nil
}
