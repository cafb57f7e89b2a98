package diag

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"mdxbuild/pkg/contract"
)

// UT-DIAG-01: 日志轮转写入
func TestRotatingFile(t *testing.T) {
	dir := t.TempDir()
	w := NewRotatingFile(dir, 30)
	if err := w.WriteLine([]byte("first line that is very long")); err != nil {
		t.Fatalf("写入失败: %v", err)
	}
	if err := w.WriteLine([]byte("second")); err != nil {
		t.Fatalf("第二次写入失败: %v", err)
	}
	files, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("读取目录失败: %v", err)
	}
	if len(files) < 2 {
		t.Fatalf("应存在轮转文件, got %d", len(files))
	}
	_ = w.Close()
}

// 直接覆盖 ensureOpen 与 rotate 内部分支
func TestRotatingFileEnsureAndRotate(t *testing.T) {
	dir := t.TempDir()
	w := NewRotatingFile(dir, 0)
	if err := w.ensureOpen(); err != nil {
		t.Fatalf("ensureOpen: %v", err)
	}
	if err := w.rotate(); err != nil {
		t.Fatalf("rotate: %v", err)
	}
	ents, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(ents) < 2 {
		t.Fatalf("expect >=2 files, got %d", len(ents))
	}
	if err := w.Sync(); err != nil {
		t.Fatalf("sync: %v", err)
	}
	_ = w.Close()
	if _, err := os.Stat(filepath.Join(dir, "mdxbuild-current.txt")); err != nil {
		t.Fatalf("current file missing: %v", err)
	}
}

// UT-DIAG-02: 指标计数
func TestMetricsNoop(t *testing.T) {
	IncOp("fetch", "finish", "hit")
	IncError("fetch", "network")
	ObserveDuration("load", "finish", 1)
}

// 错误分类
func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Code
	}{
		{"nil", nil, CodeUnknown},
		{"cancel", context.Canceled, CodeCancel},
		{"deadline", fmt.Errorf("x: %w", context.DeadlineExceeded), CodeCancel},
		{"compile sentinel", fmt.Errorf("x: %w", contract.ErrCompileFailed), CodeCompile},
		{"compile message", &contract.Message{Reason: "bad"}, CodeCompile},
		{"invalid", contract.ErrInvalidInput, CodeInvariant},
		{"path", contract.ErrPathInvalid, CodeInvariant},
		{"io wrapped in fetch", fmt.Errorf("%w: %w", contract.ErrFetchFailed, &fs.PathError{Op: "open", Path: "/", Err: errors.New("x")}), CodeIO},
		{"fetch", fmt.Errorf("get: %w", contract.ErrFetchFailed), CodeNetwork},
		{"dns", &net.DNSError{Err: "x"}, CodeNetwork},
		{"other", errors.New("other"), CodeUnknown},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Fatalf("Classify = %s, want %s", got, tt.want)
			}
		})
	}
}

// 补充覆盖: Logger 基本流程与 JSON 字段
func TestLoggerEvents(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerTo("corr", "debug", &buf)
	timer := l.StartWith("load", "compile", "docs/a.mdx")
	timer.Finish("compile", 2)
	l.ErrorWithKV("fetch", "network", "fetch failed", nil, "https://x/a.md", map[string]string{"http_status": "500"})
	l.DebugStart("fetch", "downloading", "https://x/a.md", nil)
	_ = l.Close()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("want 4 events, got %d: %q", len(lines), buf.String())
	}
	var ev map[string]any
	if err := json.Unmarshal([]byte(lines[2]), &ev); err != nil {
		t.Fatalf("json: %v", err)
	}
	if ev["level"] != "error" || ev["comp"] != "fetch" || ev["code"] != "network" || ev["corr_id"] != "corr" {
		t.Fatalf("字段不符: %v", ev)
	}
	kv, _ := ev["kv"].(map[string]any)
	if kv["http_status"] != "500" {
		t.Fatalf("kv 丢失: %v", ev)
	}
	if ev["file_id"] != "https://x/a.md" {
		t.Fatalf("file_id 丢失: %v", ev)
	}
}

// 级别过滤
func TestLoggerLevelFilter(t *testing.T) {
	if Warn.String() != "warn" {
		t.Fatalf("warn string")
	}
	var unknown Level = 12345
	if unknown.String() != "info" {
		t.Fatalf("default string")
	}
	var buf bytes.Buffer
	l := NewLoggerTo("", "warn", &buf)
	l.DebugStart("comp", "msg", "f", nil)
	l.Start("comp", "msg").Finish("ok", 0)
	if buf.Len() != 0 {
		t.Fatalf("低于 warn 的事件应被过滤: %q", buf.String())
	}
	start := time.Now().Add(-10 * time.Millisecond)
	l.Error("comp", "code", "msg", &start)
	l.WarnWith("comp", "issues", "f", map[string]string{"errors": "1"})
	if strings.Count(buf.String(), "\n") != 2 {
		t.Fatalf("want 2 lines, got %q", buf.String())
	}
	var tnil *Timer
	tnil.Finish("x", 0)
	(&Timer{}).Finish("x", 0)
	var lnil *Logger
	lnil.Error("c", "c", "m", nil)
	Nop().Error("c", "c", "m", nil)
}

// 覆盖 Logger 默认文件 sink
func TestLoggerWithSink(t *testing.T) {
	wd, _ := os.Getwd()
	dir := t.TempDir()
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	defer os.Chdir(wd)
	l := NewLogger("corr", "info")
	l.Start("comp", "msg").Finish("ok", 1)
	_ = l.Close()
	if _, err := os.Stat(filepath.Join(dir, "logs", "mdxbuild-current.txt")); err != nil {
		t.Fatalf("log file not found: %v", err)
	}
}

// UT-DIAG-03: 终端（非 TTY）关键节点输出
func TestTerminalNonTTYFlow(t *testing.T) {
	var sb strings.Builder
	term := NewTerminal(&sb, true)
	if term.isTTY {
		t.Fatalf("expect non-tty")
	}
	term.RunStart(4, "markdown", 2)
	term.FileFinish("docs/guide.mdx", 0, 1, 5100*time.Millisecond)
	term.FileFinish("docs/bad.md", 2, 0, 20*time.Millisecond)
	term.RunFinish(false, 41300*time.Millisecond)

	out := sb.String()
	if strings.Contains(out, "\r") {
		t.Fatalf("non-tty should not contain carriage returns: %q", out)
	}
	for _, want := range []string{
		"[run] 并发=4 | compiler=markdown | 文档 2",
		"[done] guide.mdx | 错误 0 | 警告 1 | 用时 5.1s",
		"[fail] bad.md | 错误 2 | 警告 0 | 用时 20ms",
		"[fail] 全部完成 | 文档 2 | 错误 2 | 警告 1 | 总用时 41.3s",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in %q", want, out)
		}
	}
}

// UT-DIAG-04: 终端（TTY）进度节流与清尾
func TestTerminalTTYProgress(t *testing.T) {
	var sb strings.Builder
	term := NewTerminal(&sb, true)
	term.isTTY = true
	term.RunStart(2, "mock", 3)
	term.FileFinish("/a/b/first.mdx", 0, 0, 0)
	first := sb.String()
	if !strings.Contains(first, "\r[check]") {
		t.Fatalf("progress should be inline with CR: %q", first)
	}
	// 立即第二次：应被节流（<100ms）
	term.FileFinish("/a/b/second.mdx", 0, 0, 0)
	if sb.String() != first {
		t.Fatalf("second progress should be throttled")
	}
	// 最后一个文档总是刷新
	term.FileFinish("/a/b/third.mdx", 1, 0, 0)
	if sb.String() == first {
		t.Fatalf("last file should flush")
	}
	term.RunFinish(false, 2200*time.Millisecond)
	final := sb.String()
	idx := strings.LastIndex(final, "[fail]")
	if idx < 0 || !strings.Contains(final[:idx], "\r") {
		t.Fatalf("should clear inline line before summary: %q", final)
	}
}

// UT-DIAG-05: 写失败降级为禁用态
type flakyWriter struct{ fail bool }

func (w *flakyWriter) Write(p []byte) (int, error) {
	if w.fail {
		w.fail = false
		return 0, fmt.Errorf("boom")
	}
	return len(p), nil
}

func TestTerminalDisableOnWriteError(t *testing.T) {
	fw := &flakyWriter{fail: true}
	term := NewTerminal(fw, true)
	term.isTTY = false
	term.RunStart(1, "x", 1)
	if term.enabled {
		t.Fatalf("terminal should be disabled after write error")
	}
	term.FileFinish("a", 0, 0, 0)
	term.RunFinish(true, 0)

	var tn *Terminal
	tn.RunStart(1, "x", 0)
	tn.FileFinish("a", 0, 0, 0)
	tn.RunFinish(true, 0)
}

// UT-DIAG-06: 工具函数覆盖
func TestHelpers(t *testing.T) {
	short := shortenBase("/x/y/这是一个很长的文件名用于截断测试abcdefghijk.mdx", 10)
	if short == "" || visLen(short) > 10 {
		t.Fatalf("shortenBase width: %q", short)
	}
	if shortenBase("x", 0) != "" {
		t.Fatalf("shortenBase max<=0 should be empty")
	}
	if safe("a\nb\rc") != "a b c" {
		t.Fatalf("safe replace failed")
	}
	if formatDur(0) != "0ms" || formatDur(1500*time.Millisecond) != "1.5s" {
		t.Fatalf("formatDur failed")
	}
	SetTerminal(nil)
	if GetTerminal() != nil {
		t.Fatalf("expected nil terminal")
	}
	SetTerminal(NewTerminal(os.Stderr, false))
	if GetTerminal() == nil {
		t.Fatalf("expected non-nil terminal")
	}
	SetTerminal(nil)
	if NowUTC() == "" {
		t.Fatalf("应返回时间字符串")
	}
}

// CI 环境强制非 TTY
func TestNewTerminalCIEnv(t *testing.T) {
	t.Setenv("CI", "true")
	var sb strings.Builder
	if NewTerminal(&sb, true).isTTY {
		t.Fatalf("CI env should force non-tty")
	}
}
