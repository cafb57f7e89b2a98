package diag

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-runewidth"
	"golang.org/x/term"
)

// Terminal: 终端信息提示（非日志）。
// - 输出到提供的 io.Writer（默认建议 stderr）。
// - TTY: 单行 \r 覆盖进度；非 TTY: 关键节点分行打印。
// - 并发安全；写失败后进入禁用态为 no-op。
type Terminal struct {
	w       io.Writer
	enabled bool
	isTTY   bool

	concurrency int
	compiler    string
	filesDone   int
	filesTotal  int
	errTotal    int
	warnTotal   int
	runStart    time.Time

	lastLen   int
	lastFlush time.Time

	mu sync.Mutex
}

// 进程级终端（可选，全局设置后供 pipeline 旁路调用）。
var (
	termMu sync.RWMutex
	termG  *Terminal
)

// SetTerminal 设置全局终端指针（nil 可清除）。
func SetTerminal(t *Terminal) { termMu.Lock(); termG = t; termMu.Unlock() }

// GetTerminal 返回全局终端（可能为 nil）。
func GetTerminal() *Terminal { termMu.RLock(); defer termMu.RUnlock(); return termG }

// NewTerminal 构造终端提示器。
// enabled=false 时总是 no-op。
func NewTerminal(w io.Writer, enabled bool) *Terminal {
	if w == nil {
		w = os.Stderr
	}
	t := &Terminal{w: w, enabled: enabled}
	// CI 环境视为非 TTY
	if os.Getenv("CI") != "" {
		t.isTTY = false
	} else if f, ok := w.(*os.File); ok {
		t.isTTY = term.IsTerminal(int(f.Fd()))
	}
	return t
}

// RunStart: 记录运行上下文（并发、编译器、文件总数）。
func (t *Terminal) RunStart(concurrency int, compiler string, files int) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return
	}
	t.concurrency = concurrency
	t.compiler = compiler
	t.filesTotal = files
	t.filesDone = 0
	t.errTotal, t.warnTotal = 0, 0
	t.runStart = time.Now()
	t.println(fmt.Sprintf("[run] 并发=%d | compiler=%s | 文档 %d", concurrency, safe(compiler), files))
}

// FileFinish: 单个文档完成（非 TTY 打点一行；TTY 刷新进度行）。
func (t *Terminal) FileFinish(fileID string, errs, warns int, dur time.Duration) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return
	}
	t.filesDone++
	t.errTotal += errs
	t.warnTotal += warns
	name := shortenBase(fileID, 48)
	if !t.isTTY {
		status := "done"
		if errs > 0 {
			status = "fail"
		}
		t.println(fmt.Sprintf("[%s] %s | 错误 %d | 警告 %d | 用时 %s", status, name, errs, warns, formatDur(dur)))
		return
	}
	// 节流：100ms；最后一个文档总是刷新
	now := time.Now()
	if t.filesDone < t.filesTotal && now.Sub(t.lastFlush) < 100*time.Millisecond {
		return
	}
	t.lastFlush = now
	t.printInline(fmt.Sprintf("[check] %s | 进度 %d/%d | 错误 %d | 警告 %d | 用时 %s",
		name, t.filesDone, t.filesTotal, t.errTotal, t.warnTotal, formatSince(t.runStart)))
}

// RunFinish: 结束总览。
func (t *Terminal) RunFinish(ok bool, dur time.Duration) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return
	}
	if t.isTTY && t.lastLen > 0 {
		t.printInline("")
	}
	tag := "ok"
	if !ok {
		tag = "fail"
	}
	t.println(fmt.Sprintf("[%s] 全部完成 | 文档 %d | 错误 %d | 警告 %d | 总用时 %s",
		tag, t.filesDone, t.errTotal, t.warnTotal, formatDur(dur)))
}

func (t *Terminal) println(s string) {
	if t == nil || !t.enabled {
		return
	}
	prefix := ""
	if t.isTTY && t.lastLen > 0 {
		prefix = "\n"
	}
	if _, err := io.WriteString(t.w, prefix+s+"\n"); err != nil {
		// 写失败即禁用
		t.enabled = false
	}
	t.lastLen = 0
}

func (t *Terminal) printInline(s string) {
	if t == nil || !t.enabled {
		return
	}
	// \r + 内容 + 清尾空格（新行比旧行短时覆盖残留）
	pad := 0
	if l := visLen(s); t.lastLen > l {
		pad = t.lastLen - l
	}
	var b strings.Builder
	b.WriteByte('\r')
	b.WriteString(s)
	if pad > 0 {
		b.WriteString(strings.Repeat(" ", pad))
	}
	if _, err := io.WriteString(t.w, b.String()); err != nil {
		t.enabled = false
		return
	}
	t.lastLen = visLen(s)
}

// shortenBase: 取基名并按可见宽度截断（尾部省略号）。
func shortenBase(s string, max int) string {
	if max <= 0 {
		return ""
	}
	base := filepath.Base(strings.TrimSpace(s))
	if base == "" {
		return ""
	}
	if visLen(base) <= max {
		return base
	}
	return runewidth.Truncate(base, max, "…")
}

func visLen(s string) int { return runewidth.StringWidth(s) }

func safe(s string) string {
	// 避免换行等控制字符污染终端
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	return s
}

func formatSince(t0 time.Time) string { return formatDur(time.Since(t0)) }

func formatDur(d time.Duration) string {
	if d < time.Second {
		ms := d.Milliseconds()
		if ms <= 0 {
			ms = 0
		}
		return fmt.Sprintf("%dms", ms)
	}
	s := float64(d.Milliseconds()) / 1000.0
	return fmt.Sprintf("%.1fs", s)
}
