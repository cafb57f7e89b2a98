package issue

import (
	"strings"
	"testing"

	"mdxbuild/pkg/contract"
)

func pos(sl, sc, so int, end ...int) *contract.Position {
	p := &contract.Position{Start: contract.At(sl, sc, so)}
	if len(end) == 3 {
		p.End = contract.At(end[0], end[1], end[2])
	}
	return p
}

// TestMapScenario 覆盖典型的致命消息映射。
func TestMapScenario(t *testing.T) {
	src := []byte("# Title\n<Bad/>\n")
	msg := contract.Message{Fatal: true, Reason: "Expected component `Bad` to be defined", Position: pos(2, 1, 8, 2, 6, 13)}
	errs, warns := Partition("mdxbuild", "doc.mdx", []contract.Message{msg}, src)
	if len(errs) != 1 || len(warns) != 0 {
		t.Fatalf("partition: %d errors %d warnings", len(errs), len(warns))
	}
	loc := errs[0].Location
	if loc.Line != 2 || loc.Column != 0 || loc.Length != 5 || loc.LineText != "<Bad/>" {
		t.Fatalf("location = %+v", loc)
	}
	if loc.File != "doc.mdx" || loc.Namespace != "file" || errs[0].PluginName != "mdxbuild" {
		t.Fatalf("meta = %+v", errs[0])
	}
	if errs[0].Detail == nil || errs[0].Detail.Reason != msg.Reason {
		t.Fatalf("detail 丢失")
	}
}

// TestMapMissingPosition 无位置消息仍生成零宽 Issue。
func TestMapMissingPosition(t *testing.T) {
	src := []byte("a\nb\n")
	line := 2
	cases := []struct {
		name string
		pos  *contract.Position
	}{
		{"nil position", nil},
		{"nil start", &contract.Position{}},
		{"partial start", &contract.Position{Start: &contract.Point{Line: &line}}},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			is := Map("p", "f", contract.Message{Reason: "r", Position: tt.pos}, src)
			loc := is.Location
			if loc == nil || loc.Line != 0 || loc.Column != 0 || loc.Length != 0 || loc.LineText != "" {
				t.Fatalf("location = %+v", loc)
			}
			if is.Text != "r" {
				t.Fatalf("text = %q", is.Text)
			}
		})
	}
}

// TestMapDefaultLength 无终点时默认高亮 1 个字符。
func TestMapDefaultLength(t *testing.T) {
	src := []byte("hello\nworld")
	is := Map("p", "f", contract.Message{Position: pos(2, 3, 8)}, src)
	loc := is.Location
	if loc.Line != 2 || loc.Column != 2 || loc.Length != 1 || loc.LineText != "world" {
		t.Fatalf("location = %+v", loc)
	}
}

// TestMapLineTerminators 覆盖各类行终止符与文档末尾。
func TestMapLineTerminators(t *testing.T) {
	cases := []struct {
		name string
		src  string
		want string
	}{
		{"lf", "abc\ndef", "abc"},
		{"cr", "abc\rdef", "abc"},
		{"crlf", "abc\r\ndef", "abc"},
		{"line separator", "abc\u2028def", "abc"},
		{"paragraph separator", "abc\u2029def", "abc"},
		{"eof", "abcdef", "abcdef"},
		{"non-ascii", "héllo wörld\nx", "héllo wörld"},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			is := Map("p", "f", contract.Message{Position: pos(1, 1, 0)}, []byte(tt.src))
			if is.Location.LineText != tt.want {
				t.Fatalf("lineText = %q, want %q", is.Location.LineText, tt.want)
			}
		})
	}
}

// TestMapClampsLength 长度取 min(length, lineEnd)，lineEnd 为行尾在源码中的偏移。
func TestMapClampsLength(t *testing.T) {
	src := []byte("one\ntwo three\nfour")
	// 起点 two 的 'w'（col 2, offset 5），终点在下一行（offset 15），行尾偏移 13
	is := Map("p", "f", contract.Message{Position: pos(2, 2, 5, 3, 2, 15)}, src)
	loc := is.Location
	if loc.LineText != "two three" || loc.Column != 1 || loc.Length != 10 {
		t.Fatalf("location = %+v", loc)
	}
	// 跨越多行时以行尾偏移截断
	is = Map("p", "f", contract.Message{Position: pos(1, 1, 0, 3, 4, 17)}, src)
	if is.Location.LineText != "one" || is.Location.Length != 3 {
		t.Fatalf("location = %+v", is.Location)
	}
}

// TestMapBogusOffsets 越界/倒置的位置不 panic。
func TestMapBogusOffsets(t *testing.T) {
	src := []byte("short")
	is := Map("p", "f", contract.Message{Position: pos(9, 50, 400, 9, 1, 2)}, src)
	if is.Location.Length != 0 {
		t.Fatalf("length = %d", is.Location.Length)
	}
	is = Map("p", "f", contract.Message{Position: pos(1, 0, 0)}, src)
	if is.Location.Column != 0 || is.Location.LineText != "short" {
		t.Fatalf("location = %+v", is.Location)
	}
}

// TestLineTextIsExactSubstring 性质：lineText 恰为 [lineStart, 首个终止符) 子串。
func TestLineTextIsExactSubstring(t *testing.T) {
	src := "alpha\r\nbeta gamma\ndelta\u2028epsilon\n"
	for off := 0; off < len(src); off++ {
		// 求 off 所在行起点（只按 \n/\r 切行）
		ls := strings.LastIndexAny(src[:off], "\r\n") + 1
		col := off - ls + 1
		is := Map("p", "f", contract.Message{Position: pos(1, col, off, 1, col+1, off+1)}, []byte(src))
		le := LineEnd([]byte(src), ls)
		if is.Location.LineText != src[ls:le] {
			t.Fatalf("off %d: lineText %q, want %q", off, is.Location.LineText, src[ls:le])
		}
		if want := min(1, le); is.Location.Length != want {
			t.Fatalf("off %d: length %d, want %d", off, is.Location.Length, want)
		}
	}
}

// TestPartitionOrder 组内顺序与编译器产出一致。
func TestPartitionOrder(t *testing.T) {
	msgs := []contract.Message{
		{Reason: "w1"}, {Fatal: true, Reason: "e1"}, {Reason: "w2"}, {Fatal: true, Reason: "e2"},
	}
	errs, warns := Partition("p", "f", msgs, nil)
	if len(errs) != 2 || errs[0].Text != "e1" || errs[1].Text != "e2" {
		t.Fatalf("errors = %+v", errs)
	}
	if len(warns) != 2 || warns[0].Text != "w1" || warns[1].Text != "w2" {
		t.Fatalf("warnings = %+v", warns)
	}
	errs, warns = Partition("p", "f", nil, nil)
	if errs == nil || warns == nil || len(errs)+len(warns) != 0 {
		t.Fatalf("空消息应返回空切片")
	}
}

// TestRender 覆盖终端渲染与宽字符对齐。
func TestRender(t *testing.T) {
	src := []byte("# 标题\n<Bad/>\n")
	is := Map("mdxbuild", "doc.mdx", contract.Message{Reason: "boom", Position: pos(2, 1, 9, 2, 7, 15)}, src)
	var sb strings.Builder
	if err := Render(&sb, SevError, is, false); err != nil {
		t.Fatalf("render: %v", err)
	}
	out := sb.String()
	for _, want := range []string{"doc.mdx:2:0: error: boom [plugin mdxbuild]", "    2 │ <Bad/>", "      ╵ ~~~~~~"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
	sb.Reset()
	_ = Render(&sb, SevWarning, contract.Issue{Text: "fetch failed"}, false)
	if sb.String() != "warning: fetch failed\n" {
		t.Fatalf("无位置渲染 = %q", sb.String())
	}
	if caretOffset("标题x", len("标题")) != 4 {
		t.Fatalf("宽字符对齐错误")
	}
}
