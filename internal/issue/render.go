package issue

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"

	"mdxbuild/pkg/contract"
)

// Severity 仅用于渲染。
type Severity int

const (
	SevWarning Severity = iota
	SevError
)

func (s Severity) String() string {
	if s == SevError {
		return "error"
	}
	return "warning"
}

// Render 以类似打包器的格式输出单条 Issue：
//
//	docs/a.mdx:2:0: error: Expected component `Bad` to be defined
//	    2 │ <Bad/>
//	      ╵ ~~~~~
func Render(w io.Writer, sev Severity, is contract.Issue, colored bool) error {
	head := color.New(color.FgYellow, color.Bold)
	if sev == SevError {
		head = color.New(color.FgRed, color.Bold)
	}
	mark := color.New(color.FgGreen)
	if !colored {
		head.DisableColor()
		mark.DisableColor()
	}

	var b strings.Builder
	loc := is.Location
	if loc != nil && loc.File != "" {
		fmt.Fprintf(&b, "%s:%d:%d: ", loc.File, loc.Line, loc.Column)
	}
	b.WriteString(head.Sprint(sev.String() + ":"))
	b.WriteByte(' ')
	b.WriteString(is.Text)
	if is.PluginName != "" {
		fmt.Fprintf(&b, " [plugin %s]", is.PluginName)
	}
	b.WriteByte('\n')

	if loc != nil && loc.Line > 0 {
		gutter := fmt.Sprintf("%5d", loc.Line)
		fmt.Fprintf(&b, "%s │ %s\n", gutter, expandTabs(loc.LineText))
		pad := strings.Repeat(" ", len(gutter))
		fmt.Fprintf(&b, "%s ╵ %s%s\n", pad, strings.Repeat(" ", caretOffset(loc.LineText, loc.Column)), mark.Sprint(underline(loc)))
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// caretOffset 将字节列换算为可见宽度，保证 CJK/宽字符下对齐。
func caretOffset(lineText string, column int) int {
	if column > len(lineText) {
		column = len(lineText)
	}
	return runewidth.StringWidth(expandTabs(lineText[:column]))
}

func underline(loc *contract.Location) string {
	if loc.Length <= 0 {
		return "^"
	}
	end := loc.Column + loc.Length
	if end > len(loc.LineText) {
		end = len(loc.LineText)
	}
	col := loc.Column
	if col > end {
		col = end
	}
	w := runewidth.StringWidth(expandTabs(loc.LineText[col:end]))
	if w <= 0 {
		return "^"
	}
	return strings.Repeat("~", w)
}

func expandTabs(s string) string { return strings.ReplaceAll(s, "\t", "    ") }
