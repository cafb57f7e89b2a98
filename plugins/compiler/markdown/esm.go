package markdown

import (
	"bytes"
	"regexp"
	"strings"
)

// esmBlock: 顶层 import/export 段落，原样提升到模块顶部。
type esmBlock struct {
	start, end int
	text       string
}

var (
	reImport     = regexp.MustCompile(`(?s)import\s+(.+?)\s+from\s+['"]`)
	reExportDecl = regexp.MustCompile(`export\s+(?:const|let|var|function\*?|class|async\s+function)\s+([A-Za-z_$][\w$]*)`)
	reExportList = regexp.MustCompile(`export\s*\{([^}]*)\}`)
	reIdent      = regexp.MustCompile(`^[A-Za-z_$][\w$]*$`)
)

// extractESM 按行扫描顶层 ESM 段落（围栏代码块内不识别），
// 返回段落与挖空后的源码（段落字节替换为空格，偏移不变）。
func extractESM(src []byte) ([]esmBlock, []byte) {
	out := append([]byte(nil), src...)
	var blocks []esmBlock
	var fence byte
	fenceLen := 0
	prevBlank := true
	cur := -1
	pos := 0
	for pos < len(src) {
		end := bytes.IndexByte(src[pos:], '\n')
		next := len(src)
		if end >= 0 {
			next = pos + end + 1
		}
		line := strings.TrimRight(string(src[pos:next]), "\r\n")
		blank := strings.TrimSpace(line) == ""

		if cur >= 0 {
			if blank {
				blocks = append(blocks, esmBlock{start: cur, end: pos, text: string(src[cur:pos])})
				cur = -1
			}
		} else if fence != 0 {
			if c, n := fenceRun(line); c == fence && n >= fenceLen && strings.TrimSpace(line[indent(line)+n:]) == "" {
				fence = 0
			}
		} else if c, n := fenceRun(line); n >= 3 {
			fence, fenceLen = c, n
		} else if prevBlank && isESMStart(line) {
			cur = pos
		}
		prevBlank = blank
		pos = next
	}
	if cur >= 0 {
		blocks = append(blocks, esmBlock{start: cur, end: len(src), text: string(src[cur:])})
	}
	for _, b := range blocks {
		blankOut(out[b.start:b.end])
	}
	return blocks, out
}

func isESMStart(line string) bool {
	for _, kw := range []string{"import", "export"} {
		if strings.HasPrefix(line, kw) && len(line) > len(kw) {
			switch line[len(kw)] {
			case ' ', '\t', '{', '*':
				return true
			}
		}
	}
	return false
}

func indent(line string) int {
	n := 0
	for n < len(line) && n < 3 && line[n] == ' ' {
		n++
	}
	return n
}

// fenceRun 返回行首（最多 3 个空格缩进后）的围栏字符与长度。
func fenceRun(line string) (byte, int) {
	i := indent(line)
	if i >= len(line) || (line[i] != '`' && line[i] != '~') {
		return 0, 0
	}
	c := line[i]
	n := 0
	for i+n < len(line) && line[i+n] == c {
		n++
	}
	if n < 3 {
		return 0, 0
	}
	return c, n
}

// blankOut 将非换行字节替换为空格。
func blankOut(b []byte) {
	for i, c := range b {
		if c != '\n' && c != '\r' {
			b[i] = ' '
		}
	}
}

// declaredNames 收集 ESM 段落中导入或导出的标识符。
func declaredNames(blocks []esmBlock) map[string]struct{} {
	names := map[string]struct{}{}
	add := func(s string) {
		s = strings.TrimSpace(s)
		if reIdent.MatchString(s) {
			names[s] = struct{}{}
		}
	}
	for _, b := range blocks {
		for _, m := range reImport.FindAllStringSubmatch(b.text, -1) {
			importClause(m[1], add)
		}
		for _, m := range reExportDecl.FindAllStringSubmatch(b.text, -1) {
			add(m[1])
		}
		for _, m := range reExportList.FindAllStringSubmatch(b.text, -1) {
			specifiers(m[1], add)
		}
	}
	return names
}

// importClause 解析 `A, { b, c as d }` / `* as ns` 形式的导入子句。
func importClause(clause string, add func(string)) {
	clause = strings.TrimSpace(clause)
	if i := strings.IndexByte(clause, '{'); i >= 0 {
		j := strings.LastIndexByte(clause, '}')
		if j > i {
			specifiers(clause[i+1:j], add)
		}
		clause = clause[:i]
	}
	for _, part := range strings.Split(clause, ",") {
		part = strings.TrimSpace(part)
		if strings.HasPrefix(part, "*") {
			if k := strings.Index(part, " as "); k >= 0 {
				add(part[k+4:])
			}
			continue
		}
		add(part)
	}
}

// specifiers 解析 `a, b as c` 列表，取本地名。
func specifiers(list string, add func(string)) {
	for _, s := range strings.Split(list, ",") {
		s = strings.TrimSpace(s)
		if k := strings.Index(s, " as "); k >= 0 {
			s = s[k+4:]
		}
		add(s)
	}
}

// rewriteDefault 将段落内的 `export default` 改写为布局变量，返回是否改写。
func rewriteDefault(text string) (string, bool) {
	const kw = "export default "
	i := strings.Index(text, kw)
	if i < 0 {
		return text, false
	}
	return text[:i] + "const " + layoutName + " = " + text[i+len(kw):], true
}
