package markdown

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strconv"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"mdxbuild/pkg/contract"
)

// frontMatter: 文档开头由 --- (YAML) 或 +++ (TOML) 包围的元数据块。
type frontMatter struct {
	kind  string
	data  map[string]any
	start int // 含开头围栏
	end   int // 含结尾围栏及其换行
}

var yamlLine = regexp.MustCompile(`line (\d+)`)

// splitFrontMatter 识别并解析元数据块；没有闭合围栏时视为普通正文。
// 解析失败返回带位置的 *contract.Message。
func splitFrontMatter(src []byte, li lineIndex) (*frontMatter, error) {
	var fence, kind string
	switch {
	case hasFenceLine(src, "---"):
		fence, kind = "---", "yaml"
	case hasFenceLine(src, "+++"):
		fence, kind = "+++", "toml"
	default:
		return nil, nil
	}
	bodyStart := bytes.IndexByte(src, '\n') + 1
	pos := bodyStart
	for pos <= len(src) && pos > 0 {
		le := lineEnd(src, pos)
		if string(src[pos:le]) == fence {
			end := le
			if end < len(src) && src[end] == '\r' {
				end++
			}
			if end < len(src) && src[end] == '\n' {
				end++
			}
			fm := &frontMatter{kind: kind, start: 0, end: end}
			content := src[bodyStart:pos]
			if err := fm.decode(content, bodyStart, li); err != nil {
				return nil, err
			}
			return fm, nil
		}
		next := bytes.IndexByte(src[pos:], '\n')
		if next < 0 {
			break
		}
		pos += next + 1
	}
	return nil, nil
}

func hasFenceLine(src []byte, fence string) bool {
	if !bytes.HasPrefix(src, []byte(fence)) {
		return false
	}
	rest := src[len(fence):]
	return bytes.HasPrefix(rest, []byte("\n")) || bytes.HasPrefix(rest, []byte("\r\n"))
}

func (fm *frontMatter) decode(content []byte, base int, li lineIndex) error {
	data := map[string]any{}
	switch fm.kind {
	case "yaml":
		var raw any
		if err := yaml.Unmarshal(content, &raw); err != nil {
			// yaml 错误只带行号（相对块内，自 1 起）
			line := 1
			if m := yamlLine.FindStringSubmatch(err.Error()); m != nil {
				line, _ = strconv.Atoi(m[1])
			}
			docLine := li.point(base).Line
			off := base
			if n := *docLine - 1 + line - 1; n >= 0 && n < len(li) {
				off = li[n]
			}
			return &contract.Message{Fatal: true, Reason: err.Error(), Position: &contract.Position{Start: li.point(off)}, Source: source, RuleID: "frontmatter"}
		}
		switch v := normalizeYAML(raw).(type) {
		case nil:
		case map[string]any:
			data = v
		default:
			return &contract.Message{Fatal: true, Reason: fmt.Sprintf("front matter must be a mapping, got %T", v), Position: &contract.Position{Start: li.point(base)}, Source: source, RuleID: "frontmatter"}
		}
	case "toml":
		if err := toml.Unmarshal(content, &data); err != nil {
			off := base
			var perr toml.ParseError
			if errors.As(err, &perr) {
				off = base + perr.Position.Start
			}
			return &contract.Message{Fatal: true, Reason: err.Error(), Position: &contract.Position{Start: li.point(off)}, Source: source, RuleID: "frontmatter"}
		}
	}
	fm.data = data
	return nil
}

// normalizeYAML 将 map[any]any 转为 map[string]any 以便 JSON 编码。
func normalizeYAML(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, e := range t {
			t[k] = normalizeYAML(e)
		}
		return t
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[fmt.Sprint(k)] = normalizeYAML(e)
		}
		return out
	case []any:
		for i, e := range t {
			t[i] = normalizeYAML(e)
		}
		return t
	default:
		return v
	}
}
