// Package markdown 是基于 goldmark 的默认文档编译器。
//
// md 格式按 CommonMark(+GFM) 渲染；mdx 格式额外识别顶层 import/export 段落
// 并检查大写开头的组件标签是否已定义。产物为 ES 模块：
//
//	export const frontmatter = {...};
//	export const html = "...";
//	export default function MDXContent() { return html; }
package markdown

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"

	"mdxbuild/internal/extname"
	"mdxbuild/pkg/contract"
)

const (
	source     = "mdxbuild-markdown"
	layoutName = "MDXLayout"
)

// Options: 编译器配置（JSON）。
type Options struct {
	Format        contract.Format `json:"format"`
	MDExtensions  []string        `json:"md_extensions,omitempty"`
	MDXExtensions []string        `json:"mdx_extensions,omitempty"`
	// GFM 默认开启（表格、删除线、任务列表、自动链接）。
	GFM *bool `json:"gfm,omitempty"`
	// UnsafeHTML 默认开启：原样输出文档中的 HTML。
	UnsafeHTML *bool `json:"unsafe_html,omitempty"`
	// ExportName 为默认导出函数名，默认 MDXContent。
	ExportName string `json:"jsx_runtime_export,omitempty"`
	// Components: 由外部提供、无需导入的组件名。
	Components []string `json:"components,omitempty"`
	// Development 在产物首行写入文档路径注释。
	Development bool `json:"development,omitempty"`
}

// Compiler 实现 contract.Compiler；构造后只读，可并发使用。
type Compiler struct {
	md         goldmark.Markdown
	matcher    *extname.Matcher
	exportName string
	provided   map[string]struct{}
	dev        bool
}

var _ contract.Compiler = (*Compiler)(nil)

var reIdentName = regexp.MustCompile(`^[A-Za-z_$][\w$]*$`)

// New 按选项构造编译器。
func New(opts Options) (*Compiler, error) {
	m, err := extname.New(extname.Options{Format: opts.Format, MDExtensions: opts.MDExtensions, MDXExtensions: opts.MDXExtensions})
	if err != nil {
		return nil, err
	}
	name := opts.ExportName
	if name == "" {
		name = "MDXContent"
	}
	if !reIdentName.MatchString(name) {
		return nil, fmt.Errorf("markdown: %w: invalid export name %q", contract.ErrInvalidInput, name)
	}
	var exts []goldmark.Extender
	if opts.GFM == nil || *opts.GFM {
		exts = append(exts, extension.GFM)
	}
	var ropts []renderer.Option
	if opts.UnsafeHTML == nil || *opts.UnsafeHTML {
		ropts = append(ropts, html.WithUnsafe())
	}
	md := goldmark.New(
		goldmark.WithExtensions(exts...),
		goldmark.WithParserOptions(parser.WithAutoHeadingID()),
		goldmark.WithRendererOptions(ropts...),
	)
	provided := make(map[string]struct{}, len(opts.Components))
	for _, c := range opts.Components {
		provided[c] = struct{}{}
	}
	return &Compiler{md: md, matcher: m, exportName: name, provided: provided, dev: opts.Development}, nil
}

// Matcher 返回编译器使用的扩展名匹配器。
func (c *Compiler) Matcher() *extname.Matcher { return c.matcher }

// Compile 渲染文档。元数据块解析失败时以带位置的消息失败；
// 组件未定义等问题作为 fatal 消息随产物返回，不中断编译。
func (c *Compiler) Compile(ctx context.Context, doc contract.Document) (contract.CompiledUnit, error) {
	if err := ctx.Err(); err != nil {
		return contract.CompiledUnit{}, err
	}
	format := doc.Format
	if format == "" || format == contract.FormatDetect {
		format = c.matcher.FormatOf(doc.Path)
	}
	src := doc.Value
	li := newLineIndex(src)

	fm, err := splitFrontMatter(src, li)
	if err != nil {
		return contract.CompiledUnit{}, err
	}
	body := append([]byte(nil), src...)
	if fm != nil {
		blankOut(body[fm.start:fm.end])
	}

	var blocks []esmBlock
	names := map[string]struct{}{}
	if format == contract.FormatMDX {
		blocks, body = extractESM(body)
		names = declaredNames(blocks)
	}

	root := c.md.Parser().Parse(text.NewReader(body))
	var msgs []contract.Message
	msgs = append(msgs, headingIncrement(root, body, li)...)
	if format == contract.FormatMDX {
		msgs = append(msgs, c.undefinedComponents(root, body, li, names)...)
		sortByOffset(msgs)
	}

	var out bytes.Buffer
	if err := c.md.Renderer().Render(&out, body, root); err != nil {
		return contract.CompiledUnit{}, fmt.Errorf("markdown: render %s: %w", doc.Path, err)
	}
	code, err := c.module(doc.Path, fm, blocks, out.String())
	if err != nil {
		return contract.CompiledUnit{}, err
	}
	return contract.CompiledUnit{Value: code, Messages: msgs}, nil
}

func (c *Compiler) module(path string, fm *frontMatter, blocks []esmBlock, rendered string) ([]byte, error) {
	var b bytes.Buffer
	if c.dev {
		fmt.Fprintf(&b, "// %s\n", strings.ReplaceAll(path, "\n", " "))
	}
	layout := false
	for _, blk := range blocks {
		t, ok := rewriteDefault(blk.text)
		if ok {
			if layout {
				return nil, &contract.Message{Fatal: true, Reason: "Cannot specify multiple layouts", Source: source, RuleID: "esm"}
			}
			layout = true
		}
		b.WriteString(strings.TrimRight(t, " \t\r\n"))
		b.WriteString("\n")
	}
	data := map[string]any{}
	if fm != nil && fm.data != nil {
		data = fm.data
	}
	fmJSON, err := jsonLiteral(data)
	if err != nil {
		return nil, &contract.Message{Fatal: true, Reason: "front matter: " + err.Error(), Source: source, RuleID: "frontmatter"}
	}
	htmlJSON, err := jsonLiteral(rendered)
	if err != nil {
		return nil, &contract.Message{Fatal: true, Reason: "html: " + err.Error(), Source: source, RuleID: "render"}
	}
	fmt.Fprintf(&b, "export const frontmatter = %s;\n", fmJSON)
	fmt.Fprintf(&b, "export const html = %s;\n", htmlJSON)
	fmt.Fprintf(&b, "export default function %s(props = {}) {\n", c.exportName)
	if layout {
		fmt.Fprintf(&b, "  return %s({ ...props, children: html });\n", layoutName)
	} else {
		b.WriteString("  return html;\n")
	}
	b.WriteString("}\n")
	return b.Bytes(), nil
}

// jsonLiteral 编码为 JS 字面量；不转义 HTML 字符以保持产物可读。
func jsonLiteral(v any) (string, error) {
	var b bytes.Buffer
	enc := json.NewEncoder(&b)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

// headingIncrement: 标题级别一次只能增加一级。
func headingIncrement(root ast.Node, src []byte, li lineIndex) []contract.Message {
	var msgs []contract.Message
	prev := 0
	_ = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		h, ok := n.(*ast.Heading)
		if !ok {
			return ast.WalkContinue, nil
		}
		if prev > 0 && h.Level > prev+1 {
			m := contract.Message{
				Reason: fmt.Sprintf("Unexpected heading rank `%d`, expected rank `%d`", h.Level, prev+1),
				Source: source,
				RuleID: "heading-increment",
			}
			if lines := h.Lines(); lines.Len() > 0 {
				off := lines.At(0).Start
				start := li[*li.point(off).Line-1]
				m.Position = span(li, start, lineEnd(src, off))
			}
			msgs = append(msgs, m)
		}
		prev = h.Level
		return ast.WalkSkipChildren, nil
	})
	return msgs
}

var reComponent = regexp.MustCompile(`<([A-Z][\w$]*)((?:\.[\w$]+)*)`)

// undefinedComponents 检查 HTML 块与行内 HTML 中的大写标签是否已导入、导出或由外部提供。
func (c *Compiler) undefinedComponents(root ast.Node, src []byte, li lineIndex, names map[string]struct{}) []contract.Message {
	var msgs []contract.Message
	seen := map[int]bool{}
	check := func(segStart int, seg []byte) {
		for _, loc := range reComponent.FindAllSubmatchIndex(seg, -1) {
			name := string(seg[loc[2]:loc[3]])
			if _, ok := names[name]; ok {
				continue
			}
			if _, ok := c.provided[name]; ok {
				continue
			}
			start := segStart + loc[0]
			if seen[start] {
				continue
			}
			seen[start] = true
			end := start + (loc[1] - loc[0])
			if gt := bytes.IndexByte(src[end:lineEnd(src, end)], '>'); gt >= 0 {
				end += gt + 1
			}
			full := name + string(seg[loc[4]:loc[5]])
			msgs = append(msgs, contract.Message{
				Fatal:    true,
				Reason:   fmt.Sprintf("Expected component `%s` to be defined: you likely forgot to import, pass, or provide it.", full),
				Position: span(li, start, end),
				Source:   source,
				RuleID:   "missing-component",
			})
		}
	}
	_ = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch v := n.(type) {
		case *ast.HTMLBlock:
			lines := v.Lines()
			for i := 0; i < lines.Len(); i++ {
				s := lines.At(i)
				check(s.Start, s.Value(src))
			}
		case *ast.RawHTML:
			for i := 0; i < v.Segments.Len(); i++ {
				s := v.Segments.At(i)
				check(s.Start, s.Value(src))
			}
		}
		return ast.WalkContinue, nil
	})
	return msgs
}

// sortByOffset 按起点偏移稳定排序（无位置的消息保持在前）。
func sortByOffset(msgs []contract.Message) {
	off := func(m contract.Message) int {
		if m.Position == nil || !m.Position.Start.Complete() {
			return -1
		}
		return *m.Position.Start.Offset
	}
	sort.SliceStable(msgs, func(i, j int) bool { return off(msgs[i]) < off(msgs[j]) })
}
