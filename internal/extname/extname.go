// Package extname 将编译器配置映射为可识别的文档扩展名集合与匹配谓词。
package extname

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	"mdxbuild/pkg/contract"
)

// 默认扩展名集合。
var (
	DefaultMDExtensions  = []string{".md", ".markdown", ".mdown", ".mkdn", ".mkd", ".mdwn", ".mkdown", ".ron"}
	DefaultMDXExtensions = []string{".mdx"}
)

// Options: 扩展名匹配配置。
type Options struct {
	// Format: detect|md|mdx；空值等价于 detect。
	Format        contract.Format `json:"format"`
	MDExtensions  []string        `json:"md_extensions,omitempty"`
	MDXExtensions []string        `json:"mdx_extensions,omitempty"`
}

// Matcher 为纯谓词：构造后不可变，可并发使用。
type Matcher struct {
	format  contract.Format
	md      []string
	mdx     []string
	exts    []string
	filter  *regexp.Regexp
	remote  *regexp.Regexp
	relOrRm *regexp.Regexp
}

var _ contract.Matcher = (*Matcher)(nil)

// New 按 format 选择扩展名集合并构造过滤正则。
func New(opts Options) (*Matcher, error) {
	f := opts.Format
	if f == "" {
		f = contract.FormatDetect
	}
	md := normalize(opts.MDExtensions, DefaultMDExtensions)
	mdx := normalize(opts.MDXExtensions, DefaultMDXExtensions)
	var exts []string
	switch f {
	case contract.FormatMD:
		exts = md
	case contract.FormatMDX:
		exts = mdx
	case contract.FormatDetect:
		exts = append(append([]string{}, mdx...), md...)
	default:
		return nil, fmt.Errorf("extname: %w: unknown format %q", contract.ErrInvalidInput, f)
	}
	if len(exts) == 0 {
		return nil, fmt.Errorf("extname: %w: empty extension set", contract.ErrInvalidInput)
	}
	src := Source(exts)
	return &Matcher{
		format:  f,
		md:      md,
		mdx:     mdx,
		exts:    exts,
		filter:  regexp.MustCompile(src),
		remote:  regexp.MustCompile(`^https?://.+` + src),
		relOrRm: regexp.MustCompile(RemoteOrRelativeSource),
	}, nil
}

// RemoteOrRelativeSource 匹配绝对 http(s) URL 或 ./、../ 相对路径。
const RemoteOrRelativeSource = `^(https?://|.{1,2}/).*`

// Source 返回扩展名过滤正则源码：`\.(md|mdx)([?#]|$)`。
func Source(exts []string) string {
	parts := make([]string, 0, len(exts))
	for _, e := range exts {
		parts = append(parts, regexp.QuoteMeta(strings.TrimPrefix(e, ".")))
	}
	return `\.(` + strings.Join(parts, "|") + `)([?#]|$)`
}

func normalize(in, def []string) []string {
	if len(in) == 0 {
		return append([]string(nil), def...)
	}
	out := make([]string, 0, len(in))
	for _, e := range in {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		out = append(out, e)
	}
	return out
}

// Extensions 返回生效的扩展名（副本）。
func (m *Matcher) Extensions() []string { return append([]string(nil), m.exts...) }

// Match 报告路径（允许携带 query/hash）是否为可识别文档。
func (m *Matcher) Match(p string) bool { return m.filter.MatchString(p) }

// MatchRemote 报告 p 是否为带可识别扩展名的绝对 http(s) URL。
func (m *Matcher) MatchRemote(p string) bool { return m.remote.MatchString(p) }

// MatchRemoteOrRelative 报告 p 是否为绝对 http(s) URL 或相对路径。
func (m *Matcher) MatchRemoteOrRelative(p string) bool { return m.relOrRm.MatchString(p) }

// Filter/RemoteFilter/RemoteOrRelativeFilter 返回可直接作为打包器过滤器的正则源码。
func (m *Matcher) Filter() string                 { return m.filter.String() }
func (m *Matcher) RemoteFilter() string           { return m.remote.String() }
func (m *Matcher) RemoteOrRelativeFilter() string { return m.relOrRm.String() }

// FormatOf 为单个文件选择语法：固定 format 时直接返回，detect 时按扩展名判定。
func (m *Matcher) FormatOf(p string) contract.Format {
	if m.format != contract.FormatDetect {
		return m.format
	}
	ext := strings.ToLower(path.Ext(contract.StripQueryFragment(p)))
	for _, e := range m.md {
		if e == ext {
			return contract.FormatMD
		}
	}
	return contract.FormatMDX
}
