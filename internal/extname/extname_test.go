package extname

import (
	"errors"
	"testing"

	"mdxbuild/pkg/contract"
)

// TestMatchDetect 覆盖默认 detect 集合与 query/hash 后缀。
func TestMatchDetect(t *testing.T) {
	m, err := New(Options{})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	cases := map[string]bool{
		"docs/a.mdx":                      true,
		"docs/a.md":                       true,
		"docs/a.markdown":                 true,
		"docs/a.md?raw":                   true,
		"docs/a.mdx#intro":                true,
		"docs/a.js":                       false,
		"docs/a.mdxx":                     false,
		"docs/a.md.js":                    false,
		"https://example.com/doc.md?x=1":  true,
		"https://example.com/script.js?a": false,
	}
	for in, want := range cases {
		if got := m.Match(in); got != want {
			t.Fatalf("Match(%q) = %v, want %v", in, got, want)
		}
	}
}

// TestFormatSelection 验证 format 对集合与 FormatOf 的影响。
func TestFormatSelection(t *testing.T) {
	md, err := New(Options{Format: contract.FormatMD})
	if err != nil {
		t.Fatalf("new md: %v", err)
	}
	if md.Match("a.mdx") || !md.Match("a.md") {
		t.Fatalf("md format 集合错误: %v", md.Extensions())
	}
	if md.FormatOf("a.whatever") != contract.FormatMD {
		t.Fatalf("固定 format 应直接返回")
	}
	det, _ := New(Options{})
	if det.FormatOf("a.md?x#y") != contract.FormatMD || det.FormatOf("a.mdx") != contract.FormatMDX {
		t.Fatalf("detect 判定错误")
	}
	custom, err := New(Options{Format: contract.FormatMDX, MDXExtensions: []string{"MDOC", ".mdx"}})
	if err != nil {
		t.Fatalf("new custom: %v", err)
	}
	if !custom.Match("x.mdoc") || custom.Match("x.md") {
		t.Fatalf("自定义扩展名未生效: %v", custom.Extensions())
	}
}

// TestRemoteFilters 验证远程与相对路径过滤器。
func TestRemoteFilters(t *testing.T) {
	m, _ := New(Options{})
	if !m.MatchRemote("https://example.com/doc.mdx") || !m.MatchRemote("http://x.y/a.md?q") {
		t.Fatalf("远程文档应匹配")
	}
	if m.MatchRemote("https://example.com/lib.js") || m.MatchRemote("./doc.mdx") {
		t.Fatalf("非远程文档不应匹配")
	}
	for _, p := range []string{"./a.js", "../b.mdx", "https://x.y/z.js"} {
		if !m.MatchRemoteOrRelative(p) {
			t.Fatalf("%q 应匹配 remote-or-relative", p)
		}
	}
	if m.MatchRemoteOrRelative("react") {
		t.Fatalf("裸模块名不应匹配")
	}
	if m.Filter() != `\.(mdx|md|markdown|mdown|mkdn|mkd|mdwn|mkdown|ron)([?#]|$)` {
		t.Fatalf("filter 源码不符: %s", m.Filter())
	}
}

// TestInvalidFormat 非法 format 报错。
func TestInvalidFormat(t *testing.T) {
	if _, err := New(Options{Format: "rst"}); !errors.Is(err, contract.ErrInvalidInput) {
		t.Fatalf("want ErrInvalidInput, got %v", err)
	}
}
