package resolve

import (
	"testing"

	"mdxbuild/internal/extname"
	"mdxbuild/pkg/contract"
)

func newRouter(t *testing.T, allow bool) *Router {
	t.Helper()
	m, err := extname.New(extname.Options{})
	if err != nil {
		t.Fatalf("matcher: %v", err)
	}
	return New(m, allow)
}

// TestResolveTable 覆盖三态标记的各条转移。
func TestResolveTable(t *testing.T) {
	r := newRouter(t, true)
	cases := []struct {
		name string
		req  contract.ResolveRequest
		ok   bool
		path string
		tag  contract.Tag
	}{
		{"本地导入远程文档", contract.ResolveRequest{ImportPath: "https://example.com/a.mdx", Importer: "/src/index.js"}, true, "https://example.com/a.mdx", contract.TagRemoteOrigin},
		{"远程文档带 query", contract.ResolveRequest{ImportPath: "https://example.com/doc.md?x=1#frag", Importer: "/src/index.js"}, true, "https://example.com/doc.md?x=1#frag", contract.TagRemoteOrigin},
		{"本地导入远程脚本", contract.ResolveRequest{ImportPath: "https://example.com/a.js", Importer: "/src/index.js"}, false, "", 0},
		{"本地导入相对文档", contract.ResolveRequest{ImportPath: "./a.mdx", Importer: "/src/index.js"}, false, "", 0},
		{"远程导入相对路径", contract.ResolveRequest{ImportPath: "./b.js", Importer: "https://example.com/docs/a.mdx", ImporterTag: contract.TagRemoteOrigin}, true, "https://example.com/docs/b.js", contract.TagRemoteTransitive},
		{"远程导入上级路径", contract.ResolveRequest{ImportPath: "../lib/c.mdx", Importer: "https://example.com/docs/a.mdx", ImporterTag: contract.TagRemoteTransitive}, true, "https://example.com/lib/c.mdx", contract.TagRemoteTransitive},
		{"远程导入绝对 URL", contract.ResolveRequest{ImportPath: "https://cdn.example.org/x.js", Importer: "https://example.com/a.mdx", ImporterTag: contract.TagRemoteOrigin}, true, "https://cdn.example.org/x.js", contract.TagRemoteTransitive},
		{"远程导入裸模块", contract.ResolveRequest{ImportPath: "react", Importer: "https://example.com/a.mdx", ImporterTag: contract.TagRemoteOrigin}, false, "", 0},
		{"导入者非绝对 URL", contract.ResolveRequest{ImportPath: "./b.js", Importer: "docs/a.mdx", ImporterTag: contract.TagRemoteOrigin}, false, "", 0},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := r.Resolve(tt.req)
			if ok != tt.ok {
				t.Fatalf("ok = %v, 预期 %v (%+v)", ok, tt.ok, got)
			}
			if ok && (got.Path != tt.path || got.Tag != tt.tag) {
				t.Fatalf("got %+v, 预期 %s/%s", got, tt.path, tt.tag)
			}
		})
	}
}

// TestResolveDisabled 未开启远程解析时从不拦截。
func TestResolveDisabled(t *testing.T) {
	r := newRouter(t, false)
	if _, ok := r.Resolve(contract.ResolveRequest{ImportPath: "https://example.com/a.mdx"}); ok {
		t.Fatalf("关闭时不应拦截")
	}
	if _, ok := r.Resolve(contract.ResolveRequest{ImportPath: "./b.md", Importer: "https://example.com/a.mdx", ImporterTag: contract.TagRemoteOrigin}); ok {
		t.Fatalf("关闭时不应拦截")
	}
	var nilRouter *Router
	if nilRouter.Enabled() {
		t.Fatalf("nil 路由器应视为关闭")
	}
}

// TestResolveMultiHop 多跳导入相对于直接导入者解析，而非最初的源 URL。
func TestResolveMultiHop(t *testing.T) {
	r := newRouter(t, true)
	first, ok := r.Resolve(contract.ResolveRequest{ImportPath: "https://example.com/docs/guide/index.mdx", Importer: "/src/main.js"})
	if !ok || first.Tag != contract.TagRemoteOrigin {
		t.Fatalf("first = %+v", first)
	}
	second, ok := r.Resolve(contract.ResolveRequest{ImportPath: "../api/ref.mdx", Importer: first.Path, ImporterTag: first.Tag})
	if !ok || second.Path != "https://example.com/docs/api/ref.mdx" {
		t.Fatalf("second = %+v", second)
	}
	third, ok := r.Resolve(contract.ResolveRequest{ImportPath: "./parts/table.md", Importer: second.Path, ImporterTag: second.Tag})
	if !ok || third.Path != "https://example.com/docs/api/parts/table.md" || third.Tag != contract.TagRemoteTransitive {
		t.Fatalf("third = %+v", third)
	}
	// 结合律：逐跳拼接等于把相对路径依次作用于直接导入者
	direct, _ := Join("https://example.com/docs/guide/index.mdx", "../api/parts/table.md")
	if direct != third.Path {
		t.Fatalf("逐跳 %s != 直接 %s", third.Path, direct)
	}
}
