// Package resolve 实现导入解析的三态标记机：local → remote-origin → remote-transitive。
//
// 路由器本身不报错：无法处理的请求一律交还宿主默认解析。
package resolve

import (
	"net/url"

	"mdxbuild/internal/extname"
	"mdxbuild/pkg/contract"
)

// Router 根据导入者的标记决定是否拦截并改写路径。
type Router struct {
	m           *extname.Matcher
	allowRemote bool
}

// New 构造路由器；allowRemote 为 false 时从不拦截。
func New(m *extname.Matcher, allowRemote bool) *Router {
	return &Router{m: m, allowRemote: allowRemote}
}

// Enabled 报告远程解析是否开启。
func (r *Router) Enabled() bool { return r != nil && r.allowRemote && r.m != nil }

// Resolve 返回改写结果；第二个返回值为 false 表示放行给宿主。
func (r *Router) Resolve(req contract.ResolveRequest) (contract.ResolveResult, bool) {
	if !r.Enabled() {
		return contract.ResolveResult{}, false
	}
	switch {
	case req.ImporterTag == contract.TagLocal:
		// 首次触达远程文档：路径保持原样
		if r.m.MatchRemote(req.ImportPath) {
			return contract.ResolveResult{Path: req.ImportPath, Tag: contract.TagRemoteOrigin}, true
		}
	case req.ImporterTag.Remote():
		if !r.m.MatchRemoteOrRelative(req.ImportPath) {
			return contract.ResolveResult{}, false
		}
		joined, ok := Join(req.Importer, req.ImportPath)
		if !ok {
			return contract.ResolveResult{}, false
		}
		return contract.ResolveResult{Path: joined, Tag: contract.TagRemoteTransitive}, true
	}
	return contract.ResolveResult{}, false
}

// Join 以 base 为基准解析 ref（标准 URL 拼接）。base 必须是绝对 URL。
func Join(base, ref string) (string, bool) {
	b, err := url.Parse(base)
	if err != nil || !b.IsAbs() {
		return "", false
	}
	u, err := url.Parse(ref)
	if err != nil {
		return "", false
	}
	return b.ResolveReference(u).String(), true
}
