package contract

import (
	"net/url"
	"path"
	"strings"
)

// NormalizeFileID 规范化本地路径，统一为跨平台稳定的 FileID。
// 规则：
// - 使用正斜杠分隔符
// - 清理多余分隔符与路径片段（.、..）
// - 保留相对/绝对语义，不做隐式绝对化
func NormalizeFileID(p string) FileID {
	s := strings.ReplaceAll(p, "\\", "/")
	return FileID(path.Clean(s))
}

// StripQueryFragment 去除 URL 的 query 与 fragment；无法解析时按字面截断。
func StripQueryFragment(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		if i := strings.IndexAny(href, "?#"); i >= 0 {
			return href[:i]
		}
		return href
	}
	u.RawQuery = ""
	u.ForceQuery = false
	u.Fragment = ""
	u.RawFragment = ""
	return u.String()
}
