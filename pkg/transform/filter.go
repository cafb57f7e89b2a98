package transform

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"mdxbuild/pkg/contract"
)

// Filter 按 doublestar 模式选择路径：先排除，再包含；空包含表示全部接受。
// 相对模式以 base 为根；以 ** 开头的模式保持原样。
type Filter struct {
	include []string
	exclude []string
}

// NewFilter 校验并展开模式。base 为空时使用工作目录。
func NewFilter(base string, include, exclude []string) (*Filter, error) {
	if base == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		base = wd
	}
	inc, err := patterns(base, include)
	if err != nil {
		return nil, err
	}
	exc, err := patterns(base, exclude)
	if err != nil {
		return nil, err
	}
	return &Filter{include: inc, exclude: exc}, nil
}

func patterns(base string, in []string) ([]string, error) {
	out := make([]string, 0, len(in))
	for _, p := range in {
		p = filepath.ToSlash(p)
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("transform: %w: invalid pattern %q", contract.ErrInvalidInput, p)
		}
		if !strings.HasPrefix(p, "**") && !filepath.IsAbs(filepath.FromSlash(p)) {
			p = filepath.ToSlash(filepath.Join(base, filepath.FromSlash(p)))
		}
		out = append(out, p)
	}
	return out, nil
}

// Match 报告 path 是否被选中（不检查扩展名）。含 NUL 的虚拟模块 ID 总被拒绝。
func (f *Filter) Match(path string) bool {
	if f == nil {
		return true
	}
	if strings.ContainsRune(path, 0) {
		return false
	}
	p := filepath.ToSlash(path)
	if abs, err := filepath.Abs(path); err == nil {
		p = filepath.ToSlash(abs)
	}
	for _, pat := range f.exclude {
		if ok, _ := doublestar.Match(pat, p); ok {
			return false
		}
	}
	if len(f.include) == 0 {
		return true
	}
	for _, pat := range f.include {
		if ok, _ := doublestar.Match(pat, p); ok {
			return true
		}
	}
	return false
}
