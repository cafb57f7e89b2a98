// Package transform 提供源码转换钩子：给定源码与路径，
// 对被 include/exclude 选中且扩展名可识别的文档返回编译后的模块。
package transform

import (
	"context"
	"path/filepath"

	"mdxbuild/internal/compile"
	"mdxbuild/internal/diag"
	"mdxbuild/internal/extname"
	"mdxbuild/pkg/contract"
	"mdxbuild/plugins/compiler/markdown"
)

// Name 写入转换钩子产出的诊断。
const Name = "mdxbuild-transform"

// Options: Include/Exclude 为 doublestar 模式；相对模式以 BaseDir（默认工作目录）为根，
// 以 ** 开头的模式不加前缀。空 Include 表示全部接受。
type Options struct {
	Include  []string
	Exclude  []string
	BaseDir  string
	Markdown markdown.Options
	// Compiler 为 nil 时按 Markdown 构造默认编译器。
	Compiler contract.Compiler
	Logger   *diag.Logger
}

// Result: 转换产物；Map 原样透传编译器给出的映射（可能为 nil）。
type Result struct {
	Code     string
	Map      []byte
	Warnings []contract.Issue
}

// Transformer 可并发使用。
type Transformer struct {
	filter  *Filter
	matcher *extname.Matcher
	adapter *compile.Adapter
	log     *diag.Logger
}

// New 校验模式并构造转换器。
func New(opts Options) (*Transformer, error) {
	f, err := NewFilter(opts.BaseDir, opts.Include, opts.Exclude)
	if err != nil {
		return nil, err
	}
	m, err := extname.New(extname.Options{
		Format:        opts.Markdown.Format,
		MDExtensions:  opts.Markdown.MDExtensions,
		MDXExtensions: opts.Markdown.MDXExtensions,
	})
	if err != nil {
		return nil, err
	}
	comp := opts.Compiler
	if comp == nil {
		c, err := markdown.New(opts.Markdown)
		if err != nil {
			return nil, err
		}
		comp = c
	}
	return &Transformer{filter: f, matcher: m, adapter: compile.New(comp), log: opts.Logger}, nil
}

// Transform 编译 source。第二个返回值为 false 表示不处理该路径（交还宿主）。
// 存在致命诊断时返回 error（可 errors.As 取回 *contract.Message）。
func (t *Transformer) Transform(ctx context.Context, source, path string) (*Result, bool, error) {
	if filepath.Ext(path) == "" || !t.filter.Match(path) || !t.matcher.Match(path) {
		return nil, false, nil
	}
	tm := t.log.StartWith("transform", "compile", path)
	res := t.adapter.Check(ctx, Name, contract.Document{
		Path:   path,
		Value:  []byte(source),
		Format: t.matcher.FormatOf(path),
	})
	// count 为产出字节数
	if err := res.Err(); err != nil {
		tm.Finish("failed", int64(len(res.Unit.Value)))
		t.log.ErrorWith("transform", string(diag.CodeCompile), err.Error(), nil, path)
		diag.IncOp("transform", "compile", "error")
		return nil, true, err
	}
	diag.IncOp("transform", "compile", "success")
	tm.Finish("compiled", int64(len(res.Unit.Value)))
	return &Result{Code: string(res.Unit.Value), Map: res.Unit.Map, Warnings: res.Warnings}, true, nil
}
