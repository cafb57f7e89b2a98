// Package load 按解析标记分派加载：远程内容先获取，再按扩展名决定
// 编译为文档或作为不透明模块原样返回；本地文档读取后编译。
package load

import (
	"context"
	"strconv"
	"time"

	"mdxbuild/internal/compile"
	"mdxbuild/internal/diag"
	"mdxbuild/internal/extname"
	"mdxbuild/internal/issue"
	"mdxbuild/pkg/contract"
)

// Loader: 产物的宿主加载器名称。
type Loader string

const (
	LoaderJS  Loader = "js"
	LoaderJSX Loader = "jsx"
)

// LoadRequest: 单次加载请求。Contents 非 nil 时为预先提供的内容，优先于文件读取。
type LoadRequest struct {
	Path     string
	Tag      contract.Tag
	Contents []byte
}

// LoadResult: 交还宿主的加载结果。编译失败时 Contents 为 nil，仅报告 Errors。
type LoadResult struct {
	Contents   []byte
	Loader     Loader
	ResolveDir string
	Errors     []contract.Issue
	Warnings   []contract.Issue
}

// Dispatcher 组合匹配器、获取器、读取器与编译适配器。
type Dispatcher struct {
	Matcher    *extname.Matcher
	Fetcher    contract.Fetcher
	Reader     contract.Reader
	Compiler   *compile.Adapter
	Logger     *diag.Logger
	PluginName string
	// ResolveDir 为产物内相对导入的解析目录（通常为工作目录）。
	ResolveDir string
	// DocumentLoader 为编译产物使用的加载器；空值为 js。
	DocumentLoader Loader
}

// Load 返回加载结果；第二个返回值为 false 表示交还宿主默认加载器。
func (d *Dispatcher) Load(ctx context.Context, req LoadRequest) (*LoadResult, bool) {
	if req.Tag.Remote() {
		return d.loadRemote(ctx, req.Path), true
	}
	if !d.Matcher.Match(req.Path) {
		return nil, false
	}
	body := req.Contents
	if body == nil {
		if d.Reader == nil {
			return d.failure(req.Path, "read", contract.ErrInvalidInput), true
		}
		b, err := d.Reader.ReadFile(ctx, req.Path)
		if err != nil {
			return d.failure(req.Path, "read", err), true
		}
		body = b
	}
	return d.compile(ctx, req.Path, body), true
}

func (d *Dispatcher) loadRemote(ctx context.Context, href string) *LoadResult {
	if d.Fetcher == nil {
		return d.failure(href, "fetch", contract.ErrInvalidInput)
	}
	d.Logger.DebugStart("load", "downloading", href, map[string]string{"namespace": "remote"})
	t0 := time.Now()
	body, err := d.Fetcher.Fetch(ctx, href)
	diag.ObserveDuration("load", "fetch", time.Since(t0).Milliseconds())
	if err != nil {
		return d.failure(href, "fetch", err)
	}
	diag.IncOp("load", "fetch", "success")
	if d.Matcher.Match(href) {
		// 以本地标记重新分派：去除 query/hash，携带已获取的内容
		res, _ := d.Load(ctx, LoadRequest{Path: contract.StripQueryFragment(href), Tag: contract.TagLocal, Contents: body})
		if res != nil {
			return res
		}
		return d.compile(ctx, contract.StripQueryFragment(href), body)
	}
	return &LoadResult{
		Contents:   body,
		Loader:     LoaderJS,
		ResolveDir: d.ResolveDir,
		Errors:     []contract.Issue{},
		Warnings:   []contract.Issue{},
	}
}

func (d *Dispatcher) compile(ctx context.Context, path string, body []byte) *LoadResult {
	tm := d.Logger.StartWith("load", "compile", path)
	doc := contract.Document{Path: path, Value: body, Format: d.Matcher.FormatOf(path)}
	res := d.Compiler.Check(ctx, d.PluginName, doc)
	tm.Finish("compiled", int64(len(res.Unit.Value)))
	if len(res.Errors) > 0 {
		diag.IncOp("load", "compile", "error")
		diag.IncError("load", string(diag.CodeCompile))
		d.Logger.ErrorWithKV("load", string(diag.CodeCompile), res.Errors[0].Text, nil, path,
			map[string]string{"errors": strconv.Itoa(len(res.Errors)), "warnings": strconv.Itoa(len(res.Warnings))})
	} else {
		diag.IncOp("load", "compile", "success")
		if len(res.Warnings) > 0 {
			d.Logger.WarnWith("load", "compiled with warnings", path, map[string]string{"warnings": strconv.Itoa(len(res.Warnings))})
		}
	}
	contents := res.Unit.Value
	if len(res.Errors) > 0 {
		// 编译失败只报告错误，不交出产物
		contents = nil
	}
	return &LoadResult{
		Contents:   contents,
		Loader:     d.documentLoader(),
		ResolveDir: d.ResolveDir,
		Errors:     res.Errors,
		Warnings:   res.Warnings,
	}
}

// failure 将获取/读取失败折叠为单条零位置的错误 Issue。
func (d *Dispatcher) failure(path, stage string, err error) *LoadResult {
	code := diag.Classify(err)
	diag.IncOp("load", stage, "error")
	diag.IncError("load", string(code))
	d.Logger.ErrorWith("load", string(code), err.Error(), nil, path)
	is := issue.Map(d.PluginName, path, contract.Message{Fatal: true, Reason: err.Error(), Source: stage}, nil)
	return &LoadResult{
		ResolveDir: d.ResolveDir,
		Errors:     []contract.Issue{is},
		Warnings:   []contract.Issue{},
	}
}

func (d *Dispatcher) documentLoader() Loader {
	if d.DocumentLoader == "" {
		return LoaderJS
	}
	return d.DocumentLoader
}
