package registry

import (
	"bytes"
	"encoding/json"

	"mdxbuild/internal/cache"
	"mdxbuild/pkg/contract"
	cmd "mdxbuild/plugins/compiler/markdown"
	cmock "mdxbuild/plugins/compiler/mock"
	fremote "mdxbuild/plugins/fetcher/remote"
	rfs "mdxbuild/plugins/reader/filesystem"
	wfs "mdxbuild/plugins/writer/filesystem"
)

// strictUnmarshal: 使用 DisallowUnknownFields 严格解码，拒绝未知字段。
func strictUnmarshal(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		// 保持零值（默认选项）
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// NewReader 工厂签名：接收原样 JSON Options；accept 为目录遍历时的文件过滤（可为 nil）。
type NewReader func(raw json.RawMessage, accept func(path string) bool) (contract.Reader, error)

// NewCompiler 工厂签名：接收原样 JSON Options。
type NewCompiler func(raw json.RawMessage) (contract.Compiler, error)

// NewFetcher 工厂签名：缓存由调用方注入（每个插件实例一份）。
type NewFetcher func(raw json.RawMessage, c *cache.Cache) (contract.Fetcher, error)

// NewWriter 工厂签名：接收原样 JSON Options。
type NewWriter func(raw json.RawMessage) (contract.Writer, error)

// Reader 工厂注册表（显式、零反射）。
var Reader = map[string]NewReader{
	// fs: 文件系统/STDIN Reader
	"fs": func(raw json.RawMessage, accept func(string) bool) (contract.Reader, error) {
		var opts rfs.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		opts.Accept = accept
		return rfs.New(&opts), nil
	},
}

// Compiler 工厂注册表。
var Compiler = map[string]NewCompiler{
	// markdown: goldmark 渲染 + 元数据块 + MDX 组件检查（默认）
	"markdown": func(raw json.RawMessage) (contract.Compiler, error) {
		var opts cmd.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return cmd.New(opts)
	},
	// mock: 固定产物/消息，用于测试与联调
	"mock": func(raw json.RawMessage) (contract.Compiler, error) {
		var opts cmock.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return cmock.New(raw)
	},
}

// Fetcher 工厂注册表。
var Fetcher = map[string]NewFetcher{
	// http: HTTP(S) GET，按原始标识缓存
	"http": func(raw json.RawMessage, c *cache.Cache) (contract.Fetcher, error) {
		var opts fremote.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return fremote.New(raw, c)
	},
}

// Writer 工厂注册表。
var Writer = map[string]NewWriter{
	// fs: 文件系统 Writer（保留目录层级，扩展名替换为 .js）
	"fs": func(raw json.RawMessage) (contract.Writer, error) {
		var opts wfs.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return wfs.New(&opts)
	},
}
