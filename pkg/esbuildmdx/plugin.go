// Package esbuildmdx 把文档编译接入 esbuild：
// 注册解析与加载回调，可选地从远程源解析文档及其传递依赖。
package esbuildmdx

import (
	"context"
	"os"

	"github.com/evanw/esbuild/pkg/api"

	"mdxbuild/internal/cache"
	"mdxbuild/internal/compile"
	"mdxbuild/internal/diag"
	"mdxbuild/internal/extname"
	"mdxbuild/internal/load"
	"mdxbuild/internal/resolve"
	"mdxbuild/pkg/contract"
	"mdxbuild/plugins/compiler/markdown"
	"mdxbuild/plugins/fetcher/remote"
	"mdxbuild/plugins/reader/filesystem"
)

const (
	// Name 为插件名，写入每条诊断。
	Name = "mdxbuild"
	// RemoteNamespace 为远程模块所在的命名空间。
	RemoteNamespace = Name + "-remote"
)

// Options: 插件配置。Markdown 原样转交默认编译器，其中的格式与扩展名同时决定过滤器。
type Options struct {
	// AllowDangerousRemoteMdx 开启远程解析：导入 http(s) 文档并递归解析其依赖。
	AllowDangerousRemoteMdx bool
	Markdown                markdown.Options
	// JSX 为 true 时编译产物以 jsx 加载器交给宿主。
	JSX bool
	// 以下均可为 nil，使用默认实现。
	Compiler contract.Compiler
	Fetcher  contract.Fetcher
	Reader   contract.Reader
	Logger   *diag.Logger
	// ResolveDir 为产物内相对导入的解析目录，默认当前工作目录。
	ResolveDir string
	// Context 用于回调内的获取与编译，默认 context.Background()。
	Context context.Context
}

// pluginData 随解析/加载结果在回调之间传递标记与预先提供的内容。
type pluginData struct {
	tag      contract.Tag
	contents []byte
}

// Instance 持有一个插件实例的全部状态；远程缓存随实例存活。
type Instance struct {
	router     *resolve.Router
	dispatcher *load.Dispatcher
	matcher    *extname.Matcher
	ctx        context.Context
}

// New 构造插件。
func New(opts Options) (api.Plugin, error) {
	in, err := NewInstance(opts)
	if err != nil {
		return api.Plugin{}, err
	}
	return in.Plugin(), nil
}

// NewInstance 构造插件实例。
func NewInstance(opts Options) (*Instance, error) {
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
	ch := cache.New()
	fetcher := opts.Fetcher
	if fetcher == nil {
		f, err := remote.New(nil, ch)
		if err != nil {
			return nil, err
		}
		fetcher = f
	}
	reader := opts.Reader
	if reader == nil {
		reader = filesystem.New(nil)
	}
	dir := opts.ResolveDir
	if dir == "" {
		if wd, err := os.Getwd(); err == nil {
			dir = wd
		}
	}
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}
	docLoader := load.LoaderJS
	if opts.JSX {
		docLoader = load.LoaderJSX
	}
	return &Instance{
		router:  resolve.New(m, opts.AllowDangerousRemoteMdx),
		matcher: m,
		ctx:     ctx,
		dispatcher: &load.Dispatcher{
			Matcher:        m,
			Fetcher:        fetcher,
			Reader:         reader,
			Compiler:       compile.New(comp),
			Logger:         opts.Logger,
			PluginName:     Name,
			ResolveDir:     dir,
			DocumentLoader: docLoader,
		},
	}, nil
}

// Plugin 返回 esbuild 插件。
func (in *Instance) Plugin() api.Plugin {
	return api.Plugin{Name: Name, Setup: in.setup}
}

func (in *Instance) setup(build api.PluginBuild) {
	if in.router.Enabled() {
		// 拦截 http(s) 文档导入，避免 esbuild 将其映射为本地路径
		build.OnResolve(api.OnResolveOptions{Filter: in.matcher.RemoteFilter(), Namespace: "file"}, in.onResolve)
		// 远程模块内的导入相对其 URL 解析，并保持在远程命名空间
		build.OnResolve(api.OnResolveOptions{Filter: in.matcher.RemoteOrRelativeFilter(), Namespace: RemoteNamespace}, in.onResolve)
	}
	build.OnLoad(api.OnLoadOptions{Filter: ".*", Namespace: RemoteNamespace}, in.onLoad)
	build.OnLoad(api.OnLoadOptions{Filter: in.matcher.Filter()}, in.onLoad)
}

func (in *Instance) onResolve(args api.OnResolveArgs) (api.OnResolveResult, error) {
	res, ok := in.router.Resolve(contract.ResolveRequest{
		ImportPath:  args.Path,
		Importer:    args.Importer,
		ImporterTag: tagOf(args.Namespace, args.PluginData),
	})
	if !ok {
		return api.OnResolveResult{}, nil
	}
	return api.OnResolveResult{
		Path:       res.Path,
		Namespace:  RemoteNamespace,
		PluginData: pluginData{tag: res.Tag},
	}, nil
}

func (in *Instance) onLoad(args api.OnLoadArgs) (api.OnLoadResult, error) {
	req := load.LoadRequest{Path: args.Path, Tag: tagOf(args.Namespace, args.PluginData)}
	if pd, ok := args.PluginData.(pluginData); ok {
		req.Contents = pd.contents
	}
	res, ok := in.dispatcher.Load(in.ctx, req)
	if !ok {
		return api.OnLoadResult{}, nil
	}
	out := api.OnLoadResult{
		PluginName: Name,
		Errors:     Messages(res.Errors),
		Warnings:   Messages(res.Warnings),
		Loader:     loaderOf(res.Loader),
		ResolveDir: res.ResolveDir,
	}
	if res.Contents != nil {
		s := string(res.Contents)
		out.Contents = &s
	}
	if req.Tag.Remote() {
		// 远程模块内的导入继续携带远程标记
		out.PluginData = pluginData{tag: contract.TagRemoteTransitive}
	}
	return out, nil
}

// tagOf 优先取回调间传递的标记；远程命名空间内缺省视为远程传递。
func tagOf(namespace string, data any) contract.Tag {
	if pd, ok := data.(pluginData); ok {
		return pd.tag
	}
	if namespace == RemoteNamespace {
		return contract.TagRemoteTransitive
	}
	return contract.TagLocal
}

func loaderOf(l load.Loader) api.Loader {
	if l == load.LoaderJSX {
		return api.LoaderJSX
	}
	return api.LoaderJS
}

// Messages 将 Issue 转为 esbuild 消息。
func Messages(issues []contract.Issue) []api.Message {
	out := make([]api.Message, 0, len(issues))
	for _, is := range issues {
		m := api.Message{PluginName: is.PluginName, Text: is.Text}
		if is.Location != nil {
			m.Location = &api.Location{
				File:      is.Location.File,
				Namespace: is.Location.Namespace,
				Line:      is.Location.Line,
				Column:    is.Location.Column,
				Length:    is.Location.Length,
				LineText:  is.Location.LineText,
			}
		}
		if is.Detail != nil {
			m.Detail = is.Detail
		}
		out = append(out, m)
	}
	return out
}
