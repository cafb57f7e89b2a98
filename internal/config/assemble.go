package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"mdxbuild/internal/cache"
	"mdxbuild/internal/diag"
	"mdxbuild/internal/extname"
	"mdxbuild/internal/pipeline"
	"mdxbuild/pkg/esbuildmdx"
	"mdxbuild/pkg/registry"
	"mdxbuild/pkg/transform"
)

// Validate 对最小必要边界做静态校验。inputs 可为空（build 的入口由命令行给出）。
func Validate(cfg Config) error {
	// 输入路径不得为空字符串；"-" 不能与其他根混用
	dash := false
	for _, r := range cfg.Inputs {
		if strings.TrimSpace(r) == "" {
			return errors.New("config: input path cannot be empty")
		}
		if strings.TrimSpace(r) == "-" {
			dash = true
		}
		if isRemote(r) && !cfg.RemoteAllowed() {
			return fmt.Errorf("config: remote input %q requires allow_dangerous_remote_mdx", r)
		}
	}
	if dash && len(cfg.Inputs) > 1 {
		return errors.New("config: '-' cannot be mixed with other roots")
	}
	if cfg.Concurrency < 1 {
		return errors.New("config: concurrency must be >= 1")
	}
	for _, p := range append(append([]string(nil), cfg.Include...), cfg.Exclude...) {
		if !doublestar.ValidatePattern(p) {
			return fmt.Errorf("config: invalid pattern %q", p)
		}
	}
	d := Defaults()
	if name := effName(cfg.Components.Compiler, d.Components.Compiler); registry.Compiler[name] == nil {
		return fmt.Errorf("config: compiler %q not registered", name)
	}
	if name := effName(cfg.Components.Reader, d.Components.Reader); registry.Reader[name] == nil {
		return fmt.Errorf("config: reader %q not registered", name)
	}
	if name := effName(cfg.Components.Fetcher, d.Components.Fetcher); registry.Fetcher[name] == nil {
		return fmt.Errorf("config: fetcher %q not registered", name)
	}
	if name := effName(cfg.Components.Writer, d.Components.Writer); registry.Writer[name] == nil {
		return fmt.Errorf("config: writer %q not registered", name)
	}
	return nil
}

// Assemble 构造流水线 Components 与 Settings。
// 严格 Options 解析在 registry（工厂）层进行；此处只传 raw JSON。
// 未配置输出目录（outdir 或 options.writer.output_dir）时 Writer 为 nil，仅检查。
func Assemble(cfg Config) (pipeline.Components, pipeline.Settings, error) {
	if err := Validate(cfg); err != nil {
		return pipeline.Components{}, pipeline.Settings{}, err
	}
	if len(cfg.Inputs) == 0 {
		return pipeline.Components{}, pipeline.Settings{}, errors.New("config: inputs empty")
	}
	d := Defaults()
	m, err := Matcher(cfg)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, err
	}
	sel, err := transform.NewFilter("", cfg.Include, cfg.Exclude)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, err
	}

	r, err := registry.Reader[effName(cfg.Components.Reader, d.Components.Reader)](cfg.Options.Reader, m.Match)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, fmt.Errorf("reader: %w", err)
	}
	cn := effName(cfg.Components.Compiler, d.Components.Compiler)
	c, err := registry.Compiler[cn](cfg.Options.Compiler)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, fmt.Errorf("compiler: %w", err)
	}
	f, err := registry.Fetcher[effName(cfg.Components.Fetcher, d.Components.Fetcher)](cfg.Options.Fetcher, cache.New())
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, fmt.Errorf("fetcher: %w", err)
	}
	comp := pipeline.Components{Reader: r, Compiler: c, Fetcher: f}

	wraw, ok, err := writerOptions(cfg)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, err
	}
	if ok {
		w, err := registry.Writer[effName(cfg.Components.Writer, d.Components.Writer)](wraw)
		if err != nil {
			return pipeline.Components{}, pipeline.Settings{}, fmt.Errorf("writer: %w", err)
		}
		comp.Writer = w
	}

	wd, _ := os.Getwd()
	set := pipeline.Settings{
		Inputs:       cloneStrings(cfg.Inputs),
		Concurrency:  cfg.Concurrency,
		AllowRemote:  cfg.RemoteAllowed(),
		Matcher:      m,
		Select:       sel.Match,
		ResolveDir:   wd,
		CompilerName: cn,
	}
	return comp, set, nil
}

// PluginOptions 构造 esbuild 插件选项：编译器与获取器同样来自注册表。
func PluginOptions(cfg Config, logger *diag.Logger) (esbuildmdx.Options, error) {
	if err := Validate(cfg); err != nil {
		return esbuildmdx.Options{}, err
	}
	d := Defaults()
	c, err := registry.Compiler[effName(cfg.Components.Compiler, d.Components.Compiler)](cfg.Options.Compiler)
	if err != nil {
		return esbuildmdx.Options{}, fmt.Errorf("compiler: %w", err)
	}
	f, err := registry.Fetcher[effName(cfg.Components.Fetcher, d.Components.Fetcher)](cfg.Options.Fetcher, cache.New())
	if err != nil {
		return esbuildmdx.Options{}, fmt.Errorf("fetcher: %w", err)
	}
	mo, err := matcherOptions(cfg.Options.Compiler)
	if err != nil {
		return esbuildmdx.Options{}, err
	}
	opts := esbuildmdx.Options{
		AllowDangerousRemoteMdx: cfg.RemoteAllowed(),
		Compiler:                c,
		Fetcher:                 f,
		Logger:                  logger,
	}
	opts.Markdown.Format = mo.Format
	opts.Markdown.MDExtensions = mo.MDExtensions
	opts.Markdown.MDXExtensions = mo.MDXExtensions
	return opts, nil
}

// Matcher 按编译器选项中的 format/扩展名构造匹配器。
func Matcher(cfg Config) (*extname.Matcher, error) {
	mo, err := matcherOptions(cfg.Options.Compiler)
	if err != nil {
		return nil, err
	}
	return extname.New(mo)
}

// matcherOptions 宽松解码：其余编译器选项由工厂严格校验。
func matcherOptions(raw json.RawMessage) (extname.Options, error) {
	var mo extname.Options
	if len(raw) == 0 {
		return mo, nil
	}
	if err := json.Unmarshal(raw, &mo); err != nil {
		return mo, fmt.Errorf("config: options.compiler: %w", err)
	}
	return mo, nil
}

// writerOptions 合并 outdir 到 writer 选项；第二个返回值报告是否配置了输出目录。
func writerOptions(cfg Config) (json.RawMessage, bool, error) {
	tree := map[string]any{}
	if len(cfg.Options.Writer) > 0 {
		if err := json.Unmarshal(cfg.Options.Writer, &tree); err != nil {
			return nil, false, fmt.Errorf("config: options.writer: %w", err)
		}
	}
	if cfg.OutDir != "" {
		tree["output_dir"] = cfg.OutDir
	}
	dir, _ := tree["output_dir"].(string)
	if strings.TrimSpace(dir) == "" {
		return nil, false, nil
	}
	b, err := json.Marshal(tree)
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func isRemote(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func effName(got, def string) string {
	if got == "" {
		return def
	}
	return got
}
