package main

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/spf13/cobra"

	cfgpkg "mdxbuild/internal/config"
	"mdxbuild/internal/diag"
	"mdxbuild/pkg/esbuildmdx"
)

// 测试替换点
var esbuildBuild = api.Build

func newBuildCmd(g *globals) *cobra.Command {
	var (
		outDir      string
		format      string
		allowRemote bool
		jsx         bool
		minify      bool
	)
	cmd := &cobra.Command{
		Use:   "build <entry...>",
		Short: "Bundle entry points with esbuild, compiling imported documents",
		Long: `build bundles the given entry points with esbuild. Imported markdown and MDX
documents are compiled on load; with --allow-remote, http(s) documents and
their relative imports are fetched and compiled as well.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var over cfgpkg.Config
			if cmd.Flags().Changed("allow-remote") {
				over.AllowDangerousRemoteMdx = &allowRemote
			}
			f, ok := formats[strings.ToLower(format)]
			if !ok {
				return configErr("未知输出格式 %q（esm|cjs|iife）", format)
			}
			return g.runBuild(cmd.Context(), over, args, buildFlags{outDir: outDir, format: f, jsx: jsx, minify: minify})
		},
	}
	fl := cmd.Flags()
	fl.StringVarP(&outDir, "outdir", "o", "dist", "output directory for bundles")
	fl.StringVar(&format, "format", "esm", "output format (esm|cjs|iife)")
	fl.BoolVar(&allowRemote, "allow-remote", false, "resolve http(s) document imports and their relative imports")
	fl.BoolVar(&jsx, "jsx", false, "hand compiled documents to esbuild with the jsx loader")
	fl.BoolVar(&minify, "minify", false, "minify bundles")
	return cmd
}

var formats = map[string]api.Format{
	"esm":  api.FormatESModule,
	"cjs":  api.FormatCommonJS,
	"iife": api.FormatIIFE,
}

type buildFlags struct {
	outDir string
	format api.Format
	jsx    bool
	minify bool
}

func (g *globals) runBuild(ctx context.Context, over cfgpkg.Config, entries []string, bf buildFlags) error {
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()
	cfg, err := g.loadConfig(over)
	if err != nil {
		return err
	}
	logger := g.logger(cfg)
	defer logger.Close()

	opts, err := cfgpkg.PluginOptions(cfg, logger)
	if err != nil {
		logger.Error("build", string(diag.Classify(err)), "first error", &start)
		return configErr("装配失败: %w", err)
	}
	opts.JSX = bf.jsx
	opts.Context = ctx
	wd, err := os.Getwd()
	if err != nil {
		return configErr("无法获取工作目录: %w", err)
	}
	opts.ResolveDir = wd
	plugin, err := esbuildmdx.New(opts)
	if err != nil {
		return configErr("插件构造失败: %w", err)
	}
	outDir := bf.outDir
	if !filepath.IsAbs(outDir) {
		outDir = filepath.Join(wd, outDir)
	}

	t := logger.Start("build", "bundle")
	res := esbuildBuild(api.BuildOptions{
		EntryPoints:       entries,
		Bundle:            true,
		Write:             true,
		Outdir:            outDir,
		Format:            bf.format,
		MinifySyntax:      bf.minify,
		MinifyWhitespace:  bf.minify,
		MinifyIdentifiers: bf.minify,
		LogLevel:          api.LogLevelSilent,
		AbsWorkingDir:     wd,
		Plugins:           []api.Plugin{plugin},
	})
	g.printMessages(api.WarningMessage, res.Warnings)
	g.printMessages(api.ErrorMessage, res.Errors)
	if len(res.Errors) > 0 {
		logger.ErrorWithKV("build", string(diag.CodeCompile), "bundle failed", &start, "", map[string]string{
			"errors": strconv.Itoa(len(res.Errors)),
		})
		diag.IncOp("build", "finish", "error")
		return &exitError{code: exitFailed}
	}
	t.Finish("bundle", int64(len(res.OutputFiles)))
	diag.IncOp("build", "finish", "success")
	diag.ObserveDuration("build", "finish", time.Since(start).Milliseconds())
	if g.status {
		fprintf(g.stderr, "built %d file(s) into %s in %s\n", len(res.OutputFiles), bf.outDir, time.Since(start).Round(time.Millisecond))
	}
	return nil
}

func (g *globals) printMessages(kind api.MessageKind, msgs []api.Message) {
	if len(msgs) == 0 {
		return
	}
	for _, s := range api.FormatMessages(msgs, api.FormatMessagesOptions{Kind: kind, Color: g.colored()}) {
		fprintf(g.stderr, "%s", s)
	}
}
