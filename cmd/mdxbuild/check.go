package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	cfgpkg "mdxbuild/internal/config"
	"mdxbuild/internal/diag"
	"mdxbuild/internal/issue"
	"mdxbuild/internal/pipeline"
)

func newCheckCmd(g *globals) *cobra.Command {
	var allowRemote bool
	cmd := &cobra.Command{
		Use:   "check [roots...]",
		Short: "Compile documents and report diagnostics without writing output",
		Long: `check compiles every recognised document under the given roots (files,
directories, http(s) URLs with --allow-remote, or "-" for stdin) and prints
errors and warnings. It exits with status 1 when any error is reported.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			over := cfgpkg.Config{Inputs: args}
			if cmd.Flags().Changed("allow-remote") {
				over.AllowDangerousRemoteMdx = &allowRemote
			}
			return g.runPipeline(cmd.Context(), over, false)
		},
	}
	cmd.Flags().BoolVar(&allowRemote, "allow-remote", false, "allow http(s) documents as inputs")
	return cmd
}

func newCompileCmd(g *globals) *cobra.Command {
	var (
		outDir      string
		allowRemote bool
	)
	cmd := &cobra.Command{
		Use:   "compile [roots...]",
		Short: "Compile documents into JavaScript modules under an output directory",
		Long: `compile mirrors the source tree into the output directory, replacing each
document with its compiled module (".js" by default). Documents with errors are
reported and not written.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			over := cfgpkg.Config{Inputs: args, OutDir: outDir}
			if cmd.Flags().Changed("allow-remote") {
				over.AllowDangerousRemoteMdx = &allowRemote
			}
			return g.runPipeline(cmd.Context(), over, true)
		},
	}
	cmd.Flags().StringVarP(&outDir, "outdir", "o", "", "output directory, overrides options.writer.output_dir")
	cmd.Flags().BoolVar(&allowRemote, "allow-remote", false, "allow http(s) documents as inputs")
	return cmd
}

func (g *globals) runPipeline(ctx context.Context, over cfgpkg.Config, emit bool) error {
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

	if emit {
		if err := preflightCheckOutputDir(cfg); err != nil {
			logger.Error("pipeline", string(diag.Classify(err)), "first error", &start)
			return configErr("输出目录不可写或无法创建: %w", err)
		}
	}
	comp, set, err := cfgpkg.Assemble(cfg)
	if err != nil {
		logger.Error("pipeline", string(diag.Classify(err)), "first error", &start)
		return configErr("装配失败: %w", err)
	}
	if !emit {
		comp.Writer = nil
	} else if comp.Writer == nil {
		return configErr("compile 需要 --outdir 或 options.writer.output_dir")
	}

	logger.DebugStart("config", "effective", "", map[string]string{
		"inputs_count": strconv.Itoa(len(cfg.Inputs)),
		"concurrency":  strconv.Itoa(cfg.Concurrency),
		"compiler":     set.CompilerName,
		"remote":       strconv.FormatBool(set.AllowRemote),
		"emit":         strconv.FormatBool(emit),
	})

	// 终端信息提示（非日志）
	diag.SetTerminal(diag.NewTerminal(g.stderr, g.status))
	defer diag.SetTerminal(nil)

	rep, err := pipelineRun(ctx, comp, set, logger)
	if err != nil {
		code := diag.Classify(err)
		logger.Error("pipeline", string(code), "first error", &start)
		diag.IncOp("pipeline", "error", "error")
		if code != diag.CodeUnknown {
			diag.IncError("pipeline", string(code))
		}
		return &exitError{code: exitFailed, err: fmt.Errorf("运行失败: %w", err)}
	}
	if err := g.printReport(rep); err != nil {
		return &exitError{code: exitFailed, err: err}
	}
	if !rep.OK() {
		return &exitError{code: exitFailed}
	}
	return nil
}

// printReport 按输入顺序输出诊断：先错误，后警告。
func (g *globals) printReport(rep pipeline.Report) error {
	colored := g.colored()
	for _, f := range rep.Files {
		for _, is := range f.Errors {
			if err := issue.Render(g.stdout, issue.SevError, is, colored); err != nil {
				return err
			}
		}
		for _, is := range f.Warnings {
			if err := issue.Render(g.stdout, issue.SevWarning, is, colored); err != nil {
				return err
			}
		}
	}
	errs, warns := rep.Counts()
	if errs+warns > 0 {
		fprintf(g.stdout, "%d error(s), %d warning(s) in %d document(s)\n", errs, warns, len(rep.Files))
	}
	return nil
}

// preflightCheckOutputDir: 当 Writer 使用文件系统实现(fs)时，启动前检查输出目录可写性。
// 规则：
// - 若目录已存在：尝试创建并删除临时文件；失败则判为不可写。
// - 若目录不存在：逐级向上找到首个存在的祖先目录，检查其可写性。
// 仅针对 fs writer 生效；其他 writer 跳过。
func preflightCheckOutputDir(cfg cfgpkg.Config) error {
	writerName := cfg.Components.Writer
	if writerName == "" {
		writerName = cfgpkg.Defaults().Components.Writer
	}
	if writerName != "fs" {
		return nil
	}
	dir := cfg.OutDir
	if dir == "" {
		var wopts struct {
			OutputDir string `json:"output_dir"`
		}
		if len(cfg.Options.Writer) > 0 {
			_ = json.Unmarshal(cfg.Options.Writer, &wopts)
		}
		dir = wopts.OutputDir
	}
	if dir == "" {
		// 未指定时无法检查，交由装配阶段报错
		return nil
	}
	for {
		st, err := os.Stat(dir)
		if err == nil {
			if !st.IsDir() {
				return fmt.Errorf("路径存在但不是目录: %s", dir)
			}
			f, err := os.CreateTemp(dir, ".wcheck-*")
			if err != nil {
				return err
			}
			name := f.Name()
			_ = f.Close()
			return os.Remove(name)
		}
		if !os.IsNotExist(err) {
			return err
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return fmt.Errorf("无法确定父目录: %s", dir)
		}
		dir = parent
	}
}
