package main

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	cfgpkg "mdxbuild/internal/config"
)

func newInitConfigCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "init-config [dir]",
		Short: "Write a default mdxbuild.json and .env template",
		Long: `init-config writes mdxbuild.json and a .env template into dir (default ".").
Existing files are never overwritten. Use "-" to print the config to stdout.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 && strings.TrimSpace(args[0]) != "" {
				dir = strings.TrimSpace(args[0])
			}
			cfg := cfgpkg.DefaultTemplateConfig()
			if dir == "-" {
				if err := writeConfig(g.stdout, "-", cfg); err != nil {
					return configErr("生成默认配置失败: %w", err)
				}
				return nil
			}
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return configErr("生成默认配置失败: %w", err)
			}
			cfgPath := filepath.Join(dir, defaultJSON)
			if err := writeConfig(g.stdout, cfgPath, cfg); err != nil {
				return configErr("生成默认配置失败: %w", err)
			}
			if err := writeDotEnv(filepath.Join(dir, ".env")); err != nil {
				fprintf(g.stderr, "提示：.env 生成失败（已跳过）：%v\n", err)
			}
			fprintf(g.stdout, "wrote %s\n", cfgPath)
			return nil
		},
	}
}

// writeConfig 写出配置；path 为 "-" 时写到 stdout。已存在的文件不覆盖。
func writeConfig(stdout io.Writer, path string, c cfgpkg.Config) error {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	if path == "-" {
		_, err = stdout.Write(append(b, '\n'))
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Write(b); err != nil {
		return err
	}
	_, _ = f.Write([]byte("\n"))
	return nil
}

// writeDotEnv 生成 .env 模板（若文件已存在则跳过）。
func writeDotEnv(path string) error {
	if st, err := os.Stat(path); err == nil && !st.IsDir() {
		return nil
	} else if err != nil && !os.IsNotExist(err) {
		return err
	}
	var b strings.Builder
	b.WriteString("# mdxbuild .env 模板（由 init-config 生成）\n")
	b.WriteString("# 优先级：CLI > ENV(.env) > 配置文件\n")
	b.WriteString("# 空值表示未设置。\n\n")

	b.WriteString("# 配置来源（可二选一）\n")
	b.WriteString(envCfgFile + "=\n")
	b.WriteString(envCfgJSON + "=\n\n")

	b.WriteString("# 运行参数覆盖\n")
	for _, k := range []string{"INPUTS", "CONCURRENCY", "ALLOW_DANGEROUS_REMOTE_MDX", "LOG_LEVEL", "INCLUDE", "EXCLUDE", "OUTDIR"} {
		b.WriteString(cfgpkg.EnvPrefix + k + "=\n")
	}
	b.WriteString("\n# 组件选择\n")
	for _, k := range []string{"COMPILER", "READER", "FETCHER", "WRITER"} {
		b.WriteString(cfgpkg.EnvPrefix + "COMPONENTS_" + k + "=\n")
	}
	b.WriteString("\n# 组件选项（JSON）\n")
	for _, k := range []string{"COMPILER", "READER", "FETCHER", "WRITER"} {
		b.WriteString(cfgpkg.EnvPrefix + "OPTIONS_" + k + "_JSON=\n")
	}
	b.WriteString("\n")

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()
	_, err = f.WriteString(b.String())
	return err
}
