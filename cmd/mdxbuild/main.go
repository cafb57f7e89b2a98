package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	cfgpkg "mdxbuild/internal/config"
	"mdxbuild/internal/diag"
	"mdxbuild/internal/pipeline"
)

// 测试替换点
var pipelineRun = pipeline.Run

// 退出码：0 成功；1 诊断含错误或运行失败；3 配置/装配失败。
const (
	exitOK      = 0
	exitFailed  = 1
	exitConfig  = 3
	envCfgFile  = cfgpkg.EnvPrefix + "CONFIG_FILE"
	envCfgJSON  = cfgpkg.EnvPrefix + "CONFIG_JSON"
	defaultJSON = "mdxbuild.json"
	defaultTOML = "mdxbuild.toml"
)

// exitError 携带退出码；Err 为 nil 时不再打印（诊断已输出）。
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func configErr(format string, a ...any) error {
	return &exitError{code: exitConfig, err: fmt.Errorf(format, a...)}
}

// globals: 全局旗标与进程级状态。
type globals struct {
	configPath  string
	logLevel    string
	concurrency int
	color       string
	status      bool

	stdout io.Writer
	stderr io.Writer
	corrID string
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	// 在任何 ENV 读取前，尝试加载工作目录下的 .env（不覆盖已有 ENV）。
	if err := loadDotEnv(".env"); err != nil {
		fprintf(stderr, "提示：.env 读取失败（已跳过）：%v\n", err)
	}
	g := &globals{stdout: stdout, stderr: stderr, corrID: genCorrID()}
	root := newRootCmd(g)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	err := root.Execute()
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil && !errors.Is(ee.err, context.Canceled) {
			fprintf(stderr, "mdxbuild: %v\n", ee.err)
		}
		return ee.code
	}
	// cobra 自身的参数/旗标错误
	fprintf(stderr, "mdxbuild: %v\n", err)
	return exitConfig
}

func newRootCmd(g *globals) *cobra.Command {
	root := &cobra.Command{
		Use:   "mdxbuild",
		Short: "Compile markdown and MDX documents into ES modules",
		Long: `mdxbuild compiles markdown and MDX documents into JavaScript modules.
It can bundle them with esbuild, check them for diagnostics, or write the
compiled modules next to a mirrored source tree.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&g.configPath, "config", "", "config file (JSON or TOML); defaults to ./mdxbuild.json or ./mdxbuild.toml when present")
	pf.StringVar(&g.logLevel, "log-level", "", "log level (debug|info|warn|error), overrides config")
	pf.IntVar(&g.concurrency, "concurrency", 0, "number of documents compiled in parallel, overrides config")
	pf.StringVar(&g.color, "color", "auto", "colorize diagnostics (auto|on|off)")
	pf.BoolVar(&g.status, "status", true, "print progress to stderr")

	root.AddCommand(newBuildCmd(g))
	root.AddCommand(newCheckCmd(g))
	root.AddCommand(newCompileCmd(g))
	root.AddCommand(newInitConfigCmd(g))
	return root
}

// loadConfig 合并：默认值 < 配置文件/CONFIG_JSON < ENV < CLI。
func (g *globals) loadConfig(over cfgpkg.Config) (cfgpkg.Config, error) {
	cfg := cfgpkg.Defaults()
	path := g.configPath
	if path == "" {
		path = os.Getenv(envCfgFile)
	}
	if path == "" {
		for _, p := range []string{defaultJSON, defaultTOML} {
			if _, err := os.Stat(p); err == nil {
				path = p
				break
			}
		}
	}
	switch {
	case os.Getenv(envCfgJSON) != "":
		base, err := cfgpkg.LoadJSON("", []byte(os.Getenv(envCfgJSON)))
		if err != nil {
			return cfg, configErr("配置解析失败: %w", err)
		}
		cfg = cfgpkg.Merge(cfg, base)
	case path != "":
		base, err := cfgpkg.LoadFile(path)
		if err != nil {
			return cfg, configErr("配置解析失败: %w", err)
		}
		cfg = cfgpkg.Merge(cfg, base)
	}

	env, err := cfgpkg.EnvOverlay(os.Environ())
	if err != nil {
		return cfg, configErr("环境变量解析失败: %w", err)
	}
	cfg = cfgpkg.Merge(cfg, env)

	if g.concurrency > 0 {
		over.Concurrency = g.concurrency
	}
	if strings.TrimSpace(g.logLevel) != "" {
		over.Logging.Level = g.logLevel
	}
	cfg = cfgpkg.Merge(cfg, over)

	if err := cfgpkg.Validate(cfg); err != nil {
		_ = dumpConfig(g.stderr, cfg)
		return cfg, configErr("配置校验失败: %w", err)
	}
	return cfg, nil
}

// logger 使用最终配置中的日志级别。
func (g *globals) logger(cfg cfgpkg.Config) *diag.Logger {
	return diag.NewLogger(g.corrID, cfg.Logging.Level)
}

// colored: auto 时仅在 stdout 为终端且未设置 NO_COLOR 时着色。
func (g *globals) colored() bool {
	switch strings.ToLower(g.color) {
	case "on", "always", "true":
		return true
	case "off", "never", "false":
		return false
	}
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := g.stdout.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func fprintf(w io.Writer, format string, a ...any) { _, _ = fmt.Fprintf(w, format, a...) }

func dumpConfig(w io.Writer, c cfgpkg.Config) error {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "有效配置:\n%s\n", b)
	return err
}

func genCorrID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return ""
	}
	return hex.EncodeToString(b[:])
}

// loadDotEnv 读取简单的 .env 文件格式并注入进程环境。
// 规则：
// - 忽略不存在的文件；无法读取时返回错误，调用处仅告警。
// - 跳过空行与以 # 开头的行；支持可选的前缀 "export ".
// - 仅按首个 '=' 分割；key 为左侧去空白；value 去首尾空白；
// - 若 value 被成对的单/双引号包裹，则去除外层引号；双引号内常见转义 \n/\t/\\/\" 作最小处理。
// - 不覆盖已存在的环境变量（保持系统/调用者优先）。
func loadDotEnv(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()
	s := bufio.NewScanner(f)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "export ") {
			line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		}
		eq := strings.IndexByte(line, '=')
		if eq <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:eq])
		val := strings.TrimSpace(line[eq+1:])
		if key == "" {
			continue
		}
		// 去除成对引号
		if len(val) >= 2 {
			if (val[0] == '\'' && val[len(val)-1] == '\'') || (val[0] == '"' && val[len(val)-1] == '"') {
				quoted := val[0]
				val = val[1 : len(val)-1]
				if quoted == '"' {
					val = strings.ReplaceAll(val, "\\n", "\n")
					val = strings.ReplaceAll(val, "\\t", "\t")
					val = strings.ReplaceAll(val, "\\r", "\r")
					val = strings.ReplaceAll(val, "\\\"", "\"")
					val = strings.ReplaceAll(val, "\\\\", "\\")
				}
			}
		}
		if _, exists := os.LookupEnv(key); exists {
			continue
		}
		_ = os.Setenv(key, val)
	}
	return s.Err()
}
