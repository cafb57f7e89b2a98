package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// EnvPrefix 为环境变量覆盖的前缀。
const EnvPrefix = "MDXBUILD_"

// Defaults 返回带有安全默认值的 Config 雏形。
func Defaults() Config {
	return Config{
		Concurrency: 1,
		Logging:     Logging{Level: "info"},
		Components: Components{
			Compiler: "markdown",
			Reader:   "fs",
			Fetcher:  "http",
			Writer:   "fs",
		},
	}
}

// LoadFile 按扩展名解析配置文件：.toml 使用 TOML，其余按 JSON。
func LoadFile(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return LoadTOML(raw)
	}
	return LoadJSON("", raw)
}

// LoadJSON 从文件路径或原始 JSON 解析 Config（严格拒绝未知字段）。
func LoadJSON(path string, raw []byte) (Config, error) {
	var cfg Config
	switch {
	case len(raw) > 0:
	case path != "":
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		raw = b
	default:
		return cfg, errors.New("no config source provided")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// LoadTOML 解析 TOML 配置：先解为通用表，再按 JSON 严格解码，
// 使两种格式共享同一套键名与未知字段校验（options 子树原样传给工厂）。
func LoadTOML(raw []byte) (Config, error) {
	var tree map[string]any
	if err := toml.Unmarshal(raw, &tree); err != nil {
		var pe toml.ParseError
		if errors.As(err, &pe) {
			return Config{}, fmt.Errorf("config: toml line %d: %s", pe.Position.Line, pe.Message)
		}
		return Config{}, fmt.Errorf("config: %w", err)
	}
	b, err := json.Marshal(tree)
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return LoadJSON("", b)
}

// Merge 按优先级合并（后者覆盖前者）。
// 仅标量/字符串/原样 JSON 为“替换”；不做深度合并。
func Merge(base, over Config) Config {
	out := base
	if len(over.Inputs) > 0 {
		out.Inputs = cloneStrings(over.Inputs)
	}
	if over.Concurrency != 0 {
		out.Concurrency = over.Concurrency
	}
	if over.AllowDangerousRemoteMdx != nil {
		v := *over.AllowDangerousRemoteMdx
		out.AllowDangerousRemoteMdx = &v
	}
	if strings.TrimSpace(over.Logging.Level) != "" {
		out.Logging.Level = strings.TrimSpace(over.Logging.Level)
	}

	// 组件名（空不覆盖）
	if over.Components.Compiler != "" {
		out.Components.Compiler = over.Components.Compiler
	}
	if over.Components.Reader != "" {
		out.Components.Reader = over.Components.Reader
	}
	if over.Components.Fetcher != "" {
		out.Components.Fetcher = over.Components.Fetcher
	}
	if over.Components.Writer != "" {
		out.Components.Writer = over.Components.Writer
	}

	// Options（完整替换对应键）
	if len(over.Options.Compiler) > 0 {
		out.Options.Compiler = cloneRaw(over.Options.Compiler)
	}
	if len(over.Options.Reader) > 0 {
		out.Options.Reader = cloneRaw(over.Options.Reader)
	}
	if len(over.Options.Fetcher) > 0 {
		out.Options.Fetcher = cloneRaw(over.Options.Fetcher)
	}
	if len(over.Options.Writer) > 0 {
		out.Options.Writer = cloneRaw(over.Options.Writer)
	}

	if len(over.Include) > 0 {
		out.Include = cloneStrings(over.Include)
	}
	if len(over.Exclude) > 0 {
		out.Exclude = cloneStrings(over.Exclude)
	}
	if strings.TrimSpace(over.OutDir) != "" {
		out.OutDir = strings.TrimSpace(over.OutDir)
	}
	return out
}

// EnvOverlay 从环境变量构建一个 Config 覆盖（仅解析有限键集合，其余忽略）。
// 支持：INPUTS, CONCURRENCY, ALLOW_DANGEROUS_REMOTE_MDX, LOG_LEVEL, INCLUDE, EXCLUDE, OUTDIR,
// COMPONENTS_{COMPILER,READER,FETCHER,WRITER} 以及 OPTIONS_{COMPILER,READER,FETCHER,WRITER}_JSON。
func EnvOverlay(environ []string) (Config, error) {
	var over Config
	for _, kv := range environ {
		if !strings.HasPrefix(kv, EnvPrefix) {
			continue
		}
		eq := strings.IndexByte(kv, '=')
		if eq <= len(EnvPrefix) {
			continue
		}
		key := strings.TrimPrefix(kv[:eq], EnvPrefix)
		val := kv[eq+1:]
		switch key {
		case "INPUTS":
			over.Inputs = splitComma(val)
		case "CONCURRENCY":
			v, err := atoi(val)
			if err != nil {
				return Config{}, fmt.Errorf("config: %sCONCURRENCY: %w", EnvPrefix, err)
			}
			over.Concurrency = v
		case "ALLOW_DANGEROUS_REMOTE_MDX":
			if strings.TrimSpace(val) == "" {
				continue
			}
			b, err := strconv.ParseBool(strings.TrimSpace(val))
			if err != nil {
				return Config{}, fmt.Errorf("config: %sALLOW_DANGEROUS_REMOTE_MDX: %w", EnvPrefix, err)
			}
			over.AllowDangerousRemoteMdx = &b
		case "LOG_LEVEL":
			over.Logging.Level = strings.TrimSpace(val)
		case "INCLUDE":
			over.Include = splitComma(val)
		case "EXCLUDE":
			over.Exclude = splitComma(val)
		case "OUTDIR":
			over.OutDir = strings.TrimSpace(val)
		case "COMPONENTS_COMPILER":
			over.Components.Compiler = strings.TrimSpace(val)
		case "COMPONENTS_READER":
			over.Components.Reader = strings.TrimSpace(val)
		case "COMPONENTS_FETCHER":
			over.Components.Fetcher = strings.TrimSpace(val)
		case "COMPONENTS_WRITER":
			over.Components.Writer = strings.TrimSpace(val)
		case "OPTIONS_COMPILER_JSON", "OPTIONS_READER_JSON", "OPTIONS_FETCHER_JSON", "OPTIONS_WRITER_JSON":
			// 空值视为未设置，避免清空文件配置
			if strings.TrimSpace(val) == "" {
				continue
			}
			if !json.Valid([]byte(val)) {
				return Config{}, fmt.Errorf("config: %s%s: invalid JSON", EnvPrefix, key)
			}
			raw := json.RawMessage(val)
			switch key {
			case "OPTIONS_COMPILER_JSON":
				over.Options.Compiler = raw
			case "OPTIONS_READER_JSON":
				over.Options.Reader = raw
			case "OPTIONS_FETCHER_JSON":
				over.Options.Fetcher = raw
			default:
				over.Options.Writer = raw
			}
		}
	}
	return over, nil
}

func cloneStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func cloneRaw(in json.RawMessage) json.RawMessage {
	if len(in) == 0 {
		return nil
	}
	out := make([]byte, len(in))
	copy(out, in)
	return out
}

func splitComma(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func atoi(s string) (int, error) {
	return strconv.Atoi(strings.TrimSpace(s))
}
