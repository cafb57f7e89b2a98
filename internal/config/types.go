package config

import (
	"encoding/json"
)

// Config: 运行期只读配置（一次解析，运行期不变）。
// JSON/TOML 均使用 snake_case；未知字段在解析期失败。
type Config struct {
	Inputs      []string `json:"inputs"`
	Concurrency int      `json:"concurrency"`
	// AllowDangerousRemoteMdx: nil 表示未设置（Merge 据此区分“未覆盖”与显式 false）。
	AllowDangerousRemoteMdx *bool   `json:"allow_dangerous_remote_mdx,omitempty"`
	Logging                 Logging `json:"logging"`

	// 组件名选择（空则使用默认名）。
	Components Components `json:"components"`

	// 各组件 Options 子树，原样 JSON 传入工厂。
	Options Options `json:"options"`

	// Include/Exclude: doublestar 模式，相对模式以工作目录为根。
	Include []string `json:"include,omitempty"`
	Exclude []string `json:"exclude,omitempty"`
	// OutDir 覆盖 options.writer.output_dir。
	OutDir string `json:"outdir,omitempty"`
}

// Logging: 仅保留日志等级可配置；输出路径与轮转策略为固定默认。
type Logging struct {
	Level string `json:"level"`
}

// Components: 组件名选择（注册表中的实现名）。
type Components struct {
	Compiler string `json:"compiler"`
	Reader   string `json:"reader"`
	Fetcher  string `json:"fetcher"`
	Writer   string `json:"writer"`
}

// Options: 各组件的原样 JSON Options。
type Options struct {
	Compiler json.RawMessage `json:"compiler,omitempty"`
	Reader   json.RawMessage `json:"reader,omitempty"`
	Fetcher  json.RawMessage `json:"fetcher,omitempty"`
	Writer   json.RawMessage `json:"writer,omitempty"`
}

// RemoteAllowed 返回远程开关的有效值（未设置为 false）。
func (c Config) RemoteAllowed() bool {
	return c.AllowDangerousRemoteMdx != nil && *c.AllowDangerousRemoteMdx
}
