package config

import "encoding/json"

// DefaultTemplateConfig 返回一个“可运行”的默认配置模板：
// - 输入为 docs 目录，产物写到 ./out；
// - 远程文档默认关闭；
// - 选项给出全部键与安全中性默认值。
func DefaultTemplateConfig() Config {
	d := Defaults()
	off := false
	cfg := Config{
		Inputs:                  []string{"docs"},
		Concurrency:             4,
		AllowDangerousRemoteMdx: &off,
		Logging:                 Logging{Level: "info"},
		Components:              d.Components,
		Include:                 []string{"**/*"},
		Exclude:                 []string{"**/node_modules/**"},
	}
	// Options：包含所有键（值可为空/默认），确保键存在。
	cfg.Options.Compiler = json.RawMessage(`{
  "format": "detect",
  "md_extensions": [".md", ".markdown"],
  "mdx_extensions": [".mdx"],
  "gfm": true,
  "unsafe_html": true,
  "jsx_runtime_export": "MDXContent",
  "components": [],
  "development": false
}`)
	cfg.Options.Reader = json.RawMessage(`{
  "exclude_dir_names": [".git", "node_modules", "vendor"]
}`)
	cfg.Options.Fetcher = json.RawMessage(`{
  "timeout_seconds": 60,
  "user_agent": "mdxbuild",
  "extra_headers": {},
  "max_body_bytes": 33554432,
  "requests_per_minute": 0,
  "burst": 0,
  "host_requests_per_minute": {}
}`)
	cfg.Options.Writer = json.RawMessage(`{
  "output_dir": "out",
  "atomic": true,
  "flat": false,
  "ext": ".js",
  "perm_file": 0,
  "perm_dir": 0,
  "buf_size": 65536
}`)
	return cfg
}
