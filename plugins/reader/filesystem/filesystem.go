package filesystem

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"mdxbuild/pkg/contract"
)

// Options 为 FileSystem Reader 的可选配置。
type Options struct {
	// ExcludeDirNames: 目录遍历时跳过的目录基名（不区分大小写）。
	// nil 时默认跳过 .git 与 node_modules；显式空切片表示不跳过。
	// 作为 root 显式给出的目录不受影响。
	ExcludeDirNames []string `json:"exclude_dir_names"`
	// Accept: 文档选择（通常为扩展名匹配器）；nil 接受全部。
	// 目录下的文件与单文件 root 一并过滤，STDIN 除外。
	Accept func(path string) bool `json:"-"`
}

var defaultExcludeDirs = []string{".git", "node_modules"}

// FileSystem 基于文件系统与 STDIN 的文档 Reader。
// 本地文档加载（ReadFile）与 check/compile 的批量选择（Iterate）共用。
type FileSystem struct {
	excludeDir map[string]struct{}
	accept     func(string) bool
}

var _ contract.Reader = (*FileSystem)(nil)

// New 创建 FileSystem Reader。
func New(opts *Options) *FileSystem {
	names := defaultExcludeDirs
	var accept func(string) bool
	if opts != nil {
		if opts.ExcludeDirNames != nil {
			names = opts.ExcludeDirNames
		}
		accept = opts.Accept
	}
	ex := make(map[string]struct{}, len(names))
	for _, name := range names {
		if name = strings.Trim(name, `/\`); name != "" {
			ex[strings.ToLower(name)] = struct{}{}
		}
	}
	return &FileSystem{excludeDir: ex, accept: accept}
}

// ReadFile 读取单个本地文档的全部字节。
func (r *FileSystem) ReadFile(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if path == "" {
		return nil, fmt.Errorf("read: empty path: %w", contract.ErrInvalidInput)
	}
	return os.ReadFile(path)
}

// Iterate 依次选出每个 root 下的文档，读入后交给 yield。
// roots 为空或仅为 "-" 时读取 STDIN，FileID 固定为 "stdin"。
func (r *FileSystem) Iterate(ctx context.Context, roots []string, yield func(contract.FileID, []byte) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(roots) == 0 || (len(roots) == 1 && roots[0] == "-") {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		return yield(contract.FileID("stdin"), b)
	}
	if slices.Contains(roots, "-") {
		return fmt.Errorf("stdin '-' cannot be mixed with other roots: %w", contract.ErrInvalidInput)
	}

	for _, root := range roots {
		docs, err := r.Select(ctx, root)
		if err != nil {
			return err
		}
		for _, p := range docs {
			b, err := r.ReadFile(ctx, p)
			if err != nil {
				return err
			}
			if err := yield(contract.NormalizeFileID(p), b); err != nil {
				return err
			}
		}
	}
	return nil
}

// Select 返回 root 下被选中的文档路径，按字典序。
// root 本身跟随符号链接；目录内不跟随指向目录的符号链接，失效链接与非常规文件跳过。
func (r *FileSystem) Select(ctx context.Context, root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		if info.Mode().IsRegular() && r.accepts(root) {
			return []string{root}, nil
		}
		return nil, nil
	}

	var docs []string
	// DirFS 打开 root 时跟随链接，遍历内部仍按 Lstat 语义
	err = fs.WalkDir(os.DirFS(root), ".", func(rel string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if _, skip := r.excludeDir[strings.ToLower(d.Name())]; skip && rel != "." {
				return fs.SkipDir
			}
			return nil
		}
		p := filepath.Join(root, filepath.FromSlash(rel))
		if !r.accepts(p) || !regular(p, d) {
			return nil
		}
		docs = append(docs, p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return docs, nil
}

func (r *FileSystem) accepts(p string) bool {
	return r.accept == nil || r.accept(p)
}

// regular 判断目录项是否为常规文件或指向常规文件的符号链接。
func regular(p string, d fs.DirEntry) bool {
	if d.Type().IsRegular() {
		return true
	}
	if d.Type()&fs.ModeSymlink == 0 {
		return false
	}
	// 失效链接 Stat 报错，一并跳过
	t, err := os.Stat(p)
	return err == nil && t.Mode().IsRegular()
}
