package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"mdxbuild/internal/compile"
	"mdxbuild/internal/diag"
	"mdxbuild/internal/extname"
	"mdxbuild/internal/load"
	"mdxbuild/pkg/contract"
)

// - 单点并发：仅此层管理并发；组件均为同步实现。
// - 稳定顺序：结果按输入遍历顺序排列，与完成先后无关。
// - 诊断不是错误：编译诊断进入 Report；仅读取/写出/取消等基础设施失败返回 error，并取消其余任务。

// Components 聚合运行所需的组件。Fetcher 仅在存在远程输入时需要；Writer 为 nil 时只检查不写出。
type Components struct {
	Reader   contract.Reader
	Compiler contract.Compiler
	Fetcher  contract.Fetcher
	Writer   contract.Writer
}

// Settings 运行期配置（最小必要）。
type Settings struct {
	Inputs      []string
	Concurrency int
	// AllowRemote 允许 http(s) 文档作为输入（经 Fetcher 获取）。
	AllowRemote bool
	// Matcher 为 nil 时使用默认扩展名集合。
	Matcher *extname.Matcher
	// Select 为附加路径过滤（include/exclude）；nil 接受全部。
	Select func(path string) bool
	// StdinPath 为 STDIN 文档的逻辑路径，决定其格式；默认 stdin.mdx。
	StdinPath string
	// PluginName 写入每条诊断；默认 mdxbuild。
	PluginName string
	// ResolveDir 透传给加载结果。
	ResolveDir string
	// CompilerName 仅用于终端展示。
	CompilerName string
}

// FileResult: 单个文档的处理结果。
type FileResult struct {
	FileID   contract.FileID
	Path     string
	Remote   bool
	Output   []byte
	Errors   []contract.Issue
	Warnings []contract.Issue
	Duration time.Duration
}

// Report: 按输入顺序排列的全部结果。
type Report struct {
	Files []FileResult
}

// Counts 返回错误与警告总数。
func (r Report) Counts() (errs, warns int) {
	for _, f := range r.Files {
		errs += len(f.Errors)
		warns += len(f.Warnings)
	}
	return errs, warns
}

// OK 报告是否没有任何错误诊断。
func (r Report) OK() bool {
	errs, _ := r.Counts()
	return errs == 0
}

type job struct {
	id     contract.FileID
	path   string
	rel    contract.ArtifactID
	remote bool
	body   []byte
}

// Run 执行：收集输入（Reader 遍历本地根；远程 URL 直接入队）→ 并发编译 → 可选写出。
func Run(ctx context.Context, comp Components, set Settings, logger *diag.Logger) (Report, error) {
	set, err := sanity(comp, set)
	if err != nil {
		return Report{}, fmt.Errorf("sanity: %w", err)
	}
	start := time.Now()
	jobs, err := collect(ctx, comp, set, logger)
	if err != nil {
		return Report{}, err
	}

	d := &load.Dispatcher{
		Matcher:    set.Matcher,
		Fetcher:    comp.Fetcher,
		Reader:     comp.Reader,
		Compiler:   compile.New(comp.Compiler),
		Logger:     logger,
		PluginName: set.PluginName,
		ResolveDir: set.ResolveDir,
	}

	term := diag.GetTerminal()
	term.RunStart(set.Concurrency, set.CompilerName, len(jobs))

	results := make([]FileResult, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(set.Concurrency)
	for i, j := range jobs {
		i, j := i, j
		g.Go(func() error {
			t0 := time.Now()
			req := load.LoadRequest{Path: j.path, Tag: contract.TagLocal, Contents: j.body}
			if j.remote {
				req = load.LoadRequest{Path: j.path, Tag: contract.TagRemoteOrigin}
			}
			res, ok := d.Load(gctx, req)
			fr := FileResult{FileID: j.id, Path: j.path, Remote: j.remote}
			if ok {
				fr.Output = res.Contents
				fr.Errors = res.Errors
				fr.Warnings = res.Warnings
			}
			if err := gctx.Err(); err != nil {
				return err
			}
			if comp.Writer != nil && fr.Output != nil && len(fr.Errors) == 0 {
				if err := write(gctx, comp.Writer, artifactID(j), fr.Output, logger); err != nil {
					return fmt.Errorf("writer write %s: %w", j.id, err)
				}
			}
			fr.Duration = time.Since(t0)
			term.FileFinish(string(j.id), len(fr.Errors), len(fr.Warnings), fr.Duration)
			results[i] = fr
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		term.RunFinish(false, time.Since(start))
		return Report{}, err
	}
	rep := Report{Files: results}
	term.RunFinish(rep.OK(), time.Since(start))
	errs, _ := rep.Counts()
	logger.InfoFinish("pipeline", "run", start, int64(len(results)))
	diag.ObserveDuration("pipeline", "run", time.Since(start).Milliseconds())
	if errs > 0 {
		diag.IncOp("pipeline", "finish", "error")
	} else {
		diag.IncOp("pipeline", "finish", "success")
	}
	return rep, nil
}

// collect 按输入顺序收集文档：远程 URL 直接入队，本地根逐个交由 Reader 遍历。
func collect(ctx context.Context, comp Components, set Settings, logger *diag.Logger) ([]job, error) {
	var jobs []job
	for _, in := range set.Inputs {
		if isURL(in) {
			if !set.AllowRemote {
				return nil, fmt.Errorf("%w: remote input %q requires allow_dangerous_remote_mdx", contract.ErrInvalidInput, in)
			}
			jobs = append(jobs, job{id: contract.FileID(in), path: in, remote: true})
			continue
		}
		rtimer := logger.StartWith("reader", "iterate", in)
		n := 0
		err := comp.Reader.Iterate(ctx, []string{in}, func(fid contract.FileID, body []byte) error {
			p := string(fid)
			if in == "-" && fid == "stdin" {
				p = set.StdinPath
			} else if (set.Select != nil && !set.Select(p)) || !set.Matcher.Match(p) {
				return nil
			}
			jobs = append(jobs, job{id: fid, path: p, rel: relID(in, fid), body: body})
			n++
			return nil
		})
		if err != nil {
			code := diag.Classify(err)
			logger.ErrorWith("reader", string(code), "iterate failed", nil, in)
			diag.IncOp("reader", "error", "error")
			if code != diag.CodeUnknown {
				diag.IncError("reader", string(code))
			}
			return nil, fmt.Errorf("reader iterate: %w", err)
		}
		rtimer.Finish("iterate", int64(n))
		diag.IncOp("reader", "finish", "success")
	}
	return jobs, nil
}

// relID 返回文档相对其输入根的产物 ID；根即文件时取文件名。
func relID(root string, fid contract.FileID) contract.ArtifactID {
	r := string(contract.NormalizeFileID(root))
	f := string(fid)
	switch {
	case f == r:
		return contract.ArtifactID(path.Base(f))
	case r == ".":
		return contract.ArtifactID(f)
	case strings.HasPrefix(f, r+"/"):
		return contract.ArtifactID(strings.TrimPrefix(f, r+"/"))
	case r == "/" && strings.HasPrefix(f, "/"):
		return contract.ArtifactID(strings.TrimPrefix(f, "/"))
	}
	return contract.ArtifactID(f)
}

func write(ctx context.Context, w contract.Writer, id contract.ArtifactID, body []byte, logger *diag.Logger) error {
	tm := logger.StartWith("writer", "write", string(id))
	if err := w.Write(ctx, id, bytes.NewReader(body)); err != nil {
		code := diag.Classify(err)
		logger.ErrorWith("writer", string(code), "write failed", nil, string(id))
		diag.IncOp("writer", "error", "error")
		if code != diag.CodeUnknown {
			diag.IncError("writer", string(code))
		}
		return err
	}
	tm.Finish("write", int64(len(body)))
	diag.IncOp("writer", "finish", "success")
	return nil
}

// artifactID: 本地文档相对输入根；远程文档映射为 host/path。
func artifactID(j job) contract.ArtifactID {
	if !j.remote {
		return j.rel
	}
	u, err := url.Parse(contract.StripQueryFragment(j.path))
	if err != nil || u.Host == "" {
		return contract.ArtifactID(contract.NormalizeFileID(strings.TrimPrefix(j.path, "/")))
	}
	return contract.ArtifactID(contract.NormalizeFileID(u.Host + "/" + strings.TrimPrefix(u.Path, "/")))
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func sanity(c Components, s Settings) (Settings, error) {
	if c.Reader == nil || c.Compiler == nil {
		return s, errors.New("pipeline: missing components")
	}
	if len(s.Inputs) == 0 {
		return s, errors.New("pipeline: empty inputs")
	}
	if s.Concurrency < 1 {
		s.Concurrency = 1
	}
	if s.Matcher == nil {
		m, err := extname.New(extname.Options{})
		if err != nil {
			return s, err
		}
		s.Matcher = m
	}
	if s.StdinPath == "" {
		s.StdinPath = "stdin.mdx"
	}
	if s.PluginName == "" {
		s.PluginName = "mdxbuild"
	}
	return s, nil
}
