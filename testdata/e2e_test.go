package testdata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	cfgpkg "mdxbuild/internal/config"
	"mdxbuild/internal/pipeline"
)

func baseConfig(outDir string) cfgpkg.Config {
	cfg := cfgpkg.DefaultTemplateConfig()
	cfg.Inputs = []string{"docs"}
	cfg.Logging.Level = "error"
	cfg.Exclude = append(cfg.Exclude, "**/drafts/**")
	cfg.Options.Compiler = json.RawMessage(`{"format":"detect","components":["Note"]}`)
	cfg.Options.Writer = json.RawMessage(fmt.Sprintf(`{"output_dir":%q,"atomic":false}`, outDir))
	return cfg
}

func runPipeline(t *testing.T, cfg cfgpkg.Config) pipeline.Report {
	t.Helper()
	comp, set, err := cfgpkg.Assemble(cfg)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	rep, err := pipeline.Run(context.Background(), comp, set, nil)
	if err != nil {
		t.Fatalf("pipeline: %v", err)
	}
	return rep
}

func readOut(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	return string(b)
}

func TestE2ECompile(t *testing.T) {
	outDir := t.TempDir()
	rep := runPipeline(t, baseConfig(outDir))
	if !rep.OK() || len(rep.Files) != 2 {
		t.Fatalf("unexpected report: %+v", rep)
	}

	index := readOut(t, filepath.Join(outDir, "index.js"))
	if !strings.HasPrefix(index, "import {Chart} from './chart.js'\n") {
		t.Fatalf("esm not hoisted:\n%s", index)
	}
	for _, want := range []string{`"title":"Index"`, "Welcome</h1>", "export default function MDXContent"} {
		if !strings.Contains(index, want) {
			t.Fatalf("index.js misses %q:\n%s", want, index)
		}
	}
	intro := readOut(t, filepath.Join(outDir, "guide", "intro.js"))
	for _, want := range []string{`"title":"Intro"`, "<table>", "<del>old</del>"} {
		if !strings.Contains(intro, want) {
			t.Fatalf("intro.js misses %q:\n%s", want, intro)
		}
	}
	if _, err := os.Stat(filepath.Join(outDir, "chart.js")); !os.IsNotExist(err) {
		t.Fatalf("plain script should not be compiled: %v", err)
	}
}

func TestE2EDraftFails(t *testing.T) {
	outDir := t.TempDir()
	cfg := baseConfig(outDir)
	cfg.Exclude = nil
	rep := runPipeline(t, cfg)
	if rep.OK() {
		t.Fatalf("draft with undefined component should fail")
	}
	errs, _ := rep.Counts()
	if errs != 1 {
		t.Fatalf("errors = %d", errs)
	}
	var draft *pipeline.FileResult
	for i := range rep.Files {
		if strings.HasSuffix(rep.Files[i].Path, "wip.mdx") {
			draft = &rep.Files[i]
		}
	}
	if draft == nil || len(draft.Errors) != 1 {
		t.Fatalf("draft result missing: %+v", rep.Files)
	}
	loc := draft.Errors[0].Location
	if loc == nil || loc.Line != 3 || loc.LineText != "<Missing />" {
		t.Fatalf("unexpected location: %+v", loc)
	}
	if _, err := os.Stat(filepath.Join(outDir, "drafts", "wip.js")); !os.IsNotExist(err) {
		t.Fatalf("failed document must not be written: %v", err)
	}
	if _, err := os.Stat(filepath.Join(outDir, "index.js")); err != nil {
		t.Fatalf("other documents still written: %v", err)
	}
}

func TestE2ERemote(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path != "/notes/remote.md" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("# Remote\n"))
	}))
	defer srv.Close()

	outDir := t.TempDir()
	cfg := baseConfig(outDir)
	cfg.Inputs = []string{srv.URL + "/notes/remote.md"}
	if _, _, err := cfgpkg.Assemble(cfg); err == nil {
		t.Fatalf("remote input must require the dangerous flag")
	}
	on := true
	cfg.AllowDangerousRemoteMdx = &on
	rep := runPipeline(t, cfg)
	if !rep.OK() || len(rep.Files) != 1 || !rep.Files[0].Remote {
		t.Fatalf("unexpected report: %+v", rep)
	}
	host := strings.TrimPrefix(srv.URL, "http://")
	out := readOut(t, filepath.Join(outDir, filepath.FromSlash(host), "notes", "remote.js"))
	if !strings.Contains(out, "Remote</h1>") {
		t.Fatalf("unexpected output:\n%s", out)
	}
	if hits.Load() != 1 {
		t.Fatalf("hits = %d", hits.Load())
	}
}
