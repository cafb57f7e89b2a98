// Package compile 调用外部文档编译器，并把成功产物与致命失败统一为
// “产物 + 消息列表”的形状。
package compile

import (
	"context"
	"errors"
	"fmt"

	"mdxbuild/internal/issue"
	"mdxbuild/pkg/contract"
)

// Adapter 包装一个 contract.Compiler。
type Adapter struct {
	Compiler contract.Compiler
}

// New 构造适配器。
func New(c contract.Compiler) *Adapter { return &Adapter{Compiler: c} }

// Compile 调用编译器；永不返回 error。
// 编译器抛出时合成一条 fatal 消息（复用失败自带的位置），产物为空。
func (a *Adapter) Compile(ctx context.Context, doc contract.Document) contract.CompiledUnit {
	if a == nil || a.Compiler == nil {
		return contract.CompiledUnit{Messages: []contract.Message{{Fatal: true, Reason: "no document compiler configured"}}}
	}
	unit, err := a.Compiler.Compile(ctx, doc)
	if err != nil {
		return contract.CompiledUnit{Messages: []contract.Message{failure(err)}}
	}
	if unit.Value == nil && !hasFatal(unit.Messages) {
		// 无致命消息即必有产物：空文档编译为空模块
		unit.Value = []byte{}
	}
	return unit
}

func hasFatal(msgs []contract.Message) bool {
	for _, m := range msgs {
		if m.Fatal {
			return true
		}
	}
	return false
}

func failure(err error) contract.Message {
	var m *contract.Message
	if errors.As(err, &m) && m != nil {
		out := *m
		out.Fatal = true
		return out
	}
	return contract.Message{Fatal: true, Reason: err.Error()}
}

// Result 为一次编译加诊断映射的完整结果。
type Result struct {
	Unit     contract.CompiledUnit
	Errors   []contract.Issue
	Warnings []contract.Issue
}

// Check 编译并映射诊断。pluginName 写入每条 Issue。
func (a *Adapter) Check(ctx context.Context, pluginName string, doc contract.Document) Result {
	unit := a.Compile(ctx, doc)
	errs, warns := issue.Partition(pluginName, doc.Path, unit.Messages, doc.Value)
	return Result{Unit: unit, Errors: errs, Warnings: warns}
}

// Err 将含 fatal 消息的结果折叠为 error（供“抛出式”宿主使用，例如 transform 钩子）。
func (r Result) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	first := r.Errors[0]
	if first.Detail != nil {
		d := *first.Detail
		return fmt.Errorf("%w: %w", contract.ErrCompileFailed, &d)
	}
	return fmt.Errorf("%w: %s", contract.ErrCompileFailed, first.Text)
}
