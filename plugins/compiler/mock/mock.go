package mock

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"mdxbuild/pkg/contract"
)

// Options: 调试/测试用编译器配置。
type Options struct {
	// Value: 固定产物；为空时回显源文档：export default "<源文本>";
	Value string `json:"value,omitempty"`
	// Messages: 随产物返回的诊断消息（按此顺序）。
	Messages []contract.Message `json:"messages,omitempty"`
	// Fail: 非 nil 时每次编译都以该消息失败。
	Fail *contract.Message `json:"fail,omitempty"`
	// FailFirst: 前 N 次调用失败（模拟不稳定的编译器），之后正常返回。
	FailFirst int32 `json:"fail_first,omitempty"`
}

// Compiler 实现 contract.Compiler。
type Compiler struct {
	opts  Options
	count atomic.Int32
}

// New 从原样 JSON 选项构造。
func New(raw json.RawMessage) (*Compiler, error) {
	var o Options
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &o); err != nil {
			return nil, fmt.Errorf("mock compiler options: %w", err)
		}
	}
	return &Compiler{opts: o}, nil
}

// Calls 返回已发生的编译次数。
func (c *Compiler) Calls() int { return int(c.count.Load()) }

func (c *Compiler) Compile(ctx context.Context, doc contract.Document) (contract.CompiledUnit, error) {
	if err := ctx.Err(); err != nil {
		return contract.CompiledUnit{}, err
	}
	n := c.count.Add(1)
	if c.opts.Fail != nil {
		m := *c.opts.Fail
		return contract.CompiledUnit{}, &m
	}
	if n <= c.opts.FailFirst {
		return contract.CompiledUnit{}, fmt.Errorf("mock: attempt %d: %w", n, contract.ErrCompileFailed)
	}
	value := c.opts.Value
	if value == "" {
		s, _ := json.Marshal(string(doc.Value))
		value = fmt.Sprintf("export default %s;\n", s)
	}
	msgs := append([]contract.Message(nil), c.opts.Messages...)
	return contract.CompiledUnit{Value: []byte(value), Messages: msgs}, nil
}
