package diag

import (
	"context"
	"errors"
	"net"
	"os"
	"time"

	"mdxbuild/pkg/contract"
)

// Code 是最小错误分类代码。
// 仅用于日志/指标汇总，与退出码解耦。
type Code string

const (
	CodeUnknown   Code = "unknown"
	CodeNetwork   Code = "network"
	CodeCompile   Code = "compile"
	CodeInvariant Code = "invariant"
	CodeCancel    Code = "cancel"
	CodeIO        Code = "io"
)

// Classify 将错误归为最小分类。
// 说明：仅依赖哨兵错误与标准库错误类型，不做字符串匹配。
func Classify(err error) Code {
	if err == nil {
		return CodeUnknown
	}
	// 取消/超时优先
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return CodeCancel
	}
	var msg *contract.Message
	if errors.Is(err, contract.ErrCompileFailed) || errors.As(err, &msg) {
		return CodeCompile
	}
	if errors.Is(err, contract.ErrInvalidInput) || errors.Is(err, contract.ErrPathInvalid) {
		return CodeInvariant
	}
	// 本地读取失败即使被 ErrFetchFailed 包裹也归 I/O
	var perr *os.PathError
	if errors.As(err, &perr) {
		return CodeIO
	}
	if errors.Is(err, contract.ErrFetchFailed) {
		return CodeNetwork
	}
	var nerr net.Error
	if errors.As(err, &nerr) {
		return CodeNetwork
	}
	return CodeUnknown
}

// NowUTC 返回 RFC3339 UTC 时间字符串。
func NowUTC() string { return time.Now().UTC().Format(time.RFC3339) }
