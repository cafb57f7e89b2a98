package contract

import "errors"

// 最小错误分类（用于上层策略判定与日志归类）。
var (
	// ErrInvalidInput: 配置或调用参数非法。
	ErrInvalidInput = errors.New("invalid input")
	// ErrFetchFailed: 远程/本地内容获取失败（网络错误、非 2xx 状态）；内核不重试。
	ErrFetchFailed = errors.New("fetch failed")
	// ErrCompileFailed: 文档编译器抛出而非返回结果。
	ErrCompileFailed = errors.New("compile failed")
	// ErrPathInvalid: 目标标识映射为无效/越界路径（例如绝对路径或 '..' 逃逸）。
	ErrPathInvalid = errors.New("path invalid")
)
