package contract

import "context"

// Reader: 本地输入源抽象。
// 约束：
// 1) ReadFile 读取单个文档的全部字节；
// 2) Iterate 选出 roots 下的文档并逐篇回调其全部字节，FileID 稳定且去平台差异化；
// 3) 不做解码/业务解析；
// 4) 不在内部起并发。
type Reader interface {
	ReadFile(ctx context.Context, path string) ([]byte, error)
	Iterate(ctx context.Context, roots []string, yield func(fileID FileID, body []byte) error) error
}
