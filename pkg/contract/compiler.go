package contract

import "context"

// Compiler: 外部文档编译器。
// 成功时返回转换后的代码与按产出顺序排列的消息；
// 失败时返回 error（可为 *Message 以携带位置）。
type Compiler interface {
	Compile(ctx context.Context, doc Document) (CompiledUnit, error)
}

// Fetcher: 远程内容获取。相同标识在进程（插件实例）生命周期内至多获取一次。
type Fetcher interface {
	Fetch(ctx context.Context, id string) ([]byte, error)
}

// Matcher: 扩展名匹配器（纯谓词，无状态）。
type Matcher interface {
	Extensions() []string
	Match(path string) bool
	FormatOf(path string) Format
}
