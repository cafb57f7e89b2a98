package contract

import (
	"fmt"
	"strings"
)

// FileID: 逻辑文档ID（本地路径或远程 URL，需规范化，跨平台一致）。
type FileID string

// Tag: 解析结果的处理模式标记（三态状态机）。
// 约束：一旦为 remote，后续经由该模块传递的导入都保持 remote。
type Tag int

const (
	// TagLocal: 本地文件（宿主默认的 file 命名空间）。
	TagLocal Tag = iota
	// TagRemoteOrigin: 首次从本地文档触达的远程文档。
	TagRemoteOrigin
	// TagRemoteTransitive: 由远程模块间接引入的模块。
	TagRemoteTransitive
)

// Remote 报告该标记是否走远程加载路径。
func (t Tag) Remote() bool { return t == TagRemoteOrigin || t == TagRemoteTransitive }

func (t Tag) String() string {
	switch t {
	case TagLocal:
		return "local"
	case TagRemoteOrigin:
		return "remote-origin"
	case TagRemoteTransitive:
		return "remote-transitive"
	default:
		return fmt.Sprintf("tag(%d)", int(t))
	}
}

// ResolveRequest: 单次解析请求（只读）。
type ResolveRequest struct {
	ImportPath  string
	Importer    string
	ImporterTag Tag
}

// ResolveResult: 解析结果；Tag 决定下一步由哪条加载路径处理。
type ResolveResult struct {
	Path string
	Tag  Tag
}

// Format: 文档语法。
type Format string

const (
	FormatDetect Format = "detect"
	FormatMD     Format = "md"
	FormatMDX    Format = "mdx"
)

// Document: 交给编译器的源文档。Path 即文档身份（本地路径或去除 query/hash 的 URL）。
type Document struct {
	Path   string
	Value  []byte
	Format Format
}

// Point: 源码位置。三个字段均可缺省（nil），调用方必须显式处理缺省。
// Line/Column 自 1 起；Offset 自 0 起（字节）。
type Point struct {
	Line   *int `json:"line,omitempty"`
	Column *int `json:"column,omitempty"`
	Offset *int `json:"offset,omitempty"`
}

// Complete 报告 line/column/offset 是否全部存在。
func (p *Point) Complete() bool {
	return p != nil && p.Line != nil && p.Column != nil && p.Offset != nil
}

// At 构造完整的 Point。
func At(line, column, offset int) *Point {
	return &Point{Line: &line, Column: &column, Offset: &offset}
}

// Position: 可选的起止位置。
type Position struct {
	Start *Point `json:"start,omitempty"`
	End   *Point `json:"end,omitempty"`
}

// Message: 编译器产出的诊断消息。
// *Message 实现 error：编译器可以直接以带位置的消息失败。
type Message struct {
	Fatal    bool      `json:"fatal,omitempty"`
	Reason   string    `json:"reason"`
	Position *Position `json:"position,omitempty"`
	// Source/RuleID: 可选来源标识（例如 "mdxbuild-markdown"/"heading-increment"）。
	Source string `json:"source,omitempty"`
	RuleID string `json:"rule_id,omitempty"`
}

func (m *Message) Error() string {
	if m == nil {
		return "<nil message>"
	}
	var b strings.Builder
	if m.Position != nil && m.Position.Start.Complete() {
		fmt.Fprintf(&b, "%d:%d: ", *m.Position.Start.Line, *m.Position.Start.Column)
	}
	b.WriteString(m.Reason)
	return b.String()
}

// CompiledUnit: 单次编译产物；Value 为 nil 表示无产物（编译失败）。
type CompiledUnit struct {
	Value    []byte
	Map      []byte
	Messages []Message
}

// Location: 面向打包器的位置。Line 自 1 起（0 表示无位置），Column 自 0 起（字节）。
type Location struct {
	File      string `json:"file"`
	Namespace string `json:"namespace"`
	Line      int    `json:"line"`
	Column    int    `json:"column"`
	Length    int    `json:"length"`
	LineText  string `json:"line_text"`
}

// Issue: 打包器可消费的标准化诊断（位置 + 文本 + 严重度桶）。
type Issue struct {
	PluginName string    `json:"plugin_name"`
	Text       string    `json:"text"`
	Location   *Location `json:"location,omitempty"`
	Detail     *Message  `json:"-"`
}
