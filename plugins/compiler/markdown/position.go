package markdown

import (
	"sort"

	"mdxbuild/pkg/contract"
)

// lineIndex 记录每行起点的字节偏移，用于 offset → (line, column)。
type lineIndex []int

func newLineIndex(src []byte) lineIndex {
	idx := lineIndex{0}
	for i, c := range src {
		if c == '\n' {
			idx = append(idx, i+1)
		}
	}
	return idx
}

// point 返回 offset 处的位置（line/column 自 1 起，字节列）。
func (li lineIndex) point(off int) *contract.Point {
	if off < 0 {
		off = 0
	}
	n := sort.Search(len(li), func(i int) bool { return li[i] > off }) - 1
	if n < 0 {
		n = 0
	}
	return contract.At(n+1, off-li[n]+1, off)
}

// lineEnd 返回 offset 所在行的行尾偏移（不含 \r\n）。
func lineEnd(src []byte, off int) int {
	i := off
	for i < len(src) && src[i] != '\n' {
		i++
	}
	if i > off && src[i-1] == '\r' {
		i--
	}
	return i
}

func span(li lineIndex, start, end int) *contract.Position {
	return &contract.Position{Start: li.point(start), End: li.point(end)}
}
