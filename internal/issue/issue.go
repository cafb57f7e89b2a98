// Package issue 将编译器诊断消息映射为打包器可消费的 Issue。
//
// 位置约定：Line 原样透传编译器的 1 起行号（0 表示无位置），
// Column 为 0 起字节列；LineText 为所在行的原文（不含行终止符）。
package issue

import (
	"unicode/utf8"

	"mdxbuild/pkg/contract"
)

// Map 将单条消息映射为 Issue。纯函数：结果只取决于 (msg, source)。
// 起点不完整时视为文档开头的零宽位置；永不 panic。
func Map(pluginName, file string, msg contract.Message, source []byte) contract.Issue {
	loc := &contract.Location{File: file, Namespace: "file"}
	detail := msg
	is := contract.Issue{PluginName: pluginName, Text: msg.Reason, Location: loc, Detail: &detail}

	var start, end *contract.Point
	if msg.Position != nil {
		start, end = msg.Position.Start, msg.Position.End
	}
	if !start.Complete() {
		return is
	}

	line := *start.Line
	column := *start.Column - 1
	if column < 0 {
		column = 0
	}
	offset := clamp(*start.Offset, 0, len(source))
	lineStart := clamp(offset-column, 0, len(source))
	length := 1
	if end.Complete() {
		length = *end.Offset - *start.Offset
	}

	lineEnd := LineEnd(source, lineStart)
	// 长度以行尾偏移为上限，不为负
	length = max(min(length, lineEnd), 0)

	loc.Line = line
	loc.Column = column
	loc.Length = length
	loc.LineText = string(source[lineStart:lineEnd])
	return is
}

// Partition 按 fatal 将消息分入 errors/warnings，组内保持编译器产出顺序。
func Partition(pluginName, file string, msgs []contract.Message, source []byte) (errs, warns []contract.Issue) {
	errs = []contract.Issue{}
	warns = []contract.Issue{}
	for _, m := range msgs {
		is := Map(pluginName, file, m, source)
		if m.Fatal {
			errs = append(errs, is)
		} else {
			warns = append(warns, is)
		}
	}
	return errs, warns
}

// LineEnd 自 from 起扫描首个行终止符（\r、\n、\r\n、U+2028、U+2029），
// 返回其字节下标；未找到时返回 len(source)。
func LineEnd(source []byte, from int) int {
	for i := clamp(from, 0, len(source)); i < len(source); {
		switch c := source[i]; {
		case c == '\n' || c == '\r':
			return i
		case c < utf8.RuneSelf:
			i++
		default:
			r, size := utf8.DecodeRune(source[i:])
			if r == '\u2028' || r == '\u2029' {
				return i
			}
			i += size
		}
	}
	return len(source)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
