// Package textutil 提供发往车机的文本处理：ASCII音译与旧格式截断。
package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// 无法音译的字符替换为该字节
const Replacement = '?'

// 常见的无分解形式字符
var specials = map[rune]string{
	'ß': "ss", 'æ': "ae", 'Æ': "AE", 'ø': "o", 'Ø': "O", 'œ': "oe", 'Œ': "OE",
	'đ': "d", 'Đ': "D", 'ł': "l", 'Ł': "L", 'þ': "th", 'Þ': "TH",
	'‘': "'", '’': "'", '“': "\"", '”': "\"", '–': "-", '—': "-", '…': "...",
	'\u00a0': " ", '\u3000': " ",
}

// ToASCII 将文本音译为可打印ASCII：去掉组合附加符，替换常见特殊字符，其余替换为'?'
func ToASCII(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		switch {
		case r == '\t' || r == '\n' || r == '\r':
			b.WriteByte(' ')
		case r >= 0x20 && r <= 0x7E:
			b.WriteRune(r)
		default:
			if rep, ok := specials[r]; ok {
				b.WriteString(rep)
			} else if r < 0x20 || r == 0x7F {
				continue
			} else {
				b.WriteByte(Replacement)
			}
		}
	}
	return b.String()
}

// Truncate 按字节截断为最多max字节
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if len(s) <= max {
		return s
	}
	return s[:max]
}

// Legacy 旧格式文本字段：音译后截断
func Legacy(s string, max int) string {
	return Truncate(ToASCII(s), max)
}
