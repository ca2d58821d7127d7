// Package probe 解码车载日志（CRM、DOT）中的标签驱动二进制块。
//
// 字节流从左到右扫描，每个位置的标签字节在静态表中查出块大小与解码规则，
// 解码结果累积到当前的草稿记录。记录边界没有显式计数字段，只能通过
// "所属段变化"或"同段内出现段首标签"推断。
package probe

import (
	"fmt"
	"sort"
	"time"

	"github.com/bujia-iot/carwings-gateway/pkg/errors"
)

// Repeat 块内重复子记录的描述：计数字段位置、宽度与单条子记录大小
type Repeat struct {
	CountOffset int
	CountSize   int // 1 或 2 字节
	ItemSize    int
}

// Label 标签表中的一项
type Label struct {
	Section string
	Size    int // 基础大小，包含标签字节本身
	Repeat  *Repeat
	Rule    string
	Head    bool // 段首标签：同段内再次出现时开启新记录
}

// Rule 块解码规则，字段写入rec，越界由Block记录
type Rule func(rec *Record, b *Block)

// Table 一种日志格式的标签表
type Table struct {
	Name       string
	Labels     map[byte]Label
	Rules      map[string]Rule
	Singletons map[string]bool
}

// Record 一条解码记录
type Record struct {
	Section string
	Fields  map[string]any
}

func newRecord(section string) *Record {
	return &Record{Section: section, Fields: make(map[string]any)}
}

// Set 写入字段
func (r *Record) Set(name string, v any) {
	r.Fields[name] = v
}

// Uint 读取无符号整数字段，不存在时返回0
func (r Record) Uint(name string) uint64 {
	switch v := r.Fields[name].(type) {
	case uint8:
		return uint64(v)
	case uint16:
		return uint64(v)
	case uint32:
		return uint64(v)
	case uint64:
		return v
	}
	return 0
}

// Time 读取时间字段
func (r Record) Time(name string) time.Time {
	t, _ := r.Fields[name].(time.Time)
	return t
}

// Result 一次解码的全部结果
type Result struct {
	Sections   map[string][]Record
	Singletons map[string]Record
}

// Validate 校验标签表与规则表互相一致
func (t *Table) Validate() error {
	used := make(map[string]bool, len(t.Rules))
	sections := make(map[string]bool)
	for code, l := range t.Labels {
		if l.Section == "" {
			return errors.Newf(errors.ErrInvalidParameter, "%s label 0x%02X: empty section", t.Name, code)
		}
		if l.Size < 1 {
			return errors.Newf(errors.ErrInvalidParameter, "%s label 0x%02X: size %d", t.Name, code, l.Size)
		}
		if _, ok := t.Rules[l.Rule]; !ok {
			return errors.Newf(errors.ErrInvalidParameter, "%s label 0x%02X: rule %q not defined", t.Name, code, l.Rule)
		}
		if r := l.Repeat; r != nil {
			if r.CountSize != 1 && r.CountSize != 2 {
				return errors.Newf(errors.ErrInvalidParameter, "%s label 0x%02X: count size %d", t.Name, code, r.CountSize)
			}
			if r.CountOffset < 1 || r.CountOffset+r.CountSize > l.Size || r.ItemSize < 1 {
				return errors.Newf(errors.ErrInvalidParameter, "%s label 0x%02X: bad repeat layout", t.Name, code)
			}
		}
		if l.Head && t.Singletons[l.Section] {
			return errors.Newf(errors.ErrInvalidParameter, "%s label 0x%02X: head label in singleton section %s", t.Name, code, l.Section)
		}
		used[l.Rule] = true
		sections[l.Section] = true
	}
	for name := range t.Rules {
		if !used[name] {
			return errors.Newf(errors.ErrInvalidParameter, "%s rule %q not referenced by any label", t.Name, name)
		}
	}
	for s := range t.Singletons {
		if !sections[s] {
			return errors.Newf(errors.ErrInvalidParameter, "%s singleton section %q has no labels", t.Name, s)
		}
	}
	return nil
}

// LabelCodes 返回排序后的标签列表，供CLI与测试使用
func (t *Table) LabelCodes() []byte {
	codes := make([]byte, 0, len(t.Labels))
	for c := range t.Labels {
		codes = append(codes, c)
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })
	return codes
}

// Decode 使用标签表解码字节流；now用于时间戳回绕修正
func Decode(t *Table, data []byte, now time.Time) (*Result, error) {
	res := &Result{
		Sections:   make(map[string][]Record),
		Singletons: make(map[string]Record),
	}
	var draft *Record
	closeDraft := func() {
		if draft == nil {
			return
		}
		if t.Singletons[draft.Section] {
			rec, ok := res.Singletons[draft.Section]
			if !ok {
				rec = Record{Section: draft.Section, Fields: make(map[string]any)}
			}
			for k, v := range draft.Fields {
				rec.Fields[k] = v
			}
			res.Singletons[draft.Section] = rec
		} else {
			res.Sections[draft.Section] = append(res.Sections[draft.Section], *draft)
		}
		draft = nil
	}

	pos := 0
	for pos < len(data) {
		code := data[pos]
		l, ok := t.Labels[code]
		if !ok {
			return nil, errors.Newf(errors.ErrUnknownLabel, "%s: unknown label 0x%02X at offset %d", t.Name, code, pos)
		}
		size, count, err := blockSize(l, data[pos:])
		if err != nil {
			return nil, errors.Wrap(errors.ErrMalformedInput, fmt.Sprintf("%s: label 0x%02X at offset %d", t.Name, code, pos), err)
		}

		if draft == nil || draft.Section != l.Section || l.Head {
			closeDraft()
			draft = newRecord(l.Section)
		}

		b := &Block{Label: code, data: data[pos : pos+size], base: l.Size, count: count, now: now}
		if l.Repeat != nil {
			b.itemSize = l.Repeat.ItemSize
		}
		t.Rules[l.Rule](draft, b)
		if b.err != nil {
			return nil, errors.Wrap(errors.ErrMalformedInput, fmt.Sprintf("%s: label 0x%02X at offset %d", t.Name, code, pos), b.err)
		}
		pos += size
	}
	closeDraft()
	return res, nil
}

// blockSize 计算块的实际大小：基础大小 + 计数 × 子记录大小
func blockSize(l Label, rest []byte) (size, count int, err error) {
	size = l.Size
	if r := l.Repeat; r != nil {
		if r.CountOffset+r.CountSize > len(rest) {
			return 0, 0, fmt.Errorf("truncated repeat count: need %d have %d", r.CountOffset+r.CountSize, len(rest))
		}
		if r.CountSize == 1 {
			count = int(rest[r.CountOffset])
		} else {
			count = int(rest[r.CountOffset])<<8 | int(rest[r.CountOffset+1])
		}
		size += count * r.ItemSize
	}
	if size > len(rest) {
		return 0, 0, fmt.Errorf("truncated block: need %d have %d", size, len(rest))
	}
	return size, count, nil
}
