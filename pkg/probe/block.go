package probe

import (
	"encoding/binary"
	"fmt"
	"strings"
	"time"
)

// gpsEpoch GPS周计数起点
var gpsEpoch = time.Date(1980, time.January, 6, 0, 0, 0, 0, time.UTC)

// weekRollover 10位GPS周计数器回绕周期
const weekRollover = 1024 * 7 * 24 * time.Hour

// Block 一个已确定边界的块；所有读取都做越界检查，第一次越界后锁存错误并返回零值
type Block struct {
	Label    byte
	data     []byte
	base     int
	count    int
	itemSize int
	now      time.Time
	err      error
	parent   *Block
}

func (b *Block) fail(off, n int) bool {
	if off >= 0 && off+n <= len(b.data) {
		return false
	}
	root := b
	for root.parent != nil {
		root = root.parent
	}
	if root.err == nil {
		root.err = fmt.Errorf("read %d bytes at %d exceeds block of %d", n, off, len(b.data))
	}
	return true
}

// U8 读取1字节
func (b *Block) U8(off int) uint8 {
	if b.fail(off, 1) {
		return 0
	}
	return b.data[off]
}

// U16 读取大端2字节
func (b *Block) U16(off int) uint16 {
	if b.fail(off, 2) {
		return 0
	}
	return binary.BigEndian.Uint16(b.data[off:])
}

// I16 读取有符号2字节
func (b *Block) I16(off int) int16 {
	return int16(b.U16(off))
}

// U32 读取大端4字节
func (b *Block) U32(off int) uint32 {
	if b.fail(off, 4) {
		return 0
	}
	return binary.BigEndian.Uint32(b.data[off:])
}

// I32 读取有符号4字节
func (b *Block) I32(off int) int32 {
	return int32(b.U32(off))
}

// String 读取定长ASCII字段，去掉尾部的0x00与空格
func (b *Block) String(off, n int) string {
	if b.fail(off, n) {
		return ""
	}
	return strings.TrimRight(string(b.data[off:off+n]), "\x00 ")
}

// Calendar 读取6字节日历时间 [年-2000][月][日][时][分][秒]，全零表示未设置
func (b *Block) Calendar(off int) time.Time {
	if b.fail(off, 6) {
		return time.Time{}
	}
	p := b.data[off : off+6]
	if p[0]|p[1]|p[2]|p[3]|p[4]|p[5] == 0 {
		return time.Time{}
	}
	t := time.Date(2000+int(p[0]), time.Month(p[1]), int(p[2]), int(p[3]), int(p[4]), int(p[5]), 0, time.UTC)
	return rollover(t, b.now)
}

// GPSTime 读取 [u16 GPS周][u32 周内秒]，全零表示未设置
func (b *Block) GPSTime(off int) time.Time {
	week := b.U16(off)
	tow := b.U32(off + 2)
	if week == 0 && tow == 0 {
		return time.Time{}
	}
	t := gpsEpoch.Add(time.Duration(week)*7*24*time.Hour + time.Duration(tow)*time.Second)
	return rollover(t, b.now)
}

// Count 重复子记录数量
func (b *Block) Count() int {
	return b.count
}

// Items 按子记录切分重复区
func (b *Block) Items() []*Block {
	if b.itemSize == 0 {
		return nil
	}
	items := make([]*Block, 0, b.count)
	for i := 0; i < b.count; i++ {
		off := b.base + i*b.itemSize
		if b.fail(off, b.itemSize) {
			return items
		}
		items = append(items, &Block{Label: b.Label, data: b.data[off : off+b.itemSize], now: b.now, parent: b})
	}
	return items
}

// rollover 年份落后当前超过5年时补偿1024周
func rollover(t, now time.Time) time.Time {
	if t.Year() < now.Year()-5 {
		return t.Add(weekRollover)
	}
	return t
}
