// Package recordenc 编码发往车机的结构化二进制记录（AutoDJ条目、目录、POI、充电桩网格块）。
//
// 所有带长度前缀的字段都有上限，超限即编码失败，不做静默截断；
// 需要旧格式截断的字段由调用方在编码前显式截断。
package recordenc

import (
	"encoding/binary"

	"github.com/bujia-iot/carwings-gateway/pkg/errors"
)

// Writer 大端记录写入器，第一次超限后锁存错误，后续写入全部忽略
type Writer struct {
	buf []byte
	err error
}

// NewWriter 创建写入器
func NewWriter(capacity int) *Writer {
	return &Writer{buf: make([]byte, 0, capacity)}
}

// U8 写入1字节
func (w *Writer) U8(v uint8) *Writer {
	if w.err == nil {
		w.buf = append(w.buf, v)
	}
	return w
}

// U16 写入大端2字节
func (w *Writer) U16(v uint16) *Writer {
	if w.err == nil {
		w.buf = binary.BigEndian.AppendUint16(w.buf, v)
	}
	return w
}

// U32 写入大端4字节
func (w *Writer) U32(v uint32) *Writer {
	if w.err == nil {
		w.buf = binary.BigEndian.AppendUint32(w.buf, v)
	}
	return w
}

// Raw 原样写入
func (w *Writer) Raw(b []byte) *Writer {
	if w.err == nil {
		w.buf = append(w.buf, b...)
	}
	return w
}

// Str8 写入 [u8 长度][内容]，长度不得超过max
func (w *Writer) Str8(field, s string, max int) *Writer {
	if w.check(field, len(s), min(max, 0xFF)) {
		w.buf = append(w.buf, uint8(len(s)))
		w.buf = append(w.buf, s...)
	}
	return w
}

// Str16 写入 [u16 长度][内容]
func (w *Writer) Str16(field, s string, max int) *Writer {
	if w.check(field, len(s), min(max, 0xFFFF)) {
		w.buf = binary.BigEndian.AppendUint16(w.buf, uint16(len(s)))
		w.buf = append(w.buf, s...)
	}
	return w
}

// Blob32 写入 [u32 长度][内容]
func (w *Writer) Blob32(field string, b []byte, max int) *Writer {
	if w.check(field, len(b), max) {
		w.buf = binary.BigEndian.AppendUint32(w.buf, uint32(len(b)))
		w.buf = append(w.buf, b...)
	}
	return w
}

func (w *Writer) check(field string, n, max int) bool {
	if w.err != nil {
		return false
	}
	if n > max {
		w.err = errors.Newf(errors.ErrEncodeConstraint, "%s: length %d exceeds 0x%X", field, n, max)
		return false
	}
	return true
}

// Fail 由调用方锁存一个约束错误
func (w *Writer) Fail(err error) *Writer {
	if w.err == nil {
		w.err = err
	}
	return w
}

// Len 已写入字节数
func (w *Writer) Len() int {
	return len(w.buf)
}

// Err 返回锁存的错误
func (w *Writer) Err() error {
	return w.err
}

// Finish 返回编码结果或第一个约束错误
func (w *Writer) Finish() ([]byte, error) {
	if w.err != nil {
		return nil, w.err
	}
	return w.buf, nil
}
