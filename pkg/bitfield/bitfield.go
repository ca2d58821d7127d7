// Package bitfield 提供对定宽无符号整数的位段提取与符号扩展。
// 所有协议中的打包字段（网格编码子字段、EV状态位）都通过这里读取，不依赖内存布局。
package bitfield

// Uint32 提取v中[hi:lo]闭区间的位段（hi >= lo，均为0起始的位序号）
func Uint32(v uint32, hi, lo uint) uint32 {
	width := hi - lo + 1
	if width >= 32 {
		return v >> lo
	}
	return (v >> lo) & (1<<width - 1)
}

// Int32 提取v中[hi:lo]位段，并以hi位作为符号位做二进制补码扩展
func Int32(v uint32, hi, lo uint) int32 {
	return SignExtend(Uint32(v, hi, lo), hi-lo+1)
}

// SignExtend 将width位宽的补码值扩展为int32
func SignExtend(v uint32, width uint) int32 {
	if width == 0 || width >= 32 {
		return int32(v)
	}
	shift := 32 - width
	return int32(v<<shift) >> shift
}

// Uint16 提取16位值中的[hi:lo]位段
func Uint16(v uint16, hi, lo uint) uint16 {
	return uint16(Uint32(uint32(v), hi, lo))
}

// Uint8 提取8位值中的[hi:lo]位段
func Uint8(v uint8, hi, lo uint) uint8 {
	return uint8(Uint32(uint32(v), hi, lo))
}

// Bit 判断v的第n位是否置位
func Bit(v uint32, n uint) bool {
	return v&(1<<n) != 0
}

// Put32 将val写入v的[hi:lo]位段，超出宽度的高位被丢弃
func Put32(v uint32, hi, lo uint, val uint32) uint32 {
	width := hi - lo + 1
	var mask uint32
	if width >= 32 {
		mask = ^uint32(0)
	} else {
		mask = (1<<width - 1) << lo
	}
	return (v &^ mask) | ((val << lo) & mask)
}
