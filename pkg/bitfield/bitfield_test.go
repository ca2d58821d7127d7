package bitfield

import "testing"

func TestUint32(t *testing.T) {
	v := uint32(0xC7F3A5E1)
	cases := []struct {
		hi, lo uint
		want   uint32
	}{
		{31, 28, 0xC},
		{27, 20, 0x7F},
		{19, 12, 0x3A},
		{2, 0, 0x1},
		{31, 0, 0xC7F3A5E1},
	}
	for _, c := range cases {
		if got := Uint32(v, c.hi, c.lo); got != c.want {
			t.Errorf("Uint32(%#x,%d,%d) = %#x, 期望 %#x", v, c.hi, c.lo, got, c.want)
		}
	}
}

func TestInt32SignExtension(t *testing.T) {
	// 0x80 作为8位补码为 -128
	if got := Int32(0x08000000, 27, 20); got != -128 {
		t.Errorf("期望 -128, 实际 %d", got)
	}
	if got := Int32(0x07F00000, 27, 20); got != 127 {
		t.Errorf("期望 127, 实际 %d", got)
	}
	if got := SignExtend(0x7, 3); got != -1 {
		t.Errorf("期望 -1, 实际 %d", got)
	}
	if got := SignExtend(0x3, 3); got != 3 {
		t.Errorf("期望 3, 实际 %d", got)
	}
}

func TestPut32RoundTrip(t *testing.T) {
	var v uint32
	n := int32(-5)
	v = Put32(v, 27, 20, uint32(n)&0xFF)
	v = Put32(v, 2, 0, 6)
	if got := Int32(v, 27, 20); got != -5 {
		t.Errorf("期望 -5, 实际 %d", got)
	}
	if got := Uint32(v, 2, 0); got != 6 {
		t.Errorf("期望 6, 实际 %d", got)
	}
	if !Bit(v, 2) || Bit(v, 0) {
		t.Errorf("位判断错误: %#x", v)
	}
}
