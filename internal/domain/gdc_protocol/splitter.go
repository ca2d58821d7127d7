package gdc_protocol

// FrameLen 根据已收到的前缀推算整帧长度。
// 前缀不足以判断时返回 (0, true)；前缀本身非法时返回 (0, false)
func FrameLen(b []byte) (n int, ok bool) {
	if len(b) == 0 {
		return 0, true
	}
	switch b[offType] {
	case PacketConfig:
		return ConfigFrameLen, true
	case PacketInit, PacketData:
	default:
		return 0, false
	}
	if b[offType] == PacketData && len(b) > offBodyType {
		if bt := b[offBodyType]; bt < BodyStatus || bt > BodyChargeResult {
			return 0, false
		}
	}
	if len(b) <= offGPSFlag {
		return 0, true
	}

	n = offGPS
	switch b[offGPSFlag] {
	case 0x00:
	case 0x01:
		n += lenGPS
	default:
		return 0, false
	}
	if b[offType] == PacketData {
		n += lenEV
		if IsResultBody(b[offBodyType]) {
			n++
		}
	}
	return n, true
}

// Splitter 将TCP字节流切分为GDC帧。协议没有长度前缀，帧长由包类型与GPS标志推算。
// 无法识别的前缀连同缓冲区剩余字节作为一帧整体交出，由解析器拒绝并返回失败响应
type Splitter struct {
	buf []byte
}

// Feed 追加数据并返回所有完整的帧
func (s *Splitter) Feed(chunk []byte) [][]byte {
	s.buf = append(s.buf, chunk...)

	var frames [][]byte
	for len(s.buf) > 0 {
		n, ok := FrameLen(s.buf)
		if !ok {
			frames = append(frames, s.take(len(s.buf)))
			break
		}
		if n == 0 || len(s.buf) < n {
			break
		}
		frames = append(frames, s.take(n))
	}
	return frames
}

func (s *Splitter) take(n int) []byte {
	frame := make([]byte, n)
	copy(frame, s.buf[:n])
	rest := copy(s.buf, s.buf[n:])
	s.buf = s.buf[:rest]
	return frame
}

// Buffered 尚未组成完整帧的字节数
func (s *Splitter) Buffered() int {
	return len(s.buf)
}

// Reset 丢弃缓冲的半帧
func (s *Splitter) Reset() {
	s.buf = s.buf[:0]
}
