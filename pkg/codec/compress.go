package codec

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/crc32"

	"github.com/bujia-iot/carwings-gateway/pkg/errors"
)

// ResumePrefix 压缩包装的固定前缀
const ResumePrefix = "resume_id:"

// ResumeIDLen 续传ID长度
const ResumeIDLen = 20

// 帧头: 解压后长度(4) + 压缩长度(4)；帧尾: CRC32(4)
const (
	frameHeaderLen = 8
	frameCRCLen    = 4
	wrapperMinLen  = len(ResumePrefix) + ResumeIDLen + frameHeaderLen + frameCRCLen
)

// ResumeID 多段传输续传令牌，当前仅原样回传
type ResumeID [ResumeIDLen]byte

// Compress 压缩并包装载荷
// 格式: "resume_id:" + 20字节续传ID + [u32 原始长度][u32 压缩长度][压缩数据][u32 CRC32]
// CRC32覆盖帧内除自身以外的全部字节
func Compress(payload []byte, resumeID ResumeID) ([]byte, error) {
	var compressed bytes.Buffer
	zw, err := zlib.NewWriterLevel(&compressed, zlib.BestCompression)
	if err != nil {
		return nil, errors.Wrap(errors.ErrEncodeConstraint, "create zlib writer", err)
	}
	if _, err := zw.Write(payload); err != nil {
		return nil, errors.Wrap(errors.ErrEncodeConstraint, "deflate payload", err)
	}
	if err := zw.Close(); err != nil {
		return nil, errors.Wrap(errors.ErrEncodeConstraint, "flush zlib writer", err)
	}

	out := make([]byte, 0, wrapperMinLen+compressed.Len())
	out = append(out, ResumePrefix...)
	out = append(out, resumeID[:]...)

	frameStart := len(out)
	out = binary.BigEndian.AppendUint32(out, uint32(len(payload)))
	out = binary.BigEndian.AppendUint32(out, uint32(compressed.Len()))
	out = append(out, compressed.Bytes()...)
	out = binary.BigEndian.AppendUint32(out, crc32.ChecksumIEEE(out[frameStart:]))
	return out, nil
}

// Decompress 校验并解开压缩包装，返回原始载荷与续传ID
func Decompress(data []byte) ([]byte, ResumeID, error) {
	var rid ResumeID
	if len(data) < wrapperMinLen {
		return nil, rid, errors.Newf(errors.ErrMalformedInput, "compressed wrapper too short: %d", len(data))
	}
	if string(data[:len(ResumePrefix)]) != ResumePrefix {
		return nil, rid, errors.New(errors.ErrMalformedInput, "missing resume_id prefix")
	}
	copy(rid[:], data[len(ResumePrefix):len(ResumePrefix)+ResumeIDLen])

	frame := data[len(ResumePrefix)+ResumeIDLen:]
	body := frame[:len(frame)-frameCRCLen]
	want := binary.BigEndian.Uint32(frame[len(frame)-frameCRCLen:])
	if got := crc32.ChecksumIEEE(body); got != want {
		return nil, rid, errors.Newf(errors.ErrChecksumMismatch, "crc32 mismatch: declare=%08X actual=%08X", want, got)
	}

	rawLen := binary.BigEndian.Uint32(body[0:4])
	compLen := binary.BigEndian.Uint32(body[4:8])
	compressed := body[frameHeaderLen:]
	if uint64(compLen) != uint64(len(compressed)) {
		return nil, rid, errors.Newf(errors.ErrLengthMismatch, "compressed length mismatch: declare=%d actual=%d", compLen, len(compressed))
	}

	zr, err := zlib.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, rid, errors.Wrap(errors.ErrMalformedInput, "open zlib stream", err)
	}
	defer zr.Close()

	// 最多多读1字节，用于发现解压结果超出声明长度
	payload, err := io.ReadAll(io.LimitReader(zr, int64(rawLen)+1))
	if err != nil {
		return nil, rid, errors.Wrap(errors.ErrMalformedInput, "inflate payload", err)
	}
	if uint64(len(payload)) != uint64(rawLen) {
		return nil, rid, errors.Newf(errors.ErrLengthMismatch, "inflated length mismatch: declare=%d actual=%d", rawLen, len(payload))
	}
	return payload, rid, nil
}

// Pack 容器编码后压缩，生成HTTP响应体
func Pack(files []File, resumeID ResumeID) ([]byte, error) {
	container, err := EncodeContainer(files)
	if err != nil {
		return nil, err
	}
	return Compress(container, resumeID)
}

// Unpack 解压后解码容器，解析HTTP请求体
func Unpack(body []byte) ([]File, ResumeID, error) {
	container, rid, err := Decompress(body)
	if err != nil {
		return nil, rid, err
	}
	files, err := DecodeContainer(container)
	if err != nil {
		return nil, rid, err
	}
	return files, rid, nil
}
