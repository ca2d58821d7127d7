// Package codec 实现CARWINGS文件信封的封包/解包：多文件容器、zlib压缩与CRC32校验。
package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/bujia-iot/carwings-gateway/pkg/errors"
)

// 容器头：文件数(4字节) + 正文长度(4字节)
const containerHeaderLen = 8

// File 容器中的一个命名文件
type File struct {
	Name    string
	Content []byte
}

// EncodeContainer 编码多文件容器
// 格式: [u32 文件数][u32 正文长度][正文]
// 正文: 每个文件 "名称 + 0x00 + u32 内容长度"，随后按相同顺序拼接所有文件内容
func EncodeContainer(files []File) ([]byte, error) {
	var headers bytes.Buffer
	contentLen := 0
	for i, f := range files {
		if err := validateName(f.Name); err != nil {
			return nil, errors.Wrap(errors.ErrEncodeConstraint, fmt.Sprintf("file %d: invalid name", i), err)
		}
		headers.WriteString(f.Name)
		headers.WriteByte(0x00)
		var size [4]byte
		binary.BigEndian.PutUint32(size[:], uint32(len(f.Content)))
		headers.Write(size[:])
		contentLen += len(f.Content)
	}

	bodyLen := headers.Len() + contentLen
	out := make([]byte, containerHeaderLen, containerHeaderLen+bodyLen)
	binary.BigEndian.PutUint32(out[0:4], uint32(len(files)))
	binary.BigEndian.PutUint32(out[4:8], uint32(bodyLen))
	out = append(out, headers.Bytes()...)
	for _, f := range files {
		out = append(out, f.Content...)
	}
	return out, nil
}

// DecodeContainer 解码多文件容器
// 以编码端的4字节长度字段为准；任何越界、声明长度不符或多余字节都视为格式错误
func DecodeContainer(data []byte) ([]File, error) {
	if len(data) < containerHeaderLen {
		return nil, errors.Newf(errors.ErrMalformedInput, "container too short: %d", len(data))
	}
	count := binary.BigEndian.Uint32(data[0:4])
	bodyLen := binary.BigEndian.Uint32(data[4:8])
	body := data[containerHeaderLen:]
	if uint64(bodyLen) != uint64(len(body)) {
		return nil, errors.Newf(errors.ErrLengthMismatch, "container body length mismatch: declare=%d actual=%d", bodyLen, len(body))
	}
	// 每个文件头至少 1字节名称 + 0x00 + 4字节长度
	if uint64(count)*6 > uint64(len(body)) {
		return nil, errors.Newf(errors.ErrMalformedInput, "container declares %d files in %d bytes", count, len(body))
	}

	type header struct {
		name string
		size uint32
	}
	headers := make([]header, 0, count)
	pos := 0
	for i := uint32(0); i < count; i++ {
		end := bytes.IndexByte(body[pos:], 0x00)
		if end <= 0 {
			return nil, errors.Newf(errors.ErrMalformedInput, "file header %d: missing name terminator", i)
		}
		name := string(body[pos : pos+end])
		pos += end + 1
		if pos+4 > len(body) {
			return nil, errors.Newf(errors.ErrMalformedInput, "file header %d: truncated length", i)
		}
		size := binary.BigEndian.Uint32(body[pos : pos+4])
		pos += 4
		headers = append(headers, header{name: name, size: size})
	}

	files := make([]File, 0, count)
	for i, h := range headers {
		if uint64(pos)+uint64(h.size) > uint64(len(body)) {
			return nil, errors.Newf(errors.ErrLengthMismatch, "file %d (%s): content overruns body", i, h.name)
		}
		content := make([]byte, h.size)
		copy(content, body[pos:pos+int(h.size)])
		pos += int(h.size)
		files = append(files, File{Name: h.name, Content: content})
	}
	if pos != len(body) {
		return nil, errors.Newf(errors.ErrLengthMismatch, "container has %d trailing bytes", len(body)-pos)
	}
	return files, nil
}

func validateName(name string) error {
	if name == "" {
		return errors.New(errors.ErrInvalidParameter, "empty file name")
	}
	for i := 0; i < len(name); i++ {
		if name[i] == 0x00 || name[i] > 0x7E {
			return errors.Newf(errors.ErrInvalidParameter, "file name %q contains byte 0x%02X", name, name[i])
		}
	}
	return nil
}
