package codec

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bujia-iot/carwings-gateway/pkg/errors"
)

func testResumeID() ResumeID {
	var rid ResumeID
	copy(rid[:], "0123456789abcdefghij")
	return rid
}

func TestContainerRoundTrip(t *testing.T) {
	cases := []struct {
		name  string
		files []File
	}{
		{"empty", nil},
		{"two files", []File{
			{Name: "response.xml", Content: []byte("<x/>")},
			{Name: "DATA.001", Content: []byte{0x01, 0x02}},
		}},
		{"empty content", []File{{Name: "EMPTY.BIN", Content: []byte{}}}},
		{"large file", []File{{Name: "BIG.BIN", Content: bytes.Repeat([]byte{0xA5}, 70000)}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			encoded, err := EncodeContainer(tc.files)
			require.NoError(t, err)
			decoded, err := DecodeContainer(encoded)
			require.NoError(t, err)
			require.Len(t, decoded, len(tc.files))
			for i := range tc.files {
				assert.Equal(t, tc.files[i].Name, decoded[i].Name)
				assert.Equal(t, len(tc.files[i].Content), len(decoded[i].Content))
				assert.True(t, bytes.Equal(tc.files[i].Content, decoded[i].Content))
			}
		})
	}
}

func TestContainerLayout(t *testing.T) {
	encoded, err := EncodeContainer([]File{{Name: "A", Content: []byte{0xFF}}})
	require.NoError(t, err)
	want := []byte{
		0, 0, 0, 1, // 文件数
		0, 0, 0, 7, // 正文长度
		'A', 0x00, 0, 0, 0, 1,
		0xFF,
	}
	assert.Equal(t, want, encoded)
}

func TestPackUnpackScenario(t *testing.T) {
	files := []File{
		{Name: "response.xml", Content: []byte("<x/>")},
		{Name: "DATA.001", Content: []byte{0x01, 0x02}},
	}
	body, err := Pack(files, testResumeID())
	require.NoError(t, err)

	got, rid, err := Unpack(body)
	require.NoError(t, err)
	assert.Equal(t, testResumeID(), rid)
	require.Len(t, got, 2)
	assert.Equal(t, "response.xml", got[0].Name)
	assert.Equal(t, []byte("<x/>"), got[0].Content)
	assert.Equal(t, "DATA.001", got[1].Name)
	assert.Equal(t, []byte{0x01, 0x02}, got[1].Content)
}

func TestCompressRoundTrip(t *testing.T) {
	payloads := [][]byte{
		{},
		[]byte("hello carwings"),
		bytes.Repeat([]byte("0123456789"), 5000),
	}
	for _, p := range payloads {
		wrapped, err := Compress(p, testResumeID())
		require.NoError(t, err)
		got, _, err := Decompress(wrapped)
		require.NoError(t, err)
		assert.True(t, bytes.Equal(p, got))
	}
}

func TestDecompressDetectsEveryBitFlip(t *testing.T) {
	wrapped, err := Compress([]byte("DATA.001 payload for bit flip"), testResumeID())
	require.NoError(t, err)

	frameStart := len(ResumePrefix) + ResumeIDLen
	for i := frameStart; i < len(wrapped); i++ {
		for bit := 0; bit < 8; bit++ {
			corrupted := append([]byte(nil), wrapped...)
			corrupted[i] ^= 1 << bit
			_, _, err := Decompress(corrupted)
			if !errors.IsErrCode(err, errors.ErrChecksumMismatch) {
				t.Fatalf("字节%d位%d翻转后期望校验失败, 实际: %v", i, bit, err)
			}
		}
	}
}

func TestDecompressRejectsMalformed(t *testing.T) {
	wrapped, err := Compress([]byte("abc"), testResumeID())
	require.NoError(t, err)

	_, _, err = Decompress(wrapped[:10])
	assert.True(t, errors.IsErrCode(err, errors.ErrMalformedInput))

	bad := append([]byte("resume_ix:"), wrapped[len(ResumePrefix):]...)
	_, _, err = Decompress(bad)
	assert.True(t, errors.IsErrCode(err, errors.ErrMalformedInput))
}

func TestDecodeContainerRejectsOverrun(t *testing.T) {
	encoded, err := EncodeContainer([]File{{Name: "A", Content: []byte{1, 2, 3}}})
	require.NoError(t, err)

	// 截断内容但保持声明的正文长度
	_, err = DecodeContainer(encoded[:len(encoded)-1])
	assert.True(t, errors.IsErrCode(err, errors.ErrLengthMismatch))

	// 伪造超大内容长度
	forged := append([]byte(nil), encoded...)
	forged[10+2] = 0x7F
	_, err = DecodeContainer(forged)
	assert.Error(t, err)

	// 声明的文件数远超正文
	forged = append([]byte(nil), encoded...)
	forged[0] = 0xFF
	_, err = DecodeContainer(forged)
	assert.True(t, errors.IsErrCode(err, errors.ErrMalformedInput))
}

func TestEncodeContainerRejectsBadName(t *testing.T) {
	_, err := EncodeContainer([]File{{Name: "", Content: nil}})
	assert.True(t, errors.IsErrCode(err, errors.ErrEncodeConstraint))
	_, err = EncodeContainer([]File{{Name: "A\x00B"}})
	assert.True(t, errors.IsErrCode(err, errors.ErrEncodeConstraint))
}
