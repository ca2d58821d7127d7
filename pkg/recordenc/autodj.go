package recordenc

import (
	"github.com/bujia-iot/carwings-gateway/pkg/errors"
)

// AutoDJ条目字段上限
const (
	MaxTitle     = 0x20
	MaxText      = 0x400
	MaxPhone     = 0x18
	MaxImage     = 0x5000
	MaxItems     = 6
	MaxMessage   = 0x40
	MaxDirName   = 0x20
	MaxFavorites = 0x40
)

// 条目标志位
const (
	ItemFlagNavigable uint8 = 1 << 0 // 可设为目的地
	ItemFlagCallable  uint8 = 1 << 1 // 可拨号
	ItemFlagHasImage  uint8 = 1 << 2
)

// Item AutoDJ条目
type Item struct {
	Icon       uint8
	Flags      uint8
	Title1     string
	Title2     string
	Text       string
	Phone      string
	Coordinate [10]byte
	Image      []byte
}

// FooterTag 载荷尾部类型
type FooterTag uint8

const (
	FooterEnd       FooterTag = 2
	FooterNextPage  FooterTag = 3
	FooterRefresh   FooterTag = 4
	FooterRedirect  FooterTag = 6
	FooterMessage   FooterTag = 7
	FooterMapCentre FooterTag = 8
	FooterTimestamp FooterTag = 10
)

// Footer 载荷尾部，按Tag使用对应字段
type Footer struct {
	Tag        FooterTag
	Value      uint16 // 下一页偏移 / 刷新分钟 / 跳转频道
	Message    string
	Coordinate [10]byte
	Timestamp  uint32
}

func EndFooter() Footer { return Footer{Tag: FooterEnd} }

func NextPageFooter(offset uint16) Footer { return Footer{Tag: FooterNextPage, Value: offset} }

func RefreshFooter(minutes uint16) Footer { return Footer{Tag: FooterRefresh, Value: minutes} }

func RedirectFooter(channel uint16) Footer { return Footer{Tag: FooterRedirect, Value: channel} }

func MessageFooter(msg string) Footer { return Footer{Tag: FooterMessage, Message: msg} }

func MapCentreFooter(coord [10]byte) Footer { return Footer{Tag: FooterMapCentre, Coordinate: coord} }

func TimestampFooter(unix uint32) Footer { return Footer{Tag: FooterTimestamp, Timestamp: unix} }

// writeItem 条目布局:
// [u8 图标][u8 标志][str8 标题1][str8 标题2][str16 正文][str8 电话][10B 坐标][u32 图片长度][图片]
func writeItem(w *Writer, it Item) {
	flags := it.Flags
	if len(it.Image) > 0 {
		flags |= ItemFlagHasImage
	}
	w.U8(it.Icon).U8(flags).
		Str8("title1", it.Title1, MaxTitle).
		Str8("title2", it.Title2, MaxTitle).
		Str16("text", it.Text, MaxText).
		Str8("phone", it.Phone, MaxPhone).
		Raw(it.Coordinate[:]).
		Blob32("image", it.Image, MaxImage)
}

func writeFooter(w *Writer, f Footer) {
	w.U8(uint8(f.Tag))
	switch f.Tag {
	case FooterEnd:
	case FooterNextPage, FooterRefresh, FooterRedirect:
		w.U16(f.Value)
	case FooterMessage:
		w.Str8("footer message", f.Message, MaxMessage)
	case FooterMapCentre:
		w.Raw(f.Coordinate[:])
	case FooterTimestamp:
		w.U32(f.Timestamp)
	default:
		w.Fail(errors.Newf(errors.ErrEncodeConstraint, "unknown footer tag %d", f.Tag))
	}
}

// EncodeItems 编码频道内容载荷: [u8 条目数]{条目}[尾部]
func EncodeItems(items []Item, footer Footer) ([]byte, error) {
	if len(items) > MaxItems {
		return nil, errors.Newf(errors.ErrEncodeConstraint, "items: %d exceeds %d", len(items), MaxItems)
	}
	w := NewWriter(256)
	w.U8(uint8(len(items)))
	for _, it := range items {
		writeItem(w, it)
	}
	writeFooter(w, footer)
	return w.Finish()
}

// Channel 目录中的频道
type Channel struct {
	ID           uint16
	Name         string
	Icon         uint8
	AuthRequired bool
}

// Folder 目录中的文件夹
type Folder struct {
	ID       uint16
	Name     string
	Channels []Channel
}

// EncodeDirectory 编码频道目录与收藏列表
// [u8 文件夹数]{[u16 id][str8 名称][u8 频道数]{[u16 id][str8 名称][u8 图标][u8 标志]}}
// [u8 收藏数]{[u16 频道id]}
func EncodeDirectory(folders []Folder, favorites []uint16) ([]byte, error) {
	if len(folders) > 0xFF {
		return nil, errors.Newf(errors.ErrEncodeConstraint, "folders: %d exceeds 255", len(folders))
	}
	if len(favorites) > MaxFavorites {
		return nil, errors.Newf(errors.ErrEncodeConstraint, "favorites: %d exceeds %d", len(favorites), MaxFavorites)
	}
	w := NewWriter(512)
	w.U8(uint8(len(folders)))
	for _, f := range folders {
		if len(f.Channels) > 0xFF {
			return nil, errors.Newf(errors.ErrEncodeConstraint, "folder %d: %d channels exceeds 255", f.ID, len(f.Channels))
		}
		w.U16(f.ID).Str8("folder name", f.Name, MaxDirName).U8(uint8(len(f.Channels)))
		for _, ch := range f.Channels {
			var flags uint8
			if ch.AuthRequired {
				flags |= 0x01
			}
			w.U16(ch.ID).Str8("channel name", ch.Name, MaxDirName).U8(ch.Icon).U8(flags)
		}
	}
	w.U8(uint8(len(favorites)))
	for _, id := range favorites {
		w.U16(id)
	}
	return w.Finish()
}
