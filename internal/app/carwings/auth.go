package carwings

import (
	"context"

	"github.com/bujia-iot/carwings-gateway/pkg/codec"
	"github.com/bujia-iot/carwings-gateway/pkg/textutil"
)

const (
	AuthResultFile  = "AUTHRES.BIN"
	AuthMessageFile = "AUTHMSG.TXT"

	authResultOK     byte = 0x01
	authResultFailed byte = 0x00
	// maxAuthMessage AUTHMSG.TXT 的旧格式长度上限
	maxAuthMessage = 0x80
)

// authResultTemplate 固定的12字节认证结果，最后一个字节为结果
var authResultTemplate = [12]byte{0x01, 0x00, 0x00, 0x0C, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, authResultFailed}

type authHandler struct {
	failureMessage string
}

func newAuthHandler(failureMessage string) *authHandler {
	return &authHandler{failureMessage: textutil.Legacy(failureMessage, maxAuthMessage)}
}

// Handle AP认证握手
func (h *authHandler) Handle(_ context.Context, req *Request) ([]codec.File, error) {
	blob := authResultTemplate
	if req.Authenticated {
		blob[len(blob)-1] = authResultOK
		return []codec.File{{Name: AuthResultFile, Content: blob[:]}}, nil
	}
	return []codec.File{
		{Name: AuthResultFile, Content: blob[:]},
		{Name: AuthMessageFile, Content: []byte(h.failureMessage)},
	}, nil
}
