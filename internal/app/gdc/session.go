package gdc

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"sync"

	"github.com/looplab/fsm"

	"github.com/bujia-iot/carwings-gateway/internal/infrastructure/logger"
)

// 会话状态
const (
	StateUnidentified  = "unidentified"
	StateIdentified    = "identified"
	StateAuthenticated = "authenticated"
)

// 会话事件
const (
	EventIdentify     = "identify"
	EventAuthenticate = "authenticate"
)

// Session 单条TCP连接上的会话状态机。连接首次识别出的VIN被绑定，之后只接受同一VIN
type Session struct {
	*fsm.FSM

	ConnID     uint64
	RemoteAddr string

	mu         sync.Mutex // 串行化同一连接上的帧处理
	vin        string
	ownerHash  string // 认证时注册表中的密码哈希
	credDigest []byte
}

// NewSession 创建会话
func NewSession(connID uint64, remoteAddr string) *Session {
	s := &Session{ConnID: connID, RemoteAddr: remoteAddr}

	events := fsm.Events{
		{Name: EventIdentify, Src: []string{StateUnidentified}, Dst: StateIdentified},
		{Name: EventAuthenticate, Src: []string{StateIdentified}, Dst: StateAuthenticated},
	}
	callbacks := fsm.Callbacks{
		"enter_" + StateIdentified: func(_ context.Context, e *fsm.Event) {
			if len(e.Args) > 0 {
				s.vin, _ = e.Args[0].(string)
			}
		},
		"enter_state": func(_ context.Context, e *fsm.Event) {
			logger.WithField("connID", s.ConnID).
				WithField("vin", s.vin).
				Debugf("GDC会话状态 %s -> %s", e.Src, e.Dst)
		},
	}
	s.FSM = fsm.NewFSM(StateUnidentified, events, callbacks)
	return s
}

// VIN 已绑定的VIN，未识别时为空
func (s *Session) VIN() string {
	return s.vin
}

// Authenticated 是否已通过认证
func (s *Session) Authenticated() bool {
	return s.Is(StateAuthenticated)
}

// bind 首帧绑定VIN；已绑定时只校验一致性
func (s *Session) bind(ctx context.Context, vin string) bool {
	if s.Is(StateUnidentified) {
		return s.Event(ctx, EventIdentify, vin) == nil
	}
	return s.vin == vin
}

// authenticate 记录认证通过。ownerHash为校验所依据的密码哈希，digest为通过校验的凭据摘要，
// 用于后续帧跳过bcrypt；免认证车辆两者都为空
func (s *Session) authenticate(ctx context.Context, ownerHash string, digest []byte) {
	s.ownerHash = ownerHash
	s.credDigest = digest
	if s.Is(StateIdentified) {
		_ = s.Event(ctx, EventAuthenticate)
	}
}

// verifiedAgainst 连接曾用当前注册表中的密码哈希完成认证；车主改密后失效
func (s *Session) verifiedAgainst(ownerHash string) bool {
	return s.Authenticated() && s.credDigest != nil && s.ownerHash == ownerHash
}

// sameCredentials 凭据与认证时一致，且车主密码未改变
func (s *Session) sameCredentials(ownerHash, username, password string) bool {
	if !s.verifiedAgainst(ownerHash) {
		return false
	}
	return subtle.ConstantTimeCompare(s.credDigest, credentialDigest(ownerHash, username, password)) == 1
}

func credentialDigest(ownerHash, username, password string) []byte {
	sum := sha256.Sum256([]byte(ownerHash + "\x00" + username + "\x00" + password))
	return sum[:]
}
