package chanlock

import "github.com/ceyewan/chanlock/xerrors"

var (
	ErrConfigNil   = xerrors.New("chanlock: config is nil")
	ErrStoreNil    = xerrors.New("chanlock: store is nil")
	ErrNotifierNil = xerrors.New("chanlock: notifier is nil")

	// ErrInvalidRequest 请求缺少频道或用户，在访问存储之前拒绝
	ErrInvalidRequest = xerrors.Wrap(xerrors.ErrInvalidInput, "chanlock: invalid request")
)
