package events

import "github.com/ceyewan/chanlock/xerrors"

var (
	// ErrConfigNil 配置为空
	ErrConfigNil = xerrors.New("events: config is nil")

	// ErrInvalidConfig 配置无效
	ErrInvalidConfig = xerrors.Wrap(xerrors.ErrInvalidInput, "events: invalid config")

	// ErrConnectorRequired 所选驱动缺少对应的连接器
	ErrConnectorRequired = xerrors.New("events: connector required by driver")
)
