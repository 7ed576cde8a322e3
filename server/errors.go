package server

import "github.com/ceyewan/chanlock/xerrors"

var (
	ErrConfigNil     = xerrors.New("server: config is nil")
	ErrServiceNil    = xerrors.New("server: service is nil")
	ErrInvalidConfig = xerrors.Wrap(xerrors.ErrInvalidInput, "server: invalid config")
)
