package auth

import (
	"slices"

	"github.com/golang-jwt/jwt/v5"
)

// Claims 管理 API 的 JWT 载荷
//
// Subject 为调用方标识（运维人员或外部系统），Roles 控制可访问的接口。
type Claims struct {
	jwt.RegisteredClaims

	Roles []string `json:"roles,omitempty"`
}

// HasRole 报告载荷是否包含 role
func (c *Claims) HasRole(role string) bool {
	return slices.Contains(c.Roles, role)
}
