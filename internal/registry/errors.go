package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/John-Robertt/modup/internal/domain"
)

// ErrNotFound 对应 registry 的 404（哈希未收录、项目不存在）。它是“未命中”，不是故障。
var ErrNotFound = errors.New("registry: not found")

// HTTPStatusError 表示 registry 返回了非 2xx 的 HTTP 状态码。
type HTTPStatusError struct {
	URL        string
	StatusCode int
	Location   string
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "HTTP status error"
	}
	loc := strings.TrimSpace(e.Location)
	if loc == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("HTTP %d location=%s", e.StatusCode, loc)
}

// Is 让 errors.Is(err, ErrNotFound) 对 404 成立。
func (e *HTTPStatusError) Is(target error) bool {
	return target == ErrNotFound && e != nil && e.StatusCode == 404
}

// BlockedError 表示本应是 JSON 的响应变成了 HTML 页面（CDN 拦截/验证页、代理错误页）。
// 不尝试绕过，直接视为不可达。
type BlockedError struct {
	URL    string
	Reason string // 页面 <title>，可能为空
}

func (e *BlockedError) Error() string {
	if e == nil || strings.TrimSpace(e.Reason) == "" {
		return "blocked"
	}
	return "blocked: " + strings.TrimSpace(e.Reason)
}

// MalformedError 表示响应体无法按约定结构解码。
type MalformedError struct {
	URL string
	Err error
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("响应无法解析（%s）：%v", e.URL, e.Err)
}

func (e *MalformedError) Unwrap() error { return e.Err }

// Kind 把 Client 返回的 error 映射为 ErrorKind；nil 返回空串。
//
// 注意：404 归为 no_confident_match（“没查到”），其余传输/状态失败都是 registry_unreachable。
func Kind(err error) domain.ErrorKind {
	if err == nil {
		return ""
	}
	var me *MalformedError
	if errors.As(err, &me) {
		return domain.ErrRegistryResponseMalformed
	}
	if errors.Is(err, ErrNotFound) {
		return domain.ErrNoConfidentMatch
	}
	if errors.Is(err, context.Canceled) {
		return domain.ErrCanceled
	}
	return domain.ErrRegistryUnreachable
}
