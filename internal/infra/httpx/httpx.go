package httpx

import (
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultUserAgent = "John-Robertt/modup (github.com/John-Robertt/modup)"

	defaultTimeout  = 30 * time.Second
	defaultRetryMax = 2
	defaultBackoff  = 300 * time.Millisecond
)

// Options 描述一个 HTTP client 的网络策略。零值可用。
type Options struct {
	ProxyURL  string
	UserAgent string
	// Timeout 是单次请求（含读完 body）的总超时；<0 表示不设总超时（大文件下载）。
	Timeout time.Duration
	// RetryMax 表示最大重试次数（不含首次尝试）；0 取默认值，<0 关闭重试。
	RetryMax int
	// Backoff 是首次重试前的等待，之后每次翻倍。
	Backoff time.Duration
}

// Transport 把“固定 UA + 代理 + 有界重试”固化为统一策略。
//
// registry 客户端只负责“拼 URL + 解码 JSON”，不关心网络策略细节。
type Transport struct {
	Base      http.RoundTripper
	UserAgent string
	RetryMax  int
	Backoff   time.Duration

	// sleep 可替换，测试里不真的等待。
	sleep func(req *http.Request, d time.Duration) error
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, errors.New("nil request")
	}
	if t.Base == nil {
		return nil, errors.New("nil base transport")
	}

	// 只对“可重放”的请求做重试：GET/HEAD 且无 body。
	canRetry := (req.Method == http.MethodGet || req.Method == http.MethodHead) &&
		(req.Body == nil || req.Body == http.NoBody)
	max := t.RetryMax
	if max < 0 || !canRetry {
		max = 0
	}

	var lastErr error
	wait := t.Backoff
	for attempt := 0; attempt <= max; attempt++ {
		if attempt > 0 {
			if err := t.pause(req, wait); err != nil {
				return nil, lastErr
			}
			wait *= 2
		}

		r := req.Clone(req.Context())
		if r.Header.Get("User-Agent") == "" && t.UserAgent != "" {
			r.Header.Set("User-Agent", t.UserAgent)
		}

		resp, err := t.Base.RoundTrip(r)
		if err == nil {
			if !retryableStatus(resp.StatusCode) || attempt == max {
				return resp, nil
			}
			// 丢弃本次 body，复用连接。
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
			_ = resp.Body.Close()
			lastErr = &RetryableStatusError{StatusCode: resp.StatusCode}
			continue
		}
		lastErr = err
		if req.Context().Err() != nil {
			// ctx 已取消：不再重试，直接返回最后错误（更可解释）。
			return nil, lastErr
		}
	}
	return nil, lastErr
}

func (t *Transport) pause(req *http.Request, d time.Duration) error {
	if t.sleep != nil {
		return t.sleep(req, d)
	}
	if d <= 0 {
		return req.Context().Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-req.Context().Done():
		return req.Context().Err()
	case <-timer.C:
		return nil
	}
}

// 网关类错误通常是瞬时的；429 交给上层按“不可达”处理，不在这里硬等。
func retryableStatus(code int) bool {
	switch code {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// RetryableStatusError 只在最后一次尝试之前出现；用于解释 ctx 取消时的最后状态。
type RetryableStatusError struct {
	StatusCode int
}

func (e *RetryableStatusError) Error() string {
	return "httpx: retryable status " + http.StatusText(e.StatusCode)
}

// NewClient 按 opts 构造 HTTP client。
//
// 规则：
// - ProxyURL 非空：必须走代理，且禁用 keep-alive（每请求新连接）
// - ProxyURL 为空：沿用环境变量代理（HTTPS_PROXY 等）
// - 固定 UA + 有界重试 + 总超时
func NewClient(opts Options) (*http.Client, error) {
	base := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 15 * time.Second,
		MaxIdleConnsPerHost:   16,
	}

	if p := strings.TrimSpace(opts.ProxyURL); p != "" {
		u, err := url.Parse(p)
		if err != nil {
			return nil, err
		}
		if u.Scheme == "" || u.Host == "" {
			return nil, errors.New("proxy.url 必须是完整 URL（例如 http://127.0.0.1:7890）")
		}
		base.Proxy = http.ProxyURL(u)
		base.DisableKeepAlives = true
	}

	ua := strings.TrimSpace(opts.UserAgent)
	if ua == "" {
		ua = DefaultUserAgent
	}
	retry := opts.RetryMax
	if retry == 0 {
		retry = defaultRetryMax
	}
	backoff := opts.Backoff
	if backoff == 0 {
		backoff = defaultBackoff
	}
	timeout := opts.Timeout
	switch {
	case timeout == 0:
		timeout = defaultTimeout
	case timeout < 0:
		timeout = 0
	}

	return &http.Client{
		Transport: &Transport{
			Base:      base,
			UserAgent: ua,
			RetryMax:  retry,
			Backoff:   backoff,
		},
		Timeout: timeout,
	}, nil
}
