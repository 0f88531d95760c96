package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/charmbracelet/log"

	"github.com/John-Robertt/modup/internal/domain"
	"github.com/John-Robertt/modup/internal/infra/logx"
)

const (
	DefaultBaseURL = "https://api.modrinth.com/v2"
	DefaultTimeout = 8 * time.Second

	// 单个响应体上限；项目版本列表是最大的响应，几 MB 已经足够。
	maxBodySize = 16 << 20
)

// Client 是 Modrinth v2 API 的最小只读客户端。
//
// 约束：
// - 每次调用都有独立超时（默认 8s），与调用方 ctx 取最早者
// - 不做缓存；重试与代理由注入的 http.Client（httpx）负责
// - 返回的 error 可用 Kind 映射为 ErrorKind
type Client struct {
	http      *http.Client
	baseURL   string
	userAgent string
	timeout   time.Duration
	log       *log.Logger
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.http = c
		}
	}
}

func WithBaseURL(u string) Option {
	return func(cl *Client) {
		if u = strings.TrimRight(strings.TrimSpace(u), "/"); u != "" {
			cl.baseURL = u
		}
	}
}

// WithUserAgent 只在注入的 http.Client 没有设置 UA 时生效。
func WithUserAgent(ua string) Option {
	return func(cl *Client) { cl.userAgent = strings.TrimSpace(ua) }
}

func WithTimeout(d time.Duration) Option {
	return func(cl *Client) {
		if d > 0 {
			cl.timeout = d
		}
	}
}

func WithLogger(l *log.Logger) Option {
	return func(cl *Client) { cl.log = logx.OrDiscard(l) }
}

func New(opts ...Option) *Client {
	c := &Client{
		http:    http.DefaultClient,
		baseURL: DefaultBaseURL,
		timeout: DefaultTimeout,
		log:     logx.Discard(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) BaseURL() string { return c.baseURL }

// Search 按关键词搜索项目，保持 registry 返回的相关度顺序。
func (c *Client) Search(ctx context.Context, query string, limit int) ([]domain.RegistryProject, error) {
	if limit <= 0 {
		limit = 10
	}
	q := url.Values{}
	q.Set("query", query)
	q.Set("limit", strconv.Itoa(limit))

	var resp searchResponse
	if err := c.getJSON(ctx, "/search", q, &resp); err != nil {
		return nil, err
	}
	out := make([]domain.RegistryProject, 0, len(resp.Hits))
	for _, h := range resp.Hits {
		if h.ProjectID == "" {
			continue
		}
		out = append(out, domain.RegistryProject{ID: h.ProjectID, Title: h.Title, Slug: h.Slug})
	}
	return out, nil
}

// Project 读取项目标题与 slug。
func (c *Client) Project(ctx context.Context, id string) (domain.RegistryProject, error) {
	var p projectWire
	if err := c.getJSON(ctx, "/project/"+url.PathEscape(id), nil, &p); err != nil {
		return domain.RegistryProject{}, err
	}
	if p.ID == "" {
		return domain.RegistryProject{}, &MalformedError{URL: c.baseURL + "/project/" + id, Err: errors.New("缺少 id")}
	}
	return domain.RegistryProject{ID: p.ID, Title: p.Title, Slug: p.Slug}, nil
}

// ProjectVersions 列出项目版本（registry 按发布时间倒序返回）。
// loaders/gameVersions 为空表示不过滤；非空时以 JSON 数组形式传参。
func (c *Client) ProjectVersions(ctx context.Context, projectID string, loaders, gameVersions []string) ([]domain.RegistryVersionRecord, error) {
	q := url.Values{}
	if len(loaders) > 0 {
		q.Set("loaders", jsonArray(loaders))
	}
	if len(gameVersions) > 0 {
		q.Set("game_versions", jsonArray(gameVersions))
	}

	var vs []versionWire
	if err := c.getJSON(ctx, "/project/"+url.PathEscape(projectID)+"/version", q, &vs); err != nil {
		return nil, err
	}
	out := make([]domain.RegistryVersionRecord, 0, len(vs))
	for _, v := range vs {
		out = append(out, v.toDomain())
	}
	return out, nil
}

// Version 读取单个版本。
func (c *Client) Version(ctx context.Context, id string) (domain.RegistryVersionRecord, error) {
	var v versionWire
	if err := c.getJSON(ctx, "/version/"+url.PathEscape(id), nil, &v); err != nil {
		return domain.RegistryVersionRecord{}, err
	}
	if v.ID == "" {
		return domain.RegistryVersionRecord{}, &MalformedError{URL: c.baseURL + "/version/" + id, Err: errors.New("缺少 id")}
	}
	return v.toDomain(), nil
}

// HashMatch 是按文件哈希命中的版本引用。
// 部分镜像只返回 {version_id}，此时 Record 为 nil，需要再查一次 Version。
type HashMatch struct {
	VersionID string
	Record    *domain.RegistryVersionRecord
}

// VersionFromHash 按 SHA-512 查找文件所属版本；未收录返回 ErrNotFound。
func (c *Client) VersionFromHash(ctx context.Context, sha512 string) (HashMatch, error) {
	q := url.Values{}
	q.Set("algorithm", "sha512")

	var v versionWire
	if err := c.getJSON(ctx, "/version_file/"+url.PathEscape(sha512), q, &v); err != nil {
		return HashMatch{}, err
	}
	switch {
	case v.ID != "" && v.ProjectID != "":
		rec := v.toDomain()
		return HashMatch{VersionID: rec.ID, Record: &rec}, nil
	case v.VersionID != "":
		return HashMatch{VersionID: v.VersionID}, nil
	case v.ID != "":
		return HashMatch{VersionID: v.ID}, nil
	default:
		return HashMatch{}, &MalformedError{URL: c.baseURL + "/version_file/" + sha512, Err: errors.New("缺少 version id")}
	}
}

func (c *Client) getJSON(ctx context.Context, path string, q url.Values, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Debug("registry 请求失败", "url", u, "err", err)
		return err
	}
	defer resp.Body.Close()
	c.log.Debug("registry 请求", "url", u, "status", resp.StatusCode, "dur", time.Since(start).Round(time.Millisecond))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &HTTPStatusError{URL: u, StatusCode: resp.StatusCode, Location: resp.Header.Get("Location")}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return err
	}
	if looksLikeHTML(resp.Header.Get("Content-Type"), body) {
		return &BlockedError{URL: u, Reason: htmlTitle(body)}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &MalformedError{URL: u, Err: err}
	}
	return nil
}

func looksLikeHTML(contentType string, body []byte) bool {
	if mt, _, err := mime.ParseMediaType(contentType); err == nil && mt == "text/html" {
		return true
	}
	return bytes.HasPrefix(bytes.TrimSpace(body), []byte("<"))
}

// htmlTitle 取拦截页的 <title> 作为可读原因。
func htmlTitle(body []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	return strings.Join(strings.Fields(doc.Find("title").First().Text()), " ")
}

func jsonArray(xs []string) string {
	b, _ := json.Marshal(xs)
	return string(b)
}
