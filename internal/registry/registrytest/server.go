// Package registrytest 提供一个内存版 Modrinth v2 API，供测试使用。
package registrytest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/go-chi/chi/v5"

	"github.com/John-Robertt/modup/internal/domain"
)

// 路由名，用于 CallsTo。
const (
	RouteSearch          = "search"
	RouteProject         = "project"
	RouteProjectVersions = "project_versions"
	RouteVersion         = "version"
	RouteVersionFile     = "version_file"
	RouteFiles           = "files"
)

// Fixture 是假 registry 的全部数据。
//
// 注意：RegistryFile.URL 以 "/" 开头时，返回前会拼上服务器地址。
type Fixture struct {
	Projects []domain.RegistryProject
	// Versions 按项目 id 索引，新版本在前。
	Versions map[string][]domain.RegistryVersionRecord
	// Hashes 把 sha512 映射到版本 id。
	Hashes map[string]string
	// Files 是 /files/{name} 下可下载的内容。
	Files map[string][]byte
	// HashRefOnly=true 时 /version_file 只返回 {version_id}。
	HashRefOnly bool
}

type Server struct {
	URL string

	srv *httptest.Server
	fx  Fixture

	total      atomic.Int64
	failStatus atomic.Int32

	mu      sync.Mutex
	byRoute map[string]int
}

func New(fx Fixture) *Server {
	s := &Server{fx: fx, byRoute: make(map[string]int)}

	r := chi.NewRouter()
	r.Use(s.count)
	r.Get("/search", s.search)
	r.Get("/project/{id}", s.project)
	r.Get("/project/{id}/version", s.projectVersions)
	r.Get("/version/{id}", s.version)
	r.Get("/version_file/{hash}", s.versionFile)
	r.Get("/files/{name}", s.file)

	s.srv = httptest.NewServer(r)
	s.URL = s.srv.URL
	return s
}

func (s *Server) Close() { s.srv.Close() }

// Calls 返回收到的请求总数。
func (s *Server) Calls() int64 { return s.total.Load() }

// CallsTo 返回某个路由收到的请求数。
func (s *Server) CallsTo(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byRoute[route]
}

// FailWith 让之后的所有请求返回 status；0 恢复正常。
func (s *Server) FailWith(status int) { s.failStatus.Store(int32(status)) }

func (s *Server) count(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.total.Add(1)
		s.mu.Lock()
		s.byRoute[routeName(r.URL.Path)]++
		s.mu.Unlock()

		if st := int(s.failStatus.Load()); st != 0 {
			http.Error(w, http.StatusText(st), st)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func routeName(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	switch {
	case len(parts) == 3 && parts[0] == "project" && parts[2] == "version":
		return RouteProjectVersions
	case len(parts) > 0:
		return parts[0]
	}
	return ""
}

type hitJSON struct {
	ProjectID string `json:"project_id"`
	Slug      string `json:"slug"`
	Title     string `json:"title"`
}

type projectJSON struct {
	ID    string `json:"id"`
	Slug  string `json:"slug"`
	Title string `json:"title"`
}

type fileJSON struct {
	URL      string            `json:"url"`
	Filename string            `json:"filename"`
	Primary  bool              `json:"primary"`
	Size     int64             `json:"size"`
	Hashes   map[string]string `json:"hashes"`
}

type versionJSON struct {
	ID            string     `json:"id"`
	ProjectID     string     `json:"project_id"`
	VersionNumber string     `json:"version_number"`
	Loaders       []string   `json:"loaders"`
	GameVersions  []string   `json:"game_versions"`
	Files         []fileJSON `json:"files"`
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	q := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("query")))
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		limit = 10
	}

	hits := []hitJSON{}
	for _, p := range s.fx.Projects {
		title, slug := strings.ToLower(p.Title), strings.ToLower(p.Slug)
		if q == "" || strings.Contains(title, q) || strings.Contains(slug, q) || (slug != "" && strings.Contains(q, slug)) {
			hits = append(hits, hitJSON{ProjectID: p.ID, Slug: p.Slug, Title: p.Title})
		}
		if len(hits) == limit {
			break
		}
	}
	writeJSON(w, map[string]any{"hits": hits, "limit": limit, "total_hits": len(hits)})
}

func (s *Server) project(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	for _, p := range s.fx.Projects {
		if p.ID == id || p.Slug == id {
			writeJSON(w, projectJSON{ID: p.ID, Slug: p.Slug, Title: p.Title})
			return
		}
	}
	http.NotFound(w, r)
}

func (s *Server) projectVersions(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	vs, ok := s.fx.Versions[id]
	if !ok {
		http.NotFound(w, r)
		return
	}
	loaders, err := jsonList(r.URL.Query().Get("loaders"))
	if err != nil {
		http.Error(w, "bad loaders", http.StatusBadRequest)
		return
	}
	games, err := jsonList(r.URL.Query().Get("game_versions"))
	if err != nil {
		http.Error(w, "bad game_versions", http.StatusBadRequest)
		return
	}

	out := []versionJSON{}
	for _, v := range vs {
		if len(loaders) > 0 && !intersects(v.Loaders, loaders) {
			continue
		}
		if len(games) > 0 && !intersects(v.GameVersions, games) {
			continue
		}
		out = append(out, s.versionJSON(v))
	}
	writeJSON(w, out)
}

func (s *Server) version(w http.ResponseWriter, r *http.Request) {
	if v, ok := s.lookupVersion(chi.URLParam(r, "id")); ok {
		writeJSON(w, s.versionJSON(v))
		return
	}
	http.NotFound(w, r)
}

func (s *Server) versionFile(w http.ResponseWriter, r *http.Request) {
	vid, ok := s.fx.Hashes[strings.ToLower(chi.URLParam(r, "hash"))]
	if !ok {
		http.NotFound(w, r)
		return
	}
	if s.fx.HashRefOnly {
		writeJSON(w, map[string]string{"version_id": vid})
		return
	}
	v, ok := s.lookupVersion(vid)
	if !ok {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, s.versionJSON(v))
}

func (s *Server) file(w http.ResponseWriter, r *http.Request) {
	b, ok := s.fx.Files[chi.URLParam(r, "name")]
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/java-archive")
	_, _ = w.Write(b)
}

func (s *Server) lookupVersion(id string) (domain.RegistryVersionRecord, bool) {
	for _, vs := range s.fx.Versions {
		for _, v := range vs {
			if v.ID == id {
				return v, true
			}
		}
	}
	return domain.RegistryVersionRecord{}, false
}

func (s *Server) versionJSON(v domain.RegistryVersionRecord) versionJSON {
	out := versionJSON{
		ID:            v.ID,
		ProjectID:     v.ProjectID,
		VersionNumber: v.VersionNumber,
		Loaders:       v.Loaders,
		GameVersions:  v.GameVersions,
		Files:         []fileJSON{},
	}
	for _, f := range v.Files {
		u := f.URL
		if strings.HasPrefix(u, "/") {
			u = s.URL + u
		}
		out.Files = append(out.Files, fileJSON{
			URL:      u,
			Filename: f.Filename,
			Primary:  f.Primary,
			Size:     f.Size,
			Hashes:   map[string]string{"sha512": f.SHA512},
		})
	}
	return out
}

func jsonList(raw string) ([]string, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var xs []string
	err := json.Unmarshal([]byte(raw), &xs)
	return xs, err
}

func intersects(have, want []string) bool {
	for _, h := range have {
		for _, w := range want {
			if strings.EqualFold(h, w) {
				return true
			}
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
