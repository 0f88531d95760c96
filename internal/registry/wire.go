package registry

import (
	"strings"

	"github.com/John-Robertt/modup/internal/domain"
)

// 以下是 Modrinth v2 的响应结构，只声明用到的字段。

type searchResponse struct {
	Hits []searchHit `json:"hits"`
}

type searchHit struct {
	ProjectID string `json:"project_id"`
	Slug      string `json:"slug"`
	Title     string `json:"title"`
}

type projectWire struct {
	ID    string `json:"id"`
	Slug  string `json:"slug"`
	Title string `json:"title"`
}

type versionWire struct {
	ID            string     `json:"id"`
	VersionID     string     `json:"version_id"`
	ProjectID     string     `json:"project_id"`
	VersionNumber string     `json:"version_number"`
	Loaders       []string   `json:"loaders"`
	GameVersions  []string   `json:"game_versions"`
	Files         []fileWire `json:"files"`
}

type fileWire struct {
	URL      string            `json:"url"`
	Filename string            `json:"filename"`
	Primary  bool              `json:"primary"`
	Size     int64             `json:"size"`
	Hashes   map[string]string `json:"hashes"`
}

func (v versionWire) toDomain() domain.RegistryVersionRecord {
	rec := domain.RegistryVersionRecord{
		ID:            v.ID,
		ProjectID:     v.ProjectID,
		VersionNumber: strings.TrimSpace(v.VersionNumber),
		Loaders:       v.Loaders,
		GameVersions:  v.GameVersions,
		Files:         make([]domain.RegistryFile, 0, len(v.Files)),
	}
	for _, f := range v.Files {
		rec.Files = append(rec.Files, domain.RegistryFile{
			Filename: f.Filename,
			URL:      f.URL,
			Primary:  f.Primary,
			SHA512:   strings.ToLower(f.Hashes["sha512"]),
			Size:     f.Size,
		})
	}
	return rec
}
