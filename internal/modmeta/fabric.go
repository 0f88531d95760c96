package modmeta

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/John-Robertt/modup/internal/domain"
)

type fabricManifest struct {
	ID      string         `json:"id"`
	Name    string         `json:"name"`
	Version string         `json:"version"`
	Depends map[string]any `json:"depends"`
}

type quiltManifest struct {
	QuiltLoader struct {
		ID       string `json:"id"`
		Version  string `json:"version"`
		Metadata struct {
			Name string `json:"name"`
		} `json:"metadata"`
		Depends []any `json:"depends"`
	} `json:"quilt_loader"`
}

// 清单 JSON 损坏时（常见：字符串里有裸换行、尾逗号）按字段挽回。
var (
	jsonIDRE      = regexp.MustCompile(`"id"\s*:\s*"([^"]*)"`)
	jsonNameRE    = regexp.MustCompile(`"name"\s*:\s*"([^"]*)"`)
	jsonVersionRE = regexp.MustCompile(`"version"\s*:\s*"([^"]*)"`)
	jsonMCDepRE   = regexp.MustCompile(`"minecraft"\s*:\s*("[^"]*"|\[[^\]]*\])`)
)

func parseFabric(raw []byte, _ *zipIndex) (domain.ExtractedMetadata, error) {
	meta := domain.ExtractedMetadata{Loaders: []domain.LoaderFamily{domain.LoaderFabric}}

	var m fabricManifest
	if err := json.Unmarshal(raw, &m); err != nil {
		salvageJSON(&meta, raw)
		return meta, err
	}

	meta.ModID = strings.TrimSpace(m.ID)
	meta.Name = strings.TrimSpace(m.Name)
	meta.Version = cleanVersion(m.Version)
	if v, ok := m.Depends["minecraft"]; ok {
		meta.GameVersion = firstGameVersion(v)
	}
	return meta, nil
}

func parseQuilt(raw []byte, _ *zipIndex) (domain.ExtractedMetadata, error) {
	meta := domain.ExtractedMetadata{Loaders: []domain.LoaderFamily{domain.LoaderQuilt}}

	var m quiltManifest
	if err := json.Unmarshal(raw, &m); err != nil {
		salvageJSON(&meta, raw)
		return meta, err
	}

	ql := m.QuiltLoader
	meta.ModID = strings.TrimSpace(ql.ID)
	meta.Name = strings.TrimSpace(ql.Metadata.Name)
	meta.Version = cleanVersion(ql.Version)
	for _, d := range ql.Depends {
		obj, ok := d.(map[string]any)
		if !ok {
			continue
		}
		if id, _ := obj["id"].(string); id != "minecraft" {
			continue
		}
		meta.GameVersion = firstGameVersion(obj["versions"])
		break
	}
	return meta, nil
}

func salvageJSON(meta *domain.ExtractedMetadata, raw []byte) {
	s := string(raw)
	if m := jsonIDRE.FindStringSubmatch(s); m != nil {
		meta.ModID = strings.TrimSpace(m[1])
	}
	if m := jsonNameRE.FindStringSubmatch(s); m != nil {
		meta.Name = strings.TrimSpace(m[1])
	}
	if m := jsonVersionRE.FindStringSubmatch(s); m != nil {
		meta.Version = cleanVersion(m[1])
	}
	if m := jsonMCDepRE.FindStringSubmatch(s); m != nil {
		meta.GameVersion = gameVersionRE.FindString(m[1])
	}
}

// cleanVersion 丢弃构建占位符（${version}），它不是可比较的版本。
func cleanVersion(v string) string {
	v = strings.TrimSpace(v)
	if strings.HasPrefix(v, "${") {
		return ""
	}
	return v
}
