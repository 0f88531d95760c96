package domain

// RegistryProject 是 registry 上的项目身份锚点，后续所有查询都以 ID 为准。
type RegistryProject struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Slug  string `json:"slug"`
}

type RegistryFile struct {
	Filename string `json:"filename"`
	URL      string `json:"url"`
	Primary  bool   `json:"primary"`
	SHA512   string `json:"sha512,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// RegistryVersionRecord 是项目的一个发布版本。
type RegistryVersionRecord struct {
	ID            string         `json:"id"`
	ProjectID     string         `json:"project_id"`
	VersionNumber string         `json:"version_number"`
	Loaders       []string       `json:"loaders"`
	GameVersions  []string       `json:"game_versions"`
	Files         []RegistryFile `json:"files"`
}

// PrimaryFile 返回标记为 primary 的文件；没有则返回第一个文件。
func (v RegistryVersionRecord) PrimaryFile() (RegistryFile, bool) {
	for _, f := range v.Files {
		if f.Primary {
			return f, true
		}
	}
	if len(v.Files) > 0 {
		return v.Files[0], true
	}
	return RegistryFile{}, false
}
