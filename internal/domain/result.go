package domain

type ResolutionStatus string

const (
	ResolutionResolved ResolutionStatus = "resolved"
	ResolutionFileOnly ResolutionStatus = "file_only"
	ResolutionFailed   ResolutionStatus = "failed"
)

// Source 标记最终身份由哪个阶段得出。
type Source string

const (
	SourceHash     Source = "hash"
	SourceSearch   Source = "search"
	SourceManifest Source = "manifest"
	SourceFilename Source = "filename"
	SourceError    Source = "error"
)

// Attempt 记录一次 registry 相关尝试（用于解释为什么落到了回退路径）。
// 注意：这是内部执行轨迹，CLI 只在失败时展示。
type Attempt struct {
	Stage     string    `json:"stage" yaml:"stage"` // "hash" / "version" / "project" / "search" / "versions" / "compat"
	Query     string    `json:"query,omitempty" yaml:"query,omitempty"`
	ErrorKind ErrorKind `json:"error_kind,omitempty" yaml:"error_kind,omitempty"`
	ErrorMsg  string    `json:"error_msg,omitempty" yaml:"error_msg,omitempty"`
}

// ResolutionResult 是单个归档的身份解析结果。
//
// 约束：
// - Name 永远非空（失败时按 id -> name -> stem 兜底）
// - Loaders 永远非空（无可推断时为 [unknown]）
type ResolutionResult struct {
	File    string `json:"file" yaml:"file"`
	Path    string `json:"path" yaml:"path"`
	Enabled bool   `json:"enabled" yaml:"enabled"`

	Status    ResolutionStatus `json:"status" yaml:"status"`
	ProjectID string           `json:"project_id,omitempty" yaml:"project_id,omitempty"`
	Slug      string           `json:"slug,omitempty" yaml:"slug,omitempty"`
	Name      string           `json:"name" yaml:"name"`
	Version   string           `json:"version,omitempty" yaml:"version,omitempty"`

	GameVersion     string         `json:"game_version,omitempty" yaml:"game_version,omitempty"`
	AllGameVersions []string       `json:"all_game_versions" yaml:"all_game_versions"`
	Loaders         []LoaderFamily `json:"loaders" yaml:"loaders"`
	Source          Source         `json:"source" yaml:"source"`

	ErrorKind ErrorKind `json:"error_kind,omitempty" yaml:"error_kind,omitempty"`
	ErrorMsg  string    `json:"error_msg,omitempty" yaml:"error_msg,omitempty"`
	Attempts  []Attempt `json:"attempts,omitempty" yaml:"attempts,omitempty"`
}

type UpdateStatus string

const (
	UpdateUpToDate      UpdateStatus = "up_to_date"
	UpdateAvailable     UpdateStatus = "update_available"
	UpdateLocallyAhead  UpdateStatus = "locally_ahead"
	UpdateManualCheck   UpdateStatus = "manual_check"
	UpdateIncompatible  UpdateStatus = "incompatible"
	UpdateIndeterminate UpdateStatus = "indeterminate"
)

// UpdateDecision 是 registry 最新兼容版本与本地版本的比较结论。
// 仅当 Status=update_available 时 LatestVersion/Filename/DownloadURL 才有意义。
type UpdateDecision struct {
	Status        UpdateStatus `json:"status" yaml:"status"`
	TargetGame    string       `json:"target_game_version,omitempty" yaml:"target_game_version,omitempty"`
	LatestVersion string       `json:"latest_version,omitempty" yaml:"latest_version,omitempty"`
	VersionID     string       `json:"version_id,omitempty" yaml:"version_id,omitempty"`
	Filename      string       `json:"filename,omitempty" yaml:"filename,omitempty"`
	DownloadURL   string       `json:"download_url,omitempty" yaml:"download_url,omitempty"`
	SHA512        string       `json:"sha512,omitempty" yaml:"sha512,omitempty"`
	Reason        ErrorKind    `json:"reason,omitempty" yaml:"reason,omitempty"`
}

// ModReport 是对外暴露的一行结果：身份解析 + 更新结论。
type ModReport struct {
	Resolution ResolutionResult `json:"resolution" yaml:"resolution"`
	Update     UpdateDecision   `json:"update" yaml:"update"`
}
