package domain

import (
	"encoding/json"
	"sort"
	"strings"
	"time"
)

// ScanReport 是一次扫描的对外稳定输出（stdout JSON / YAML）。
type ScanReport struct {
	RunID       string `json:"run_id" yaml:"run_id"`
	Dir         string `json:"dir" yaml:"dir"`
	GameVersion string `json:"game_version,omitempty" yaml:"game_version,omitempty"`

	StartedAt  time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time `json:"finished_at" yaml:"finished_at"`
	Canceled   bool      `json:"canceled" yaml:"canceled"`

	Summary ReportSummary `json:"summary" yaml:"summary"`
	Items   []ModReport   `json:"items" yaml:"items"`
}

type ReportSummary struct {
	Total    int `json:"total" yaml:"total"`
	Resolved int `json:"resolved" yaml:"resolved"`
	FileOnly int `json:"file_only" yaml:"file_only"`
	Failed   int `json:"failed" yaml:"failed"`
	Disabled int `json:"disabled" yaml:"disabled"`

	UpToDate        int `json:"up_to_date" yaml:"up_to_date"`
	UpdateAvailable int `json:"update_available" yaml:"update_available"`
	LocallyAhead    int `json:"locally_ahead" yaml:"locally_ahead"`
	ManualCheck     int `json:"manual_check" yaml:"manual_check"`
	Incompatible    int `json:"incompatible" yaml:"incompatible"`
	Indeterminate   int `json:"indeterminate" yaml:"indeterminate"`
}

// Finalize 做三件事：
// 1) 时间统一为 UTC
// 2) items 稳定排序：按名称（大小写不敏感），同名按文件名
// 3) summary 由 items 计算得出
func (r *ScanReport) Finalize() {
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()

	SortReports(r.Items)

	s := ReportSummary{Total: len(r.Items)}
	for _, it := range r.Items {
		switch it.Resolution.Status {
		case ResolutionResolved:
			s.Resolved++
		case ResolutionFileOnly:
			s.FileOnly++
		case ResolutionFailed:
			s.Failed++
		}
		if !it.Resolution.Enabled {
			s.Disabled++
		}
		switch it.Update.Status {
		case UpdateUpToDate:
			s.UpToDate++
		case UpdateAvailable:
			s.UpdateAvailable++
		case UpdateLocallyAhead:
			s.LocallyAhead++
		case UpdateManualCheck:
			s.ManualCheck++
		case UpdateIncompatible:
			s.Incompatible++
		case UpdateIndeterminate:
			s.Indeterminate++
		}
	}
	r.Summary = s
}

// SortReports 按名称（大小写不敏感）排序；名称相同时按文件名，保证输出与完成顺序无关。
func SortReports(items []ModReport) {
	sort.SliceStable(items, func(i, j int) bool {
		a := strings.ToLower(items[i].Resolution.Name)
		b := strings.ToLower(items[j].Resolution.Name)
		if a != b {
			return a < b
		}
		return items[i].Resolution.File < items[j].Resolution.File
	})
}

// MarshalJSON 保证 items 为 [] 而不是 null。
func (r ScanReport) MarshalJSON() ([]byte, error) {
	type Alias ScanReport
	if r.Items == nil {
		r.Items = []ModReport{}
	}
	return json.Marshal(Alias(r))
}
