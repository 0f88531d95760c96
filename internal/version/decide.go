package version

import (
	"strings"

	"github.com/John-Robertt/modup/internal/domain"
)

// Decide 比较本地版本与 registry 最新兼容版本，给出更新结论。
//
// 决策表：
//
//	规范化后相同                          -> up_to_date
//	registry > 本地                       -> update_available（附 primary 文件，否则第一个文件）
//	registry < 本地                       -> locally_ahead
//	数字比较失败且原始字符串不同           -> manual_check
//	数字比较失败但原始字符串相同           -> up_to_date
//	本地版本未知                          -> update_available
func Decide(local string, latest domain.RegistryVersionRecord) domain.UpdateDecision {
	local = strings.TrimSpace(local)
	remote := strings.TrimSpace(latest.VersionNumber)

	if local == "" {
		return available(latest)
	}

	nl, nr := Normalize(local), Normalize(remote)
	if nl == nr {
		return domain.UpdateDecision{Status: domain.UpdateUpToDate, LatestVersion: remote}
	}

	c, err := Compare(nr, nl)
	if err != nil {
		if local == remote {
			return domain.UpdateDecision{Status: domain.UpdateUpToDate, LatestVersion: remote}
		}
		return domain.UpdateDecision{
			Status:        domain.UpdateManualCheck,
			LatestVersion: remote,
			Reason:        domain.ErrVersionUnparseable,
		}
	}

	switch {
	case c > 0:
		return available(latest)
	case c < 0:
		return domain.UpdateDecision{Status: domain.UpdateLocallyAhead, LatestVersion: remote}
	default:
		// 1.2 与 1.2.0：数字相等
		return domain.UpdateDecision{Status: domain.UpdateUpToDate, LatestVersion: remote}
	}
}

func available(latest domain.RegistryVersionRecord) domain.UpdateDecision {
	d := domain.UpdateDecision{
		Status:        domain.UpdateAvailable,
		LatestVersion: strings.TrimSpace(latest.VersionNumber),
		VersionID:     latest.ID,
	}
	if f, ok := latest.PrimaryFile(); ok {
		d.Filename = f.Filename
		d.DownloadURL = f.URL
		d.SHA512 = f.SHA512
	}
	return d
}
