package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"gopkg.in/yaml.v3"

	"github.com/John-Robertt/modup/internal/app"
	"github.com/John-Robertt/modup/internal/domain"
)

const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

func validFormat(f string) error {
	switch f {
	case "", formatTable, formatJSON, formatYAML:
		return nil
	default:
		return fmt.Errorf("--format 只能是 table、json 或 yaml，实际是 %q", f)
	}
}

// emitReport 输出报告。
//
// 约束：stdout 不是终端且未显式指定格式时，stdout 必须且仅输出一个 ScanReport JSON（摘要走 stderr）。
func emitReport(stdout, stderr io.Writer, rr domain.ScanReport, format string) error {
	if format == "" {
		format = formatJSON
		if isTTY(stdout) {
			format = formatTable
		}
	}

	var err error
	switch format {
	case formatJSON:
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		err = enc.Encode(rr)
	case formatYAML:
		enc := yaml.NewEncoder(stdout)
		enc.SetIndent(2)
		err = enc.Encode(rr)
		if cerr := enc.Close(); err == nil {
			err = cerr
		}
	default:
		_, err = fmt.Fprintln(stdout, renderTable(rr))
	}
	if err != nil {
		return &exitError{Code: 1, Err: err}
	}

	for _, d := range app.FindDuplicates(rr.Items) {
		fmt.Fprintf(stderr, "重复：%s 同时存在 %s\n", d.Name, strings.Join(d.Files, "、"))
	}
	fmt.Fprintln(stderr, summaryLine(rr))
	return nil
}

func summaryLine(rr domain.ScanReport) string {
	s := rr.Summary
	line := fmt.Sprintf("完成：total=%d resolved=%d file_only=%d failed=%d update_available=%d up_to_date=%d incompatible=%d",
		s.Total, s.Resolved, s.FileOnly, s.Failed, s.UpdateAvailable, s.UpToDate, s.Incompatible)
	if rr.Canceled {
		line += "（已取消）"
	}
	return line
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

// statusStyle 按更新/解析状态上色。
func statusStyle(status string) lipgloss.Style {
	switch status {
	case string(domain.UpdateAvailable), "updated":
		return lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	case string(domain.UpdateUpToDate), string(domain.UpdateLocallyAhead):
		return lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	case string(domain.UpdateManualCheck), string(domain.UpdateIncompatible):
		return lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	default:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	}
}

func renderTable(rr domain.ScanReport) string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers("名称", "文件", "本地", "最新", "游戏版本", "Loader", "状态", "说明").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle.Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})

	for _, it := range rr.Items {
		r, u := it.Resolution, it.Update
		file := r.File
		if !r.Enabled {
			file += " (disabled)"
		}
		t.Row(
			truncate(r.Name, 32),
			truncate(file, 48),
			r.Version,
			u.LatestVersion,
			u.TargetGame,
			loaderList(r.Loaders),
			statusStyle(string(u.Status)).Render(string(u.Status)),
			rowNote(it),
		)
	}
	return t.Render()
}

func loaderList(ls []domain.LoaderFamily) string {
	parts := make([]string, 0, len(ls))
	for _, l := range ls {
		parts = append(parts, string(l))
	}
	return strings.Join(parts, ",")
}

func rowNote(it domain.ModReport) string {
	r := it.Resolution
	switch {
	case r.ErrorKind != "":
		return string(r.ErrorKind)
	case it.Update.Reason != "":
		return string(it.Update.Reason)
	case r.Status != domain.ResolutionResolved:
		return string(r.Status)
	default:
		return string(r.Source)
	}
}

func isTTY(w any) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}
