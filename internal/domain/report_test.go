package domain

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"
)

func TestScanReport_Finalize_SortAndSummaryAndUTC(t *testing.T) {
	r := ScanReport{
		Dir:        "/abs/mods",
		StartedAt:  time.Date(2026, 2, 9, 10, 0, 0, 0, time.FixedZone("X", 8*3600)),
		FinishedAt: time.Date(2026, 2, 9, 10, 0, 1, 0, time.FixedZone("X", 8*3600)),
		Items: []ModReport{
			{Resolution: ResolutionResult{File: "sodium.jar", Name: "sodium", Status: ResolutionResolved, Enabled: true}, Update: UpdateDecision{Status: UpdateUpToDate}},
			{Resolution: ResolutionResult{File: "b.jar", Name: "Broken", Status: ResolutionFailed, Enabled: true}, Update: UpdateDecision{Status: UpdateIndeterminate}},
			{Resolution: ResolutionResult{File: "a.jar.disabled", Name: "broken", Status: ResolutionFileOnly}, Update: UpdateDecision{Status: UpdateIndeterminate}},
			{Resolution: ResolutionResult{File: "lith.jar", Name: "Lithium", Status: ResolutionResolved, Enabled: true}, Update: UpdateDecision{Status: UpdateAvailable}},
		},
	}

	r.Finalize()

	got := []string{r.Items[0].Resolution.File, r.Items[1].Resolution.File, r.Items[2].Resolution.File, r.Items[3].Resolution.File}
	want := []string{"a.jar.disabled", "b.jar", "lith.jar", "sodium.jar"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("items 排序不符合契约：期望 %v，实际 %v", want, got)
		}
	}

	s := r.Summary
	if s.Total != 4 || s.Resolved != 2 || s.FileOnly != 1 || s.Failed != 1 || s.Disabled != 1 {
		t.Fatalf("summary 统计不正确：%+v", s)
	}
	if s.UpToDate != 1 || s.UpdateAvailable != 1 || s.Indeterminate != 2 {
		t.Fatalf("summary 更新统计不正确：%+v", s)
	}

	b, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("json.Marshal 失败：%v", err)
	}
	if !bytes.Contains(b, []byte("\"started_at\":\"2026-02-09T02:00:00Z\"")) {
		t.Fatalf("started_at 不是 UTC RFC3339：%s", string(b))
	}
}

func TestScanReport_MarshalJSON_EmptyItems(t *testing.T) {
	b, err := json.Marshal(ScanReport{})
	if err != nil {
		t.Fatalf("json.Marshal 失败：%v", err)
	}
	if !bytes.Contains(b, []byte(`"items":[]`)) {
		t.Fatalf("期望 items 为 []，实际：%s", string(b))
	}
}

func TestRegistryVersionRecord_PrimaryFile(t *testing.T) {
	v := RegistryVersionRecord{Files: []RegistryFile{
		{Filename: "a-sources.jar"},
		{Filename: "a.jar", Primary: true},
	}}
	f, ok := v.PrimaryFile()
	if !ok || f.Filename != "a.jar" {
		t.Fatalf("期望 primary 文件 a.jar，实际 %+v ok=%v", f, ok)
	}

	v.Files[1].Primary = false
	f, ok = v.PrimaryFile()
	if !ok || f.Filename != "a-sources.jar" {
		t.Fatalf("无 primary 时期望第一个文件，实际 %+v", f)
	}

	if _, ok := (RegistryVersionRecord{}).PrimaryFile(); ok {
		t.Fatalf("无文件时期望 ok=false")
	}
}

func TestEffectiveLoaders_NeverEmpty(t *testing.T) {
	got := EffectiveLoaders(nil)
	if len(got) != 1 || got[0] != LoaderUnknown {
		t.Fatalf("期望 [unknown]，实际 %v", got)
	}
	got = EffectiveLoaders([]LoaderFamily{LoaderUnknown, LoaderFabric, LoaderFabric, LoaderQuilt})
	if len(got) != 2 || got[0] != LoaderFabric || got[1] != LoaderQuilt {
		t.Fatalf("期望 [fabric quilt]，实际 %v", got)
	}
}

func TestBestEffortName_Precedence(t *testing.T) {
	if n := BestEffortName("sodium", "Sodium", "sodium-0.5"); n != "sodium" {
		t.Fatalf("期望 id 优先，实际 %q", n)
	}
	if n := BestEffortName("", "Sodium", "sodium-0.5"); n != "Sodium" {
		t.Fatalf("期望 name 次之，实际 %q", n)
	}
	if n := BestEffortName(" ", "", "sodium-0.5"); n != "sodium-0.5" {
		t.Fatalf("期望 stem 兜底，实际 %q", n)
	}
}

func TestStemOf(t *testing.T) {
	cases := map[string]string{
		"a-1.0.jar":          "a-1.0",
		"a-1.0.JAR":          "a-1.0",
		"a-1.0.jar.disabled": "a-1.0",
		"readme.txt":         "readme.txt",
	}
	for in, want := range cases {
		if got := StemOf(in); got != want {
			t.Fatalf("StemOf(%q)：期望 %q，实际 %q", in, want, got)
		}
	}
}
