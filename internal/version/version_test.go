package version

import (
	"errors"
	"testing"

	"github.com/John-Robertt/modup/internal/domain"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"0.140.0+1.21.11", "0.140.0"},
		{"mc1.20.4-0.5.4", "0.5.4"},
		{"", "0"},
		{"   ", "0"},
		{"v2.1-1.20.1", "2.1"},
		{"5.0+mc1.20.1", "5.0"},
		{"fabric-1.2.3", "1.2.3"},
		{"NeoForge-21.1.0", "21.1.0"},
		{"1.20.1-2.1", "2.1"},
		{"2.1.0-beta.3", "2.1.0"},
		{"3.2.1+24w10a", "3.2.1"},
		{"release", "0"},
		{"8.0.3", "8.0.3"},
	}
	for _, c := range cases {
		if got := Normalize(c.in); got != c.want {
			t.Fatalf("Normalize(%q)：期望 %q，实际 %q", c.in, c.want, got)
		}
	}
}

func TestCompare_NumericNotLexicographic(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"1.10", "1.9", 1},
		{"1.2", "1.2.0", 0},
		{"0.5.4", "0.5.10", -1},
		{"8.0.5", "8.0.3", 1},
		{"2", "10", -1},
	}
	for _, c := range cases {
		got, err := Compare(c.a, c.b)
		if err != nil {
			t.Fatalf("Compare(%q,%q) 不期望错误：%v", c.a, c.b, err)
		}
		if got != c.want {
			t.Fatalf("Compare(%q,%q)：期望 %d，实际 %d", c.a, c.b, c.want, got)
		}
	}
}

func TestCompare_Overflow(t *testing.T) {
	_, err := Compare("1.99999999999999999999999", "1.0")
	if !errors.Is(err, ErrUnparseable) {
		t.Fatalf("期望 ErrUnparseable，实际：%v", err)
	}
}

func TestCompare_StrictWeakOrdering(t *testing.T) {
	vs := []string{"0", "0.1", "0.1.0", "0.2", "1", "1.0.1", "1.10", "1.9", "2.0.0", "10.0"}
	for _, a := range vs {
		c, err := Compare(a, a)
		if err != nil || c != 0 {
			t.Fatalf("自反性失败：%q c=%d err=%v", a, c, err)
		}
	}
	for _, a := range vs {
		for _, b := range vs {
			ab, _ := Compare(a, b)
			ba, _ := Compare(b, a)
			if ab != -ba {
				t.Fatalf("反对称失败：%q %q ab=%d ba=%d", a, b, ab, ba)
			}
			for _, c := range vs {
				bc, _ := Compare(b, c)
				ac, _ := Compare(a, c)
				if ab > 0 && bc > 0 && ac <= 0 {
					t.Fatalf("传递性失败：%q > %q > %q 但 ac=%d", a, b, c, ac)
				}
			}
		}
	}
}

func TestDecide(t *testing.T) {
	latest := domain.RegistryVersionRecord{
		ID:            "v1",
		VersionNumber: "8.0.5",
		Files: []domain.RegistryFile{
			{Filename: "ferritecore-8.0.5-sources.jar", URL: "https://cdn.test/s.jar"},
			{Filename: "ferritecore-8.0.5-fabric.jar", URL: "https://cdn.test/f.jar", Primary: true},
		},
	}

	cases := []struct {
		name  string
		local string
		rec   domain.RegistryVersionRecord
		want  domain.UpdateStatus
	}{
		{"newer", "8.0.3", latest, domain.UpdateAvailable},
		{"same", "8.0.5", latest, domain.UpdateUpToDate},
		{"same-after-normalize", "8.0.5+1.21.1", latest, domain.UpdateUpToDate},
		{"ahead", "9.0.0", latest, domain.UpdateLocallyAhead},
		{"local-unknown", "", latest, domain.UpdateAvailable},
		{"unparseable", "1.99999999999999999999999", domain.RegistryVersionRecord{VersionNumber: "1.0"}, domain.UpdateManualCheck},
		{"unparseable-equal-raw", "1.99999999999999999999999", domain.RegistryVersionRecord{VersionNumber: "1.99999999999999999999999"}, domain.UpdateUpToDate},
		{"numeric-equal", "1.2", domain.RegistryVersionRecord{VersionNumber: "1.2.0"}, domain.UpdateUpToDate},
	}
	for _, c := range cases {
		d := Decide(c.local, c.rec)
		if d.Status != c.want {
			t.Fatalf("%s：期望 %s，实际 %+v", c.name, c.want, d)
		}
	}

	d := Decide("8.0.3", latest)
	if d.LatestVersion != "8.0.5" || d.Filename != "ferritecore-8.0.5-fabric.jar" || d.DownloadURL != "https://cdn.test/f.jar" {
		t.Fatalf("update_available 应附带 primary 文件：%+v", d)
	}
	if d := Decide("1.9999999999999999999999", domain.RegistryVersionRecord{VersionNumber: "2.0"}); d.Reason != domain.ErrVersionUnparseable {
		t.Fatalf("manual_check 应附带 reason=version_unparseable：%+v", d)
	}
}

func TestLatestGameVersion(t *testing.T) {
	cases := []struct {
		in   []string
		want string
	}{
		{[]string{"1.20.1", "1.21", "1.9.4", "24w10a"}, "1.21"},
		{[]string{"1.21.11", "1.21.2"}, "1.21.11"},
		{[]string{"23w51b", "24w10a"}, "24w10a"},
		{[]string{"b1.7.3", "a1.0.16"}, ""},
		{[]string{"b1.7.3", "20100618"}, "20100618"},
		{nil, ""},
	}
	for _, c := range cases {
		if got := LatestGameVersion(c.in); got != c.want {
			t.Fatalf("LatestGameVersion(%v)：期望 %q，实际 %q", c.in, c.want, got)
		}
	}
}

func TestSortGameVersions(t *testing.T) {
	got := SortGameVersions([]string{"1.19.2", "24w10a", "1.20.1", "1.19.2", "1.20.10"})
	want := []string{"1.20.10", "1.20.1", "1.19.2", "24w10a"}
	if len(got) != len(want) {
		t.Fatalf("期望 %v，实际 %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("期望 %v，实际 %v", want, got)
		}
	}
}

func TestMajorMinor(t *testing.T) {
	if got := MajorMinor("1.20.4"); got != "1.20" {
		t.Fatalf("期望 1.20，实际 %q", got)
	}
	if got := MajorMinor("24w10a"); got != "24w10a" {
		t.Fatalf("非正式版应原样返回，实际 %q", got)
	}
}
