package pathrules

import (
	"testing"

	"ripqueue/internal/protocol"
)

func TestIsIntermediate(t *testing.T) {
	cases := map[string]bool{
		"t0_t01.mkv":           true,
		"Ab_X12.mkv":           true,
		"Show-S01E01.mkv":      false,
		"t0_t01.mp4":           false,
		"a0_A1.mkv":            false,
	}
	for name, want := range cases {
		if got := IsIntermediate(name); got != want {
			t.Errorf("IsIntermediate(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestDestinationSeries(t *testing.T) {
	roots := Roots{
		SourceBase:     "/raw",
		SeriesSubpath:  "Serien",
		MovieSubpath:   "Filme",
		SeriesDestBase: "/media/Serien",
		MovieDestBase:  "/media/Filme",
	}
	src := "/raw/dvd/Serien/Show/S01/disc01/Show-S01E02.mkv"
	got := Destination(protocol.ModeSeries, protocol.SourceDVD, src, "", roots)
	want := "/media/Serien/Show/S01/disc01/Show-S01E02.mkv"
	if got != want {
		t.Errorf("Destination() = %q, want %q", got, want)
	}
}

func TestDestinationMovieWithCommonRoot(t *testing.T) {
	roots := Roots{
		SourceBase:     "/raw",
		SeriesSubpath:  "Serien",
		MovieSubpath:   "Filme",
		SeriesDestBase: "/media/Serien",
		MovieDestBase:  "/media/Filme",
	}
	src := "/raw/dvd/Filme/Léon/Léon.mkv"
	common := CommonRoot([]string{src}, "/raw/dvd/Filme/Léon")
	got := Destination(protocol.ModeMovie, protocol.SourceDVD, src, common, roots)
	want := "/media/Filme/Léon.mkv"
	if got != want {
		t.Errorf("Destination() = %q, want %q", got, want)
	}
}

func TestDestinationIsDeterministic(t *testing.T) {
	roots := Roots{SourceBase: "/raw", SeriesSubpath: "Serien", MovieSubpath: "Filme", SeriesDestBase: "/media/Serien", MovieDestBase: "/media/Filme"}
	src := "/raw/bluray/Serien/Show/S02/Show-S02E03.mkv"
	a := Destination(protocol.ModeSeries, protocol.SourceBluray, src, "", roots)
	b := Destination(protocol.ModeSeries, protocol.SourceBluray, src, "", roots)
	if a != b {
		t.Errorf("Destination() not deterministic: %q vs %q", a, b)
	}
}
