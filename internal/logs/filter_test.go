package logs

import "testing"

func TestFilterJSONLines(t *testing.T) {
	line := `{"time":"2026-01-01T00:00:00Z","level":"WARN","msg":"page failed","component":"downloader","gallery_id":7}`

	cases := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"empty", Filter{}, true},
		{"gallery match", Filter{GalleryID: 7}, true},
		{"gallery mismatch", Filter{GalleryID: 8}, false},
		{"component", Filter{Component: "Downloader"}, true},
		{"component mismatch", Filter{Component: "api"}, false},
		{"level at threshold", Filter{MinLevel: "warn"}, true},
		{"level above", Filter{MinLevel: "error"}, false},
		{"search", Filter{Search: "PAGE FAILED"}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.filter.Match(line); got != tc.want {
				t.Fatalf("Match = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestFilterConsoleLines(t *testing.T) {
	line := "2026-01-01T00:00:00Z INFO downloader: page stored gallery_id=7 page=3"

	if !(Filter{GalleryID: 7, Component: "downloader"}).Match(line) {
		t.Fatal("expected console line to match gallery and component")
	}
	if (Filter{GalleryID: 70}).Match(line) {
		t.Fatal("gallery 70 must not match gallery_id=7")
	}
	if (Filter{MinLevel: "warn"}).Match(line) {
		t.Fatal("info line must not pass a warn threshold")
	}
}
