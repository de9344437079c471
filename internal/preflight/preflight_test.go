package preflight

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"galleryd/internal/remote"
	"galleryd/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func cookieServer(t *testing.T, cookie string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Cookie") != cookie {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		http.NotFound(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCheckRemote_RootNotFoundStillPasses(t *testing.T) {
	srv := cookieServer(t, "cf_clearance=ok")
	cfg := testsupport.NewConfig(t, testsupport.WithRemote(srv.URL))
	cfg.Remote.Cookie = "cf_clearance=ok"

	result := CheckRemote(context.Background(), remote.New(cfg, nil), cfg.Remote.BaseURL)
	if !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
}

func TestCheckRemote_CookieRejected(t *testing.T) {
	srv := cookieServer(t, "cf_clearance=ok")
	cfg := testsupport.NewConfig(t, testsupport.WithRemote(srv.URL))
	cfg.Remote.Cookie = "cf_clearance=stale"

	result := CheckRemote(context.Background(), remote.New(cfg, nil), cfg.Remote.BaseURL)
	if result.Passed {
		t.Fatal("expected failure for rejected cookie")
	}
	if !strings.Contains(result.Detail, "remote.cookie") {
		t.Fatalf("expected cookie hint, got: %s", result.Detail)
	}
}

func TestCheckRemote_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()
	cfg := testsupport.NewConfig(t, testsupport.WithRemote(base))

	result := CheckRemote(context.Background(), remote.New(cfg, nil), base)
	if result.Passed {
		t.Fatal("expected failure for closed server")
	}
}

func TestCheckRemote_MissingURL(t *testing.T) {
	result := CheckRemote(context.Background(), nil, "")
	if result.Passed {
		t.Fatal("expected failure for missing URL")
	}
}

func TestCheckExportBucket(t *testing.T) {
	if r := CheckExportBucket(context.Background(), "mem://"); !r.Passed {
		t.Fatalf("mem bucket: %s", r.Detail)
	}

	dir := t.TempDir()
	if r := CheckExportBucket(context.Background(), "file://"+dir); !r.Passed {
		t.Fatalf("file bucket: %s", r.Detail)
	}

	missing := filepath.Join(dir, "later")
	r := CheckExportBucket(context.Background(), "file://"+missing)
	if !r.Passed || !strings.Contains(r.Detail, "created on first export") {
		t.Fatalf("missing file bucket: %+v", r)
	}

	if r := CheckExportBucket(context.Background(), "bogus://bucket"); r.Passed {
		t.Fatal("expected failure for unknown scheme")
	}
}

func TestCheckQueueDatabase(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	result := CheckQueueDatabase(context.Background(), store)
	if !result.Passed {
		t.Fatalf("expected healthy database, got: %s", result.Detail)
	}
	if !strings.Contains(result.Detail, "0 rows") {
		t.Fatalf("unexpected detail: %s", result.Detail)
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	if results := RunAll(context.Background(), nil, nil); results != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func TestRunAll_ReportsEveryCheck(t *testing.T) {
	srv := cookieServer(t, "")
	cfg := testsupport.NewConfig(t, testsupport.WithRemote(srv.URL))
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	store := testsupport.MustOpenStore(t, cfg)

	results := RunAll(context.Background(), cfg, store)
	if len(results) != 6 {
		t.Fatalf("expected 6 results, got %d", len(results))
	}
	if failed := Failed(results); len(failed) != 0 {
		t.Fatalf("unexpected failures: %+v", failed)
	}

	withoutDB := RunAll(context.Background(), cfg, nil)
	if len(withoutDB) != 5 {
		t.Fatalf("expected 5 results without a store, got %d", len(withoutDB))
	}
}
