package upgrade

import (
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
)

func TestNeedsUpgrade(t *testing.T) {
	// version.Version is "dev" in test builds, which always reports true.
	if !NeedsUpgrade("v2.0.0") {
		t.Error("NeedsUpgrade() = false for dev build, expected true")
	}
	if !NeedsUpgrade("2.0.0") {
		t.Error("NeedsUpgrade() = false without v prefix, expected true")
	}
}

func TestAssetName(t *testing.T) {
	name := AssetName()
	if !strings.HasPrefix(name, "lxc-deployer-") {
		t.Errorf("AssetName() = %s, expected prefix 'lxc-deployer-'", name)
	}
}

func TestFindAssetURL(t *testing.T) {
	release := &Release{
		TagName: "v2.0.0",
		Assets: []struct {
			Name               string `json:"name"`
			BrowserDownloadURL string `json:"browser_download_url"`
		}{
			{
				Name:               AssetName(),
				BrowserDownloadURL: "https://example.com/download",
			},
		},
	}

	url, err := findAssetURL(release)
	if err != nil {
		t.Fatalf("findAssetURL() error = %v", err)
	}
	if url != "https://example.com/download" {
		t.Errorf("findAssetURL() = %s, expected https://example.com/download", url)
	}
}

func TestFindAssetURL_NotFound(t *testing.T) {
	release := &Release{
		TagName: "v2.0.0",
		Assets: []struct {
			Name               string `json:"name"`
			BrowserDownloadURL string `json:"browser_download_url"`
		}{
			{
				Name:               "lxc-deployer-windows-amd64.exe",
				BrowserDownloadURL: "https://example.com/download",
			},
		},
	}

	if _, err := findAssetURL(release); err == nil {
		t.Error("findAssetURL() expected error for missing asset")
	}
}

func TestDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("binary contents"))
	}))
	defer srv.Close()

	var gotTotal int64
	path, err := Download(srv.URL, func(downloaded, total int64) {
		gotTotal = total
	})
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	defer func() { _ = os.Remove(path) }()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading downloaded file: %v", err)
	}
	if string(data) != "binary contents" {
		t.Errorf("downloaded %q, expected %q", data, "binary contents")
	}
	if gotTotal != int64(len("binary contents")) {
		t.Errorf("progress total = %d, expected %d", gotTotal, len("binary contents"))
	}
}

func TestDownload_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	if _, err := Download(srv.URL, nil); err == nil {
		t.Error("Download() expected error for HTTP 404")
	}
}
