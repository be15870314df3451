// Package upgrade provides self-update from GitHub releases.
package upgrade

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/ocilxc/lxc-deployer/internal/version"
)

const (
	githubRepo = "ocilxc/lxc-deployer"
	githubAPI  = "https://api.github.com/repos/" + githubRepo + "/releases/latest"
)

// Release represents a GitHub release with its downloadable assets.
type Release struct {
	TagName string `json:"tag_name"`
	Name    string `json:"name"`
	HTMLURL string `json:"html_url"`
	Assets  []struct {
		Name               string `json:"name"`
		BrowserDownloadURL string `json:"browser_download_url"`
	} `json:"assets"`
}

// LatestRelease fetches the newest release from GitHub.
func LatestRelease() (*Release, error) {
	resp, err := http.Get(githubAPI)
	if err != nil {
		return nil, fmt.Errorf("failed to check for updates: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to check for updates: HTTP %d", resp.StatusCode)
	}

	var release Release
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return nil, fmt.Errorf("failed to parse release info: %w", err)
	}

	return &release, nil
}

// NeedsUpgrade reports whether the running binary is older than latest.
// Dev builds always report true.
func NeedsUpgrade(latest string) bool {
	current := strings.TrimPrefix(version.Version, "v")
	latest = strings.TrimPrefix(latest, "v")

	if strings.Contains(current, "-") || current == "dev" {
		return true
	}

	return current != latest
}

// AssetName returns the release asset name for the current platform.
func AssetName() string {
	return fmt.Sprintf("lxc-deployer-%s-%s", runtime.GOOS, runtime.GOARCH)
}

func findAssetURL(release *Release) (string, error) {
	want := AssetName()
	for _, asset := range release.Assets {
		if asset.Name == want {
			return asset.BrowserDownloadURL, nil
		}
	}
	return "", fmt.Errorf("no release asset found for %s/%s", runtime.GOOS, runtime.GOARCH)
}

// Download fetches the new binary to a temporary file and returns its path.
func Download(url string, progressFn func(downloaded, total int64)) (string, error) {
	resp, err := http.Get(url)
	if err != nil {
		return "", fmt.Errorf("failed to download: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to download: HTTP %d", resp.StatusCode)
	}

	tmpFile, err := os.CreateTemp("", "lxc-deployer-upgrade-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() { _ = tmpFile.Close() }()

	var downloaded int64
	total := resp.ContentLength
	buf := make([]byte, 32*1024)

	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			if _, writeErr := tmpFile.Write(buf[:n]); writeErr != nil {
				_ = os.Remove(tmpFile.Name())
				return "", fmt.Errorf("failed to write temp file: %w", writeErr)
			}
			downloaded += int64(n)
			if progressFn != nil {
				progressFn(downloaded, total)
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			_ = os.Remove(tmpFile.Name())
			return "", fmt.Errorf("failed to download: %w", err)
		}
	}

	return tmpFile.Name(), nil
}

// Install replaces the current binary with the downloaded one, keeping a
// backup until the swap succeeds.
func Install(tmpPath string) error {
	execPath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}
	execPath, err = filepath.EvalSymlinks(execPath)
	if err != nil {
		return fmt.Errorf("failed to resolve executable path: %w", err)
	}

	backupPath := execPath + ".backup"
	if err := os.Rename(execPath, backupPath); err != nil {
		return fmt.Errorf("failed to backup current binary: %w", err)
	}

	if err := os.Rename(tmpPath, execPath); err != nil {
		_ = os.Rename(backupPath, execPath)
		return fmt.Errorf("failed to install new binary: %w", err)
	}

	if err := os.Chmod(execPath, 0755); err != nil {
		_ = os.Rename(backupPath, execPath)
		return fmt.Errorf("failed to set permissions: %w", err)
	}

	_ = os.Remove(backupPath)

	return nil
}

// Run performs the full upgrade process.
func Run(force bool) error {
	fmt.Printf("Current version: %s\n", version.Version)
	fmt.Println("Checking for updates...")

	release, err := LatestRelease()
	if err != nil {
		return err
	}

	fmt.Printf("Latest version: %s\n", release.TagName)

	if !force && !NeedsUpgrade(release.TagName) {
		fmt.Println("You are already running the latest version.")
		return nil
	}

	assetURL, err := findAssetURL(release)
	if err != nil {
		return err
	}

	fmt.Printf("Downloading %s...\n", AssetName())

	tmpPath, err := Download(assetURL, func(downloaded, total int64) {
		if total > 0 {
			pct := float64(downloaded) / float64(total) * 100
			fmt.Printf("\rDownloading: %.1f%% (%d/%d bytes)", pct, downloaded, total)
		} else {
			fmt.Printf("\rDownloading: %d bytes", downloaded)
		}
	})
	if err != nil {
		return err
	}
	fmt.Println()

	fmt.Println("Installing...")
	if err := Install(tmpPath); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}

	fmt.Printf("Successfully upgraded to %s!\n", release.TagName)
	fmt.Println("Restart the service to use the new version.")

	return nil
}
