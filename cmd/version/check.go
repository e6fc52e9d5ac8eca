package version

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	semver "github.com/Masterminds/semver/v3"
	"github.com/navio/ally/cmd/utils"
)

const (
	checkStateFileName     = "release_check.json"
	checkInterval          = 6 * time.Hour
	githubLatestReleaseURL = "https://api.github.com/repos/navio/ally/releases/latest"
)

// timeNow is overridden in tests.
var timeNow = time.Now

type checkState struct {
	LastChecked   time.Time `json:"last_checked"`
	LatestVersion string    `json:"latest_version"`
	ReleaseURL    string    `json:"release_url"`
}

// ReleaseInfo compares the running build with the latest published release.
type ReleaseInfo struct {
	CurrentVersion  string
	LatestVersion   string
	ReleaseURL      string
	PublishedAt     time.Time
	UpdateAvailable bool
	// CurrentIsSemver is false for development builds, which never report an
	// update.
	CurrentIsSemver bool
}

// CheckLatest looks up the latest release. Unless force is set, a result
// cached less than six hours ago is reused.
func CheckLatest(ctx context.Context, force bool) (*ReleaseInfo, error) {
	now := timeNow()

	state, statePath, stateErr := readCheckState()
	if stateErr != nil {
		utils.LogDebug(fmt.Sprintf("release check state read failed: %v", stateErr))
	}

	if !force && state.LatestVersion != "" && now.Sub(state.LastChecked) < checkInterval {
		return buildReleaseInfo(state.LatestVersion, state.ReleaseURL, time.Time{}), nil
	}

	tag, url, publishedAt, err := fetchLatestRelease(ctx)
	if err != nil {
		return nil, err
	}

	next := checkState{LastChecked: now, LatestVersion: tag, ReleaseURL: url}
	if err := persistCheckState(statePath, next); err != nil {
		utils.LogDebug(fmt.Sprintf("release check state write failed: %v", err))
	}
	return buildReleaseInfo(tag, url, publishedAt), nil
}

func buildReleaseInfo(latestTag, url string, publishedAt time.Time) *ReleaseInfo {
	current := parseSemver(CurrentVersion)
	latest := parseSemver(latestTag)

	return &ReleaseInfo{
		CurrentVersion:  FormatVersionForDisplay(strings.TrimSpace(CurrentVersion)),
		LatestVersion:   FormatVersionForDisplay(strings.TrimSpace(latestTag)),
		ReleaseURL:      url,
		PublishedAt:     publishedAt,
		UpdateAvailable: current != nil && latest != nil && latest.GreaterThan(current),
		CurrentIsSemver: current != nil,
	}
}

func parseSemver(raw string) *semver.Version {
	trimmed := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(raw), "v"), "V")
	if trimmed == "" {
		return nil
	}
	v, err := semver.NewVersion(trimmed)
	if err != nil {
		return nil
	}
	return v
}

func fetchLatestRelease(ctx context.Context) (string, string, time.Time, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, githubLatestReleaseURL, nil)
	if err != nil {
		return "", "", time.Time{}, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", "ally/"+strings.TrimSpace(CurrentVersion))
	if token := strings.TrimSpace(os.Getenv("ALLY_GITHUB_TOKEN")); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := utils.GetHTTPClient().Do(req)
	if err != nil {
		return "", "", time.Time{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return "", "", time.Time{}, fmt.Errorf("github releases responded with %d %s: %s",
			resp.StatusCode, http.StatusText(resp.StatusCode), strings.TrimSpace(string(body)))
	}

	var payload struct {
		TagName     string `json:"tag_name"`
		HTMLURL     string `json:"html_url"`
		PublishedAt string `json:"published_at"`
		Draft       bool   `json:"draft"`
		Prerelease  bool   `json:"prerelease"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", "", time.Time{}, fmt.Errorf("failed to decode GitHub release payload: %w", err)
	}
	if payload.TagName == "" {
		return "", "", time.Time{}, errors.New("missing tag_name in release info")
	}
	if payload.Draft || payload.Prerelease {
		return "", "", time.Time{}, errors.New("latest release is marked as draft or prerelease")
	}

	// A bad timestamp is not fatal.
	publishedAt, _ := time.Parse(time.RFC3339, payload.PublishedAt)
	return payload.TagName, payload.HTMLURL, publishedAt, nil
}

func readCheckState() (checkState, string, error) {
	dir, err := utils.GetAllyDataDir()
	if err != nil {
		return checkState{}, "", err
	}
	path := filepath.Join(dir, checkStateFileName)

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return checkState{}, path, nil
	}
	if err != nil {
		return checkState{}, path, err
	}
	var state checkState
	if err := json.Unmarshal(data, &state); err != nil {
		return checkState{}, path, err
	}
	return state, path, nil
}

func persistCheckState(path string, state checkState) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
