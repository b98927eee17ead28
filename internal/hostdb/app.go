// SPDX-License-Identifier: MIT

package hostdb

import (
	"sort"
	"strings"

	"github.com/gamelinkhq/gamelink/internal/nvhttp"
)

// App is one entry of a host's application list. Hidden, DirectLaunch and
// LastAppStartTime are client-side attributes preserved across
// server-authoritative list refreshes.
type App struct {
	ID                 int
	GUID               string
	Name               string
	GamePlatform       string
	HDRSupported       bool
	IsAppCollectorGame bool
	Hidden             bool
	DirectLaunch       bool
	LastAppStartTime   int64
	BoxArt             string
}

// Equal compares the server-authoritative and client attributes that decide
// whether the list changed. LastAppStartTime and BoxArt are excluded so
// launch stamping and artwork churn do not look like list updates.
func (a App) Equal(b App) bool {
	return a.ID == b.ID &&
		a.GUID == b.GUID &&
		a.Name == b.Name &&
		a.GamePlatform == b.GamePlatform &&
		a.HDRSupported == b.HDRSupported &&
		a.IsAppCollectorGame == b.IsAppCollectorGame &&
		a.Hidden == b.Hidden &&
		a.DirectLaunch == b.DirectLaunch
}

func appsEqual(a, b []App) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

// appFromEntry converts one wire applist entry.
func appFromEntry(e nvhttp.AppEntry) App {
	return App{
		ID:                 e.ID,
		GUID:               e.GUID,
		Name:               e.Title,
		GamePlatform:       e.GamePlatform,
		HDRSupported:       e.HDRSupported,
		IsAppCollectorGame: e.IsAppCollectorGame,
		BoxArt:             e.BoxArt,
	}
}

// AppsFromEntries converts a wire applist.
func AppsFromEntries(entries []nvhttp.AppEntry) []App {
	apps := make([]App, 0, len(entries))
	for _, e := range entries {
		apps = append(apps, appFromEntry(e))
	}
	return apps
}

// sortApps orders Desktop first, then most recently launched, then by
// case-folded name.
func sortApps(apps []App) {
	sort.SliceStable(apps, func(i, j int) bool {
		a, b := apps[i], apps[j]
		if (a.Name == "Desktop") != (b.Name == "Desktop") {
			return a.Name == "Desktop"
		}
		if a.LastAppStartTime != b.LastAppStartTime {
			return a.LastAppStartTime > b.LastAppStartTime
		}
		return strings.ToLower(a.Name) < strings.ToLower(b.Name)
	})
}
