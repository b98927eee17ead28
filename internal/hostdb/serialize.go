// SPDX-License-Identifier: MIT

package hostdb

import (
	"fmt"
	"os"
	"strconv"

	"github.com/google/renameio/v2"
	"gopkg.in/ini.v1"

	"github.com/gamelinkhq/gamelink/internal/nvhttp"
	"github.com/gamelinkhq/gamelink/internal/persist"
)

// hosts.ini is a flat key/value file: a top-level "size" plus per-index
// keys like "1\hostname". Certificates are newline-encoded because the
// format is line oriented.
const (
	serName     = "hostname"
	serUUID     = "uuid"
	serMAC      = "mac"
	serLocal    = "localaddress"
	serLocalP   = "localport"
	serRemote   = "remoteaddress"
	serRemoteP  = "remoteport"
	serIPv6     = "ipv6address"
	serIPv6P    = "ipv6port"
	serManual   = "manualaddress"
	serManualP  = "manualport"
	serCert     = "srvcert"
	serCustom   = "customname"
	serNvidia   = "nvidiasw"
	serAppList  = "apps"
	serAppName  = "name"
	serAppID    = "id"
	serAppGUID  = "guid"
	serAppStart = "lastappstarttime"
	serAppPlat  = "gameplatform"
	serAppHDR   = "hdr"
	serAppColl  = "appcollector"
	serAppHide  = "hidden"
	serAppDL    = "directlaunch"
)

var iniOptions = ini.LoadOptions{
	IgnoreInlineComment: true,
}

// SaveSnapshots writes the host list atomically.
func SaveSnapshots(path string, snapshots []Snapshot) error {
	file := ini.Empty()
	section := file.Section("")

	put := func(key, value string) {
		_, _ = section.NewKey(key, value)
	}
	putBool := func(key string, value bool) { put(key, strconv.FormatBool(value)) }
	putInt := func(key string, value int) { put(key, strconv.Itoa(value)) }

	putInt("size", len(snapshots))
	for i, s := range snapshots {
		prefix := strconv.Itoa(i+1) + `\`
		put(prefix+serName, s.Name)
		putBool(prefix+serCustom, s.HasCustomName)
		put(prefix+serUUID, s.UUID)
		put(prefix+serMAC, s.MACAddress)
		put(prefix+serLocal, s.LocalAddress.Host)
		putInt(prefix+serLocalP, int(s.LocalAddress.Port))
		put(prefix+serRemote, s.RemoteAddress.Host)
		putInt(prefix+serRemoteP, int(s.RemoteAddress.Port))
		put(prefix+serIPv6, s.IPv6Address.Host)
		putInt(prefix+serIPv6P, int(s.IPv6Address.Port))
		put(prefix+serManual, s.ManualAddress.Host)
		putInt(prefix+serManualP, int(s.ManualAddress.Port))
		put(prefix+serCert, persist.EncodeNewlines(s.ServerCert))
		putBool(prefix+serNvidia, s.NvidiaSoftware)

		if len(s.Apps) > 0 {
			appPrefix := prefix + serAppList + `\`
			putInt(appPrefix+"size", len(s.Apps))
			for j, app := range s.Apps {
				p := appPrefix + strconv.Itoa(j+1) + `\`
				put(p+serAppName, app.Name)
				putInt(p+serAppID, app.ID)
				put(p+serAppStart, strconv.FormatInt(app.LastAppStartTime, 10))
				put(p+serAppGUID, app.GUID)
				put(p+serAppPlat, app.GamePlatform)
				putBool(p+serAppHDR, app.HDRSupported)
				putBool(p+serAppColl, app.IsAppCollectorGame)
				putBool(p+serAppHide, app.Hidden)
				putBool(p+serAppDL, app.DirectLaunch)
			}
		}
	}

	t, err := renameio.TempFile("", path)
	if err != nil {
		return fmt.Errorf("stage hosts file: %w", err)
	}
	defer func() { _ = t.Cleanup() }()
	if _, err := file.WriteTo(t); err != nil {
		return fmt.Errorf("write hosts file: %w", err)
	}
	if err := t.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("replace hosts file: %w", err)
	}
	return nil
}

// LoadSnapshots reads the host list. A missing file yields an empty list.
func LoadSnapshots(path string) ([]Snapshot, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}
	file, err := ini.LoadSources(iniOptions, path)
	if err != nil {
		return nil, fmt.Errorf("read hosts file %s: %w", path, err)
	}
	section := file.Section("")

	get := func(key string) string { return section.Key(key).String() }
	getBool := func(key string) bool { v, _ := section.Key(key).Bool(); return v }
	getInt := func(key string, fallback int) int {
		v, err := section.Key(key).Int()
		if err != nil {
			return fallback
		}
		return v
	}
	getPort := func(key string) uint16 { return uint16(getInt(key, nvhttp.DefaultHTTPPort)) }

	size := getInt("size", 0)
	snapshots := make([]Snapshot, 0, size)
	for i := 1; i <= size; i++ {
		prefix := strconv.Itoa(i) + `\`
		s := Snapshot{
			Name:           get(prefix + serName),
			HasCustomName:  getBool(prefix + serCustom),
			UUID:           get(prefix + serUUID),
			MACAddress:     get(prefix + serMAC),
			LocalAddress:   nvhttp.Address{Host: get(prefix + serLocal), Port: getPort(prefix + serLocalP)},
			RemoteAddress:  nvhttp.Address{Host: get(prefix + serRemote), Port: getPort(prefix + serRemoteP)},
			IPv6Address:    nvhttp.Address{Host: get(prefix + serIPv6), Port: getPort(prefix + serIPv6P)},
			ManualAddress:  nvhttp.Address{Host: get(prefix + serManual), Port: getPort(prefix + serManualP)},
			ServerCert:     persist.DecodeNewlines(get(prefix + serCert)),
			NvidiaSoftware: getBool(prefix + serNvidia),
		}

		appCount := getInt(prefix+serAppList+`\size`, 0)
		for j := 1; j <= appCount; j++ {
			p := prefix + serAppList + `\` + strconv.Itoa(j) + `\`
			start, _ := strconv.ParseInt(get(p+serAppStart), 10, 64)
			s.Apps = append(s.Apps, App{
				Name:               get(p + serAppName),
				ID:                 getInt(p+serAppID, 0),
				LastAppStartTime:   start,
				GUID:               get(p + serAppGUID),
				GamePlatform:       get(p + serAppPlat),
				HDRSupported:       getBool(p + serAppHDR),
				IsAppCollectorGame: getBool(p + serAppColl),
				Hidden:             getBool(p + serAppHide),
				DirectLaunch:       getBool(p + serAppDL),
			})
		}
		snapshots = append(snapshots, s)
	}
	return snapshots, nil
}
