// SPDX-License-Identifier: MIT

package nvhttp

import (
	"bytes"
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Address is one (host, port) target of a remote host.
type Address struct {
	Host string
	Port uint16
}

// IsZero reports whether the address carries no host.
func (a Address) IsZero() bool { return a.Host == "" }

func (a Address) String() string {
	if a.Host == "" {
		return "<NULL>"
	}
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}

type envelope struct {
	XMLName       xml.Name `xml:"root"`
	StatusCode    string   `xml:"status_code,attr"`
	StatusMessage string   `xml:"status_message,attr"`
}

// VerifyStatus parses the response envelope and returns a StatusError for
// any status_code other than 200. Malformed documents surface as code -1.
func VerifyStatus(doc []byte) error {
	var env envelope
	if err := xml.Unmarshal(doc, &env); err != nil {
		return &StatusError{Code: -1, Message: "Malformed XML (missing root element)"}
	}
	code, err := strconv.Atoi(env.StatusCode)
	if err != nil {
		code = 0
	}
	if code == 200 {
		return nil
	}
	if code == -1 && env.StatusMessage == "Invalid" {
		// Audio capture failure shows up as this malformed pair.
		return &StatusError{Code: StatusAudioCaptureMissing, Message: audioCaptureHint}
	}
	return &StatusError{Code: code, Message: env.StatusMessage}
}

// XMLString scans the children of <root> for the first element named tag
// and returns its character data.
func XMLString(doc []byte, tag string) string {
	dec := xml.NewDecoder(bytes.NewReader(doc))
	depth := 0
	for {
		tok, err := dec.Token()
		if err != nil {
			return ""
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			if depth == 2 && t.Name.Local == tag {
				var value string
				if err := dec.DecodeElement(&value, &t); err != nil {
					return ""
				}
				return value
			}
		case xml.EndElement:
			depth--
		}
	}
}

// XMLHex returns the hex-decoded contents of the named element.
func XMLHex(doc []byte, tag string) ([]byte, error) {
	value := XMLString(doc, tag)
	if value == "" {
		return nil, nil
	}
	raw, err := hex.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("decode hex element %s: %w", tag, err)
	}
	return raw, nil
}

// DisplayMode is one display capability advertised by a host.
type DisplayMode struct {
	Width       int `xml:"Width"`
	Height      int `xml:"Height"`
	RefreshRate int `xml:"RefreshRate"`
}

// ServerInfo is the parsed serverinfo response.
type ServerInfo struct {
	Hostname               string
	UniqueID               string
	MAC                    string
	LocalIP                string
	HTTPSPort              int
	ExternalIP             string
	ExternalPort           int
	State                  string
	PairStatus             string
	AppVersion             string
	GfeVersion             string
	GPUType                string
	MaxLumaPixelsHEVC      int
	ServerCodecModeSupport int
	RazerIDIdentifier      string
	RazerIDPairStatus      string
	DisplayModes           []DisplayMode

	currentGame int
}

type serverInfoXML struct {
	XMLName                xml.Name      `xml:"root"`
	Hostname               string        `xml:"hostname"`
	UniqueID               string        `xml:"uniqueid"`
	MAC                    string        `xml:"mac"`
	LocalIP                string        `xml:"LocalIP"`
	HTTPSPort              string        `xml:"HttpsPort"`
	ExternalIP             string        `xml:"ExternalIP"`
	ExternalPort           string        `xml:"ExternalPort"`
	State                  string        `xml:"state"`
	CurrentGame            string        `xml:"currentgame"`
	PairStatus             string        `xml:"PairStatus"`
	AppVersion             string        `xml:"appversion"`
	GfeVersion             string        `xml:"GfeVersion"`
	GPUType                string        `xml:"gputype"`
	MaxLumaPixelsHEVC      string        `xml:"MaxLumaPixelsHEVC"`
	ServerCodecModeSupport string        `xml:"ServerCodecModeSupport"`
	RazerIDIdentifier      string        `xml:"RazerIdIdentifier"`
	RazerIDPairStatus      string        `xml:"RazerIdPairStatus"`
	DisplayModes           []DisplayMode `xml:"DisplayMode"`
}

// codecModeH264 is assumed supported when the host omits the field.
const codecModeH264 = 0x1

// ParseServerInfo decodes a serverinfo document. Numeric fields default
// safely when missing or malformed.
func ParseServerInfo(doc []byte) (*ServerInfo, error) {
	var raw serverInfoXML
	if err := xml.Unmarshal(doc, &raw); err != nil {
		return nil, fmt.Errorf("parse serverinfo: %w", err)
	}

	info := &ServerInfo{
		Hostname:          raw.Hostname,
		UniqueID:          raw.UniqueID,
		MAC:               raw.MAC,
		LocalIP:           raw.LocalIP,
		HTTPSPort:         atoiSafe(raw.HTTPSPort, 0),
		ExternalIP:        raw.ExternalIP,
		ExternalPort:      atoiSafe(raw.ExternalPort, 0),
		State:             raw.State,
		PairStatus:        raw.PairStatus,
		AppVersion:        raw.AppVersion,
		GfeVersion:        raw.GfeVersion,
		GPUType:           raw.GPUType,
		MaxLumaPixelsHEVC: atoiSafe(raw.MaxLumaPixelsHEVC, 0),
		RazerIDIdentifier: raw.RazerIDIdentifier,
		RazerIDPairStatus: raw.RazerIDPairStatus,
		DisplayModes:      raw.DisplayModes,
	}
	if raw.ServerCodecModeSupport == "" {
		info.ServerCodecModeSupport = codecModeH264
	} else {
		info.ServerCodecModeSupport = atoiSafe(raw.ServerCodecModeSupport, codecModeH264)
	}

	// Hosts since GFE 2.8 leave currentgame set to the last game played,
	// so the value only counts while a streaming session is up.
	if strings.HasSuffix(raw.State, "_SERVER_BUSY") {
		info.currentGame = atoiSafe(raw.CurrentGame, 0)
	}
	return info, nil
}

// CurrentGame returns the running app id, or 0 when the host is not in a
// streaming session.
func (s *ServerInfo) CurrentGame() int { return s.currentGame }

// IsNvidiaSoftware reports whether the host runs real Nvidia server
// software. GeForce Experience uses the Mjolnir codename in the state
// field and no third-party host does.
func (s *ServerInfo) IsNvidiaSoftware() bool {
	return strings.Contains(s.State, "MJOLNIR")
}

// ParseVersionQuad splits a dotted version into its numeric parts.
// Malformed segments become 0; an empty input yields nil.
func ParseVersionQuad(quad string) []int {
	if quad == "" {
		return nil
	}
	parts := strings.Split(quad, ".")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		out = append(out, atoiSafe(p, 0))
	}
	return out
}

func atoiSafe(s string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return fallback
	}
	return n
}

// AppEntry is one <App> element of an applist response.
type AppEntry struct {
	Title              string
	ID                 int
	GUID               string
	GamePlatform       string
	HDRSupported       bool
	IsAppCollectorGame bool
	BoxArt             string
}

type appListXML struct {
	XMLName xml.Name `xml:"root"`
	Apps    []struct {
		AppTitle              string `xml:"AppTitle"`
		ID                    int    `xml:"ID"`
		GUID                  string `xml:"GUID"`
		IsHdrSupported        string `xml:"IsHdrSupported"`
		CustomImagePath       string `xml:"CustomImagePath"`
		IsAppCollectorGame    string `xml:"IsAppCollectorGame"`
		DesktopWallpaperColor string `xml:"DesktopWallpaperColor"`
		GamePlatform          string `xml:"GamePlatform"`
	} `xml:"App"`
}

var hexColorRe = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// ParseAppList decodes an applist document.
func ParseAppList(doc []byte) ([]AppEntry, error) {
	var raw appListXML
	if err := xml.Unmarshal(doc, &raw); err != nil {
		return nil, fmt.Errorf("parse applist: %w", err)
	}
	apps := make([]AppEntry, 0, len(raw.Apps))
	for _, a := range raw.Apps {
		boxArt := a.CustomImagePath
		// Desktop carries no image unless the host reports a wallpaper color.
		if a.AppTitle == "Desktop" {
			boxArt = ""
			if hexColorRe.MatchString(a.DesktopWallpaperColor) {
				boxArt = "RGB: " + a.DesktopWallpaperColor
			}
		}
		apps = append(apps, AppEntry{
			Title:              a.AppTitle,
			ID:                 a.ID,
			GUID:               a.GUID,
			GamePlatform:       a.GamePlatform,
			HDRSupported:       a.IsHdrSupported == "1",
			IsAppCollectorGame: a.IsAppCollectorGame == "1",
			BoxArt:             boxArt,
		})
	}
	return apps, nil
}
