// SPDX-License-Identifier: MIT

// Package hostdb models one known streaming host: its persisted identity
// and addresses, its live polling state, and the operations the rest of the
// control plane performs on it. Each record carries its own reader/writer
// lock; callers touching multiple records acquire them in ascending UUID
// order.
package hostdb

import (
	"strconv"
	"strings"
	"sync"

	"github.com/gamelinkhq/gamelink/internal/nvhttp"
)

// State is the overall reachability of a host.
type State int

const (
	StateUnknown State = iota
	StateOnline
	StateOffline
)

func (s State) String() string {
	switch s {
	case StateOnline:
		return "CS_ONLINE"
	case StateOffline:
		return "CS_OFFLINE"
	default:
		return "CS_UNKNOWN"
	}
}

// PairState is whether this client holds a pinned certificate for a host.
type PairState int

const (
	PairUnknown PairState = iota
	Paired
	NotPaired
)

func (p PairState) String() string {
	switch p {
	case Paired:
		return "PS_PAIRED"
	case NotPaired:
		return "PS_NOT_PAIRED"
	default:
		return "PS_UNKNOWN"
	}
}

// FederatedPairMode is the host's federated identity pairing policy.
type FederatedPairMode int

const (
	FederatedUnknown FederatedPairMode = iota
	FederatedManual
	FederatedAutomatic
	FederatedDisabled
)

// DisplayMode is one display capability of a host.
type DisplayMode struct {
	Width       int
	Height      int
	RefreshRate int
}

// Host is the record for one remote host. Fields are guarded by the
// embedded lock; exported methods that take no lock state their contract.
type Host struct {
	sync.RWMutex

	// Persisted fields.
	Name           string
	HasCustomName  bool
	UUID           string
	MACAddress     string // normalized hex without separators, empty when unknown
	LocalAddress   nvhttp.Address
	RemoteAddress  nvhttp.Address
	IPv6Address    nvhttp.Address
	ManualAddress  nvhttp.Address
	ServerCert     []byte
	NvidiaSoftware bool
	Apps           []App

	// Ephemeral fields.
	State                  State
	PairState              PairState
	ActiveAddress          nvhttp.Address
	ActiveHTTPSPort        uint16
	ExternalPort           uint16
	CurrentGameID          int
	AppVersion             string
	GfeVersion             string
	ServerCodecModeSupport int
	MaxLumaPixelsHEVC      int
	GPUModel               string
	SupportedServerVersion bool
	UseSameIdentity        bool
	FederatedPairMode      FederatedPairMode
	DisplayModes           []DisplayMode
	PendingQuit            bool
}

// NormalizeMAC converts a colon-separated MAC into the stored hex form.
// The all-zero MAC means the host did not report one and maps to empty.
func NormalizeMAC(mac string) string {
	if mac == "" || mac == "00:00:00:00:00:00" {
		return ""
	}
	var out strings.Builder
	for _, segment := range strings.Split(mac, ":") {
		n, err := strconv.ParseUint(segment, 16, 8)
		if err != nil {
			return ""
		}
		if n < 0x10 {
			out.WriteByte('0')
		}
		out.WriteString(strconv.FormatUint(n, 16))
	}
	return out.String()
}

// FromServerInfo builds a transient record from a serverinfo response.
// httpPort is the port the response was fetched on; activeAddress the
// address that answered; serverCert the certificate pinned on the client
// that fetched it.
func FromServerInfo(info *nvhttp.ServerInfo, httpPort uint16, activeAddress nvhttp.Address, serverCert []byte) *Host {
	h := &Host{
		ServerCert:    serverCert,
		HasCustomName: false,
		UUID:          info.UniqueID,
		MACAddress:    NormalizeMAC(info.MAC),
	}

	h.Name = info.Hostname
	if h.Name == "" {
		h.Name = "UNKNOWN"
	}

	h.ServerCodecModeSupport = info.ServerCodecModeSupport
	h.MaxLumaPixelsHEVC = info.MaxLumaPixelsHEVC

	h.DisplayModes = make([]DisplayMode, 0, len(info.DisplayModes))
	for _, m := range info.DisplayModes {
		h.DisplayModes = append(h.DisplayModes, DisplayMode{Width: m.Width, Height: m.Height, RefreshRate: m.RefreshRate})
	}
	sortDisplayModes(h.DisplayModes)

	// A loopback LocalIP means an IPv6 forwarder is in the path; ignore it.
	if info.LocalIP != "" && !strings.HasPrefix(info.LocalIP, "127.") {
		h.LocalAddress = nvhttp.Address{Host: info.LocalIP, Port: httpPort}
	}

	if info.HTTPSPort != 0 {
		h.ActiveHTTPSPort = uint16(info.HTTPSPort)
	} else {
		h.ActiveHTTPSPort = nvhttp.DefaultHTTPSPort
	}

	// ExternalPort is a Sunshine extension for dynamic WAN ports.
	if info.ExternalPort != 0 {
		h.ExternalPort = uint16(info.ExternalPort)
	} else {
		h.ExternalPort = httpPort
	}
	if info.ExternalIP != "" {
		h.RemoteAddress = nvhttp.Address{Host: info.ExternalIP, Port: h.ExternalPort}
	}

	h.UseSameIdentity = info.RazerIDIdentifier == "true"
	switch info.RazerIDPairStatus {
	case "Manual":
		h.FederatedPairMode = FederatedManual
	case "Automatic":
		h.FederatedPairMode = FederatedAutomatic
	case "Disable":
		h.FederatedPairMode = FederatedDisabled
	default:
		h.FederatedPairMode = FederatedUnknown
	}

	h.NvidiaSoftware = info.IsNvidiaSoftware()
	if info.PairStatus == "1" {
		h.PairState = Paired
	} else {
		h.PairState = NotPaired
	}
	h.CurrentGameID = info.CurrentGame()
	h.AppVersion = info.AppVersion
	h.GfeVersion = info.GfeVersion
	h.GPUModel = info.GPUType
	h.ActiveAddress = activeAddress
	h.State = StateOnline
	h.PendingQuit = false
	h.SupportedServerVersion = true
	return h
}

func sortDisplayModes(modes []DisplayMode) {
	for i := 1; i < len(modes); i++ {
		for j := i; j > 0; j-- {
			a, b := modes[j-1], modes[j]
			if uint64(a.Width)*uint64(a.Height)*uint64(a.RefreshRate) >
				uint64(b.Width)*uint64(b.Height)*uint64(b.RefreshRate) {
				modes[j-1], modes[j] = modes[j], modes[j-1]
			} else {
				break
			}
		}
	}
}

// SetRemoteAddress overrides the remote address, keeping the known
// external port. Used by the STUN probe in the add flow.
func (h *Host) SetRemoteAddress(address string) {
	h.Lock()
	defer h.Unlock()
	h.RemoteAddress = nvhttp.Address{Host: address, Port: h.ExternalPort}
}

// UniqueAddresses returns the deduplicated candidate list in probing
// order: active, local, remote, IPv6, manual. Earlier positions win ties.
// Takes the record read lock.
func (h *Host) UniqueAddresses() []nvhttp.Address {
	h.RLock()
	defer h.RUnlock()
	return h.uniqueAddressesLocked()
}

func (h *Host) uniqueAddressesLocked() []nvhttp.Address {
	candidates := []nvhttp.Address{
		h.ActiveAddress,
		h.LocalAddress,
		h.RemoteAddress,
		h.IPv6Address,
		h.ManualAddress,
	}
	out := make([]nvhttp.Address, 0, len(candidates))
	for _, c := range candidates {
		if c.IsZero() {
			continue
		}
		dup := false
		for _, existing := range out {
			if existing == c {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, c)
		}
	}
	return out
}

// UpdateApp replaces one app by id and re-sorts. Caller holds the write
// lock.
func (h *Host) UpdateApp(newApp App) bool {
	for i := range h.Apps {
		if h.Apps[i].ID == newApp.ID {
			h.Apps[i] = newApp
			sortApps(h.Apps)
			return true
		}
	}
	return false
}

// UpdateAppList replaces the app list with a server-authoritative one,
// carrying client-side attributes over by app id. Caller holds the write
// lock. Returns whether the list changed.
func (h *Host) UpdateAppList(newApps []App) bool {
	if appsEqual(h.Apps, newApps) {
		return false
	}
	for _, existing := range h.Apps {
		for i := range newApps {
			if newApps[i].ID == existing.ID {
				newApps[i].Hidden = existing.Hidden
				newApps[i].DirectLaunch = existing.DirectLaunch
				newApps[i].LastAppStartTime = existing.LastAppStartTime
			}
		}
	}
	h.Apps = newApps
	sortApps(h.Apps)
	return true
}

// VisibleApps returns the apps not hidden by the user. Caller holds at
// least the read lock.
func (h *Host) VisibleApps() []App {
	out := make([]App, 0, len(h.Apps))
	for _, a := range h.Apps {
		if !a.Hidden {
			out = append(out, a)
		}
	}
	return out
}

// FindApp returns the app with the given id. Caller holds at least the
// read lock.
func (h *Host) FindApp(id int) (App, bool) {
	for _, a := range h.Apps {
		if a.ID == id {
			return a, true
		}
	}
	return App{}, false
}

// Update merges a transient record into this one, assigning only fields
// that differ and, for strings and addresses, are non-empty on the source.
// The name is kept when the user customized it. Returns whether any field
// other than the app list changed. Locks this record for write and the
// source for read; the source must not be reachable by other goroutines
// holding this record's lock.
func (h *Host) Update(that *Host) bool {
	changed := false

	h.Lock()
	defer h.Unlock()
	that.RLock()
	defer that.RUnlock()

	if h.UUID != that.UUID {
		return false
	}

	assignString := func(dst *string, src string) {
		if src != "" && *dst != src {
			*dst = src
			changed = true
		}
	}
	assignAddr := func(dst *nvhttp.Address, src nvhttp.Address) {
		if !src.IsZero() && *dst != src {
			*dst = src
			changed = true
		}
	}

	if !h.HasCustomName && h.Name != that.Name {
		h.Name = that.Name
		changed = true
	}
	assignString(&h.MACAddress, that.MACAddress)
	assignAddr(&h.LocalAddress, that.LocalAddress)
	assignAddr(&h.RemoteAddress, that.RemoteAddress)
	assignAddr(&h.IPv6Address, that.IPv6Address)
	assignAddr(&h.ManualAddress, that.ManualAddress)

	if h.ActiveHTTPSPort != that.ActiveHTTPSPort {
		h.ActiveHTTPSPort = that.ActiveHTTPSPort
		changed = true
	}
	if h.ExternalPort != that.ExternalPort {
		h.ExternalPort = that.ExternalPort
		changed = true
	}
	if h.PairState != that.PairState {
		h.PairState = that.PairState
		changed = true
	}
	if h.ServerCodecModeSupport != that.ServerCodecModeSupport {
		h.ServerCodecModeSupport = that.ServerCodecModeSupport
		changed = true
	}
	if h.CurrentGameID != that.CurrentGameID {
		h.CurrentGameID = that.CurrentGameID
		changed = true
	}
	if h.ActiveAddress != that.ActiveAddress {
		h.ActiveAddress = that.ActiveAddress
		changed = true
	}
	if h.State != that.State {
		h.State = that.State
		changed = true
	}
	assignString(&h.GfeVersion, that.GfeVersion)
	assignString(&h.AppVersion, that.AppVersion)
	if h.SupportedServerVersion != that.SupportedServerVersion {
		h.SupportedServerVersion = that.SupportedServerVersion
		changed = true
	}
	if h.UseSameIdentity != that.UseSameIdentity {
		h.UseSameIdentity = that.UseSameIdentity
		changed = true
	}
	if h.FederatedPairMode != that.FederatedPairMode {
		h.FederatedPairMode = that.FederatedPairMode
		changed = true
	}
	if h.NvidiaSoftware != that.NvidiaSoftware {
		h.NvidiaSoftware = that.NvidiaSoftware
		changed = true
	}
	if h.MaxLumaPixelsHEVC != that.MaxLumaPixelsHEVC {
		h.MaxLumaPixelsHEVC = that.MaxLumaPixelsHEVC
		changed = true
	}
	assignString(&h.GPUModel, that.GPUModel)
	if len(that.ServerCert) > 0 && string(h.ServerCert) != string(that.ServerCert) {
		h.ServerCert = that.ServerCert
		changed = true
	}
	if len(that.DisplayModes) > 0 && !displayModesEqual(h.DisplayModes, that.DisplayModes) {
		h.DisplayModes = that.DisplayModes
		changed = true
	}

	if len(that.Apps) > 0 {
		// The app list merge tracks its own change separately so launch
		// stamping does not mark the record changed.
		h.UpdateAppList(append([]App(nil), that.Apps...))
	}
	return changed
}

func displayModesEqual(a, b []DisplayMode) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
