// SPDX-License-Identifier: MIT

package hostdb

import "github.com/gamelinkhq/gamelink/internal/nvhttp"

// Snapshot is the pure-data copy of a record's persisted fields. The
// registry keeps one per host for change detection and hands slices of
// them to the storage layer.
type Snapshot struct {
	Name           string
	HasCustomName  bool
	UUID           string
	MACAddress     string
	LocalAddress   nvhttp.Address
	RemoteAddress  nvhttp.Address
	IPv6Address    nvhttp.Address
	ManualAddress  nvhttp.Address
	ServerCert     string
	NvidiaSoftware bool
	Apps           []App
}

// Snapshot copies the persisted fields under the record read lock.
func (h *Host) Snapshot() Snapshot {
	h.RLock()
	defer h.RUnlock()
	return Snapshot{
		Name:           h.Name,
		HasCustomName:  h.HasCustomName,
		UUID:           h.UUID,
		MACAddress:     h.MACAddress,
		LocalAddress:   h.LocalAddress,
		RemoteAddress:  h.RemoteAddress,
		IPv6Address:    h.IPv6Address,
		ManualAddress:  h.ManualAddress,
		ServerCert:     string(h.ServerCert),
		NvidiaSoftware: h.NvidiaSoftware,
		Apps:           append([]App(nil), h.Apps...),
	}
}

// Equal compares persisted fields only; a record whose ephemeral state
// flipped compares equal and does not trigger a save.
func (s Snapshot) Equal(o Snapshot) bool {
	return s.Name == o.Name &&
		s.HasCustomName == o.HasCustomName &&
		s.UUID == o.UUID &&
		s.MACAddress == o.MACAddress &&
		s.LocalAddress == o.LocalAddress &&
		s.RemoteAddress == o.RemoteAddress &&
		s.IPv6Address == o.IPv6Address &&
		s.ManualAddress == o.ManualAddress &&
		s.ServerCert == o.ServerCert &&
		s.NvidiaSoftware == o.NvidiaSoftware &&
		appsEqual(s.Apps, o.Apps)
}

// Restore builds a live record from a snapshot, with ephemeral fields at
// their cold-start values.
func (s Snapshot) Restore() *Host {
	h := &Host{
		Name:           s.Name,
		HasCustomName:  s.HasCustomName,
		UUID:           s.UUID,
		MACAddress:     s.MACAddress,
		LocalAddress:   s.LocalAddress,
		RemoteAddress:  s.RemoteAddress,
		IPv6Address:    s.IPv6Address,
		ManualAddress:  s.ManualAddress,
		ServerCert:     []byte(s.ServerCert),
		NvidiaSoftware: s.NvidiaSoftware,
		Apps:           append([]App(nil), s.Apps...),

		State:                  StateUnknown,
		PairState:              PairUnknown,
		SupportedServerVersion: true,
		ExternalPort:           s.RemoteAddress.Port,
	}
	sortApps(h.Apps)
	return h
}
