// SPDX-License-Identifier: MIT

package hostdb

import (
	"encoding/hex"
	"fmt"
	"net"
	"time"

	"github.com/gamelinkhq/gamelink/internal/log"
	"github.com/gamelinkhq/gamelink/internal/nvhttp"
)

// Reachability classifies how the active address is reached.
type Reachability int

const (
	ReachUnknown Reachability = iota
	ReachLAN
	ReachVPN
)

// Ports used as-is for wake packets.
var staticWolPorts = []uint16{
	9,     // standard WoL port
	47009, // opened by the internet hosting tool for WoL
}

// Ports offset by the HTTP base port for hosts on alternate port ranges.
var dynamicWolPorts = []uint16{47998, 47999, 48000, 48002, 48010}

const wolBasePort = 47989

// wolPayload builds the magic packet: 6 bytes of 0xFF then the MAC
// repeated 16 times.
func wolPayload(macHex string) ([]byte, error) {
	mac, err := hex.DecodeString(macHex)
	if err != nil || len(mac) != 6 {
		return nil, fmt.Errorf("invalid MAC %q", macHex)
	}
	payload := make([]byte, 0, 102)
	payload = append(payload, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF)
	for i := 0; i < 16; i++ {
		payload = append(payload, mac...)
	}
	return payload, nil
}

// Wake broadcasts magic packets for this host on every known address,
// the limited broadcast address and every local NIC address, covering the
// standard ports plus the dynamic set offset by each known base port.
// Returns true when at least one packet went out, or immediately when the
// host is already online.
func (h *Host) Wake() bool {
	logger := log.WithComponent("hostdb")

	h.RLock()
	name := h.Name
	mac := h.MACAddress
	online := h.State == StateOnline
	addresses := h.uniqueAddressesLocked()
	h.RUnlock()

	if online {
		logger.Warn().Str("host_name", name).Str("event", "wake.already_online").Msg("host is already online")
		return true
	}
	if mac == "" {
		logger.Warn().Str("host_name", name).Str("event", "wake.no_mac").Msg("host has no MAC address stored")
		return false
	}
	payload, err := wolPayload(mac)
	if err != nil {
		logger.Warn().Err(err).Str("host_name", name).Str("event", "wake.bad_mac").Msg("stored MAC is malformed")
		return false
	}

	// Addresses we know the host by, plus broadcast addresses in case the
	// host fell out of ARP.
	addressPorts := make(map[string]uint16)
	basePorts := make(map[uint16]struct{})
	for _, a := range addresses {
		addressPorts[a.Host] = a.Port
		basePorts[a.Port] = struct{}{}
	}
	addressPorts["255.255.255.255"] = 0
	for _, nicAddr := range localIPv4Addresses() {
		addressPorts[nicAddr] = 0
	}

	success := false
	for addrStr, basePort := range addressPorts {
		ip := net.ParseIP(addrStr)
		if ip == nil || ip.To4() == nil {
			continue
		}
		conn, err := net.ListenPacket("udp4", ":0")
		if err != nil {
			logger.Error().Err(err).Str("event", "wake.socket_failed").Msg("cannot open UDP socket")
			continue
		}

		send := func(port uint16) {
			dst := &net.UDPAddr{IP: ip, Port: int(port)}
			if _, err := conn.WriteTo(payload, dst); err == nil {
				logger.Info().
					Str("host_name", name).
					Str("address", dst.String()).
					Str("event", "wake.sent").
					Msg("sent WoL packet")
				success = true
			}
		}

		for _, p := range staticWolPorts {
			send(p)
		}

		ports := []uint16{basePort}
		if basePort == 0 {
			// Broadcast targets without a known HTTP port try every base.
			ports = ports[:0]
			for p := range basePorts {
				ports = append(ports, p)
			}
		}
		for _, base := range ports {
			for _, p := range dynamicWolPorts {
				send(p - wolBasePort + base)
			}
		}
		_ = conn.Close()
	}
	return success
}

// ActiveAddressReachability probes the active address with a short TCP
// dial and classifies the path by whether the chosen local endpoint is one
// of this machine's own addresses.
func (h *Host) ActiveAddressReachability() Reachability {
	h.RLock()
	active := h.ActiveAddress
	h.RUnlock()

	if active.IsZero() {
		return ReachUnknown
	}

	conn, err := net.DialTimeout("tcp", fmt.Sprintf("%s:%d", active.Host, active.Port), 3*time.Second)
	if err != nil {
		return ReachUnknown
	}
	defer func() { _ = conn.Close() }()

	local, _, err := net.SplitHostPort(conn.LocalAddr().String())
	if err != nil {
		return ReachUnknown
	}
	for _, nicAddr := range localIPv4Addresses() {
		if nicAddr == local {
			return ReachLAN
		}
	}
	return ReachVPN
}

func localIPv4Addresses() []string {
	var out []string
	ifaces, err := net.Interfaces()
	if err != nil {
		return out
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			if v4 := ipNet.IP.To4(); v4 != nil {
				out = append(out, v4.String())
			}
		}
	}
	return out
}

// ActiveTarget returns the live connection target in one consistent read.
func (h *Host) ActiveTarget() (nvhttp.Address, uint16, []byte) {
	h.RLock()
	defer h.RUnlock()
	return h.ActiveAddress, h.ActiveHTTPSPort, h.ServerCert
}
