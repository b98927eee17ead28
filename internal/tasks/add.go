// SPDX-License-Identifier: MIT

package tasks

import (
	"net"
	"strconv"
	"strings"

	"github.com/gamelinkhq/gamelink/internal/hostdb"
	"github.com/gamelinkhq/gamelink/internal/locale"
	"github.com/gamelinkhq/gamelink/internal/log"
	"github.com/gamelinkhq/gamelink/internal/nvhttp"
)

// StartAdd begins adding a host by user-entered address, optionally with
// a ":port" suffix. Progress is observed through the returned task id.
// Starting the same address while an attempt is in flight returns the
// running task.
func (m *Manager) StartAdd(address string) (string, error) {
	return m.startAdd(address, "")
}

// StartDiscoveredAdd is StartAdd for mDNS results, carrying the
// announced IPv6 address when the instance advertised one.
func (m *Manager) StartDiscoveredAdd(address, ipv6 string) (string, error) {
	return m.startAdd(address, ipv6)
}

func (m *Manager) startAdd(address, ipv6 string) (string, error) {
	t, started := m.begin(KindAdd, address)
	if started {
		go m.runAdd(t, address, ipv6)
	}
	return t.id, nil
}

func (m *Manager) runAdd(t *task, raw, ipv6 string) {
	ctx, logger := m.taskContext(t)
	addr := parseAddress(raw)
	client := nvhttp.NewClient(addr, 0, nil, m.id)

	// Probe fast first so typos fail quickly, then give a slow host the
	// full window.
	info, err := client.ServerInfo(ctx, true)
	if err != nil {
		info, err = client.ServerInfo(ctx, false)
	}
	if err != nil {
		logger.Info().Err(err).
			Str(log.FieldAddress, addr.String()).
			Str(log.FieldEvent, "tasks.add_failed").
			Msg("host did not answer")
		t.finish(false, locale.MsgAddConnectFailed)
		return
	}

	// When the answering uuid is already known with a pinned certificate,
	// the plain HTTP answer is not authoritative: it reports the host as
	// unpaired. Re-fetch over HTTPS with that certificate so the merge
	// keeps the pair state.
	cert := m.pinnedCert(info.UniqueID)
	if len(cert) > 0 {
		httpsPort := uint16(info.HTTPSPort)
		if httpsPort == 0 {
			httpsPort = nvhttp.DefaultHTTPSPort
		}
		secure := nvhttp.NewClient(addr, httpsPort, cert, m.id)
		if secureInfo, err := secure.ServerInfo(ctx, false); err == nil {
			info = secureInfo
		}
	}

	fresh := hostdb.FromServerInfo(info, addr.Port, addr, cert)
	fresh.ManualAddress = addr

	host, isNew := m.reg.Upsert(fresh)

	if ipv6 != "" {
		host.Lock()
		host.IPv6Address = nvhttp.Address{Host: ipv6, Port: addr.Port}
		host.Unlock()
		m.reg.MarkDirty()
	}

	// Hosts added by private address get their WAN address probed so a
	// later remote connection has a candidate. Skip when the path is a
	// VPN, where the mapped address would be the VPN egress.
	if isPrivateAddress(addr.Host) && host.ActiveAddressReachability() != hostdb.ReachVPN {
		if public, err := stunPublicAddress(m.stunServer); err == nil {
			host.SetRemoteAddress(public)
			m.reg.MarkDirty()
		}
	}

	host.RLock()
	uuid := host.UUID
	host.RUnlock()
	logger.Info().
		Str(log.FieldHostUUID, uuid).
		Str(log.FieldAddress, addr.String()).
		Bool("new", isNew).
		Str(log.FieldEvent, "tasks.host_added").
		Msg("host added")
	t.finish(true, "")
}

// pinnedCert returns the stored server certificate of a known host.
func (m *Manager) pinnedCert(uuid string) []byte {
	host, ok := m.reg.Get(uuid)
	if !ok {
		return nil
	}
	host.RLock()
	defer host.RUnlock()
	return host.ServerCert
}

// parseAddress splits an optional port suffix, defaulting to the
// standard control port. IPv6 literals may be bracketed.
func parseAddress(raw string) nvhttp.Address {
	raw = strings.TrimSpace(raw)
	if host, portStr, err := net.SplitHostPort(raw); err == nil {
		if port, err := strconv.Atoi(portStr); err == nil && port > 0 && port <= 65535 {
			return nvhttp.Address{Host: host, Port: uint16(port)}
		}
	}
	return nvhttp.Address{Host: strings.Trim(raw, "[]"), Port: nvhttp.DefaultHTTPPort}
}

func isPrivateAddress(host string) bool {
	ip := net.ParseIP(host)
	return ip != nil && ip.IsPrivate()
}
