// SPDX-License-Identifier: MIT

package tasks

import (
	"fmt"

	"github.com/pion/stun/v2"
)

const defaultSTUNServer = "stun.moonlight-stream.org:3478"

// stunPublicAddress asks a STUN server for this network's mapped
// address, used as the remote address candidate for LAN-added hosts.
func stunPublicAddress(server string) (string, error) {
	client, err := stun.Dial("udp4", server)
	if err != nil {
		return "", fmt.Errorf("dial stun server: %w", err)
	}
	defer func() { _ = client.Close() }()

	message := stun.MustBuild(stun.TransactionID, stun.BindingRequest)
	var mapped string
	var cbErr error
	if err := client.Do(message, func(res stun.Event) {
		if res.Error != nil {
			cbErr = res.Error
			return
		}
		var addr stun.XORMappedAddress
		if err := addr.GetFrom(res.Message); err != nil {
			cbErr = err
			return
		}
		mapped = addr.IP.String()
	}); err != nil {
		return "", fmt.Errorf("stun binding request: %w", err)
	}
	if cbErr != nil {
		return "", fmt.Errorf("stun binding response: %w", cbErr)
	}
	if mapped == "" {
		return "", fmt.Errorf("stun response carried no mapped address")
	}
	return mapped, nil
}
