// SPDX-License-Identifier: MIT

// Package locale maps operator-facing english text to the token identifiers
// the UI resolves to localized strings.
package locale

// English message constants used across the control plane.
const (
	MsgHostNotExist       = "The specified host does not exist!"
	MsgQuitNotOwner       = "The game wasn't started on this PC. You must quit the game on the host PC manually or use the device that originally started the game."
	MsgQuitNetworkError   = "Network error."
	MsgQuitSessionsOpen   = "All sessions must be disconnected before quitting. Pls reconnect the Host or make sure this is the only connection on this Host."
	MsgIdentityMismatch   = "The paired Razer ID does not match!"
	MsgIdentityDisabled   = "Razer ID pairing has been disabled by the host PC!"
	MsgIdentityModeFailed = "Failed to obtain host Razer ID pairing mode!"
	MsgPairHostOffline    = "The specified host is offline!"
	MsgPairAlreadyPaired  = "The specified host is already paired!"
	MsgPairPinMismatch    = "The PIN from the host PC didn't match. Please try again."
	MsgPairSessionRunning = "You cannot pair while a previous session is still running on the host PC. Quit any running games or reboot the host PC, then try pairing again."
	MsgPairFailed         = "Pairing failed. Please try again."
	MsgPairInProgress     = "Another pairing attempt is already in progress."
	MsgPairIdentityFailed = "Pairing failed using Razer ID. Please check the Razer ID and try again"
	MsgPairConnectError   = "Encountered an error while connecting to the host PC. Please try again."
	MsgPairPinExpired     = "PIN code expired."
	MsgStreamBusy         = "Remote Play is currently streaming."
	MsgStreamHostMissing  = "The specified host PC does not exist!"
	MsgStreamHostOffline  = "The specified host PC is offline!"
	MsgStreamNotPaired    = "The specified host PC is not paired!"
	MsgStreamAppMissing   = "The specified application does not exist!"
	MsgStreamQuitPending  = "There is currently an application that has not been exited. Please exit the application first."
	MsgStreamHostQuitting = "The specified streaming host is exiting the game."
	MsgAddConnectFailed   = "Could not connect to the Host."
)

var textMap = map[string]string{
	MsgHostNotExist:       "remote_play_client_host_not_exist",
	MsgQuitNotOwner:       "remote_play_client_quit_res_failed_1",
	MsgQuitNetworkError:   "remote_play_client_quit_res_failed_2",
	MsgQuitSessionsOpen:   "remote_play_host_quit_failed_1",
	MsgIdentityMismatch:   "remote_play_client_razer_pair_msg_2",
	MsgIdentityDisabled:   "remote_play_client_razer_pair_msg_3",
	MsgIdentityModeFailed: "remote_play_client_razer_pair_msg_4",
	MsgPairHostOffline:    "remote_play_client_pair_failed_2",
	MsgPairAlreadyPaired:  "remote_play_client_pair_failed_3",
	MsgPairPinMismatch:    "remote_play_client_pair_res_failed_1",
	MsgPairSessionRunning: "remote_play_client_pair_res_failed_2",
	MsgPairFailed:         "remote_play_client_pair_res_failed_3",
	MsgPairInProgress:     "remote_play_client_pair_res_failed_4",
	MsgPairIdentityFailed: "remote_play_client_pair_res_failed_5",
	MsgPairConnectError:   "remote_play_client_pair_res_failed_6",
	MsgPairPinExpired:     "remote_play_client_pair_res_failed_7",
	MsgStreamBusy:         "remote_play_client_stream_failed_1",
	MsgStreamHostMissing:  "remote_play_client_stream_failed_2",
	MsgStreamHostOffline:  "remote_play_client_stream_failed_3",
	MsgStreamNotPaired:    "remote_play_client_stream_failed_4",
	MsgStreamAppMissing:   "remote_play_client_stream_failed_5",
	MsgStreamQuitPending:  "remote_play_client_stream_failed_6",
	MsgStreamHostQuitting: "remote_play_client_stream_failed_7",

	"Error initializing session.": "remote_play_client_stream_res_failed_1",
	"Error connecting to host.":   "remote_play_client_stream_res_failed_2",
	"Internal error.":             "remote_play_client_stream_res_failed_3",
	"Error resetting decoder.":    "remote_play_client_stream_res_failed_4",
	"Connection terminated.":      "remote_play_client_stream_res_failed_5",
}

// Token resolves english text to its UI token. Unknown text passes through
// unchanged so callers can emit raw errors without a lookup guard.
func Token(english string) string {
	if token, ok := textMap[english]; ok {
		return token
	}
	return english
}
