package locale

import "testing"

func TestTokenKnownText(t *testing.T) {
	cases := map[string]string{
		MsgStreamBusy:       "remote_play_client_stream_failed_1",
		MsgPairPinMismatch:  "remote_play_client_pair_res_failed_1",
		MsgQuitSessionsOpen: "remote_play_host_quit_failed_1",
		MsgQuitNotOwner:     "remote_play_client_quit_res_failed_1",
	}
	for text, want := range cases {
		if got := Token(text); got != want {
			t.Errorf("Token(%q) = %q, want %q", text, got, want)
		}
	}
}

func TestTokenUnknownTextPassesThrough(t *testing.T) {
	raw := "dial tcp: connection refused"
	if got := Token(raw); got != raw {
		t.Errorf("unknown text changed: %q", got)
	}
}
