package types

import "testing"

func TestNetworkEventOnline(t *testing.T) {
	yes, no := true, false
	tests := []struct {
		name string
		ev   NetworkEvent
		want bool
	}{
		{"disconnected", NetworkEvent{IsConnected: false, IsInternetReachable: &yes}, false},
		{"connected and reachable", NetworkEvent{IsConnected: true, IsInternetReachable: &yes}, true},
		{"connected but unreachable", NetworkEvent{IsConnected: true, IsInternetReachable: &no}, false},
		{"connected, reachability unknown", NetworkEvent{IsConnected: true}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.ev.Online(); got != tt.want {
				t.Errorf("Online() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIdentityCanSync(t *testing.T) {
	if (Identity{OwnerID: 42}).CanSync() {
		t.Error("missing token must not sync")
	}
	if (Identity{Token: "t"}).CanSync() {
		t.Error("missing owner must not sync")
	}
	if !(Identity{OwnerID: 42, Token: "t"}).CanSync() {
		t.Error("owner and token should sync")
	}
}
