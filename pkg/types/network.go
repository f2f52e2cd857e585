package types

// NetworkEvent is one reachability observation from the platform.
// IsInternetReachable is nil while reachability is still undetermined.
type NetworkEvent struct {
	IsConnected         bool  `json:"is_connected"`
	IsInternetReachable *bool `json:"is_internet_reachable,omitempty"`
}

// Online reports whether the event means the API can be reached.
// Undetermined reachability follows IsConnected.
func (e NetworkEvent) Online() bool {
	if !e.IsConnected {
		return false
	}
	return e.IsInternetReachable == nil || *e.IsInternetReachable
}

// Identity is the signed-in owner and their bearer token.
type Identity struct {
	OwnerID int64
	Token   string
}

// CanSync reports whether both owner and token are present.
func (id Identity) CanSync() bool {
	return id.OwnerID != 0 && id.Token != ""
}
