package dataflag

// ClientInfo identifies the software writing flags, opinions and votes.
type ClientInfo struct {
	Name    string
	Version string
}
