// utility/peer.go
package utility

import "strings"

// SplitPeer splits an `ss` peer column into host and port.
// IPv6 peers are bracketed ("[2001:db8::1]:1234"), IPv4 peers are not
// ("1.2.3.4:1234"). ok is false for unconnected sockets ("*:*") and for
// anything without a port.
func SplitPeer(peer string) (host, port string, ok bool) {
	if peer == "" || peer == "*:*" {
		return "", "", false
	}

	if strings.HasPrefix(peer, "[") {
		i := strings.LastIndex(peer, "]:")
		if i < 0 {
			return "", "", false
		}
		return strings.TrimPrefix(peer[:i], "["), peer[i+2:], true
	}

	i := strings.LastIndex(peer, ":")
	if i < 0 {
		return "", "", false
	}
	return peer[:i], peer[i+1:], true
}
