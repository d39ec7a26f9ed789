//go:build !unix

package rpc

import "net"

func listenConfig() net.ListenConfig {
	return net.ListenConfig{}
}
