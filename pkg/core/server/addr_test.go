package server

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPickAddr(t *testing.T) {
	addr := netip.MustParseAddr
	candidates := map[string][]netip.Addr{
		"docker0": {addr("172.17.0.1")},
		"eth0":    {addr("8.8.4.4"), addr("192.168.1.20")},
		"tun0":    {addr("100.64.0.1")},
	}

	ip, ok := pickAddr([]string{"docker0", "eth0", "tun0"}, candidates)
	assert.True(t, ok)
	assert.Equal(t, "192.168.1.20", ip.String())

	// 没有优先网卡时取任意网卡上的私有地址
	ip, ok = pickAddr([]string{"tun0", "docker0"}, candidates)
	assert.True(t, ok)
	assert.Equal(t, "172.17.0.1", ip.String())

	ip, ok = pickAddr([]string{"tun0"}, candidates)
	assert.True(t, ok)
	assert.Equal(t, "100.64.0.1", ip.String())

	_, ok = pickAddr(nil, candidates)
	assert.False(t, ok)
}
