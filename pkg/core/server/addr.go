package server

import (
	"net"
	"net/netip"
	"strings"

	"FaceRecDev/pkg/maths"

	"github.com/pkg/errors"
)

// 按名称优先选择的网卡
var preferredInterfaces = []string{"wlan", "wifi", "wireless", "ethernet", "eth", "en"}

// LocalIP 本机对局域网可见的 IPv4 地址，用于启动日志中给出可访问的地址
func LocalIP() (string, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return "", errors.Wrapf(maths.ErrIO, "枚举网卡失败: %v", err)
	}
	candidates := make(map[string][]netip.Addr, len(ifaces))
	var names []string
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		lower := strings.ToLower(iface.Name)
		if strings.Contains(lower, "vmware") || strings.Contains(lower, "virtual") {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			if ip, ok := ipv4(a); ok {
				candidates[lower] = append(candidates[lower], ip)
			}
		}
		names = append(names, lower)
	}
	if ip, ok := pickAddr(names, candidates); ok {
		return ip.String(), nil
	}
	return "", errors.Wrap(maths.ErrIO, "未找到有效的IP地址")
}

func ipv4(a net.Addr) (netip.Addr, bool) {
	ipnet, ok := a.(*net.IPNet)
	if !ok {
		return netip.Addr{}, false
	}
	ip, ok := netip.AddrFromSlice(ipnet.IP)
	if !ok {
		return netip.Addr{}, false
	}
	ip = ip.Unmap()
	return ip, ip.Is4() && !ip.IsLoopback()
}

// pickAddr 先在优先网卡中找私有地址，再在全部网卡中找私有地址，最后取任意 IPv4
func pickAddr(names []string, candidates map[string][]netip.Addr) (netip.Addr, bool) {
	for _, preferred := range preferredInterfaces {
		for _, name := range names {
			if !strings.Contains(name, preferred) {
				continue
			}
			for _, ip := range candidates[name] {
				if ip.IsPrivate() {
					return ip, true
				}
			}
		}
	}
	for _, name := range names {
		for _, ip := range candidates[name] {
			if ip.IsPrivate() {
				return ip, true
			}
		}
	}
	for _, name := range names {
		if ips := candidates[name]; len(ips) > 0 {
			return ips[0], true
		}
	}
	return netip.Addr{}, false
}
