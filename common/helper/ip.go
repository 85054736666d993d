package helper

import (
	"net"
	"net/http"
	"strings"

	"github.com/pkg/errors"
)

// Header may return multiple IP addresses in the format: "client IP, proxy 1 IP, proxy 2 IP", so we take the first one.
var xForwardedForHeader = http.CanonicalHeaderKey("X-Forwarded-For")

// Nginx proxy/FastCGI
var xRealIPHeader = http.CanonicalHeaderKey("X-Real-IP")

// Akamai and Cloudflare
var trueClientIPHeader = http.CanonicalHeaderKey("True-Client-Ip")

var cidrs []*net.IPNet

func init() {
	maxCidrBlocks := []string{
		"127.0.0.1/8",    // localhost
		"10.0.0.0/8",     // 24-bit block
		"172.16.0.0/12",  // 20-bit block
		"192.168.0.0/16", // 16-bit block
		"169.254.0.0/16", // link local address
		"::1/128",        // localhost IPv6
		"fc00::/7",       // unique local address IPv6
		"fe80::/10",      // link local address IPv6
	}

	cidrs = make([]*net.IPNet, len(maxCidrBlocks))
	for i, maxCidrBlock := range maxCidrBlocks {
		_, cidr, _ := net.ParseCIDR(maxCidrBlock)
		cidrs[i] = cidr
	}
}

// isPrivateAddress works by checking if the address is under private CIDR blocks.
func isPrivateAddress(address string) (bool, error) {
	ipAddress := net.ParseIP(address)
	if ipAddress == nil {
		return false, errors.New("address is not valid")
	}

	for i := range cidrs {
		if cidrs[i].Contains(ipAddress) {
			return true, nil
		}
	}

	return false, nil
}

// validateAndCleanIP 验证并清理IP地址
func validateAndCleanIP(ip string) string {
	ip = strings.TrimSpace(ip)
	if ip == "" {
		return ""
	}

	parsedIP := net.ParseIP(ip)
	if parsedIP == nil {
		return ""
	}

	// 过滤 0.0.0.0/:: 与回环地址
	if parsedIP.IsUnspecified() || parsedIP.IsLoopback() {
		return ""
	}

	return ip
}

func retrieveForwardedIP(forwardedHeader string) (string, error) {
	for _, address := range strings.Split(forwardedHeader, ",") {
		if len(address) > 0 {
			address = strings.TrimSpace(address)
			isPrivate, err := isPrivateAddress(address)
			switch {
			case !isPrivate && err == nil:
				return address, nil
			case isPrivate && err == nil:
				return "", errors.New("forwarded ip is private")
			default:
				return "", errors.WithStack(err)
			}
		}
	}
	return "", errors.New("empty or invalid forwarded header")
}

// ClientIPFromRequest 获取客户端真实公网IP，限流维度与回调审计使用
// 头优先级：X-Real-IP > True-Client-Ip > X-Forwarded-For > RemoteAddr
func ClientIPFromRequest(r *http.Request) string {
	if r == nil {
		return "unknown"
	}

	if ip := validateAndCleanIP(r.Header.Get(xRealIPHeader)); ip != "" {
		if isPrivate, _ := isPrivateAddress(ip); !isPrivate {
			return ip
		}
	}

	if ip := validateAndCleanIP(r.Header.Get(trueClientIPHeader)); ip != "" {
		if isPrivate, _ := isPrivateAddress(ip); !isPrivate {
			return ip
		}
	}

	if xff := r.Header.Get(xForwardedForHeader); xff != "" {
		if ip, err := retrieveForwardedIP(xff); err == nil {
			if validIP := validateAndCleanIP(ip); validIP != "" {
				return validIP
			}
		}
	}

	remoteAddr := strings.TrimSpace(r.RemoteAddr)
	if remoteAddr != "" {
		remoteIP := remoteAddr
		if strings.ContainsRune(remoteAddr, ':') {
			remoteIP, _, _ = net.SplitHostPort(remoteAddr)
		}
		// 内网部署时 RemoteAddr 多为私网地址，仍可作为限流键
		if ip := strings.TrimSpace(remoteIP); net.ParseIP(ip) != nil {
			return ip
		}
	}

	return "unknown"
}

func IpInList(ip string, ipList []string) bool {
	for _, v := range ipList {
		if v == ip {
			return true
		}
	}
	return false
}
