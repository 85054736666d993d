package helper

import (
	"net/http"
	"testing"
)

func newReq(remoteAddr string, headers map[string]string) *http.Request {
	r := &http.Request{Header: http.Header{}, RemoteAddr: remoteAddr}
	for k, v := range headers {
		r.Header.Set(k, v)
	}
	return r
}

func TestClientIPHeaderPriority(t *testing.T) {
	// X-Real-IP 优先
	r := newReq("10.0.0.9:1234", map[string]string{
		"X-Real-IP":       "203.0.113.7",
		"True-Client-Ip":  "198.51.100.2",
		"X-Forwarded-For": "198.51.100.3",
	})
	if got := ClientIPFromRequest(r); got != "203.0.113.7" {
		t.Fatalf("got %s, want X-Real-IP value", got)
	}

	// X-Real-IP 为私网时降级到 True-Client-Ip
	r = newReq("10.0.0.9:1234", map[string]string{
		"X-Real-IP":      "10.1.2.3",
		"True-Client-Ip": "198.51.100.2",
	})
	if got := ClientIPFromRequest(r); got != "198.51.100.2" {
		t.Fatalf("got %s, want True-Client-Ip value", got)
	}
}

func TestClientIPForwardedFor(t *testing.T) {
	r := newReq("10.0.0.9:1234", map[string]string{
		"X-Forwarded-For": "203.0.113.9, 10.0.0.5",
	})
	if got := ClientIPFromRequest(r); got != "203.0.113.9" {
		t.Fatalf("got %s, want first public hop", got)
	}

	// 首跳为私网时整条 XFF 不可信，回退 RemoteAddr
	r = newReq("192.168.1.50:39000", map[string]string{
		"X-Forwarded-For": "10.0.0.5, 203.0.113.9",
	})
	if got := ClientIPFromRequest(r); got != "192.168.1.50" {
		t.Fatalf("got %s, want RemoteAddr host", got)
	}
}

func TestClientIPRemoteAddrFallback(t *testing.T) {
	// 内网部署时 RemoteAddr 是私网地址，仍可作限流键
	if got := ClientIPFromRequest(newReq("192.168.1.50:39000", nil)); got != "192.168.1.50" {
		t.Fatalf("got %s, want 192.168.1.50", got)
	}
	if got := ClientIPFromRequest(newReq("192.168.1.50", nil)); got != "192.168.1.50" {
		t.Fatalf("portless remote addr: got %s", got)
	}
	if got := ClientIPFromRequest(newReq("@@", nil)); got != "unknown" {
		t.Fatalf("garbage remote addr: got %s", got)
	}
	if got := ClientIPFromRequest(nil); got != "unknown" {
		t.Fatalf("nil request: got %s", got)
	}
}

func TestIpInList(t *testing.T) {
	list := []string{"203.0.113.7", "198.51.100.2"}
	if !IpInList("203.0.113.7", list) {
		t.Fatal("listed ip should match")
	}
	if IpInList("203.0.113.8", list) {
		t.Fatal("unlisted ip should not match")
	}
	if IpInList("203.0.113.7", nil) {
		t.Fatal("empty list should never match")
	}
}
