package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLocalWindowAdmitAndDeny(t *testing.T) {
	l := newLocalLimiter()
	req := Req{Dimension: "ip", Key: "10.0.0.1", Window: time.Second, Max: 3}

	base := int64(1_000_000)
	for i := 0; i < 3; i++ {
		require.True(t, l.allowAt(req, base+int64(i)), "request %d should be admitted", i)
	}
	require.False(t, l.allowAt(req, base+10), "fourth request inside window must be denied")
	require.False(t, l.allowAt(req, base+20), "denied requests must not consume capacity")
}

func TestLocalWindowSlides(t *testing.T) {
	l := newLocalLimiter()
	req := Req{Dimension: "user", Key: "42", Window: time.Second, Max: 2}

	base := int64(5_000_000)
	require.True(t, l.allowAt(req, base))
	require.True(t, l.allowAt(req, base+100))
	require.False(t, l.allowAt(req, base+200))

	// 第一条记录滑出窗口后应重新放行
	require.True(t, l.allowAt(req, base+1001))
	require.False(t, l.allowAt(req, base+1050), "window still holds two markers")
}

func TestLocalWindowDeniedDoesNotConsume(t *testing.T) {
	l := newLocalLimiter()
	req := Req{Dimension: "ip", Key: "k", Window: time.Second, Max: 1}

	base := int64(9_000_000)
	require.True(t, l.allowAt(req, base))
	for i := int64(1); i <= 5; i++ {
		require.False(t, l.allowAt(req, base+i))
	}
	// 被拒请求未写入窗口，原始记录过期后立即恢复
	require.True(t, l.allowAt(req, base+1001))
}

func TestLocalWindowKeysAreIsolated(t *testing.T) {
	l := newLocalLimiter()
	a := Req{Dimension: "ip", Key: "a", Window: time.Second, Max: 1}
	b := Req{Dimension: "ip", Key: "b", Window: time.Second, Max: 1}

	base := int64(7_000_000)
	require.True(t, l.allowAt(a, base))
	require.False(t, l.allowAt(a, base+1))
	require.True(t, l.allowAt(b, base+1), "keys must not share windows")

	// 同 key 不同维度同样隔离
	c := Req{Dimension: "user", Key: "a", Window: time.Second, Max: 1}
	require.True(t, l.allowAt(c, base+2))
}

func TestSweepDropsColdKeys(t *testing.T) {
	l := newLocalLimiter()
	req := Req{Dimension: "ip", Key: "cold", Window: time.Second, Max: 5}

	base := l.lastSweep
	require.True(t, l.allowAt(req, base))
	require.Len(t, l.windows, 1)

	// 清理周期过后，冷 key 应被移除
	far := base + sweepInterval.Milliseconds() + 10
	other := Req{Dimension: "ip", Key: "warm", Window: time.Second, Max: 5}
	require.True(t, l.allowAt(other, far))

	_, exists := l.windows["ip:cold"]
	require.False(t, exists, "cold key should be swept")
}

func TestMemberUniqueness(t *testing.T) {
	const n = 2000
	seen := make(map[string]struct{}, n)
	for i := 0; i < n; i++ {
		m := nextMember()
		if _, dup := seen[m]; dup {
			t.Fatalf("duplicate member: %s", m)
		}
		seen[m] = struct{}{}
	}
}

func TestUnconfiguredRuleAdmits(t *testing.T) {
	l := New(nil)
	require.True(t, l.Allow(context.Background(), Req{Dimension: "ip", Key: "x", Window: 0, Max: 0}))
	require.True(t, l.Allow(context.Background(), Req{Dimension: "ip", Key: "x", Window: time.Second, Max: 0}))
}

func TestNilStoreFallsToLocal(t *testing.T) {
	l := New(nil)
	req := Req{Dimension: "user", Key: "7", Window: time.Minute, Max: 2, StoreEnabled: true}

	ctx := context.Background()
	require.True(t, l.Allow(ctx, req))
	require.True(t, l.Allow(ctx, req))
	require.False(t, l.Allow(ctx, req), "local window must enforce the limit when store is absent")
}
