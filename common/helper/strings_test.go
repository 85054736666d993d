package helper

import "testing"

func TestSignPayloadKnownVector(t *testing.T) {
	sign := SignPayload("M1001", "1735790400000", "nonce-1",
		`{"order_no":"RC20250101x","amount":"100.50","status":"success"}`, "test-secret")
	want := "f37f781c873991b077b5106292c818f8a1899727fdedbc69af179ef1c2ebd093"
	if sign != want {
		t.Fatalf("got %s, want %s", sign, want)
	}
}

func TestSignPayloadSecretChangesDigest(t *testing.T) {
	a := SignPayload("M1001", "1", "n", "body", "secret-a")
	b := SignPayload("M1001", "1", "n", "body", "secret-b")
	if a == b {
		t.Fatal("different secrets must not produce the same signature")
	}
	if len(a) != 64 {
		t.Fatalf("unexpected digest length %d", len(a))
	}
}

func TestSecureCompare(t *testing.T) {
	if !SecureCompare("abc123", "abc123") {
		t.Fatal("equal strings should match")
	}
	if SecureCompare("abc123", "abc124") {
		t.Fatal("different strings should not match")
	}
	if SecureCompare("abc", "abcd") {
		t.Fatal("length mismatch should not match")
	}
}

func TestBuildFullURL(t *testing.T) {
	cases := []struct {
		host, path, want string
	}{
		{"https://pay.example.com", "/api/order/create", "https://pay.example.com/api/order/create"},
		{"https://pay.example.com/", "api/order/create", "https://pay.example.com/api/order/create"},
		{"https://pay.example.com", "https://other.example.com/x", "https://other.example.com/x"},
		{"https://pay.example.com", "", ""},
		{"", "api/x", "api/x"},
	}
	for _, c := range cases {
		if got := BuildFullURL(c.host, c.path); got != c.want {
			t.Fatalf("BuildFullURL(%q, %q) = %q, want %q", c.host, c.path, got, c.want)
		}
	}
}
