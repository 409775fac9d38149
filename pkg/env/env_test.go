package env

import "testing"

func TestFirstChecksKeysInOrder(t *testing.T) {
	t.Setenv("GM_TEST_A", "  ")
	t.Setenv("GM_TEST_B", "pod-b")
	if got := First("x", "GM_TEST_A", "GM_TEST_B"); got != "pod-b" {
		t.Fatalf("expected pod-b, got %q", got)
	}
	if got := Get("GM_TEST_A", "fallback"); got != "fallback" {
		t.Fatalf("blank value should fall back, got %q", got)
	}
}
