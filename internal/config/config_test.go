package config

import (
	"reflect"
	"testing"
	"time"
)

func TestGetEnvStringFallsBackToDefault(t *testing.T) {
	t.Setenv("GW_TEST_STR", "")
	if got := getEnvString("GW_TEST_STR", "fallback"); got != "fallback" {
		t.Fatalf("getEnvString() = %q, want fallback", got)
	}
	t.Setenv("GW_TEST_STR", "set")
	if got := getEnvString("GW_TEST_STR", "fallback"); got != "set" {
		t.Fatalf("getEnvString() = %q, want set", got)
	}
}

func TestGetEnvIntRejectsInvalidAndOutOfRange(t *testing.T) {
	t.Setenv("GW_TEST_INT", "42")
	if got := getEnvInt("GW_TEST_INT", 1); got != 42 {
		t.Fatalf("getEnvInt() = %d, want 42", got)
	}
	t.Setenv("GW_TEST_INT", "not-a-number")
	if got := getEnvInt("GW_TEST_INT", 7); got != 7 {
		t.Fatalf("getEnvInt() = %d, want fallback 7", got)
	}
	t.Setenv("GW_TEST_INT", "99999999999")
	if got := getEnvInt("GW_TEST_INT", 9); got != 9 {
		t.Fatalf("getEnvInt() = %d, want fallback 9 on overflow", got)
	}
}

func TestGetEnvBoolParsesOrFallsBack(t *testing.T) {
	t.Setenv("GW_TEST_BOOL", "true")
	if got := getEnvBool("GW_TEST_BOOL", false); got != true {
		t.Fatal("getEnvBool() = false, want true")
	}
	t.Setenv("GW_TEST_BOOL", "nope")
	if got := getEnvBool("GW_TEST_BOOL", true); got != true {
		t.Fatal("getEnvBool() should fall back to default on parse error")
	}
}

func TestGetEnvDurationRejectsNonPositive(t *testing.T) {
	t.Setenv("GW_TEST_DUR", "5s")
	if got := getEnvDuration("GW_TEST_DUR", time.Second); got != 5*time.Second {
		t.Fatalf("getEnvDuration() = %v, want 5s", got)
	}
	t.Setenv("GW_TEST_DUR", "-1s")
	if got := getEnvDuration("GW_TEST_DUR", 2*time.Second); got != 2*time.Second {
		t.Fatalf("getEnvDuration() = %v, want fallback 2s for non-positive value", got)
	}
	t.Setenv("GW_TEST_DUR", "garbage")
	if got := getEnvDuration("GW_TEST_DUR", 3*time.Second); got != 3*time.Second {
		t.Fatalf("getEnvDuration() = %v, want fallback 3s for invalid value", got)
	}
}

func TestGetEnvStringSliceTrimsAndFallsBack(t *testing.T) {
	t.Setenv("GW_TEST_SLICE", " a, b ,c")
	got := getEnvStringSlice("GW_TEST_SLICE", []string{"default"})
	want := []string{"a", "b", "c"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("getEnvStringSlice() = %v, want %v", got, want)
	}

	t.Setenv("GW_TEST_SLICE", "")
	got = getEnvStringSlice("GW_TEST_SLICE", []string{"default"})
	if !reflect.DeepEqual(got, []string{"default"}) {
		t.Fatalf("getEnvStringSlice() = %v, want default fallback", got)
	}
}

func TestHasDefaultProxy(t *testing.T) {
	c := &Config{}
	if c.HasDefaultProxy() {
		t.Fatal("expected HasDefaultProxy() = false when ProxyURL is empty")
	}
	c.ProxyURL = "http://proxy.example.com:8080"
	if !c.HasDefaultProxy() {
		t.Fatal("expected HasDefaultProxy() = true when ProxyURL is set")
	}
}

func TestValidateCorrectsOutOfRangePort(t *testing.T) {
	c := &Config{Port: 99999, BrowserPoolSize: 3}
	c.Validate()
	if c.Port != 8080 {
		t.Fatalf("Port = %d, want corrected default 8080", c.Port)
	}
}

func TestValidateRejectsPathTraversalInBrowserPath(t *testing.T) {
	c := &Config{BrowserPath: "/usr/../etc/passwd", BrowserPoolSize: 3}
	c.Validate()
	if c.BrowserPath != "" {
		t.Fatalf("BrowserPath = %q, want cleared on path traversal", c.BrowserPath)
	}
}
