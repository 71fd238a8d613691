package config

import (
	"testing"
	"time"
)

func TestStringFallsBackWhenBlank(t *testing.T) {
	Set("TELECARE_TEST_BLANK", "  ")
	if got := String("TELECARE_TEST_BLANK", "dflt"); got != "dflt" {
		t.Fatalf("expected fallback, got %q", got)
	}
}

func TestRequiredString(t *testing.T) {
	if _, err := RequiredString("TELECARE_TEST_MISSING"); err == nil {
		t.Fatalf("expected error for missing key")
	}
	Set("TELECARE_TEST_PRESENT", "x")
	v, err := RequiredString("TELECARE_TEST_PRESENT")
	if err != nil || v != "x" {
		t.Fatalf("unexpected result %q %v", v, err)
	}
}

func TestPortValidation(t *testing.T) {
	Set("TELECARE_TEST_PORT", "70000")
	if _, err := Port("TELECARE_TEST_PORT", "8080"); err == nil {
		t.Fatalf("expected invalid port error")
	}
	p, err := Port("TELECARE_TEST_PORT_UNSET", "8080")
	if err != nil || p != "8080" {
		t.Fatalf("expected fallback port, got %q %v", p, err)
	}
}

func TestTypedGetters(t *testing.T) {
	Set("TELECARE_TEST_INT", "12")
	Set("TELECARE_TEST_BOOL", "true")
	Set("TELECARE_TEST_DUR", "90s")
	Set("TELECARE_TEST_LIST", "a, ,b")
	Set("TELECARE_TEST_BADINT", "nope")

	if Int("TELECARE_TEST_INT", 0) != 12 {
		t.Fatalf("int not parsed")
	}
	if Int("TELECARE_TEST_BADINT", 7) != 7 {
		t.Fatalf("bad int should fall back")
	}
	if !Bool("TELECARE_TEST_BOOL", false) {
		t.Fatalf("bool not parsed")
	}
	if Duration("TELECARE_TEST_DUR", 0) != 90*time.Second {
		t.Fatalf("duration not parsed")
	}
	if l := List("TELECARE_TEST_LIST"); len(l) != 2 || l[0] != "a" || l[1] != "b" {
		t.Fatalf("unexpected list %v", l)
	}
}

func TestLocation(t *testing.T) {
	Set("TELECARE_TEST_TZ", "Not/AZone")
	if _, err := Location("TELECARE_TEST_TZ"); err == nil {
		t.Fatalf("expected unknown zone error")
	}
	loc, err := Location("TELECARE_TEST_TZ_UNSET")
	if err != nil || loc != time.UTC {
		t.Fatalf("expected UTC default, got %v %v", loc, err)
	}
}
