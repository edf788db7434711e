package policy

import (
	"errors"
	"testing"
)

// ── valid policies ──

func TestParseBasic(t *testing.T) {
	p, err := Parse("1000;w=3600")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Quota != 1000 || p.WindowSeconds != 3600 {
		t.Errorf("got quota=%v window=%d, want 1000/3600", p.Quota, p.WindowSeconds)
	}
	if p.Unit != UnitRequest {
		t.Errorf("Unit = %q, want default %q", p.Unit, UnitRequest)
	}
	if p.Segment.Type != SegmentGlobal {
		t.Errorf("Segment.Type = %q, want global", p.Segment.Type)
	}
	if p.Raw != "1000;w=3600" {
		t.Errorf("Raw = %q, want input", p.Raw)
	}
}

func TestParseAllFields(t *testing.T) {
	tests := []struct {
		raw     string
		quota   float64
		window  int
		unit    Unit
		segType SegmentType
		segName string
	}{
		{"500;w=60;u=request", 500, 60, UnitRequest, SegmentGlobal, ""},
		{"5000;w=86400;u=cents", 5000, 86400, UnitCents, SegmentGlobal, ""},
		{"100;w=60;s=user", 100, 60, UnitRequest, SegmentUser, ""},
		{"10000;w=3600;s=organization", 10000, 3600, UnitRequest, SegmentProperty, "organization"},
		{"5000;w=3600;u=cents;s=tenant-id", 5000, 3600, UnitCents, SegmentProperty, "tenant-id"},
		{"100;w=60;s=my-tenant_id", 100, 60, UnitRequest, SegmentProperty, "my-tenant_id"},
	}
	for _, tc := range tests {
		p, err := Parse(tc.raw)
		if err != nil {
			t.Errorf("Parse(%q): unexpected error: %v", tc.raw, err)
			continue
		}
		if p.Quota != tc.quota || p.WindowSeconds != tc.window || p.Unit != tc.unit {
			t.Errorf("Parse(%q) = %+v", tc.raw, p)
		}
		if p.Segment.Type != tc.segType || p.Segment.Name != tc.segName {
			t.Errorf("Parse(%q) segment = %+v, want %s/%s", tc.raw, p.Segment, tc.segType, tc.segName)
		}
	}
}

func TestParseCaseInsensitive(t *testing.T) {
	p, err := Parse("100;w=60;u=CENTS")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Unit != UnitCents {
		t.Errorf("Unit = %q, want cents", p.Unit)
	}

	p, err = Parse("100;w=60;s=USER")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Segment.Type != SegmentUser {
		t.Errorf("Segment.Type = %q, want user", p.Segment.Type)
	}
}

func TestParsePropertyNameLowercased(t *testing.T) {
	p, err := Parse("100;w=60;s=Tenant-ID")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Segment.Name != "tenant-id" {
		t.Errorf("Segment.Name = %q, want lower-cased", p.Segment.Name)
	}
}

func TestParseTrimsWhitespace(t *testing.T) {
	p, err := Parse("  1000;w=3600  ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Quota != 1000 {
		t.Errorf("Quota = %v, want 1000", p.Quota)
	}
}

func TestParseDecimalQuota(t *testing.T) {
	for _, raw := range []string{"0.5;w=60;u=cents", "0.125;w=60;u=cents", "0.0000001;w=60;u=cents"} {
		p, err := Parse(raw)
		if err != nil {
			t.Errorf("Parse(%q): unexpected error: %v", raw, err)
			continue
		}
		if p.Quota <= 0 {
			t.Errorf("Parse(%q) quota = %v, want > 0", raw, p.Quota)
		}
	}
}

func TestParseWindowBounds(t *testing.T) {
	if _, err := Parse("100;w=60"); err != nil {
		t.Errorf("w=60 should be accepted: %v", err)
	}
	if _, err := Parse("100;w=31536000"); err != nil {
		t.Errorf("w=31536000 should be accepted: %v", err)
	}
}

// ── empty input ──

func TestParseEmpty(t *testing.T) {
	for _, raw := range []string{"", "   ", "\t"} {
		p, err := Parse(raw)
		if err != nil {
			t.Errorf("Parse(%q): unexpected error: %v", raw, err)
		}
		if p != nil {
			t.Errorf("Parse(%q) = %+v, want nil policy", raw, p)
		}
	}
}

// ── invalid policies ──

func TestParseInvalid(t *testing.T) {
	tests := []struct {
		raw   string
		field string
	}{
		{";w=3600", "policy"},
		{"1000", "policy"},
		{"abc;w=3600", "policy"},
		{"-100;w=3600", "policy"},
		{"-0.5;w=60;u=cents", "policy"},
		{"1e10;w=60", "policy"},
		{"0;w=3600", "quota"},
		{"100;w=59", "window"},
		{"100;w=31536001", "window"},
		{"100;w=60;u=tokens", "policy"},
		{"100:w=60", "policy"},
		{"100;w=60;x=extra", "policy"},
		{"100;w=60;s='; DROP TABLE users;--", "policy"},
		{"100;w=60;s=<script>alert(1)</script>", "policy"},
		{"100;w=60;s=../../../etc/passwd", "policy"},
		{"100;w=60\n;s=user", "policy"},
		{"100;w=60;s=user™", "policy"},
	}
	for _, tc := range tests {
		p, err := Parse(tc.raw)
		if err == nil {
			t.Errorf("Parse(%q) = %+v, want error", tc.raw, p)
			continue
		}
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Errorf("Parse(%q) error type = %T, want *ValidationError", tc.raw, err)
			continue
		}
		if verr.Field != tc.field {
			t.Errorf("Parse(%q) field = %q, want %q", tc.raw, verr.Field, tc.field)
		}
	}
}

func TestParseWindowErrorMessages(t *testing.T) {
	_, err := Parse("100;w=59")
	if err == nil || !errors.As(err, new(*ValidationError)) {
		t.Fatalf("want ValidationError, got %v", err)
	}
	var verr *ValidationError
	errors.As(err, &verr)
	if verr.Message == "" {
		t.Error("window error should carry a message")
	}
}

// ── canonical serialization ──

func TestBuildPolicyString(t *testing.T) {
	tests := []struct {
		p    Policy
		want string
	}{
		{Policy{Quota: 1000, WindowSeconds: 3600, Unit: UnitRequest, Segment: Segment{Type: SegmentGlobal}}, "1000;w=3600"},
		{Policy{Quota: 5000, WindowSeconds: 86400, Unit: UnitCents, Segment: Segment{Type: SegmentGlobal}}, "5000;w=86400;u=cents"},
		{Policy{Quota: 100, WindowSeconds: 60, Unit: UnitRequest, Segment: Segment{Type: SegmentUser}}, "100;w=60;s=user"},
		{Policy{Quota: 10000, WindowSeconds: 3600, Unit: UnitRequest, Segment: Segment{Type: SegmentProperty, Name: "organization"}}, "10000;w=3600;s=organization"},
		{Policy{Quota: 5000, WindowSeconds: 3600, Unit: UnitCents, Segment: Segment{Type: SegmentProperty, Name: "tenant"}}, "5000;w=3600;u=cents;s=tenant"},
		{Policy{Quota: 0.5, WindowSeconds: 60, Unit: UnitCents, Segment: Segment{Type: SegmentGlobal}}, "0.5;w=60;u=cents"},
	}
	for _, tc := range tests {
		if got := BuildPolicyString(&tc.p); got != tc.want {
			t.Errorf("BuildPolicyString(%+v) = %q, want %q", tc.p, got, tc.want)
		}
	}

	if got := BuildPolicyString(nil); got != "" {
		t.Errorf("BuildPolicyString(nil) = %q, want empty", got)
	}
}

// ── round trip ──

func TestParseRoundTrip(t *testing.T) {
	inputs := []string{
		"1000;w=3600",
		"5000;w=86400;u=cents",
		"100;w=60;s=user",
		"10000;w=3600;s=organization",
		"5000;w=3600;u=cents;s=tenant-id",
	}
	for _, raw := range inputs {
		p1, err := Parse(raw)
		if err != nil {
			t.Fatalf("Parse(%q): %v", raw, err)
		}
		canonical := BuildPolicyString(p1)
		p2, err := Parse(canonical)
		if err != nil {
			t.Fatalf("re-Parse(%q): %v", canonical, err)
		}
		p1.Raw, p2.Raw = "", ""
		if *p1 != *p2 {
			t.Errorf("round trip mismatch for %q: %+v vs %+v", raw, p1, p2)
		}
	}
}

// ── IsValid ──

func TestIsValid(t *testing.T) {
	valid := []string{"1000;w=3600", "100;w=60;u=cents", "500;w=86400;s=user", "", "   "}
	for _, raw := range valid {
		if !IsValid(raw) {
			t.Errorf("IsValid(%q) = false, want true", raw)
		}
	}
	invalid := []string{"invalid", "100;w=30", "-100;w=60"}
	for _, raw := range invalid {
		if IsValid(raw) {
			t.Errorf("IsValid(%q) = true, want false", raw)
		}
	}
}
