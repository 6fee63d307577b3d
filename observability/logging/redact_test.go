package logging

import "testing"

func TestIsAllowlistedIsCaseAndSpaceInsensitive(t *testing.T) {
	if !IsAllowlisted("  Role  ") {
		t.Fatalf("expected role to be allowlisted regardless of case/whitespace")
	}
	if IsAllowlisted("apiKey") {
		t.Fatalf("expected apiKey to remain redacted")
	}
}

func TestMaskFieldRedactsUnlistedKeys(t *testing.T) {
	attr := MaskField("secret", "top-secret")
	if attr.Value.String() != RedactedValue {
		t.Fatalf("expected secret field to be redacted, got %q", attr.Value.String())
	}

	attr = MaskField("role", "minter")
	if attr.Value.String() != "minter" {
		t.Fatalf("expected allowlisted field to pass through, got %q", attr.Value.String())
	}
}

func TestMaskFieldLeavesEmptyValuesAlone(t *testing.T) {
	attr := MaskField("secret", "")
	if attr.Value.String() != "" {
		t.Fatalf("expected empty value to stay empty, got %q", attr.Value.String())
	}
}

func TestMaskAddressKeepsPrefixAndSuffix(t *testing.T) {
	masked := MaskAddress("0x0123456789abcdef0123456789abcdef01234567")
	if masked != "0x01…4567" {
		t.Fatalf("unexpected masked address: %q", masked)
	}
}

func TestMaskAddressLeavesShortValuesUnchanged(t *testing.T) {
	if masked := MaskAddress("0xabc"); masked != "0xabc" {
		t.Fatalf("expected short address to pass through unchanged, got %q", masked)
	}
}
