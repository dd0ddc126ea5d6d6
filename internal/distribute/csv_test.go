package distribute

import (
	"math/big"
	"os"
	"path/filepath"
	"testing"
)

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "recipients.csv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	return path
}

func TestLoadRecipientsCSV(t *testing.T) {
	path := writeCSV(t, `Address,Address_Nametag,Quantity
0x1000000000000000000000000000000000000001,alice,"1,234.50"
0x2000000000000000000000000000000000000002,,0.000001
`)

	recipients, err := LoadRecipientsCSV(path, 18)
	if err != nil {
		t.Fatalf("LoadRecipientsCSV failed: %v", err)
	}
	if len(recipients) != 2 {
		t.Fatalf("Expected 2 recipients, got %d", len(recipients))
	}

	want, _ := new(big.Int).SetString("1234500000000000000000", 10)
	if recipients[0].Amount.Cmp(want) != 0 {
		t.Errorf("Expected amount %s, got %s", want, recipients[0].Amount)
	}
	if recipients[0].Nametag != "alice" {
		t.Errorf("Expected nametag alice, got %q", recipients[0].Nametag)
	}

	want2, _ := new(big.Int).SetString("1000000000000", 10)
	if recipients[1].Amount.Cmp(want2) != 0 {
		t.Errorf("Expected amount %s, got %s", want2, recipients[1].Amount)
	}
}

func TestLoadRecipientsCSVSkipsBadRows(t *testing.T) {
	path := writeCSV(t, `Address,Quantity
not-an-address,100
0x1000000000000000000000000000000000000001,not-a-number
0x1000000000000000000000000000000000000001,-5
0x2000000000000000000000000000000000000002,100
`)

	recipients, err := LoadRecipientsCSV(path, 6)
	if err != nil {
		t.Fatalf("LoadRecipientsCSV failed: %v", err)
	}
	if len(recipients) != 1 {
		t.Fatalf("Expected 1 valid recipient, got %d", len(recipients))
	}
	if recipients[0].Amount.Cmp(big.NewInt(100_000_000)) != 0 {
		t.Errorf("Expected 100000000, got %s", recipients[0].Amount)
	}
}

func TestLoadRecipientsCSVRejectsMissingColumns(t *testing.T) {
	path := writeCSV(t, `Wallet,Amount
0x1000000000000000000000000000000000000001,100
`)
	if _, err := LoadRecipientsCSV(path, 18); err == nil {
		t.Fatal("Expected error for missing Address/Quantity columns")
	}
}

func TestParseQuantityVariants(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{`"1,234.50"`, "1234500000000000000000"},
		{"'42'", "42000000000000000000"},
		{"0.5", "500000000000000000"},
		{" 7 ", "7000000000000000000"},
	}
	for _, tc := range cases {
		got, err := parseQuantity(tc.raw, 18)
		if err != nil {
			t.Errorf("parseQuantity(%q) failed: %v", tc.raw, err)
			continue
		}
		if got.String() != tc.want {
			t.Errorf("parseQuantity(%q) = %s, want %s", tc.raw, got, tc.want)
		}
	}

	for _, raw := range []string{"", "abc", "-1", `""`} {
		if _, err := parseQuantity(raw, 18); err == nil {
			t.Errorf("parseQuantity(%q) expected error", raw)
		}
	}
}
