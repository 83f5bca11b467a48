package convert

import (
	"math/big"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func testConfig() Config {
	return Config{NullVal: "", TrueStr: "True", FalseStr: "False", DecimalSep: ".", TimeFormat: "%Y-%m-%d %H:%M:%S%z"}
}

func TestImportExportBlob(t *testing.T) {
	c := New(testConfig())
	ct := ColumnType{Kind: KindBlob}
	v, err := c.Import(ct, "0xC0FFEE")
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	out, err := c.Export(ct, v)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if out != "0xc0ffee" {
		t.Errorf("round trip = %q, want 0xc0ffee", out)
	}
}

func TestImportBlobRejectsMissingPrefix(t *testing.T) {
	c := New(testConfig())
	if _, err := c.Import(ColumnType{Kind: KindBlob}, "C0FFEE"); err == nil {
		t.Fatal("expected error for blob without 0x prefix")
	}
}

func TestBooleanCaseInsensitive(t *testing.T) {
	c := New(testConfig())
	ct := ColumnType{Kind: KindBoolean}
	v, err := c.Import(ct, "TRUE")
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if v != true {
		t.Errorf("Import(TRUE) = %v, want true", v)
	}
}

func TestIntegerThousandsSep(t *testing.T) {
	cfg := testConfig()
	cfg.ThousandsSep = ","
	c := New(cfg)
	v, err := c.Import(ColumnType{Kind: KindInt}, "1,234,567")
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if v != int64(1234567) {
		t.Errorf("Import = %v, want 1234567", v)
	}
}

func TestDecimalSepNormalization(t *testing.T) {
	cfg := testConfig()
	cfg.DecimalSep = ","
	c := New(cfg)
	v, err := c.Import(ColumnType{Kind: KindFloat}, "3,14")
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if v != 3.14 {
		t.Errorf("Import = %v, want 3.14", v)
	}
}

func TestDecimalArbitraryPrecision(t *testing.T) {
	c := New(testConfig())
	v, err := c.Import(ColumnType{Kind: KindDecimal}, "123456789012345678901234567890.123456789")
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	d := v.(decimal.Decimal)
	want, _ := decimal.NewFromString("123456789012345678901234567890.123456789")
	if !d.Equal(want) {
		t.Errorf("Import = %v, want %v", d, want)
	}
}

func TestUUIDRoundTrip(t *testing.T) {
	c := New(testConfig())
	ct := ColumnType{Kind: KindUUID}
	id := uuid.New()
	v, err := c.Import(ct, id.String())
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	out, err := c.Export(ct, v)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if out != id.String() {
		t.Errorf("round trip = %q, want %q", out, id.String())
	}
}

func TestDateRoundTrip(t *testing.T) {
	c := New(testConfig())
	ct := ColumnType{Kind: KindDate}
	v, err := c.Import(ct, "2024-03-15")
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	out, err := c.Export(ct, v)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if out != "2024-03-15" {
		t.Errorf("round trip = %q, want 2024-03-15", out)
	}
}

func TestTimeOfDayRoundTrip(t *testing.T) {
	c := New(testConfig())
	ct := ColumnType{Kind: KindTime}
	v, err := c.Import(ct, "13:45:30.500000000")
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	out, err := c.Export(ct, v)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if out != "13:45:30.500000000" {
		t.Errorf("round trip = %q, want 13:45:30.500000000", out)
	}
}

func TestTimestampFallbackRegex(t *testing.T) {
	c := New(testConfig())
	ct := ColumnType{Kind: KindTimestamp}
	v, err := c.Import(ct, "2024-03-15T13:45:30+02:00")
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	ts := v.(Timestamp)
	if ts <= 0 {
		t.Errorf("Timestamp = %v, want > 0", ts)
	}
}

func TestImportListNested(t *testing.T) {
	c := New(testConfig())
	ct := ColumnType{Kind: KindList, Subtypes: []ColumnType{{Kind: KindInt}}}
	v, err := c.Import(ct, "[1,2,3]")
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	items := v.([]any)
	if len(items) != 3 || items[0] != int64(1) {
		t.Errorf("Import = %v, want [1 2 3]", items)
	}
	out, err := c.Export(ct, v)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if out != "[1,2,3]" {
		t.Errorf("Export = %q, want [1,2,3]", out)
	}
}

func TestImportMapCompositeValue(t *testing.T) {
	c := New(testConfig())
	ct := ColumnType{Kind: KindMap, Subtypes: []ColumnType{{Kind: KindText}, {Kind: KindInt}}}
	v, err := c.Import(ct, "{a:1,b:2}")
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	entries := v.([]MapEntry)
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(entries))
	}
	out, err := c.Export(ct, v)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if out != "{a:1,b:2}" {
		t.Errorf("Export = %q, want {a:1,b:2}", out)
	}
}

func TestImportTupleMixedTypes(t *testing.T) {
	c := New(testConfig())
	ct := ColumnType{Kind: KindTuple, Subtypes: []ColumnType{{Kind: KindInt}, {Kind: KindText}}}
	v, err := c.Import(ct, "(1,'hi')")
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	items := v.([]any)
	if items[0] != int64(1) || items[1] != "hi" {
		t.Errorf("Import = %v, want [1 hi]", items)
	}
}

func TestImportUDTOrderedFields(t *testing.T) {
	c := New(testConfig())
	ct := ColumnType{
		Kind:      KindUDT,
		UDTName:   "address",
		UDTFields: []string{"street", "zip"},
		Subtypes:  []ColumnType{{Kind: KindText}, {Kind: KindInt}},
	}
	v, err := c.Import(ct, "{street:'Main St',zip:12345}")
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	u := v.(UDTValue)
	street, _ := u.Get("street")
	if street != "Main St" {
		t.Errorf("street = %v, want Main St", street)
	}
}

func TestReversedDefersToSubtype(t *testing.T) {
	c := New(testConfig())
	ct := ColumnType{Kind: KindReversed, Subtypes: []ColumnType{{Kind: KindInt}}}
	v, err := c.Import(ct, "42")
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if v != int64(42) {
		t.Errorf("Import = %v, want 42", v)
	}
}

func TestVarintArbitraryPrecision(t *testing.T) {
	c := New(testConfig())
	v, err := c.Import(ColumnType{Kind: KindVarint}, "123456789012345678901234567890")
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	bi := v.(*big.Int)
	want, _ := new(big.Int).SetString("123456789012345678901234567890", 10)
	if bi.Cmp(want) != 0 {
		t.Errorf("Import = %v, want %v", bi, want)
	}
}

func TestProtectQuotesText(t *testing.T) {
	c := New(testConfig())
	out, err := c.Protect(ColumnType{Kind: KindText}, "it's fine")
	if err != nil {
		t.Fatalf("Protect: %v", err)
	}
	if out != "'it''s fine'" {
		t.Errorf("Protect = %q, want 'it''s fine'", out)
	}
}

func TestProtectLeavesNumbersUnquoted(t *testing.T) {
	c := New(testConfig())
	out, err := c.Protect(ColumnType{Kind: KindInt}, int64(42))
	if err != nil {
		t.Fatalf("Protect: %v", err)
	}
	if out != "42" {
		t.Errorf("Protect = %q, want 42", out)
	}
}

func TestConvertRowRejectsNullPrimaryKey(t *testing.T) {
	c := New(testConfig())
	columns := []ColumnType{{Kind: KindInt}, {Kind: KindText}}
	_, err := c.ConvertRow(columns, []string{"", "foo"}, []int{0})
	if err == nil {
		t.Fatal("expected ParseError for null primary key")
	}
	if _, ok := err.(*ParseError); !ok {
		t.Errorf("err type = %T, want *ParseError", err)
	}
}

func TestConvertRowRejectsWrongColumnCount(t *testing.T) {
	c := New(testConfig())
	columns := []ColumnType{{Kind: KindInt}}
	_, err := c.ConvertRow(columns, []string{"1", "2"}, nil)
	if err == nil {
		t.Fatal("expected ParseError for column count mismatch")
	}
}

func TestConvertRowAllowsNullNonPK(t *testing.T) {
	c := New(testConfig())
	columns := []ColumnType{{Kind: KindInt}, {Kind: KindText}}
	row, err := c.ConvertRow(columns, []string{"1", ""}, []int{0})
	if err != nil {
		t.Fatalf("ConvertRow: %v", err)
	}
	if row[1] != nil {
		t.Errorf("row[1] = %v, want nil", row[1])
	}
}
