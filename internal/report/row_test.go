package report

import (
	"testing"
	"time"

	"crab-rebase-sim/internal/vault"

	"github.com/shopspring/decimal"
)

func sampleStatus() vault.Status {
	return vault.Status{
		BlockNumber:              14011134,
		Timestamp:                time.Date(2022, 1, 15, 10, 30, 0, 0, time.UTC),
		ShortAmount:              decimal.RequireFromString("14000000000000000000"),
		CollateralAmount:         decimal.RequireFromString("7500000000000000000"),
		CollateralRatio:          decimal.RequireFromString("2.1"),
		PrevCollateralRatio:      decimal.RequireFromString("2.4"),
		EffectiveCollateralRatio: decimal.RequireFromString("2.05"),
		TotalValueUSDC:           decimal.RequireFromString("7000000000000000000000"),
		WETHPrice:                3000.5,
		OSQTHETHPrice:            0.25,
		OSQTHUSDCPrice:           750.125,
		TWAPOSQTHPrice:           decimal.RequireFromString("250000000000000000"),
		Reason:                   "collateral less than 1.75: 1.7",
		CurrentImpliedFunding:    0.21,
		NormalizationFactor:      0.97,
		UserInterest:             decimal.RequireFromString("0.0012"),
	}
}

func TestFormatEther(t *testing.T) {
	cases := map[string]string{
		"100000000000000000000": "100.0",
		"250000000000000000":    "0.25",
		"1":                     "0.000000000000000001",
		"0":                     "0.0",
		"1500000000000000000.9": "1.5",
	}
	for in, want := range cases {
		if got := FormatEther(decimal.RequireFromString(in)); got != want {
			t.Fatalf("FormatEther(%s): expected %q, got %q", in, want, got)
		}
	}
}

func TestRowFields(t *testing.T) {
	row := Row{Strategy: "s", StartBlock: 1, Kind: KindRebase, Status: sampleStatus()}
	fields := row.Fields()
	if len(fields) != len(Header) {
		t.Fatalf("expected %d fields, got %d", len(Header), len(fields))
	}
	want := []string{
		"14011134",
		"Sat, 15 Jan 2022 10:30:00 GMT",
		"14.0",
		"7.5",
		"2.1",
		"2.4",
		"2.05",
		"7000.0",
		"3000.5",
		"0.25",
		"750.125",
		"0.25",
		"collateral less than 1.75: 1.7",
		"0.0012",
		"0.21",
		"0.97",
	}
	for i := range want {
		if fields[i] != want[i] {
			t.Fatalf("column %s: expected %q, got %q", Header[i], want[i], fields[i])
		}
	}
}

func TestInitialRowHidesInterest(t *testing.T) {
	row := Row{Kind: KindInitial, Status: sampleStatus()}
	if got := row.Fields()[13]; got != "-" {
		t.Fatalf("expected '-' interest on initial row, got %q", got)
	}
}

func TestZeroTimestampRendersEmpty(t *testing.T) {
	row := Row{Kind: KindRebase}
	if got := row.Fields()[1]; got != "" {
		t.Fatalf("expected empty timestamp, got %q", got)
	}
}
