package model

import (
	"testing"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

func TestParseAssetType(t *testing.T) {
	tests := []struct {
		in      string
		want    AssetType
		wantErr bool
	}{
		{"share", AssetTypeShare, false},
		{"ETF", AssetTypeETF, false},
		{" Bond ", AssetTypeBond, false},
		{"crypto", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAssetType(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseAssetType(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseAssetType(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestInstrument_YAML(t *testing.T) {
	doc := `
- uid: 3fa85f64-5717-4562-b3fc-2c963f66afa6
  asset_type: Share
  name: NVIDIA
  ticker: NVDA
  figi: BBG000BBJQV0
  lot: 1
  api_trade_available: true
`
	var got []Instrument
	if err := yaml.Unmarshal([]byte(doc), &got); err != nil {
		t.Fatalf("Unmarshal error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}

	want := Instrument{
		UID:               uuid.MustParse("3fa85f64-5717-4562-b3fc-2c963f66afa6"),
		AssetType:         AssetTypeShare,
		Name:              "NVIDIA",
		Ticker:            "NVDA",
		FIGI:              "BBG000BBJQV0",
		Lot:               1,
		APITradeAvailable: true,
	}
	if !got[0].SameAs(want) {
		t.Errorf("instrument = %+v, want %+v", got[0], want)
	}
	if !got[0].HasExternalCode() {
		t.Error("HasExternalCode() = false, want true")
	}
}

func TestInstrument_SameAsIgnoresStoreFields(t *testing.T) {
	a := Instrument{UID: uuid.New(), Name: "A", AssetType: AssetTypeBond}
	b := a
	b.ID = 42
	b.HasEarliestCandle = true
	if !a.SameAs(b) {
		t.Error("SameAs() = false for instruments differing only in store-owned fields")
	}
	b.Lot = 10
	if a.SameAs(b) {
		t.Error("SameAs() = true for instruments with different lots")
	}
}
