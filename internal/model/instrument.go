package model

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// AssetType is the kind of tradable asset.
type AssetType string

const (
	AssetTypeBond     AssetType = "bond"
	AssetTypeCurrency AssetType = "currency"
	AssetTypeETF      AssetType = "etf"
	AssetTypeFuture   AssetType = "future"
	AssetTypeOption   AssetType = "option"
	AssetTypeShare    AssetType = "share"
)

// AssetTypes lists every known asset type in schema order.
var AssetTypes = []AssetType{
	AssetTypeBond,
	AssetTypeCurrency,
	AssetTypeETF,
	AssetTypeFuture,
	AssetTypeOption,
	AssetTypeShare,
}

// ParseAssetType converts a case-insensitive name to an AssetType.
func ParseAssetType(s string) (AssetType, error) {
	t := AssetType(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AssetTypes {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown asset type %q", s)
}

// UnmarshalYAML accepts asset type names in any case.
func (t *AssetType) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := ParseAssetType(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Instrument is a tradable asset known to the store.
type Instrument struct {
	ID                int16     `yaml:"-"`                   // Surrogate key, assigned on first insert
	UID               uuid.UUID `yaml:"uid"`                 // Stable external identifier (upsert identity)
	AssetType         AssetType `yaml:"asset_type"`          // bond, currency, etf, future, option, share
	Name              string    `yaml:"name"`                // Display name
	Ticker            string    `yaml:"ticker"`              // Exchange ticker, may be empty
	FIGI              string    `yaml:"figi"`                // External code used by the history archive; empty if unknown
	Lot               int32     `yaml:"lot"`                 // Lot size
	OTC               bool      `yaml:"otc"`                 // Traded over the counter only
	QualifiedOnly     bool      `yaml:"qualified_only"`      // Qualified investors only
	APITradeAvailable bool      `yaml:"api_trade_available"` // Tradable through the API
	HasEarliestCandle bool      `yaml:"-"`                   // Backward history is exhausted
}

// String returns the display name.
func (i Instrument) String() string {
	return i.Name
}

// HasExternalCode reports whether the instrument can be requested from the history archive.
func (i Instrument) HasExternalCode() bool {
	return i.FIGI != ""
}

// SameAs compares every field except the surrogate ID and the history flag,
// which are owned by the store rather than by the instrument source.
func (i Instrument) SameAs(other Instrument) bool {
	return i.UID == other.UID &&
		i.AssetType == other.AssetType &&
		i.Name == other.Name &&
		i.Ticker == other.Ticker &&
		i.FIGI == other.FIGI &&
		i.Lot == other.Lot &&
		i.OTC == other.OTC &&
		i.QualifiedOnly == other.QualifiedOnly &&
		i.APITradeAvailable == other.APITradeAvailable
}
