package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/rickgao/candled/internal/model"
)

// instrumentsFile is the document accepted by "instruments import".
type instrumentsFile struct {
	Instruments []model.Instrument `yaml:"instruments"`
}

// decodeInstruments reads and validates an instruments file. Every
// instrument needs a uid, an asset type and a name, and uids must be unique.
func decodeInstruments(r io.Reader) ([]model.Instrument, error) {
	var doc instrumentsFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("no instruments")
		}
		return nil, fmt.Errorf("parse instruments: %w", err)
	}
	if len(doc.Instruments) == 0 {
		return nil, errors.New("no instruments")
	}

	seen := make(map[uuid.UUID]int, len(doc.Instruments))
	for i, inst := range doc.Instruments {
		switch {
		case inst.UID == uuid.Nil:
			return nil, fmt.Errorf("instruments[%d].uid is required", i)
		case inst.AssetType == "":
			return nil, fmt.Errorf("instruments[%d].asset_type is required", i)
		case inst.Name == "":
			return nil, fmt.Errorf("instruments[%d].name is required", i)
		case inst.Lot < 0:
			return nil, fmt.Errorf("instruments[%d].lot must be non-negative", i)
		}
		if j, ok := seen[inst.UID]; ok {
			return nil, fmt.Errorf("instruments[%d].uid %s duplicates instruments[%d]", i, inst.UID, j)
		}
		seen[inst.UID] = i
	}
	return doc.Instruments, nil
}
