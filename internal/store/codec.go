package store

import (
	"bytes"
	"encoding/json"
	"slices"
	"strconv"

	"assetkeeper/internal/ak"
)

const indent = "    "

// recordDoc is one entry of a metadata document. Imagine stores write the
// category as main_category, IBGC stores as category; both are read.
type recordDoc struct {
	Name         string   `json:"Name"`
	Prem         ak.Flag  `json:"Prem"`
	MainCategory string   `json:"main_category,omitempty"`
	Category     string   `json:"category,omitempty"`
	SubCategory  string   `json:"sub_category,omitempty"`
	Objects      []string `json:"objects,omitempty"`
}

// encodeMetadata renders records as a metadata document with keys in
// index order. Category fields come from scope.
func encodeMetadata(variant Variant, scope ak.Scope, records []ak.AssetRecord) ([]byte, error) {
	for i := 1; i < len(records); i++ {
		if records[i].Index <= records[i-1].Index {
			return nil, ak.InvalidInputf("metadata records out of order at %s", records[i].Key())
		}
	}

	var buf bytes.Buffer
	buf.WriteString("{")
	for i, r := range records {
		if i > 0 {
			buf.WriteString(",")
		}
		buf.WriteString("\n" + indent)

		key, err := json.Marshal(r.Key())
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteString(": ")

		doc := recordDoc{
			Name:        strconv.Itoa(r.Index),
			Prem:        ak.Flag(r.Premium),
			SubCategory: scope.SubCategory,
			Objects:     r.Tags,
		}
		if variant == VariantIBGC {
			doc.Category = scope.Category
		} else {
			doc.MainCategory = scope.Category
		}
		body, err := json.MarshalIndent(doc, indent, indent)
		if err != nil {
			return nil, err
		}
		buf.Write(body)
	}
	if len(records) > 0 {
		buf.WriteString("\n")
	}
	buf.WriteString("}\n")
	return buf.Bytes(), nil
}

// decodeMetadata parses a metadata document into records sorted by index.
// A record's Name, when set, must match the index in its key. Extension is
// left empty; it comes from the asset file.
func decodeMetadata(data []byte) ([]ak.AssetRecord, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, ak.InvalidInputf("decoding metadata: %v", err)
	}

	records := make([]ak.AssetRecord, 0, len(raw))
	for key, msg := range raw {
		index, err := ak.ParseKey(key)
		if err != nil {
			return nil, err
		}
		var doc recordDoc
		if err := json.Unmarshal(msg, &doc); err != nil {
			return nil, ak.InvalidInputf("decoding %s: %v", key, err)
		}
		if doc.Name != "" && doc.Name != strconv.Itoa(index) {
			return nil, ak.InvalidInputf("%s has Name %q", key, doc.Name)
		}
		category := doc.MainCategory
		if category == "" {
			category = doc.Category
		}
		records = append(records, ak.AssetRecord{
			Index:       index,
			Premium:     bool(doc.Prem),
			Tags:        doc.Objects,
			Category:    category,
			SubCategory: doc.SubCategory,
		})
	}
	slices.SortFunc(records, func(a, b ak.AssetRecord) int { return a.Index - b.Index })
	return records, nil
}
