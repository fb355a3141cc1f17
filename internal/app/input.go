package app

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"assetkeeper/internal/ak"
)

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// SanitizeName maps a user-supplied category name onto [A-Za-z0-9_-].
// Surrounding whitespace is trimmed and every other rune becomes "_".
func SanitizeName(name string) string {
	return unsafeNameChars.ReplaceAllString(strings.TrimSpace(name), "_")
}

// scopeOf builds a scope from user-supplied names.
func scopeOf(category, subCategory string) ak.Scope {
	return ak.Scope{Category: SanitizeName(category), SubCategory: SanitizeName(subCategory)}
}

// UploadOptions are flags applied to every file of one upload call.
type UploadOptions struct {
	Premium bool
	Tags    []string
}

// readUpload reads an image file. The content type is sniffed from the
// data and the extension is taken from the file name.
func readUpload(path string, opts UploadOptions) (ak.Upload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ak.Upload{}, fmt.Errorf("reading %s: %w", path, err)
	}
	return ak.Upload{
		Data:        data,
		ContentType: http.DetectContentType(data),
		Extension:   strings.ToLower(strings.TrimPrefix(filepath.Ext(path), ".")),
		Premium:     opts.Premium,
		Tags:        opts.Tags,
	}, nil
}

func readUploads(paths []string, opts UploadOptions) ([]ak.Upload, error) {
	uploads := make([]ak.Upload, 0, len(paths))
	for _, p := range paths {
		u, err := readUpload(p, opts)
		if err != nil {
			return nil, err
		}
		uploads = append(uploads, u)
	}
	return uploads, nil
}

// flagRow is one entry of a bulk flag update file.
type flagRow struct {
	Category    string  `json:"category_name"`
	SubCategory string  `json:"sub_category,omitempty"`
	Filename    string  `json:"filename"`
	Premium     ak.Flag `json:"prem"`
}

// parseFlagUpdates decodes a JSON array of flag updates.
func parseFlagUpdates(data []byte) ([]ak.FlagUpdate, error) {
	var rows []flagRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, ak.InvalidInputf("decoding flag updates: %v", err)
	}
	updates := make([]ak.FlagUpdate, len(rows))
	for i, r := range rows {
		scope := scopeOf(r.Category, r.SubCategory)
		updates[i] = ak.FlagUpdate{
			Category:    scope.Category,
			SubCategory: scope.SubCategory,
			Filename:    strings.TrimSpace(r.Filename),
			Premium:     bool(r.Premium),
		}
	}
	return updates, nil
}
