package ak_test

import (
	"encoding/json"
	"errors"
	"testing"

	"assetkeeper/internal/ak"
)

func TestParseIndex(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{in: "0", want: 0},
		{in: "7", want: 7},
		{in: "120", want: 120},
		{in: "", wantErr: true},
		{in: "-1", wantErr: true},
		{in: "+1", wantErr: true},
		{in: "01", wantErr: true},
		{in: "1a", wantErr: true},
		{in: " 1", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := ak.ParseIndex(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ak.ErrInvalidInput) {
					t.Errorf("ParseIndex(%q) error = %v, want ErrInvalidInput", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseIndex(%q) error = %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseIndex(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseAssetRef(t *testing.T) {
	t.Parallel()

	tests := []struct {
		ref     string
		want    int
		wantErr bool
	}{
		{ref: "Image3", want: 3},
		{ref: "3", want: 3},
		{ref: "3.webp", want: 3},
		{ref: "12.png", want: 12},
		{ref: "Image", wantErr: true},
		{ref: "image3", wantErr: true},
		{ref: "Image03", wantErr: true},
		{ref: ".webp", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			t.Parallel()
			got, err := ak.ParseAssetRef(tt.ref)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseAssetRef(%q) error = %v, wantErr %v", tt.ref, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseAssetRef(%q) = %d, want %d", tt.ref, got, tt.want)
			}
		})
	}
}

func TestScope_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		scope   ak.Scope
		wantErr bool
	}{
		{name: "category", scope: ak.CategoryScope("animals")},
		{name: "sub-category", scope: ak.Scope{Category: "animals", SubCategory: "cats"}},
		{name: "store", scope: ak.StoreScope(), wantErr: true},
		{name: "orphan sub-category", scope: ak.Scope{SubCategory: "cats"}, wantErr: true},
		{name: "dot dot", scope: ak.CategoryScope(".."), wantErr: true},
		{name: "hidden", scope: ak.CategoryScope(".owners"), wantErr: true},
		{name: "separator", scope: ak.CategoryScope("a/b"), wantErr: true},
		{name: "metadata dir", scope: ak.CategoryScope("Json_Files"), wantErr: true},
		{name: "backup dir", scope: ak.CategoryScope("Json_Files_Last"), wantErr: true},
		{name: "bad sub-category", scope: ak.Scope{Category: "animals", SubCategory: `x\y`}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.scope.Validate()
			if tt.wantErr && !errors.Is(err, ak.ErrInvalidInput) {
				t.Errorf("Validate() error = %v, want ErrInvalidInput", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Validate() error = %v", err)
			}
		})
	}
}

func TestScope_String(t *testing.T) {
	t.Parallel()
	if got := ak.StoreScope().String(); got != "*" {
		t.Errorf("store scope = %q", got)
	}
	if got := (ak.Scope{Category: "a", SubCategory: "b"}).String(); got != "a/b" {
		t.Errorf("sub-category scope = %q", got)
	}
	if got := (ak.Scope{Category: "a", SubCategory: "b"}).Root(); got != ak.CategoryScope("a") {
		t.Errorf("Root() = %v", got)
	}
}

func TestScope_Overlaps(t *testing.T) {
	t.Parallel()

	cats := ak.Scope{Category: "animals", SubCategory: "cats"}
	tests := []struct {
		name string
		a, b ak.Scope
		want bool
	}{
		{name: "store and category", a: ak.StoreScope(), b: ak.CategoryScope("animals"), want: true},
		{name: "category and store", a: ak.CategoryScope("animals"), b: ak.StoreScope(), want: true},
		{name: "same category", a: ak.CategoryScope("animals"), b: ak.CategoryScope("animals"), want: true},
		{name: "category and its sub-category", a: ak.CategoryScope("animals"), b: cats, want: true},
		{name: "sibling sub-categories", a: cats, b: ak.Scope{Category: "animals", SubCategory: "dogs"}},
		{name: "different categories", a: ak.CategoryScope("animals"), b: ak.CategoryScope("plants")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.a.Overlaps(tt.b); got != tt.want {
				t.Errorf("Overlaps() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFlag_UnmarshalJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    ak.Flag
		wantErr bool
	}{
		{in: `true`, want: true},
		{in: `false`, want: false},
		{in: `"true"`, want: true},
		{in: `"TRUE"`, want: true},
		{in: `"false"`, want: false},
		{in: `""`, want: false},
		{in: `"yes"`, wantErr: true},
		{in: `1`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			var f ak.Flag
			err := json.Unmarshal([]byte(tt.in), &f)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Unmarshal(%s) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && f != tt.want {
				t.Errorf("Unmarshal(%s) = %v, want %v", tt.in, f, tt.want)
			}
		})
	}
}
