package ak_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"assetkeeper/internal/ak"
)

// files maps a filename in one asset directory to its content.
type files map[string]string

// simulate applies steps to dir, failing the test on any rename onto an
// existing name or operation on a missing file.
func simulate(t *testing.T, dir files, steps []ak.Step) files {
	t.Helper()
	out := make(files, len(dir))
	for k, v := range dir {
		out[k] = v
	}
	for _, s := range steps {
		switch s.Kind {
		case ak.StepDelete:
			if _, ok := out[s.From]; !ok {
				t.Fatalf("step %q: %s does not exist", s, s.From)
			}
			delete(out, s.From)
		case ak.StepRename:
			if _, ok := out[s.From]; !ok {
				t.Fatalf("step %q: %s does not exist", s, s.From)
			}
			if _, ok := out[s.To]; ok {
				t.Fatalf("step %q: %s already exists", s, s.To)
			}
			out[s.To] = out[s.From]
			delete(out, s.From)
		case ak.StepWrite:
			out[s.To] = string(s.Data)
		}
	}
	return out
}

func records(exts ...string) []ak.AssetRecord {
	recs := make([]ak.AssetRecord, len(exts))
	for i, ext := range exts {
		recs[i] = ak.AssetRecord{Index: i, Extension: ext}
	}
	return recs
}

func dirFor(recs []ak.AssetRecord) files {
	dir := files{}
	for _, r := range recs {
		dir[r.Filename()] = fmt.Sprintf("img%d", r.Index)
	}
	return dir
}

func newAsset(ext, data string) ak.NewAsset {
	return ak.NewAsset{Record: ak.AssetRecord{Extension: ext}, Data: []byte(data)}
}

func assertContiguous(t *testing.T, recs []ak.AssetRecord) {
	t.Helper()
	for i, r := range recs {
		if r.Index != i {
			t.Fatalf("record %d has index %d, want %d", i, r.Index, i)
		}
	}
}

func renames(steps []ak.Step) []string {
	var out []string
	for _, s := range steps {
		if s.Kind == ak.StepRename {
			out = append(out, s.From+">"+s.To)
		}
	}
	return out
}

func TestPlanInsert(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		existing    []ak.AssetRecord
		at          int
		added       []ak.NewAsset
		want        files
		wantRenames []string
	}{
		{
			name:     "front shifts highest first",
			existing: records("webp", "webp", "webp"),
			at:       0,
			added:    []ak.NewAsset{newAsset("webp", "new0"), newAsset("png", "new1")},
			want: files{
				"0.webp": "new0", "1.png": "new1",
				"2.webp": "img0", "3.webp": "img1", "4.webp": "img2",
			},
			wantRenames: []string{"2.webp>4.webp", "1.webp>3.webp", "0.webp>2.webp"},
		},
		{
			name:     "middle",
			existing: records("webp", "jpg", "webp"),
			at:       1,
			added:    []ak.NewAsset{newAsset("webp", "new")},
			want: files{
				"0.webp": "img0", "1.webp": "new", "2.jpg": "img1", "3.webp": "img2",
			},
			wantRenames: []string{"2.webp>3.webp", "1.jpg>2.jpg"},
		},
		{
			name:     "append",
			existing: records("webp", "webp"),
			at:       2,
			added:    []ak.NewAsset{newAsset("webp", "new")},
			want:     files{"0.webp": "img0", "1.webp": "img1", "2.webp": "new"},
		},
		{
			name:     "empty list ignores position",
			existing: nil,
			at:       5,
			added:    []ak.NewAsset{newAsset("webp", "a"), newAsset("webp", "b")},
			want:     files{"0.webp": "a", "1.webp": "b"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			plan, err := ak.PlanInsert(tt.existing, tt.at, tt.added)
			if err != nil {
				t.Fatalf("PlanInsert() error = %v", err)
			}
			assertContiguous(t, plan.Records)

			got := simulate(t, dirFor(tt.existing), plan.Steps)
			if fmt.Sprint(got) != fmt.Sprint(tt.want) {
				t.Errorf("files = %v, want %v", got, tt.want)
			}
			if strings.Join(renames(plan.Steps), ",") != strings.Join(tt.wantRenames, ",") {
				t.Errorf("renames = %v, want %v", renames(plan.Steps), tt.wantRenames)
			}
		})
	}
}

func TestPlanInsert_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		at    int
		added []ak.NewAsset
	}{
		{name: "nothing to add", at: 0},
		{name: "negative position", at: -2, added: []ak.NewAsset{newAsset("webp", "x")}},
		{name: "past the end", at: 4, added: []ak.NewAsset{newAsset("webp", "x")}},
		{name: "missing extension", at: 0, added: []ak.NewAsset{newAsset("", "x")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ak.PlanInsert(records("webp", "webp"), tt.at, tt.added)
			if !errors.Is(err, ak.ErrInvalidInput) {
				t.Errorf("PlanInsert() error = %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestPlanRemove(t *testing.T) {
	t.Parallel()

	t.Run("closes gap lowest first", func(t *testing.T) {
		t.Parallel()
		existing := records("webp", "webp", "png", "webp")
		plan, err := ak.PlanRemove(existing, 1)
		if err != nil {
			t.Fatalf("PlanRemove() error = %v", err)
		}
		assertContiguous(t, plan.Records)
		if plan.Steps[0].Kind != ak.StepDelete || plan.Steps[0].From != "1.webp" {
			t.Errorf("first step = %q, want delete 1.webp", plan.Steps[0])
		}

		got := simulate(t, dirFor(existing), plan.Steps)
		want := files{"0.webp": "img0", "1.png": "img2", "2.webp": "img3"}
		if fmt.Sprint(got) != fmt.Sprint(want) {
			t.Errorf("files = %v, want %v", got, want)
		}
		if r := renames(plan.Steps); strings.Join(r, ",") != "2.png>1.png,3.webp>2.webp" {
			t.Errorf("renames = %v", r)
		}
	})

	t.Run("last element needs no renames", func(t *testing.T) {
		t.Parallel()
		plan, err := ak.PlanRemove(records("webp", "webp"), 1)
		if err != nil {
			t.Fatalf("PlanRemove() error = %v", err)
		}
		if len(plan.Steps) != 1 {
			t.Errorf("steps = %v, want a single delete", plan.Steps)
		}
	})

	t.Run("missing index", func(t *testing.T) {
		t.Parallel()
		_, err := ak.PlanRemove(records("webp"), 3)
		if !errors.Is(err, ak.ErrNotFound) {
			t.Errorf("PlanRemove() error = %v, want ErrNotFound", err)
		}
	})
}

func TestPlanSwap(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		existing []ak.AssetRecord
		a, b     int
		want     files
	}{
		{
			name:     "same extension uses temp file",
			existing: records("webp", "webp", "webp"),
			a:        0, b: 2,
			want: files{"0.webp": "img2", "1.webp": "img1", "2.webp": "img0"},
		},
		{
			name:     "different extensions",
			existing: records("png", "webp"),
			a:        1, b: 0,
			want: files{"0.webp": "img1", "1.png": "img0"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			plan, err := ak.PlanSwap(tt.existing, tt.a, tt.b)
			if err != nil {
				t.Fatalf("PlanSwap() error = %v", err)
			}
			assertContiguous(t, plan.Records)

			got := simulate(t, dirFor(tt.existing), plan.Steps)
			if fmt.Sprint(got) != fmt.Sprint(tt.want) {
				t.Errorf("files = %v, want %v", got, tt.want)
			}
			for name := range got {
				if strings.HasPrefix(name, "__temp_swap__") {
					t.Errorf("temp file %s left behind", name)
				}
			}
		})
	}

	t.Run("uses temp name for cycle", func(t *testing.T) {
		t.Parallel()
		plan, err := ak.PlanSwap(records("webp", "webp"), 0, 1)
		if err != nil {
			t.Fatalf("PlanSwap() error = %v", err)
		}
		if !strings.Contains(strings.Join(renames(plan.Steps), ","), "__temp_swap__.webp") {
			t.Errorf("renames = %v, want a temp rename", renames(plan.Steps))
		}
	})

	t.Run("self swap", func(t *testing.T) {
		t.Parallel()
		_, err := ak.PlanSwap(records("webp", "webp"), 1, 1)
		if !errors.Is(err, ak.ErrInvalidInput) {
			t.Errorf("PlanSwap() error = %v, want ErrInvalidInput", err)
		}
	})

	t.Run("missing index", func(t *testing.T) {
		t.Parallel()
		_, err := ak.PlanSwap(records("webp", "webp"), 0, 9)
		if !errors.Is(err, ak.ErrNotFound) {
			t.Errorf("PlanSwap() error = %v, want ErrNotFound", err)
		}
	})
}

func TestPlanReplace(t *testing.T) {
	t.Parallel()

	t.Run("extension change deletes old file", func(t *testing.T) {
		t.Parallel()
		existing := records("webp", "png")
		plan, err := ak.PlanReplace(existing, 1, ak.Replacement{Data: []byte("fresh"), Extension: "webp"})
		if err != nil {
			t.Fatalf("PlanReplace() error = %v", err)
		}
		got := simulate(t, dirFor(existing), plan.Steps)
		want := files{"0.webp": "img0", "1.webp": "fresh"}
		if fmt.Sprint(got) != fmt.Sprint(want) {
			t.Errorf("files = %v, want %v", got, want)
		}
		if plan.Records[1].Extension != "webp" {
			t.Errorf("record extension = %s, want webp", plan.Records[1].Extension)
		}
	})

	t.Run("flags only", func(t *testing.T) {
		t.Parallel()
		premium := true
		plan, err := ak.PlanReplace(records("webp"), 0, ak.Replacement{Premium: &premium, Tags: []string{"sky"}})
		if err != nil {
			t.Fatalf("PlanReplace() error = %v", err)
		}
		if len(plan.Steps) != 0 {
			t.Errorf("steps = %v, want none", plan.Steps)
		}
		if !plan.Records[0].Premium || len(plan.Records[0].Tags) != 1 {
			t.Errorf("record = %+v, want premium with one tag", plan.Records[0])
		}
	})
}

func TestPlan_CompactsGaps(t *testing.T) {
	t.Parallel()
	existing := []ak.AssetRecord{
		{Index: 0, Extension: "webp"},
		{Index: 2, Extension: "webp"},
		{Index: 5, Extension: "jpg"},
	}
	plan, err := ak.PlanInsert(existing, 3, []ak.NewAsset{newAsset("webp", "new")})
	if err != nil {
		t.Fatalf("PlanInsert() error = %v", err)
	}
	assertContiguous(t, plan.Records)

	got := simulate(t, dirFor(existing), plan.Steps)
	want := files{"0.webp": "img0", "1.webp": "img2", "2.jpg": "img5", "3.webp": "new"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("files = %v, want %v", got, want)
	}
}
