package ak

import (
	"fmt"
	"path"
	"slices"
)

// StepKind is the kind of file operation in a Plan.
type StepKind int

const (
	StepDelete StepKind = iota
	StepRename
	StepWrite
)

// Step is one file operation inside a scope's asset directory.
type Step struct {
	Kind StepKind
	From string
	To   string
	Data []byte
}

func (s Step) String() string {
	switch s.Kind {
	case StepDelete:
		return "delete " + s.From
	case StepRename:
		return "rename " + s.From + " -> " + s.To
	default:
		return fmt.Sprintf("write %s (%d bytes)", s.To, len(s.Data))
	}
}

// Plan is the outcome of a structural change: the new record list, with
// indices 0..N-1, and the file operations that make the disk match it.
// Deletes come first, then renames, then writes.
type Plan struct {
	Records []AssetRecord
	Steps   []Step
}

// NewAsset is a record to insert together with its content.
type NewAsset struct {
	Record AssetRecord
	Data   []byte
}

// Replacement describes changes to an existing record. Nil fields are left alone.
type Replacement struct {
	Data      []byte
	Extension string
	Premium   *bool
	Tags      []string
}

// swapTempStem names the file parked aside while a rename cycle is broken.
const swapTempStem = "__temp_swap__"

// slot is a position in the resulting list and the file that will fill it.
type slot struct {
	rec      AssetRecord
	oldIndex int // -1 for new content
	oldExt   string
	data     []byte
}

func slotsFrom(records []AssetRecord) []slot {
	slots := make([]slot, len(records))
	for i, r := range records {
		slots[i] = slot{rec: r, oldIndex: r.Index, oldExt: r.Extension}
	}
	return slots
}

func position(records []AssetRecord, index int) int {
	return slices.IndexFunc(records, func(r AssetRecord) bool { return r.Index == index })
}

// PlanInsert places added at list position at. Records at or after at move
// up by len(added). An empty list always inserts at 0; use len(records) to append.
func PlanInsert(records []AssetRecord, at int, added []NewAsset) (*Plan, error) {
	if len(added) == 0 {
		return nil, invalidInput("no assets to insert")
	}
	if len(records) == 0 {
		at = 0
	}
	if at < 0 || at > len(records) {
		return nil, invalidInput("insert position %d out of range [0, %d]", at, len(records))
	}

	existing := slotsFrom(records)
	slots := make([]slot, 0, len(records)+len(added))
	slots = append(slots, existing[:at]...)
	for _, a := range added {
		if a.Record.Extension == "" {
			return nil, invalidInput("new asset has no extension")
		}
		slots = append(slots, slot{rec: a.Record, oldIndex: -1, data: a.Data})
	}
	slots = append(slots, existing[at:]...)
	return layout(slots, nil), nil
}

// PlanRemove drops the record with the given index and closes the gap.
func PlanRemove(records []AssetRecord, index int) (*Plan, error) {
	pos := position(records, index)
	if pos < 0 {
		return nil, notFound("%s not found", KeyFor(index))
	}
	slots := slotsFrom(records)
	removed := AssetFile{Index: slots[pos].oldIndex, Extension: slots[pos].oldExt}
	slots = slices.Delete(slots, pos, pos+1)
	return layout(slots, []AssetFile{removed}), nil
}

// PlanSwap exchanges the records at indices a and b, files included.
func PlanSwap(records []AssetRecord, a, b int) (*Plan, error) {
	if a == b {
		return nil, invalidInput("cannot swap %s with itself", KeyFor(a))
	}
	pa, pb := position(records, a), position(records, b)
	if pa < 0 {
		return nil, notFound("%s not found", KeyFor(a))
	}
	if pb < 0 {
		return nil, notFound("%s not found", KeyFor(b))
	}
	slots := slotsFrom(records)
	slots[pa], slots[pb] = slots[pb], slots[pa]
	return layout(slots, nil), nil
}

// PlanReplace updates the record at index in place. New content with a
// different extension removes the old file and writes the new one under
// the same index.
func PlanReplace(records []AssetRecord, index int, r Replacement) (*Plan, error) {
	pos := position(records, index)
	if pos < 0 {
		return nil, notFound("%s not found", KeyFor(index))
	}
	slots := slotsFrom(records)
	s := &slots[pos]
	if r.Data != nil {
		if r.Extension == "" {
			return nil, invalidInput("replacement has no extension")
		}
		s.data = r.Data
		s.rec.Extension = r.Extension
	}
	if r.Premium != nil {
		s.rec.Premium = *r.Premium
	}
	if r.Tags != nil {
		s.rec.Tags = slices.Clone(r.Tags)
	}
	return layout(slots, nil), nil
}

type move struct {
	from, to         int
	fromName, toName string
}

// layout assigns each slot its list position as index and derives the steps.
func layout(slots []slot, deleted []AssetFile) *Plan {
	plan := &Plan{Records: make([]AssetRecord, len(slots))}

	occupied := make(map[int]bool, len(slots))
	for _, s := range slots {
		if s.oldIndex >= 0 {
			occupied[s.oldIndex] = true
		}
	}
	for _, d := range deleted {
		plan.Steps = append(plan.Steps, Step{Kind: StepDelete, From: d.Name()})
	}

	var moves []move
	var writes []Step
	for i, s := range slots {
		rec := s.rec
		rec.Index = i
		plan.Records[i] = rec

		if s.data != nil {
			if s.oldIndex >= 0 {
				oldName := AssetFilename(s.oldIndex, s.oldExt)
				if oldName != rec.Filename() {
					plan.Steps = append(plan.Steps, Step{Kind: StepDelete, From: oldName})
					delete(occupied, s.oldIndex)
				}
			}
			writes = append(writes, Step{Kind: StepWrite, To: rec.Filename(), Data: s.data})
			continue
		}
		if s.oldIndex != i {
			moves = append(moves, move{
				from:     s.oldIndex,
				to:       i,
				fromName: AssetFilename(s.oldIndex, s.oldExt),
				toName:   rec.Filename(),
			})
		}
	}

	// Downward moves lowest first, then upward moves highest first.
	slices.SortStableFunc(moves, func(a, b move) int {
		aUp, bUp := a.to > a.from, b.to > b.from
		switch {
		case aUp != bUp && !aUp:
			return -1
		case aUp != bUp:
			return 1
		case aUp:
			return b.from - a.from
		default:
			return a.from - b.from
		}
	})

	plan.Steps = append(plan.Steps, scheduleRenames(moves, occupied)...)
	plan.Steps = append(plan.Steps, writes...)
	return plan
}

// scheduleRenames orders moves so no rename targets an index still held by
// another file. When every remaining move waits on another one, the first
// is parked under a temporary name.
func scheduleRenames(moves []move, occupied map[int]bool) []Step {
	var steps []Step
	pending := moves
	for len(pending) > 0 {
		progressed := false
		rest := make([]move, 0, len(pending))
		for _, m := range pending {
			if occupied[m.to] {
				rest = append(rest, m)
				continue
			}
			steps = append(steps, Step{Kind: StepRename, From: m.fromName, To: m.toName})
			delete(occupied, m.from)
			occupied[m.to] = true
			progressed = true
		}
		pending = rest
		if progressed || len(pending) == 0 {
			continue
		}

		m := pending[0]
		tmp := swapTempStem + path.Ext(m.fromName)
		steps = append(steps, Step{Kind: StepRename, From: m.fromName, To: tmp})
		delete(occupied, m.from)
		pending[0] = move{from: -1, to: m.to, fromName: tmp, toName: m.toName}
	}
	return steps
}

// Apply executes the plan's steps against a scope in order, stopping at
// the first error.
func (p *Plan) Apply(store AssetStore, scope Scope) error {
	for _, step := range p.Steps {
		var err error
		switch step.Kind {
		case StepDelete:
			err = store.RemoveAsset(scope, step.From)
		case StepRename:
			err = store.RenameAsset(scope, step.From, step.To)
		case StepWrite:
			err = store.WriteAsset(scope, step.To, step.Data)
		}
		if err != nil {
			return classify(step.String(), err)
		}
	}
	return nil
}
