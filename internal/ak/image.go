package ak

import (
	"context"
)

// ImageUpdate lists the changes ReplaceImage applies. Nil fields are left
// unchanged; a non-nil empty Tags clears the tags.
type ImageUpdate struct {
	Upload  *Upload
	Premium *bool
	Tags    []string
}

// AddImages inserts uploads at list position at, shifting later images up.
// Use Prepend or Append for the ends.
func (s *AKService) AddImages(ctx context.Context, scope Scope, uploads []Upload, at int) (*Commit, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	added, err := s.newAssets(scope, uploads)
	if err != nil {
		return nil, err
	}
	return s.mutateAssets(ctx, "add-images", scope, func(records []AssetRecord) (*Plan, error) {
		pos := at
		if at == Append {
			pos = len(records)
		}
		return PlanInsert(records, pos, added)
	})
}

// ReplaceImage changes the content or flags of the image at index.
func (s *AKService) ReplaceImage(ctx context.Context, scope Scope, index int, update ImageUpdate) (*Commit, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	if update.Upload == nil && update.Premium == nil && update.Tags == nil {
		return nil, invalidInput("nothing to update for %s", KeyFor(index))
	}
	var r Replacement
	if update.Upload != nil {
		added, err := s.newAssets(scope, []Upload{*update.Upload})
		if err != nil {
			return nil, err
		}
		r.Data = added[0].Data
		r.Extension = added[0].Record.Extension
	}
	r.Premium = update.Premium
	r.Tags = update.Tags

	return s.mutateAssets(ctx, "replace-image", scope, func(records []AssetRecord) (*Plan, error) {
		return PlanReplace(records, index, r)
	})
}

// DeleteImage removes the image at index and closes the gap.
func (s *AKService) DeleteImage(ctx context.Context, scope Scope, index int) (*Commit, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	return s.mutateAssets(ctx, "delete-image", scope, func(records []AssetRecord) (*Plan, error) {
		return PlanRemove(records, index)
	})
}

// SwapImages exchanges the images at indices a and b.
func (s *AKService) SwapImages(ctx context.Context, scope Scope, a, b int) (*Commit, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	if a == b {
		return nil, invalidInput("cannot swap %s with itself", KeyFor(a))
	}
	return s.mutateAssets(ctx, "swap-images", scope, func(records []AssetRecord) (*Plan, error) {
		return PlanSwap(records, a, b)
	})
}

// mutateAssets loads an existing scope under its lock, plans the change
// and runs it as a transaction.
func (s *AKService) mutateAssets(ctx context.Context, op string, scope Scope, plan func([]AssetRecord) (*Plan, error)) (*Commit, error) {
	return s.run(ctx, op, scope.Root(), func() (*change, error) {
		if err := s.checkLayout(scope); err != nil {
			return nil, err
		}
		if err := s.requireScope(scope); err != nil {
			return nil, err
		}
		records, err := s.loadRecords(scope)
		if err != nil {
			return nil, err
		}
		p, err := plan(records)
		if err != nil {
			return nil, err
		}
		return s.planChange(scope, p), nil
	})
}
