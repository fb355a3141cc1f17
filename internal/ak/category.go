package ak

import (
	"context"
	"fmt"
)

// AddCategory creates a category (or sub-category) holding the uploads,
// indexed in the order given.
func (s *AKService) AddCategory(ctx context.Context, scope Scope, uploads []Upload) (*Commit, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	added, err := s.newAssets(scope, uploads)
	if err != nil {
		return nil, err
	}

	return s.run(ctx, "add-category", scope.Root(), func() (*change, error) {
		if err := s.checkLayout(scope); err != nil {
			return nil, err
		}
		exists, err := s.store.Exists(scope)
		if err != nil {
			return nil, classify(fmt.Sprintf("checking %s", scope), err)
		}
		if exists {
			return nil, conflict("%s already exists", scope)
		}
		plan, err := PlanInsert(nil, Prepend, added)
		if err != nil {
			return nil, err
		}
		ch := s.planChange(scope, plan)
		apply := ch.mutate
		ch.mutate = func() error {
			if err := s.store.EnsureScope(scope); err != nil {
				return classify(fmt.Sprintf("creating %s", scope), err)
			}
			return apply()
		}
		return ch, nil
	})
}

// DeleteCategory removes a category with all of its sub-categories, or a
// single sub-category when scope names one. Parents left empty are pruned.
func (s *AKService) DeleteCategory(ctx context.Context, scope Scope) (*Commit, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}

	return s.run(ctx, "delete-category", scope.Root(), func() (*change, error) {
		if err := s.requireScope(scope); err != nil {
			return nil, err
		}
		return &change{
			mutate: func() error {
				if err := s.store.RemoveScope(scope); err != nil {
					return classify(fmt.Sprintf("removing %s", scope), err)
				}
				return nil
			},
		}, nil
	})
}

// RenameCategory renames a category, or the sub-category named by scope,
// to newName and rewrites the category fields of the affected records.
func (s *AKService) RenameCategory(ctx context.Context, scope Scope, newName string) (*Commit, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	if err := ValidateName(newName); err != nil {
		return nil, err
	}
	target := Scope{Category: newName}
	if scope.SubCategory != "" {
		target = Scope{Category: scope.Category, SubCategory: newName}
		if newName == scope.Category {
			return nil, invalidInput("sub-category %q cannot share its category's name", newName)
		}
	}
	if target == scope {
		return nil, invalidInput("%s already has that name", scope)
	}

	return s.run(ctx, "rename-category", StoreScope(), func() (*change, error) {
		if err := s.requireScope(scope); err != nil {
			return nil, err
		}
		exists, err := s.store.Exists(target)
		if err != nil {
			return nil, classify(fmt.Sprintf("checking %s", target), err)
		}
		if exists {
			return nil, conflict("%s already exists", target)
		}

		ch := &change{}
		ch.mutate = func() error {
			if err := s.store.RenameScope(scope, target); err != nil {
				return classify(fmt.Sprintf("renaming %s to %s", scope, target), err)
			}
			return nil
		}
		ch.writeMetadata = func() error {
			scopes, err := s.documentScopes(target)
			if err != nil {
				return err
			}
			for _, sc := range scopes {
				records, exists, err := s.store.ReadMetadata(sc)
				if err != nil {
					return classify(fmt.Sprintf("reading metadata for %s", sc), err)
				}
				if !exists {
					continue
				}
				if err := s.store.WriteMetadata(sc, records); err != nil {
					return classify(fmt.Sprintf("writing metadata for %s", sc), err)
				}
				ch.publish = append(ch.publish, sc)
			}
			return nil
		}
		return ch, nil
	})
}

// documentScopes returns the scopes that own a metadata document within scope.
func (s *AKService) documentScopes(scope Scope) ([]Scope, error) {
	if scope.SubCategory != "" {
		return []Scope{scope}, nil
	}
	subs, err := s.store.ListSubCategories(scope.Category)
	if err != nil {
		return nil, classify(fmt.Sprintf("listing sub-categories of %s", scope.Category), err)
	}
	if len(subs) == 0 {
		return []Scope{scope}, nil
	}
	scopes := make([]Scope, len(subs))
	for i, sub := range subs {
		scopes[i] = Scope{Category: scope.Category, SubCategory: sub}
	}
	return scopes, nil
}

// planChange wraps a reindexing plan for scope as transaction work.
func (s *AKService) planChange(scope Scope, plan *Plan) *change {
	return &change{
		mutate: func() error {
			return plan.Apply(s.store, scope)
		},
		writeMetadata: func() error {
			if err := s.store.WriteMetadata(scope, plan.Records); err != nil {
				return classify(fmt.Sprintf("writing metadata for %s", scope), err)
			}
			return nil
		},
		publish: []Scope{scope},
		records: plan.Records,
	}
}
