package ak

import (
	"context"
	"fmt"
)

// FlagUpdate sets the premium flag of one image. Filename may be given as
// "Image3", "3" or "3.webp".
type FlagUpdate struct {
	Category    string
	SubCategory string
	Filename    string
	Premium     bool
}

// FlagFailure is an update that was not applied, with the reason.
type FlagFailure struct {
	Category    string
	SubCategory string
	Filename    string
	Reason      string
}

// BulkResult reports the outcome of BulkUpdateFlags.
type BulkResult struct {
	TxnID   string
	Updated []FlagUpdate
	Failed  []FlagFailure
	Version VersionRecord
}

const (
	reasonMissingFields = "category_name and filename are required"
	reasonNoDocument    = "JSON file not found"
)

// BulkUpdateFlags applies premium flag updates across categories in one
// store-wide transaction. Problems with individual updates do not fail the
// call: they are listed in the result, and a metadata document with any
// failed update is left unchanged. The version advances once when the
// transaction commits, even if every update failed.
func (s *AKService) BulkUpdateFlags(ctx context.Context, updates []FlagUpdate) (*BulkResult, error) {
	if len(updates) == 0 {
		return nil, invalidInput("no flag updates given")
	}

	result := &BulkResult{}
	groups := make(map[Scope][]FlagUpdate)
	var order []Scope
	for _, u := range updates {
		if u.Category == "" || u.Filename == "" {
			result.Failed = append(result.Failed, failure(u, reasonMissingFields))
			continue
		}
		scope := Scope{Category: u.Category, SubCategory: u.SubCategory}
		if err := scope.Validate(); err != nil {
			result.Failed = append(result.Failed, failure(u, err.Error()))
			continue
		}
		if _, ok := groups[scope]; !ok {
			order = append(order, scope)
		}
		groups[scope] = append(groups[scope], u)
	}
	if len(order) == 0 {
		return nil, invalidInput("no valid flag updates")
	}

	commit, err := s.run(ctx, "update-flags", StoreScope(), func() (*change, error) {
		updated := make(map[Scope][]AssetRecord)
		ch := &change{}
		for _, scope := range order {
			records, ok, err := s.applyFlags(scope, groups[scope], result)
			if err != nil {
				return nil, err
			}
			if ok {
				updated[scope] = records
				ch.publish = append(ch.publish, scope)
			}
		}
		ch.writeMetadata = func() error {
			for _, scope := range ch.publish {
				if err := s.store.WriteMetadata(scope, updated[scope]); err != nil {
					return classify(fmt.Sprintf("writing metadata for %s", scope), err)
				}
			}
			return nil
		}
		return ch, nil
	})
	if err != nil {
		return nil, err
	}

	result.TxnID = commit.TxnID
	result.Version = commit.Version
	s.logger.Info("flags updated", "updated", len(result.Updated), "failed", len(result.Failed), "version", commit.Version.CurrentVersion)
	return result, nil
}

// applyFlags applies one scope's updates to its metadata records and
// records the outcome in result. ok is false when the document must stay
// unchanged.
func (s *AKService) applyFlags(scope Scope, updates []FlagUpdate, result *BulkResult) (records []AssetRecord, ok bool, err error) {
	records, exists, err := s.store.ReadMetadata(scope)
	if err != nil {
		if KindOf(err) == KindInvalidInput {
			result.Failed = append(result.Failed, FlagFailure{
				Category:    scope.Category,
				SubCategory: scope.SubCategory,
				Reason:      "failed to read JSON: " + err.Error(),
			})
			return nil, false, nil
		}
		return nil, false, classify(fmt.Sprintf("reading metadata for %s", scope), err)
	}
	if !exists {
		result.Failed = append(result.Failed, FlagFailure{
			Category:    scope.Category,
			SubCategory: scope.SubCategory,
			Reason:      reasonNoDocument,
		})
		return nil, false, nil
	}

	var applied []FlagUpdate
	var failed []FlagFailure
	for _, u := range updates {
		index, err := ParseAssetRef(u.Filename)
		if err != nil {
			failed = append(failed, failure(u, err.Error()))
			continue
		}
		pos := position(records, index)
		if pos < 0 {
			failed = append(failed, failure(u, KeyFor(index)+" not found in JSON"))
			continue
		}
		records[pos].Premium = u.Premium
		applied = append(applied, u)
	}

	if len(failed) > 0 {
		result.Failed = append(result.Failed, failed...)
		for _, u := range applied {
			result.Failed = append(result.Failed, failure(u, fmt.Sprintf("not applied: other updates for %s failed", scope)))
		}
		return nil, false, nil
	}
	result.Updated = append(result.Updated, applied...)
	return records, true, nil
}

func failure(u FlagUpdate, reason string) FlagFailure {
	return FlagFailure{
		Category:    u.Category,
		SubCategory: u.SubCategory,
		Filename:    u.Filename,
		Reason:      reason,
	}
}
