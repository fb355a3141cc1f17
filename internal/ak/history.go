package ak

import "fmt"

// Version returns the current version record.
func (s *AKService) Version() (VersionRecord, error) {
	v, err := s.ledger.Current()
	if err != nil {
		return VersionRecord{}, IOFailure("reading version", err)
	}
	return v, nil
}

// History returns the most recent transactions, newest first.
func (s *AKService) History(limit int) ([]*TxnEntry, error) {
	entries, err := s.journal.Recent(limit)
	if err != nil {
		return nil, fmt.Errorf("listing transactions: %w", err)
	}
	return entries, nil
}
