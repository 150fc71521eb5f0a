package db

import (
	"context"
	"time"
)

// InsertFingerprint is the atomic insert-if-absent the dedup contract
// requires: of two concurrent calls for the same fingerprint exactly one
// observes inserted=true.
func (p *Pool) InsertFingerprint(ctx context.Context, fingerprint []byte, firstSeenAt time.Time) (bool, error) {
	const q = `
INSERT INTO tge.fingerprints (fingerprint, first_seen_at)
VALUES ($1, $2)
ON CONFLICT (fingerprint) DO NOTHING
`
	tag, err := p.Exec(ctx, q, fingerprint, firstSeenAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (p *Pool) FingerprintSeen(ctx context.Context, fingerprint []byte) (bool, error) {
	const q = `
SELECT EXISTS (SELECT 1 FROM tge.fingerprints WHERE fingerprint = $1)
`
	var seen bool
	if err := p.QueryRow(ctx, q, fingerprint).Scan(&seen); err != nil {
		return false, err
	}
	return seen, nil
}

// DeleteFingerprintsBefore is the retention sweep; it never runs on the
// cycle hot path.
func (p *Pool) DeleteFingerprintsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	const q = `
DELETE FROM tge.fingerprints
WHERE first_seen_at < $1
`
	tag, err := p.Exec(ctx, q, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
