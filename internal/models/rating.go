package models

import "time"

const DefaultRating = 1200

// Tier 레이팅 등급
type Tier string

const (
	TierBronze   Tier = "bronze"
	TierSilver   Tier = "silver"
	TierGold     Tier = "gold"
	TierPlatinum Tier = "platinum"
	TierDiamond  Tier = "diamond"
	TierMaster   Tier = "master"
)

// TierForRating maps a numeric rating to its display band.
func TierForRating(rating int) Tier {
	switch {
	case rating < 1000:
		return TierBronze
	case rating < 1300:
		return TierSilver
	case rating < 1600:
		return TierGold
	case rating < 1900:
		return TierPlatinum
	case rating < 2200:
		return TierDiamond
	default:
		return TierMaster
	}
}

// RatingRecord is the per-subject, per-mode skill rating. It is the only
// cross-match shared resource: it is mutated once per finished match via
// optimistic concurrency (Version compare-and-swap) so two matches
// finishing at the same time never lose an update.
type RatingRecord struct {
	SubjectID     string    `json:"subjectId" db:"subject_id"`
	Mode          Mode      `json:"mode" db:"mode"`
	Rating        int       `json:"rating" db:"rating"`
	MatchesPlayed int       `json:"matchesPlayed" db:"matches_played"`
	Wins          int       `json:"wins" db:"wins"`
	Losses        int       `json:"losses" db:"losses"`
	Streak        int       `json:"streak" db:"streak"`
	Version       int64     `json:"-" db:"version"`
	UpdatedAt     time.Time `json:"updatedAt" db:"updated_at"`
}

// Tier returns the display band for the record's rating.
func (r *RatingRecord) Tier() Tier {
	return TierForRating(r.Rating)
}

// LeaderboardRow 리더보드 행
type LeaderboardRow struct {
	SubjectID     string `json:"subjectId"`
	Username      string `json:"username"`
	Rating        int    `json:"rating"`
	Tier          Tier   `json:"tier"`
	MatchesPlayed int    `json:"matchesPlayed"`
	Wins          int    `json:"wins"`
	Losses        int    `json:"losses"`
	Rank          int    `json:"rank"`
}
