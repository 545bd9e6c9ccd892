package royalty

import (
	"time"

	"github.com/shopspring/decimal"
)

// PlayLog is a single broadcast of a track.
type PlayLog struct {
	ID                string
	TrackID           string
	StationID         string
	PlayedAt          time.Time
	DurationSeconds   int
	RoyaltyAmount     *decimal.Decimal
	RoyaltyCurrency   string
	CalculatedAt      *time.Time
	OriginPartnerCode string
}

// Calculated reports whether the play already carries a royalty amount.
func (p PlayLog) Calculated() bool {
	return p.RoyaltyAmount != nil
}

// ContributorRole is the part a contributor played in a track.
type ContributorRole string

const (
	RoleArtist    ContributorRole = "artist"
	RoleComposer  ContributorRole = "composer"
	RoleLyricist  ContributorRole = "lyricist"
	RoleProducer  ContributorRole = "producer"
	RolePublisher ContributorRole = "publisher"
)

// Artist carries the publishing status of a contributing artist.
type Artist struct {
	ID            string
	SelfPublished bool
	PublisherID   string
}

// Contributor is a rights-holder share on a track.
type Contributor struct {
	PayeeID      string
	Role         ContributorRole
	PercentSplit decimal.Decimal
	PublisherID  string
	Active       bool
	Artist       *Artist
}

// Track is a recording with its contributor splits.
type Track struct {
	ID              string
	Title           string
	ISRC            string
	ISWC            string
	DurationSeconds int
	Contributors    []Contributor
}
