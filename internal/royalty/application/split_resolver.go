package application

import (
	"fmt"

	royalty "royalty-engine/internal/royalty/domain"
)

// SplitResolver turns a track's contributors into routed payee shares.
type SplitResolver struct{}

// NewSplitResolver constructs a resolver.
func NewSplitResolver() SplitResolver { return SplitResolver{} }

// Validate checks that active contributor shares sum to exactly 100.
func (SplitResolver) Validate(track royalty.Track) error {
	total := track.SplitTotal()
	if !total.Equal(royalty.Hundred) {
		return &royalty.SplitValidationError{TrackID: track.ID, Total: total}
	}
	for _, c := range track.ActiveContributors() {
		if !royalty.ValidPercent(c.PercentSplit) {
			return fmt.Errorf("%w: contributor %s has %s", royalty.ErrInvalidPercent, c.PayeeID, c.PercentSplit.String())
		}
	}
	return nil
}

// Resolve validates the track and returns one split per active contributor in
// contributor order. Contributors sharing a recipient are merged into one split.
func (r SplitResolver) Resolve(track royalty.Track) ([]royalty.ContributorSplit, error) {
	if err := r.Validate(track); err != nil {
		return nil, err
	}
	splits := make([]royalty.ContributorSplit, 0, len(track.Contributors))
	index := make(map[string]int, len(track.Contributors))
	for _, c := range track.ActiveContributors() {
		split := routeContributor(c)
		key := string(split.Recipient.Type()) + "|" + split.Recipient.PayeeID()
		if i, ok := index[key]; ok {
			splits[i].Percentage = splits[i].Percentage.Add(split.Percentage)
			continue
		}
		index[key] = len(splits)
		splits = append(splits, split)
	}
	return splits, nil
}

func routeContributor(c royalty.Contributor) royalty.ContributorSplit {
	split := royalty.ContributorSplit{
		PayeeID:    c.PayeeID,
		Role:       c.Role,
		Percentage: c.PercentSplit,
	}
	switch {
	case c.PublisherID != "":
		split.Recipient = royalty.PublisherRecipient{PublisherID: c.PublisherID, Via: c.PayeeID}
		split.Routing = royalty.RoutingExplicitPublisher
	case c.Artist != nil && !c.Artist.SelfPublished && c.Artist.PublisherID != "":
		split.Recipient = royalty.PublisherRecipient{PublisherID: c.Artist.PublisherID, Via: c.PayeeID}
		split.Routing = royalty.RoutingArtistPublisher
	default:
		split.Recipient = royalty.ArtistRecipient{ArtistID: c.PayeeID}
		split.Routing = royalty.RoutingDirect
	}
	return split
}
