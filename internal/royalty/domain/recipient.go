package royalty

// RecipientType tags the closed set of payee kinds.
type RecipientType string

const (
	RecipientArtist    RecipientType = "artist"
	RecipientPublisher RecipientType = "publisher"
	RecipientPRO       RecipientType = "pro"
)

// Recipient is the party a distribution is paid to.
type Recipient interface {
	Type() RecipientType
	PayeeID() string
	isRecipient()
}

// ArtistRecipient pays a contributor directly.
type ArtistRecipient struct {
	ArtistID string
}

func (r ArtistRecipient) Type() RecipientType { return RecipientArtist }
func (r ArtistRecipient) PayeeID() string     { return r.ArtistID }
func (ArtistRecipient) isRecipient()          {}

// PublisherRecipient pays a publisher, optionally on behalf of a contributor.
type PublisherRecipient struct {
	PublisherID string
	Via         string
}

func (r PublisherRecipient) Type() RecipientType { return RecipientPublisher }
func (r PublisherRecipient) PayeeID() string     { return r.PublisherID }
func (PublisherRecipient) isRecipient()          {}

// PRORecipient pays a foreign collecting society.
type PRORecipient struct {
	PartnerCode string
}

func (r PRORecipient) Type() RecipientType { return RecipientPRO }
func (r PRORecipient) PayeeID() string     { return r.PartnerCode }
func (PRORecipient) isRecipient()          {}

// NewRecipient rebuilds a recipient from its stored form.
func NewRecipient(kind RecipientType, payeeID, via string) (Recipient, error) {
	switch kind {
	case RecipientArtist:
		return ArtistRecipient{ArtistID: payeeID}, nil
	case RecipientPublisher:
		return PublisherRecipient{PublisherID: payeeID, Via: via}, nil
	case RecipientPRO:
		return PRORecipient{PartnerCode: payeeID}, nil
	}
	return nil, ErrUnknownRecipient
}
