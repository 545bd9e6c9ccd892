package application

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"royalty-engine/internal/audit"
	royalty "royalty-engine/internal/royalty/domain"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

// stubRepo is an in-memory stand-in for every royalty repository.
type stubRepo struct {
	mu            sync.Mutex
	stations      map[string]royalty.Station
	tracks        map[string]royalty.Track
	plays         map[string]royalty.PlayLog
	partners      map[string]royalty.PartnerOrganization
	agreements    []royalty.ReciprocalAgreement
	distributions map[string][]royalty.Distribution
	usage         []royalty.CycleUsage
	cycles        map[string]royalty.RoyaltyCycle
	lineItems     map[string][]royalty.RoyaltyLineItem
	remittances   map[string][]royalty.PartnerRemittance
	exports       map[string][]royalty.ReportExport
	replaceErr    error
	replaceCalls  int
	settleErr     error
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		stations:      map[string]royalty.Station{},
		tracks:        map[string]royalty.Track{},
		plays:         map[string]royalty.PlayLog{},
		partners:      map[string]royalty.PartnerOrganization{},
		distributions: map[string][]royalty.Distribution{},
		cycles:        map[string]royalty.RoyaltyCycle{},
		lineItems:     map[string][]royalty.RoyaltyLineItem{},
		remittances:   map[string][]royalty.PartnerRemittance{},
		exports:       map[string][]royalty.ReportExport{},
	}
}

func (r *stubRepo) GetStation(_ context.Context, id string) (*royalty.Station, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.stations[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (r *stubRepo) GetTrack(_ context.Context, id string) (*royalty.Track, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tracks[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (r *stubRepo) GetPlay(_ context.Context, id string) (*royalty.PlayLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.plays[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (r *stubRepo) ListPendingPlays(_ context.Context, from, to time.Time, after *royalty.PlayCursor, limit int) ([]royalty.PlayLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]royalty.PlayLog, 0)
	for _, p := range r.plays {
		if p.Calculated() || p.PlayedAt.Before(from) || !p.PlayedAt.Before(to) {
			continue
		}
		if after != nil && (p.PlayedAt.Before(after.PlayedAt) || (p.PlayedAt.Equal(after.PlayedAt) && p.ID <= after.ID)) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].PlayedAt.Equal(out[j].PlayedAt) {
			return out[i].PlayedAt.Before(out[j].PlayedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *stubRepo) GetPartner(_ context.Context, code string) (*royalty.PartnerOrganization, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.partners[code]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (r *stubRepo) ListAgreements(_ context.Context, status royalty.AgreementStatus) ([]royalty.ReciprocalAgreement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]royalty.ReciprocalAgreement, 0, len(r.agreements))
	for _, a := range r.agreements {
		if status == "" || a.Status == status {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *stubRepo) ReplaceDistributions(_ context.Context, playLogID string, dists []royalty.Distribution, amount decimal.Decimal, currency string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replaceCalls++
	if r.replaceErr != nil {
		return r.replaceErr
	}
	r.distributions[playLogID] = append([]royalty.Distribution(nil), dists...)
	if p, ok := r.plays[playLogID]; ok {
		p.RoyaltyAmount = &amount
		p.RoyaltyCurrency = currency
		p.CalculatedAt = &at
		r.plays[playLogID] = p
	}
	return nil
}

func (r *stubRepo) ListDistributions(_ context.Context, playLogID string) ([]royalty.Distribution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]royalty.Distribution(nil), r.distributions[playLogID]...), nil
}

func (r *stubRepo) ListCycleUsage(_ context.Context, territory string, from, to time.Time) ([]royalty.CycleUsage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]royalty.CycleUsage, 0, len(r.usage))
	for _, u := range r.usage {
		a := u.Attribution
		if a.Territory != territory || a.PlayedAt.Before(from) || !a.PlayedAt.Before(to) {
			continue
		}
		out = append(out, u)
	}
	return out, nil
}

func (r *stubRepo) CreateCycle(_ context.Context, cycle *royalty.RoyaltyCycle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cycles[cycle.ID] = *cycle
	return nil
}

func (r *stubRepo) GetCycle(_ context.Context, id string) (*royalty.RoyaltyCycle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.cycles[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (r *stubRepo) ListCycles(_ context.Context, status royalty.CycleStatus) ([]royalty.RoyaltyCycle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]royalty.RoyaltyCycle, 0, len(r.cycles))
	for _, c := range r.cycles {
		if status == "" || c.Status == status {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *stubRepo) CommitLock(_ context.Context, cycleID string, items []royalty.RoyaltyLineItem, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.cycles[cycleID]
	if !ok || c.Status != royalty.CycleOpen {
		return &royalty.InvalidCycleStateError{CycleID: cycleID, Operation: "lock", Status: c.Status, Expected: []royalty.CycleStatus{royalty.CycleOpen}}
	}
	c.Status = royalty.CycleLocked
	c.LockedAt = &at
	r.cycles[cycleID] = c
	r.lineItems[cycleID] = append([]royalty.RoyaltyLineItem(nil), items...)
	return nil
}

func (r *stubRepo) TransitionCycle(_ context.Context, cycleID string, from, to royalty.CycleStatus, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.cycles[cycleID]
	if !ok || c.Status != from {
		return &royalty.InvalidCycleStateError{CycleID: cycleID, Operation: "transition", Status: c.Status, Expected: []royalty.CycleStatus{from}}
	}
	c.Status = to
	switch to {
	case royalty.CycleInvoiced:
		c.InvoicedAt = &at
	case royalty.CycleRemitted:
		c.RemittedAt = &at
	}
	r.cycles[cycleID] = c
	return nil
}

func (r *stubRepo) ResetCycle(_ context.Context, cycleID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.cycles[cycleID]
	c.Status = royalty.CycleOpen
	c.LockedAt = nil
	r.cycles[cycleID] = c
	delete(r.lineItems, cycleID)
	delete(r.remittances, cycleID)
	delete(r.exports, cycleID)
	return nil
}

func (r *stubRepo) ListLineItems(_ context.Context, cycleID string) ([]royalty.RoyaltyLineItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]royalty.RoyaltyLineItem(nil), r.lineItems[cycleID]...), nil
}

func (r *stubRepo) ReplaceSettlement(_ context.Context, cycleID string, remittances []royalty.PartnerRemittance, exports []royalty.ReportExport) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.settleErr != nil {
		return r.settleErr
	}
	r.remittances[cycleID] = append([]royalty.PartnerRemittance(nil), remittances...)
	r.exports[cycleID] = append([]royalty.ReportExport(nil), exports...)
	return nil
}

func (r *stubRepo) ListRemittances(_ context.Context, cycleID string) ([]royalty.PartnerRemittance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]royalty.PartnerRemittance(nil), r.remittances[cycleID]...), nil
}

func (r *stubRepo) UpdateRemittanceStatus(_ context.Context, id string, status royalty.RemittanceStatus, reference string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for cycleID, list := range r.remittances {
		for i := range list {
			if list[i].ID != id {
				continue
			}
			list[i].Status = status
			list[i].PaymentReference = reference
			switch status {
			case royalty.RemittanceSent:
				list[i].SentAt = &at
			case royalty.RemittanceSettled:
				list[i].SettledAt = &at
			}
			r.remittances[cycleID] = list
			return nil
		}
	}
	return errors.New("remittance not found: " + id)
}

func (r *stubRepo) GetExport(_ context.Context, id string) (*royalty.ReportExport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, list := range r.exports {
		for _, e := range list {
			if e.ID == id {
				e := e
				return &e, nil
			}
		}
	}
	return nil, nil
}

func (r *stubRepo) ListExports(_ context.Context, cycleID string) ([]royalty.ReportExport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]royalty.ReportExport(nil), r.exports[cycleID]...), nil
}

type recordingAudit struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (a *recordingAudit) Log(_ context.Context, entry audit.Entry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, entry)
	return nil
}

func (a *recordingAudit) ofType(t audit.Type) []audit.Entry {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []audit.Entry
	for _, e := range a.entries {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type recordingEvents struct {
	mu     sync.Mutex
	events []any
}

func (e *recordingEvents) Publish(_ context.Context, event any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
	return nil
}

type memReportStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemReportStore() *memReportStore {
	return &memReportStore{objects: map[string][]byte{}}
}

func (s *memReportStore) Put(_ context.Context, key string, body []byte, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	location := "mem://" + key
	s.objects[location] = append([]byte(nil), body...)
	return location, nil
}

func (s *memReportStore) Get(_ context.Context, location string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	body, ok := s.objects[location]
	if !ok {
		return nil, royalty.ErrExportNotFound
	}
	return body, nil
}

func (s *memReportStore) Delete(_ context.Context, location string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, location)
	return nil
}

type stubLocker struct{}

func (stubLocker) Acquire(context.Context, string) (func(), error) { return func() {}, nil }

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}
