// Package nfc maps physical card codes to subjects. Codes that do not
// resolve are collected in an append-only unknown-cards list, and the
// most recent scan is always kept so an administrator can assign a
// fresh card to a subject.
package nfc

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/Rob-Kly/Project-Zeiterfassung/internal/roster"
	"github.com/Rob-Kly/Project-Zeiterfassung/internal/timeclock"
)

// ErrUnknownCard is returned when no subject carries the scanned code.
var ErrUnknownCard = errors.New("unknown card code")

// UnknownCard is one unresolved scan awaiting manual assignment.
type UnknownCard struct {
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	CardCode  string `json:"nfc_code"`
	Status    string `json:"status"`
}

// LastScan is the most recent card seen by any reader.
type LastScan struct {
	CardCode  string `json:"nfc_code"`
	Timestamp string `json:"timestamp"`
}

// CardLogStore persists the unknown-card list and the last scan.
type CardLogStore interface {
	AppendUnknown(ctx context.Context, card UnknownCard) error
	ListUnknown(ctx context.Context) ([]UnknownCard, error)
	SetLastScan(ctx context.Context, scan LastScan) error
	LastScan(ctx context.Context) (*LastScan, error)
}

// Service resolves card codes and drives the state machine for scans.
type Service struct {
	roster roster.Provider
	cards  CardLogStore
	clock  *timeclock.Service
}

// NewService wires card resolution to the roster and state machine.
func NewService(provider roster.Provider, cards CardLogStore, clock *timeclock.Service) *Service {
	return &Service{roster: provider, cards: cards, clock: clock}
}

// Resolve returns the subject id carrying the card code. Callers are
// expected to upper-case hex-encoded identifiers before lookup.
func (s *Service) Resolve(ctx context.Context, code string) (string, error) {
	profiles, err := s.roster.List(ctx)
	if err != nil {
		return "", err
	}
	for id, p := range profiles {
		if p.CardCode != "" && p.CardCode == code {
			return id, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownCard, code)
}

// Clock records the scan and, when the card resolves, registers a
// check-in/check-out for its subject. Unresolved cards land on the
// unknown-cards list; the event logs and pending flag stay untouched.
func (s *Service) Clock(ctx context.Context, code string, now time.Time) (timeclock.Result, error) {
	scan := LastScan{CardCode: code, Timestamp: now.Format(timeclock.TimeLayout)}
	if err := s.cards.SetLastScan(ctx, scan); err != nil {
		log.Printf("record last scan failed: %v", err)
	}

	subjectID, err := s.Resolve(ctx, code)
	if err != nil {
		if errors.Is(err, ErrUnknownCard) {
			entry := UnknownCard{
				ID:        uuid.NewString(),
				Timestamp: now.Format(timeclock.TimeLayout),
				CardCode:  code,
				Status:    "unassigned",
			}
			if aerr := s.cards.AppendUnknown(ctx, entry); aerr != nil {
				log.Printf("record unknown card failed: %v", aerr)
			}
		}
		return timeclock.Result{}, err
	}
	return s.clock.Clock(ctx, subjectID, now)
}

// UnknownCards lists unresolved scans awaiting assignment.
func (s *Service) UnknownCards(ctx context.Context) ([]UnknownCard, error) {
	return s.cards.ListUnknown(ctx)
}

// Last returns the most recent scan, or nil when none was recorded.
func (s *Service) Last(ctx context.Context) (*LastScan, error) {
	return s.cards.LastScan(ctx)
}
