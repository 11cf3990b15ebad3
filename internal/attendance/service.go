// Package attendance infers class presence from a group's WhatsApp
// history: a student who posted a qualifying message (by default an
// audio recitation) during the day counts as present.
package attendance

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"tahfidh/internal/gateway"
	"tahfidh/pkg/models"
	"tahfidh/pkg/phone"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const directJIDSuffix = "@s.whatsapp.net"

// DefaultMessageTypes are the message types that count as presence.
var DefaultMessageTypes = []string{"audioMessage"}

// GroupGateway is the slice of the gateway client the extractor needs.
type GroupGateway interface {
	FetchParticipants(ctx context.Context, instance, groupJID string) ([]gateway.GroupParticipant, error)
	FindGroupMessages(ctx context.Context, instance, groupJID string, from, to time.Time) ([]gateway.GroupMessage, error)
}

// StudentStore lists the students attendance can be recorded against.
type StudentStore interface {
	ListActiveByGroup(groupID uuid.UUID) ([]models.Student, error)
}

// AttendanceStore persists inferred presences.
type AttendanceStore interface {
	Upsert(attendance *models.Attendance) error
}

// Report is the outcome of one extraction.
type Report struct {
	Date time.Time `json:"date"`
	// Phones are the canonical numbers of members who posted a
	// qualifying message, deduplicated and sorted.
	Phones []string `json:"phones"`
	// Partial is true when one of the two gateway fetches failed and the
	// report was built from the surviving half.
	Partial bool `json:"partial"`
}

// Service extracts attendance and records it against enrolled students.
type Service struct {
	gw           GroupGateway
	students     StudentStore
	attendances  AttendanceStore
	messageTypes map[string]bool
}

// NewService creates an attendance service. messageTypes defaults to
// audio messages when empty.
func NewService(gw GroupGateway, students StudentStore, attendances AttendanceStore, messageTypes []string) *Service {
	if len(messageTypes) == 0 {
		messageTypes = DefaultMessageTypes
	}
	allowed := make(map[string]bool, len(messageTypes))
	for _, t := range messageTypes {
		allowed[t] = true
	}
	return &Service{gw: gw, students: students, attendances: attendances, messageTypes: allowed}
}

// AttendeesForDate fetches the group's participants and the day's
// messages concurrently and returns the phone numbers of members who
// posted a qualifying message. When exactly one fetch fails, the report
// is built from the half that survived and flagged Partial.
func (s *Service) AttendeesForDate(ctx context.Context, instance, groupJID string, date time.Time) (*Report, error) {
	from := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	to := from.Add(24*time.Hour - time.Second)

	var (
		wg           sync.WaitGroup
		participants []gateway.GroupParticipant
		messages     []gateway.GroupMessage
		pErr, mErr   error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		participants, pErr = s.gw.FetchParticipants(ctx, instance, groupJID)
	}()
	go func() {
		defer wg.Done()
		messages, mErr = s.gw.FindGroupMessages(ctx, instance, groupJID, from, to)
	}()
	wg.Wait()

	if pErr != nil && mErr != nil {
		return nil, fmt.Errorf("attendance: group %s unreachable: %w", groupJID, mErr)
	}
	partial := pErr != nil || mErr != nil
	if pErr != nil {
		log.Warn().Err(pErr).Str("group", groupJID).Msg("Participant fetch failed, resolving from message history only")
	}
	if mErr != nil {
		log.Warn().Err(mErr).Str("group", groupJID).Msg("Message fetch failed, attendance report will be empty")
	}

	lidPhones := lidMap(participants)

	seen := make(map[string]bool)
	for _, m := range messages {
		if m.Key.FromMe {
			continue
		}
		if m.Key.RemoteJID != groupJID {
			continue
		}
		if !s.messageTypes[m.MessageType] {
			continue
		}
		p := resolveSender(m, lidPhones)
		if p == "" {
			continue
		}
		seen[p] = true
	}

	phones := make([]string, 0, len(seen))
	for p := range seen {
		phones = append(phones, p)
	}
	sort.Strings(phones)

	return &Report{Date: from, Phones: phones, Partial: partial}, nil
}

// MarkAttendance extracts attendees for the date and records a presence
// for every enrolled student whose number matches by 9-digit suffix.
// Returns the matched students.
func (s *Service) MarkAttendance(ctx context.Context, sess *models.Session, group *models.Group, date time.Time) ([]models.Student, error) {
	if group.WhatsAppJID == "" {
		return nil, fmt.Errorf("attendance: group %s has no WhatsApp group linked", group.Name)
	}

	report, err := s.AttendeesForDate(ctx, sess.Name, group.WhatsAppJID, date)
	if err != nil {
		return nil, err
	}

	enrolled, err := s.students.ListActiveByGroup(group.ID)
	if err != nil {
		return nil, fmt.Errorf("attendance: failed to list students: %w", err)
	}

	index := phone.BuildSuffixIndex(report.Phones)
	var present []models.Student
	for _, student := range enrolled {
		if !phone.MatchesAny(student.Phone, index) {
			continue
		}
		record := &models.Attendance{
			StudentID: student.ID,
			GroupID:   group.ID,
			Date:      report.Date,
		}
		if err := s.attendances.Upsert(record); err != nil {
			return nil, fmt.Errorf("attendance: failed to record presence for %s: %w", student.Name, err)
		}
		present = append(present, student)
	}

	log.Info().
		Str("group", group.Name).
		Time("date", report.Date).
		Int("attendees", len(report.Phones)).
		Int("matched", len(present)).
		Bool("partial", report.Partial).
		Msg("Attendance extracted")
	return present, nil
}

// lidMap maps each participant's opaque LID to their canonical phone.
// Participants with a direct JID are also indexed by it so either key
// form on a message resolves.
func lidMap(participants []gateway.GroupParticipant) map[string]string {
	index := make(map[string]string, len(participants))
	for _, p := range participants {
		canonical := canonicalPhone(p.PhoneNumber)
		if canonical == "" && strings.HasSuffix(p.ID, directJIDSuffix) {
			canonical = canonicalPhone(strings.TrimSuffix(p.ID, directJIDSuffix))
		}
		if canonical == "" {
			continue
		}
		if p.LID != "" {
			index[jidUser(p.LID)] = canonical
		}
		index[jidUser(p.ID)] = canonical
	}
	return index
}

// resolveSender turns a message's sender key into a canonical phone.
// Direct JIDs carry the number; LID senders resolve through the
// participant map; anything else is excluded rather than guessed.
func resolveSender(m gateway.GroupMessage, lidPhones map[string]string) string {
	sender := m.Key.Participant
	if strings.HasSuffix(sender, directJIDSuffix) {
		return canonicalPhone(strings.TrimSuffix(sender, directJIDSuffix))
	}
	if lid := m.Key.ParticipantLID; lid != "" {
		if p, ok := lidPhones[jidUser(lid)]; ok {
			return p
		}
	}
	if p, ok := lidPhones[jidUser(sender)]; ok {
		return p
	}
	return ""
}

func canonicalPhone(raw string) string {
	if c := phone.Clean(raw); c != "" {
		return c
	}
	return phone.CleanInternational("+" + phone.Digits(raw))
}

// jidUser strips the server part of a JID ("123@lid" -> "123").
func jidUser(jid string) string {
	if i := strings.IndexByte(jid, '@'); i >= 0 {
		return jid[:i]
	}
	return jid
}
