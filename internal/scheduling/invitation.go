package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	redisclient "github.com/bodywise/scheduling-service/internal/redis"
)

var (
	ErrAlreadyResponded = errors.New("invitation already responded to")
	ErrNoFreeSlots      = errors.New("no available slots for this practitioner")
	ErrSelfInvite       = errors.New("cannot invite yourself")
)

// InvitationBox selects which direction of invitations to list.
type InvitationBox string

const (
	BoxSent     InvitationBox = "sent"
	BoxReceived InvitationBox = "received"
	BoxAll      InvitationBox = "all"
)

// InvitationService lets a patient invite another patient to see a
// practitioner. Accepting books the earliest free slot on the invitee's
// behalf through the same reservation contract as a direct booking.
type InvitationService struct {
	repo        Repository
	locker      redisclient.Locker
	provisioner MeetingProvisioner
	sender      EmailSender
	cache       *SlotCache
	clock       Clock
	log         *logrus.Logger
}

func NewInvitationService(repo Repository, locker redisclient.Locker, provisioner MeetingProvisioner, sender EmailSender, cache *SlotCache, clock Clock, log *logrus.Logger) *InvitationService {
	return &InvitationService{
		repo:        repo,
		locker:      locker,
		provisioner: provisioner,
		sender:      sender,
		cache:       cache,
		clock:       clock,
		log:         log,
	}
}

// Invite creates a pending invitation and notifies the recipient. The
// notification is dispatched inline; a send failure is logged, not fatal.
func (s *InvitationService) Invite(ctx context.Context, senderPatientID uuid.UUID, recipientEmail string, practitionerID uuid.UUID, message *string) (*Invitation, error) {
	sender, err := s.repo.GetPatientByID(ctx, senderPatientID)
	if err != nil {
		return nil, fmt.Errorf("load sender: %w", err)
	}
	recipient, err := s.repo.GetPatientByEmail(ctx, recipientEmail)
	if err != nil {
		return nil, fmt.Errorf("load recipient: %w", err)
	}
	if recipient.ID == sender.ID {
		return nil, ErrSelfInvite
	}
	practitioner, err := s.repo.GetPractitionerByID(ctx, practitionerID)
	if err != nil {
		return nil, fmt.Errorf("load practitioner: %w", err)
	}

	inv := &Invitation{
		ID:                 uuid.New(),
		SenderPatientID:    sender.ID,
		RecipientPatientID: recipient.ID,
		PractitionerID:     practitionerID,
		Message:            message,
		Status:             InvitePending,
	}
	if err := s.repo.CreateInvitation(ctx, inv); err != nil {
		return nil, fmt.Errorf("create invitation: %w", err)
	}

	subject, body := inviteEmail(sender.Name, practitioner.Name, message)
	if err := s.sender.Send(ctx, recipient.Email, subject, body); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"invitation_id": inv.ID,
			"recipient":     recipient.Email,
		}).Error("invite email failed")
	}

	s.log.WithFields(logrus.Fields{
		"invitation_id":   inv.ID,
		"sender_id":       sender.ID,
		"recipient_id":    recipient.ID,
		"practitioner_id": practitionerID,
	}).Info("invitation sent")

	return inv, nil
}

func (s *InvitationService) List(ctx context.Context, patientID uuid.UUID, box InvitationBox) ([]Invitation, error) {
	switch box {
	case BoxSent:
		return s.repo.ListInvitationsBySender(ctx, patientID)
	case BoxReceived:
		return s.repo.ListInvitationsByRecipient(ctx, patientID)
	default:
		sent, err := s.repo.ListInvitationsBySender(ctx, patientID)
		if err != nil {
			return nil, err
		}
		received, err := s.repo.ListInvitationsByRecipient(ctx, patientID)
		if err != nil {
			return nil, err
		}
		return append(sent, received...), nil
	}
}

// Decline resolves the invitation without side effects.
func (s *InvitationService) Decline(ctx context.Context, invitationID, recipientID uuid.UUID) error {
	inv, err := s.repo.GetInvitationByID(ctx, invitationID)
	if err != nil {
		return err
	}
	if inv.RecipientPatientID != recipientID {
		return ErrInvitationNotFound
	}
	if inv.Status != InvitePending {
		return ErrAlreadyResponded
	}
	return s.repo.DeclineInvitation(ctx, invitationID, s.clock.Now())
}

// Accept turns the invitation into a booked consultation. The pending state
// is a single-use gate: the transaction flips it to accepted before any
// booking side effect, so a double accept produces exactly one booking. When
// no free slot exists the transaction rolls back and the invitation stays
// pending, retriable later.
func (s *InvitationService) Accept(ctx context.Context, invitationID, recipientID uuid.UUID) (*Consultation, error) {
	inv, err := s.repo.GetInvitationByID(ctx, invitationID)
	if err != nil {
		return nil, err
	}
	if inv.RecipientPatientID != recipientID {
		return nil, ErrInvitationNotFound
	}
	if inv.Status != InvitePending {
		return nil, ErrAlreadyResponded
	}

	recipient, err := s.repo.GetPatientByID(ctx, recipientID)
	if err != nil {
		return nil, fmt.Errorf("load recipient: %w", err)
	}
	practitioner, err := s.repo.GetPractitionerByID(ctx, inv.PractitionerID)
	if err != nil {
		return nil, fmt.Errorf("load practitioner: %w", err)
	}

	roomID, link, err := s.provisioner.CreateRoom(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMeetingProvision, err)
	}

	now := s.clock.Now()
	consultationID := uuid.New()

	var created *Consultation
	var reminders []ReminderJob
	err = s.locker.WithLock(ctx, "invitation:"+invitationID.String(), func(lockCtx context.Context) error {
		var acceptErr error
		created, acceptErr = s.repo.AcceptInvitation(lockCtx, AcceptInvitationParams{
			InvitationID:    invitationID,
			ConsultationID:  consultationID,
			PatientID:       recipient.ID,
			PractitionerID:  inv.PractitionerID,
			FromDate:        now,
			DurationMinutes: ConsultationMinutes,
			MeetingLink:     link,
			RoomID:          roomID,
			DailyCap:        DailyConsultationCap,
			RespondedAt:     now,
			BuildReminders: func(startAt time.Time) []ReminderJob {
				reminders = buildReminderJobs(consultationID, recipient.Email, practitioner.Email, startAt, now)
				return reminders
			},
		})
		return acceptErr
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBeingBooked
		}
		return nil, err
	}

	s.cache.Invalidate(inv.PractitionerID, dayOf(created.StartAt))

	s.log.WithFields(logrus.Fields{
		"invitation_id":   invitationID,
		"consultation_id": created.ID,
		"practitioner_id": inv.PractitionerID,
		"start_at":        created.StartAt,
	}).Info("invitation accepted and consultation booked")

	dispatchConfirmations(ctx, s.repo, s.sender, s.log, created, reminders)

	return created, nil
}
