package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/laraveldev/tg-bot/internal/domain"
	"github.com/laraveldev/tg-bot/internal/repository"
)

// ChatContext one observed chat interaction
type ChatContext struct {
	ChatID  string         `json:"chat_id"`
	UserID  string         `json:"user_id,omitempty"`
	Profile domain.Profile `json:"profile"`
}

// IsGroup group and supergroup chat ids are negative
func (c ChatContext) IsGroup() bool {
	n, err := strconv.ParseInt(c.ChatID, 10, 64)
	return err == nil && n < 0
}

// SyncResult outcome of an administrator list scan
type SyncResult struct {
	Synced   int `json:"synced"`
	Created  int `json:"created"`
	Promoted int `json:"promoted"`
}

// IdentityService maps chat participants to roster entries and keeps their role in line
// with their group admin status. Every call site resolves people through here.
type IdentityService struct {
	persons      repository.PersonsRepository
	admins       AdminChecker
	adminLister  AdminLister
	notifier     Notifier
	events       EventPublisher
	clock        Clock
	checkTimeout time.Duration
	logger       *zap.Logger
}

// NewIdentityService creates the identity reconciler; admins and adminLister may be nil
func NewIdentityService(
	persons repository.PersonsRepository,
	admins AdminChecker,
	adminLister AdminLister,
	notifier Notifier,
	events EventPublisher,
	clock Clock,
	checkTimeout time.Duration,
	logger *zap.Logger,
) *IdentityService {
	return &IdentityService{
		persons:      persons,
		admins:       admins,
		adminLister:  adminLister,
		notifier:     notifier,
		events:       events,
		clock:        clock,
		checkTimeout: checkTimeout,
		logger:       logger,
	}
}

// Resolve returns the Person behind cc, creating or reconciling the roster entry.
// Lookup is by user id, then by chat id for private chats.
func (s *IdentityService) Resolve(ctx context.Context, cc ChatContext) (*domain.Person, error) {
	cc.ChatID = strings.TrimSpace(cc.ChatID)
	cc.UserID = strings.TrimSpace(cc.UserID)
	if cc.ChatID == "" {
		return nil, fmt.Errorf("%w: chat_id is required", ErrInvalidArgument)
	}
	group := cc.IsGroup()

	p, err := s.lookup(ctx, cc, group)
	if err != nil {
		return nil, err
	}
	if p == nil {
		if group && cc.UserID == "" {
			return nil, fmt.Errorf("%w: cannot identify participant", ErrNotFound)
		}
		return s.create(ctx, cc, group)
	}
	if group {
		return s.reconcileGroup(ctx, p, cc)
	}
	return s.reconcilePrivate(ctx, p, cc)
}

func (s *IdentityService) lookup(ctx context.Context, cc ChatContext, group bool) (*domain.Person, error) {
	if cc.UserID != "" {
		p, err := s.persons.GetPersonByUserID(ctx, cc.UserID)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("lookup by user id: %w", err)
		}
	}
	if !group {
		p, err := s.persons.GetPersonByChatID(ctx, cc.ChatID)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("lookup by chat id: %w", err)
		}
	}
	return nil, nil
}

// isAdmin fails closed: any lookup error counts as "not admin"
func (s *IdentityService) isAdmin(ctx context.Context, chatID, userID string) bool {
	if s.admins == nil || userID == "" {
		return false
	}
	checkCtx, cancel := context.WithTimeout(ctx, s.checkTimeout)
	defer cancel()

	ok, err := s.admins.IsGroupAdmin(checkCtx, chatID, userID)
	if err != nil {
		s.logger.Warn("Group admin check failed, treating as non-admin",
			zap.String("chat_id", chatID),
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return false
	}
	return ok
}

func (s *IdentityService) create(ctx context.Context, cc ChatContext, group bool) (*domain.Person, error) {
	role := domain.RoleOperator
	if group && s.isAdmin(ctx, cc.ChatID, cc.UserID) {
		role = domain.RoleSupervisor
	}
	chatID := cc.ChatID
	if group {
		// reachable by user id until a private chat is opened
		chatID = cc.UserID
	}
	p := newPerson(chatID, cc.UserID, cc.Profile, role)

	if err := s.persons.CreatePerson(ctx, p); err != nil {
		if !errors.Is(err, repository.ErrConflict) {
			return nil, fmt.Errorf("create person: %w", err)
		}
		return s.resolveCreateConflict(ctx, cc, chatID, group)
	}

	s.logger.Info("Registered person",
		zap.String("person_id", p.PersonID),
		zap.String("user_id", cc.UserID),
		zap.String("role", string(p.Role)),
		zap.Bool("group_context", group),
	)
	s.welcome(ctx, p)
	ev := domain.NewEvent(domain.EventPersonCreated, s.clock.Now())
	ev.PersonID = p.PersonID
	ev.Data = map[string]any{"role": string(p.Role)}
	publish(ctx, s.events, s.logger, ev)
	return p, nil
}

// resolveCreateConflict another writer created the row first, or the placeholder chat id
// is held by a person registered privately without a user id
func (s *IdentityService) resolveCreateConflict(ctx context.Context, cc ChatContext, chatID string, group bool) (*domain.Person, error) {
	existing, err := s.lookup(ctx, cc, group)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		existing, err = s.persons.GetPersonByChatID(ctx, chatID)
		if err != nil {
			return nil, fmt.Errorf("resolve create conflict: %w", err)
		}
	}
	if group {
		return s.reconcileGroup(ctx, existing, cc)
	}
	return s.reconcilePrivate(ctx, existing, cc)
}

func newPerson(chatID, userID string, profile domain.Profile, role domain.Role) *domain.Person {
	first, last := domain.DisplayFirstName(profile, userID)
	return &domain.Person{
		ExternalChatID:      chatID,
		ExternalUserID:      domain.NullString(userID),
		FirstName:           first,
		LastName:            domain.NullString(last),
		Username:            domain.NullString(strings.TrimPrefix(strings.TrimSpace(profile.Username), "@")),
		Role:                role,
		Status:              domain.PersonActive,
		IsAvailableForLunch: role == domain.RoleOperator,
	}
}

func (s *IdentityService) welcome(ctx context.Context, p *domain.Person) {
	text := fmt.Sprintf("Welcome, %s! You are registered as %s.", p.FullName(), p.Role)
	if p.IsOperator() {
		text += " You will get a reminder 5 minutes before your lunch slot."
	}
	if err := s.notifier.NotifyPerson(ctx, p, text); err != nil {
		s.logger.Warn("Welcome notification failed",
			zap.String("person_id", p.PersonID),
			zap.Error(err),
		)
	}
}

// reconcileGroup keeps the private chat binding and syncs role with the admin check
func (s *IdentityService) reconcileGroup(ctx context.Context, p *domain.Person, cc ChatContext) (*domain.Person, error) {
	changed := backfillProfile(p, cc.Profile, cc.UserID)
	if !p.ExternalUserID.Valid && cc.UserID != "" {
		p.ExternalUserID = domain.NullString(cc.UserID)
		changed = true
	}

	admin := s.isAdmin(ctx, cc.ChatID, cc.UserID)
	switch {
	case admin && p.Role != domain.RoleSupervisor:
		s.logger.Info("Promoting person to supervisor", zap.String("person_id", p.PersonID))
		p.Role = domain.RoleSupervisor
		changed = true
	case !admin && p.Role == domain.RoleSupervisor:
		s.logger.Info("Demoting person to operator", zap.String("person_id", p.PersonID))
		p.Role = domain.RoleOperator
		changed = true
	}

	if !changed {
		return p, nil
	}
	return s.save(ctx, p)
}

// reconcilePrivate rebinds the chat id to the newest private chat; never demotes
func (s *IdentityService) reconcilePrivate(ctx context.Context, p *domain.Person, cc ChatContext) (*domain.Person, error) {
	changed := backfillProfile(p, cc.Profile, cc.UserID)

	if !p.ExternalUserID.Valid && cc.UserID != "" {
		owner, err := s.persons.GetPersonByUserID(ctx, cc.UserID)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			p.ExternalUserID = domain.NullString(cc.UserID)
			changed = true
		case err != nil:
			return nil, fmt.Errorf("check user id owner: %w", err)
		case owner.PersonID != p.PersonID:
			s.logger.Warn("User id already bound to another person, not backfilling",
				zap.String("person_id", p.PersonID),
				zap.String("owner_person_id", owner.PersonID),
			)
		}
	}

	if p.ExternalChatID != cc.ChatID {
		owner, err := s.persons.GetPersonByChatID(ctx, cc.ChatID)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			p.ExternalChatID = cc.ChatID
			changed = true
		case err != nil:
			return nil, fmt.Errorf("check chat id owner: %w", err)
		case owner.PersonID != p.PersonID:
			s.logger.Warn("Chat id already bound to another person, keeping old binding",
				zap.String("person_id", p.PersonID),
				zap.String("chat_id", cc.ChatID),
				zap.String("owner_person_id", owner.PersonID),
			)
		}
	}

	if !changed {
		return p, nil
	}
	return s.save(ctx, p)
}

// save persists p; a lost uniqueness race returns the stored row unchanged
func (s *IdentityService) save(ctx context.Context, p *domain.Person) (*domain.Person, error) {
	err := s.persons.UpdatePerson(ctx, p)
	if err == nil {
		return p, nil
	}
	if errors.Is(err, repository.ErrConflict) {
		s.logger.Warn("Identity update lost a uniqueness race, keeping stored record",
			zap.String("person_id", p.PersonID))
		return s.persons.GetPerson(ctx, p.PersonID)
	}
	return nil, fmt.Errorf("update person: %w", err)
}

// backfillProfile fills empty name and handle fields, replacing a generated "User N" name
func backfillProfile(p *domain.Person, profile domain.Profile, userID string) bool {
	changed := false
	first := strings.TrimSpace(profile.FirstName)
	last := strings.TrimSpace(profile.LastName)
	handle := strings.TrimPrefix(strings.TrimSpace(profile.Username), "@")

	placeholder := p.FirstName == "" || p.FirstName == "User" || (userID != "" && p.FirstName == "User "+userID)
	if placeholder && first != "" {
		p.FirstName = first
		changed = true
	}
	if p.FirstName == "" {
		p.FirstName, _ = domain.DisplayFirstName(profile, userID)
		changed = true
	}
	if !p.LastName.Valid && last != "" && last != p.FirstName {
		p.LastName = domain.NullString(last)
		changed = true
	}
	if !p.Username.Valid && handle != "" {
		p.Username = domain.NullString(handle)
		changed = true
	}
	return changed
}

// SyncGroupAdmins registers or promotes every human administrator of groupChatID
func (s *IdentityService) SyncGroupAdmins(ctx context.Context, groupChatID string) (*SyncResult, error) {
	if s.adminLister == nil {
		return nil, fmt.Errorf("%w: admin listing unavailable", ErrInvalidArgument)
	}
	listCtx, cancel := context.WithTimeout(ctx, s.checkTimeout)
	members, err := s.adminLister.GroupAdministrators(listCtx, groupChatID)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("list group administrators: %w", err)
	}

	result := &SyncResult{}
	for _, m := range members {
		if m.IsBot || m.UserID == "" {
			continue
		}
		result.Synced++

		p, err := s.persons.GetPersonByUserID(ctx, m.UserID)
		if errors.Is(err, repository.ErrNotFound) {
			p = newPerson(m.UserID, m.UserID, m.Profile, domain.RoleSupervisor)
			if err := s.persons.CreatePerson(ctx, p); err != nil {
				s.logger.Warn("Failed to register group administrator",
					zap.String("user_id", m.UserID), zap.Error(err))
				continue
			}
			result.Created++
			ev := domain.NewEvent(domain.EventPersonCreated, s.clock.Now())
			ev.PersonID = p.PersonID
			ev.Data = map[string]any{"role": string(p.Role), "source": "admin_sync"}
			publish(ctx, s.events, s.logger, ev)
			continue
		}
		if err != nil {
			return result, fmt.Errorf("lookup administrator %s: %w", m.UserID, err)
		}

		changed := backfillProfile(p, m.Profile, m.UserID)
		if p.Role != domain.RoleSupervisor {
			p.Role = domain.RoleSupervisor
			result.Promoted++
			changed = true
		}
		if changed {
			if _, err := s.save(ctx, p); err != nil {
				return result, err
			}
		}
	}

	s.logger.Info("Group administrators synced",
		zap.String("chat_id", groupChatID),
		zap.Int("synced", result.Synced),
		zap.Int("created", result.Created),
		zap.Int("promoted", result.Promoted),
	)
	return result, nil
}

// UpdateContact stores a shared phone number and backfills profile fields
func (s *IdentityService) UpdateContact(ctx context.Context, userID, phone string, profile domain.Profile) (*domain.Person, error) {
	phone = strings.TrimSpace(phone)
	if userID == "" || phone == "" {
		return nil, fmt.Errorf("%w: user_id and phone are required", ErrInvalidArgument)
	}
	p, err := s.persons.GetPersonByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	backfillProfile(p, profile, userID)
	p.Phone = domain.NullString(phone)
	return s.save(ctx, p)
}

// RegisterOperator explicit self-registration from a private chat; an existing
// registration is returned unchanged
func (s *IdentityService) RegisterOperator(ctx context.Context, cc ChatContext) (*domain.Person, error) {
	if cc.UserID == "" || cc.ChatID == "" {
		return nil, fmt.Errorf("%w: chat_id and user_id are required", ErrInvalidArgument)
	}
	if cc.IsGroup() {
		return nil, fmt.Errorf("%w: registration requires a private chat", ErrInvalidArgument)
	}
	existing, err := s.lookup(ctx, cc, false)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}
	return s.create(ctx, cc, false)
}
