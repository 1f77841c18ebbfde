package service

import (
	"time"

	"go.uber.org/zap"

	"github.com/laraveldev/tg-bot/internal/repository"
)

// Deps collaborators of the lunch engine. Nil Notifier/Events/Clock get no-op or system defaults.
type Deps struct {
	Repos             *repository.Repositories
	AdminChecker      AdminChecker
	AdminLister       AdminLister
	MemberCounter     MemberCounter
	Notifier          Notifier
	Events            EventPublisher
	Clock             Clock
	Logger            *zap.Logger
	AdminCheckTimeout time.Duration
}

// LunchService the engine's public surface, one service per component
type LunchService struct {
	Identity *IdentityService
	Queue    *QueueService
	Breaks   *BreakService
	Stats    *StatsService
}

// NewLunchService wires the component services over shared repositories
func NewLunchService(deps Deps) *LunchService {
	if deps.Notifier == nil {
		deps.Notifier = nopNotifier{}
	}
	if deps.Events == nil {
		deps.Events = nopPublisher{}
	}
	if deps.Clock == nil {
		deps.Clock = SystemClock{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.AdminCheckTimeout <= 0 {
		deps.AdminCheckTimeout = 10 * time.Second
	}

	queue := NewQueueService(deps.Repos, deps.Notifier, deps.Events, deps.Clock, deps.Logger)
	return &LunchService{
		Identity: NewIdentityService(deps.Repos.Persons, deps.AdminChecker, deps.AdminLister, deps.Notifier, deps.Events, deps.Clock, deps.AdminCheckTimeout, deps.Logger),
		Queue:    queue,
		Breaks:   NewBreakService(deps.Repos, queue, deps.Notifier, deps.Events, deps.Clock, deps.Logger),
		Stats:    NewStatsService(deps.Repos, deps.MemberCounter, deps.Clock, deps.Logger),
	}
}
