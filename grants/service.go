// Package grants runs the registration/authorization state machine that
// gates third-party access: unregistered → pending → granted or denied.
// A registration call either returns immediately (previously granted) or
// parks the caller on a waiter channel until the user decides in the
// management UI, the grant timeout fires, or the caller gives up.
package grants

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/omnikey-app/omnikey/apps"
)

// Notifier is called when a registration needs a user decision, so the
// management surface can be raised with the pending app's details.
type Notifier func(app apps.App)

type Registration struct {
	Name        string
	Description string
	// UID is the capability token from a previous grant, if the caller
	// saved one. It is an opaque lookup key; unknown values are treated
	// the same as absence.
	UID string
}

// Result of a registration call. Granted carries the scoped token the app
// presents on gateway calls; otherwise the app record is pending and the
// user has to act.
type Result struct {
	Granted bool
	Token   string
}

type Service struct {
	repo     apps.Repo
	notify   Notifier
	timeout  time.Duration
	nowTime  func() time.Time
	waiters  map[string]chan bool
	waiterMu sync.Mutex
}

type ServiceOption func(*Service)

// WithNowTime sets the now time function (primarily for testing).
func WithNowTime(nowFunc func() time.Time) ServiceOption {
	return func(s *Service) {
		s.nowTime = nowFunc
	}
}

func WithGrantTimeout(timeout time.Duration) ServiceOption {
	return func(s *Service) {
		s.timeout = timeout
	}
}

func WithNotifier(notify Notifier) ServiceOption {
	return func(s *Service) {
		s.notify = notify
	}
}

func New(repo apps.Repo, options ...ServiceOption) (*Service, error) {
	if repo == nil {
		return nil, errors.New("[grants.New] app repo is required")
	}
	s := &Service{
		repo:    repo,
		notify:  func(apps.App) {},
		timeout: 60 * time.Second,
		nowTime: time.Now,
		waiters: make(map[string]chan bool),
	}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

// Register implements the grant handshake. A previously granted UID returns
// a usable token without user interaction; anything else upserts a single
// pending record (matched by UID, then by name, so repeated calls cannot
// create duplicates) and blocks until the user decides or the timeout
// passes. The pending record survives a timeout: the user can still grant
// it later and the app's next registration succeeds immediately.
func (s *Service) Register(ctx context.Context, reg Registration) (Result, error) {
	now := s.nowTime()
	info := apps.App{
		Name:         reg.Name,
		Description:  reg.Description,
		CreatedAt:    now,
		LastActiveAt: now,
	}

	// The UID is only a lookup key. An unknown value is discarded, never
	// persisted: the app id doubles as the capability token the gateway
	// authenticates, so it must always come out of apps.NewID.
	if reg.UID != "" {
		if existing, err := s.repo.Get(reg.UID); err == nil {
			if existing.Granted {
				existing.LastActiveAt = now
				if err := s.repo.Put(existing.ID, existing); err != nil {
					return Result{}, errors.Wrap(err, "[Service.Register] touch app")
				}
				return Result{Granted: true, Token: existing.ID}, nil
			}
			info.ID = existing.ID
			info.KeyID = existing.KeyID
			info.CreatedAt = existing.CreatedAt
		}
	}

	if info.ID == "" {
		existingApps, err := s.repo.List()
		if err != nil {
			return Result{}, errors.Wrap(err, "[Service.Register] list apps")
		}
		for _, app := range existingApps {
			if app.Name == reg.Name {
				info.ID = app.ID
				info.KeyID = app.KeyID
				info.CreatedAt = app.CreatedAt
				break
			}
		}
		if info.ID == "" {
			info.ID = apps.NewID()
		}
	}

	if err := s.repo.Put(info.ID, info); err != nil {
		return Result{}, errors.Wrap(err, "[Service.Register] save pending app")
	}

	decision := s.addWaiter(info.ID)
	defer s.removeWaiter(info.ID)

	s.notify(info)

	select {
	case granted, ok := <-decision:
		if ok && granted {
			return Result{Granted: true, Token: info.ID}, nil
		}
		return Result{}, nil
	case <-time.After(s.timeout):
		return Result{}, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Toggle records the user's decision for an app and wakes any registration
// blocked on it. An optional key id attaches the credential the grant hands
// out.
func (s *Service) Toggle(id string, granted bool, keyID string) error {
	info, err := s.repo.Get(id)
	if err != nil {
		return errors.Wrapf(err, "[Service.Toggle] app %q", id)
	}
	info.Granted = granted
	if keyID != "" {
		info.KeyID = keyID
	}
	if err := s.repo.Put(id, info); err != nil {
		return errors.Wrap(err, "[Service.Toggle] save app")
	}
	s.resolveWaiter(id, granted)
	return nil
}

// Delete removes an app record; any cached token for it is invalid from the
// caller's point of view on next use.
func (s *Service) Delete(id string) error {
	if _, err := s.repo.Get(id); err != nil {
		return errors.Wrapf(err, "[Service.Delete] app %q", id)
	}
	if err := s.repo.Delete(id); err != nil {
		return errors.Wrap(err, "[Service.Delete] delete app")
	}
	s.closeWaiter(id)
	return nil
}

// Clear removes every app record.
func (s *Service) Clear() error {
	existingApps, err := s.repo.List()
	if err != nil {
		return errors.Wrap(err, "[Service.Clear] list apps")
	}
	for _, app := range existingApps {
		if err := s.repo.Delete(app.ID); err != nil {
			return errors.Wrapf(err, "[Service.Clear] delete app %q", app.ID)
		}
		s.closeWaiter(app.ID)
	}
	return nil
}

// RevokeByKey revokes the grant of every app whose credential reference
// points at the given key. Used when a key is deleted so no granted app is
// left with a dangling reference; those apps must be re-granted.
func (s *Service) RevokeByKey(keyID string) error {
	existingApps, err := s.repo.List()
	if err != nil {
		return errors.Wrap(err, "[Service.RevokeByKey] list apps")
	}
	for _, app := range existingApps {
		if app.KeyID != keyID {
			continue
		}
		app.KeyID = ""
		app.Granted = false
		if err := s.repo.Put(app.ID, app); err != nil {
			return errors.Wrapf(err, "[Service.RevokeByKey] save app %q", app.ID)
		}
	}
	return nil
}

// TouchLastActive records gateway activity for an app.
func (s *Service) TouchLastActive(id string) {
	if app, err := s.repo.Get(id); err == nil {
		app.LastActiveAt = s.nowTime()
		s.repo.Put(id, app) //nolint:errcheck
	}
}

func (s *Service) addWaiter(id string) chan bool {
	s.waiterMu.Lock()
	defer s.waiterMu.Unlock()
	ch := make(chan bool, 1)
	s.waiters[id] = ch
	return ch
}

func (s *Service) removeWaiter(id string) {
	s.waiterMu.Lock()
	defer s.waiterMu.Unlock()
	delete(s.waiters, id)
}

func (s *Service) resolveWaiter(id string, granted bool) {
	s.waiterMu.Lock()
	defer s.waiterMu.Unlock()
	if ch, ok := s.waiters[id]; ok {
		select {
		case ch <- granted:
		default:
		}
		delete(s.waiters, id)
	}
}

func (s *Service) closeWaiter(id string) {
	s.waiterMu.Lock()
	defer s.waiterMu.Unlock()
	if ch, ok := s.waiters[id]; ok {
		close(ch)
		delete(s.waiters, id)
	}
}
