package grants_test

import (
	"context"
	"testing"
	"time"

	"github.com/omnikey-app/omnikey/apps"
	"github.com/omnikey-app/omnikey/apps/repofake"
	"github.com/omnikey-app/omnikey/grants"
	"github.com/stretchr/testify/require"
)

func newService(t *testing.T, repo apps.Repo, options ...grants.ServiceOption) *grants.Service {
	t.Helper()
	options = append([]grants.ServiceOption{grants.WithGrantTimeout(50 * time.Millisecond)}, options...)
	service, err := grants.New(repo, options...)
	require.NoError(t, err)
	return service
}

func TestRegisterPreviouslyGranted(t *testing.T) {
	repo := repofake.NewFakeAppRepo()
	uid := apps.NewID()
	require.NoError(t, repo.Put(uid, apps.App{ID: uid, Name: "editor", Granted: true, KeyID: "k1"}))

	service := newService(t, repo)

	result, err := service.Register(context.Background(), grants.Registration{
		Name: "editor", Description: "a code editor", UID: uid,
	})
	require.NoError(t, err)
	require.True(t, result.Granted)
	require.Equal(t, uid, result.Token)
}

func TestRegisterUnknownUIDCreatesSinglePendingRecord(t *testing.T) {
	repo := repofake.NewFakeAppRepo()
	service := newService(t, repo)

	for i := 0; i < 3; i++ {
		result, err := service.Register(context.Background(), grants.Registration{
			Name: "editor", Description: "a code editor",
		})
		require.NoError(t, err)
		require.False(t, result.Granted)
		require.Empty(t, result.Token)
	}

	all, err := repo.List()
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.False(t, all[0].Granted)
	require.NotEmpty(t, all[0].ID)
}

func TestRegisterDiscardsCallerChosenUID(t *testing.T) {
	repo := repofake.NewFakeAppRepo()
	service := newService(t, repo)

	result, err := service.Register(context.Background(), grants.Registration{
		Name: "editor", Description: "a code editor", UID: "guessable-low-entropy",
	})
	require.NoError(t, err)
	require.False(t, result.Granted)

	// The supplied value must not be persisted: once granted, the app id
	// is the token the gateway accepts.
	_, err = repo.Get("guessable-low-entropy")
	require.Error(t, err)

	all, err := repo.List()
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.NotEqual(t, "guessable-low-entropy", all[0].ID)
	require.NotEmpty(t, all[0].ID)
}

func TestRegisterBlocksUntilToggleGrants(t *testing.T) {
	repo := repofake.NewFakeAppRepo()

	var pendingID string
	notified := make(chan struct{})
	service := newService(t, repo,
		grants.WithGrantTimeout(5*time.Second),
		grants.WithNotifier(func(app apps.App) {
			pendingID = app.ID
			close(notified)
		}),
	)

	type outcome struct {
		result grants.Result
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := service.Register(context.Background(), grants.Registration{
			Name: "editor", Description: "a code editor",
		})
		done <- outcome{result, err}
	}()

	<-notified
	require.NoError(t, service.Toggle(pendingID, true, "k1"))

	got := <-done
	require.NoError(t, got.err)
	require.True(t, got.result.Granted)
	require.Equal(t, pendingID, got.result.Token)

	app, err := repo.Get(pendingID)
	require.NoError(t, err)
	require.True(t, app.Granted)
	require.Equal(t, "k1", app.KeyID)
}

func TestRegisterDenied(t *testing.T) {
	repo := repofake.NewFakeAppRepo()

	var pendingID string
	notified := make(chan struct{})
	service := newService(t, repo,
		grants.WithGrantTimeout(5*time.Second),
		grants.WithNotifier(func(app apps.App) {
			pendingID = app.ID
			close(notified)
		}),
	)

	done := make(chan grants.Result, 1)
	go func() {
		result, _ := service.Register(context.Background(), grants.Registration{
			Name: "editor", Description: "a code editor",
		})
		done <- result
	}()

	<-notified
	require.NoError(t, service.Toggle(pendingID, false, ""))

	result := <-done
	require.False(t, result.Granted)
}

func TestRegisterTimeoutLeavesAppPending(t *testing.T) {
	repo := repofake.NewFakeAppRepo()
	service := newService(t, repo)

	result, err := service.Register(context.Background(), grants.Registration{
		Name: "editor", Description: "a code editor",
	})
	require.NoError(t, err)
	require.False(t, result.Granted)

	all, err := repo.List()
	require.NoError(t, err)
	require.Len(t, all, 1)

	// A later grant makes the next registration immediate.
	require.NoError(t, service.Toggle(all[0].ID, true, ""))
	result, err = service.Register(context.Background(), grants.Registration{
		Name: "editor", Description: "a code editor", UID: all[0].ID,
	})
	require.NoError(t, err)
	require.True(t, result.Granted)
}

func TestRegisterCancelled(t *testing.T) {
	repo := repofake.NewFakeAppRepo()
	service := newService(t, repo, grants.WithGrantTimeout(5*time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := service.Register(ctx, grants.Registration{Name: "editor", Description: "d"})
		done <- err
	}()
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

func TestRevokeByKey(t *testing.T) {
	repo := repofake.NewFakeAppRepo()
	require.NoError(t, repo.Put("a1", apps.App{ID: "a1", Name: "one", Granted: true, KeyID: "k1"}))
	require.NoError(t, repo.Put("a2", apps.App{ID: "a2", Name: "two", Granted: true, KeyID: "k2"}))

	service := newService(t, repo)
	require.NoError(t, service.RevokeByKey("k1"))

	a1, err := repo.Get("a1")
	require.NoError(t, err)
	require.False(t, a1.Granted)
	require.Empty(t, a1.KeyID)

	a2, err := repo.Get("a2")
	require.NoError(t, err)
	require.True(t, a2.Granted)
	require.Equal(t, "k2", a2.KeyID)
}

func TestDeleteUnknownApp(t *testing.T) {
	service := newService(t, repofake.NewFakeAppRepo())
	require.Error(t, service.Delete("missing"))
}
