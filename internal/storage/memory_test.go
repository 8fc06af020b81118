package storage_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatdesk-app/chatdesk-backend/internal/models"
	"github.com/chatdesk-app/chatdesk-backend/internal/storage"
)

func TestFlowCRUD(t *testing.T) {
	store := storage.NewMemoryStore()

	created, err := store.CreateFlow(&models.Flow{OrganizationID: "org-1", Name: "Welcome"})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)

	got, err := store.GetFlow(created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Welcome", got.Name)

	got.Name = "Welcome v2"
	require.NoError(t, store.UpdateFlow(got))

	_, err = store.GetFlow("missing")
	assert.Error(t, err)

	require.NoError(t, store.DeleteFlow(created.ID))
	_, err = store.GetFlow(created.ID)
	assert.Error(t, err)
}

func TestMissingRecordsWrapErrNotFound(t *testing.T) {
	store := storage.NewMemoryStore()

	// Callers distinguish a missing record from a storage failure
	_, err := store.GetFlow("nope")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = store.GetSession("nope")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	assert.ErrorIs(t, store.UpdateFlow(&models.Flow{ID: "nope"}), storage.ErrNotFound)
	assert.ErrorIs(t, store.DeleteFlow("nope"), storage.ErrNotFound)
	assert.ErrorIs(t, store.UpdateSession(&models.ChatSession{ID: "nope"}), storage.ErrNotFound)
}

func TestGetActiveFlowsFiltersAndOrders(t *testing.T) {
	store := storage.NewMemoryStore()

	_, err := store.CreateFlow(&models.Flow{ID: "a", OrganizationID: "org-1", IsActive: true})
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	_, err = store.CreateFlow(&models.Flow{ID: "b", OrganizationID: "org-1", IsActive: false})
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	_, err = store.CreateFlow(&models.Flow{ID: "c", OrganizationID: "org-1", IsActive: true})
	require.NoError(t, err)
	_, err = store.CreateFlow(&models.Flow{ID: "d", OrganizationID: "org-2", IsActive: true})
	require.NoError(t, err)

	flows, err := store.GetActiveFlows("org-1")
	require.NoError(t, err)
	require.Len(t, flows, 2)
	assert.Equal(t, "a", flows[0].ID)
	assert.Equal(t, "c", flows[1].ID)
}

func TestGetActiveSessionByCustomer(t *testing.T) {
	store := storage.NewMemoryStore()

	_, err := store.CreateSession(&models.ChatSession{
		ID: "done", OrganizationID: "org-1", CustomerID: "cust-1",
		Status: models.SessionStatusCompleted,
	})
	require.NoError(t, err)

	// Terminal sessions are treated as absent
	session, err := store.GetActiveSessionByCustomer("org-1", "cust-1")
	require.NoError(t, err)
	assert.Nil(t, session)

	_, err = store.CreateSession(&models.ChatSession{
		ID: "live", OrganizationID: "org-1", CustomerID: "cust-1",
		Status: models.SessionStatusActive,
	})
	require.NoError(t, err)

	session, err = store.GetActiveSessionByCustomer("org-1", "cust-1")
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, "live", session.ID)

	// Delayed sessions still count as resumable
	session.Status = models.SessionStatusDelayed
	require.NoError(t, store.UpdateSession(session))
	session, err = store.GetActiveSessionByCustomer("org-1", "cust-1")
	require.NoError(t, err)
	require.NotNil(t, session)

	session, err = store.GetActiveSessionByCustomer("org-2", "cust-1")
	require.NoError(t, err)
	assert.Nil(t, session)
}

func TestGetDueDelayedSessions(t *testing.T) {
	store := storage.NewMemoryStore()
	now := time.Now()

	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)
	for id, wake := range map[string]*time.Time{"due": &past, "later": &future} {
		_, err := store.CreateSession(&models.ChatSession{
			ID: id, OrganizationID: "org-1", CustomerID: id,
			Status: models.SessionStatusDelayed, WakeAt: wake,
		})
		require.NoError(t, err)
	}

	due, err := store.GetDueDelayedSessions(now)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "due", due[0].ID)
}

func TestGetStaleActiveSessions(t *testing.T) {
	store := storage.NewMemoryStore()

	_, err := store.CreateSession(&models.ChatSession{
		ID: "fresh", OrganizationID: "org-1", CustomerID: "a",
		Status: models.SessionStatusActive,
	})
	require.NoError(t, err)

	old, err := store.CreateSession(&models.ChatSession{
		ID: "old", OrganizationID: "org-1", CustomerID: "b",
		Status: models.SessionStatusActive,
	})
	require.NoError(t, err)
	old.LastActiveAt = time.Now().Add(-48 * time.Hour)
	require.NoError(t, store.UpdateSession(old))

	stale, err := store.GetStaleActiveSessions(time.Now().Add(-24 * time.Hour))
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, "old", stale[0].ID)
}

func TestGetSessionStats(t *testing.T) {
	store := storage.NewMemoryStore()

	statuses := []string{
		models.SessionStatusActive,
		models.SessionStatusActive,
		models.SessionStatusCompleted,
		models.SessionStatusTransferred,
		models.SessionStatusDropped,
	}
	for i, status := range statuses {
		_, err := store.CreateSession(&models.ChatSession{
			OrganizationID: "org-1", CustomerID: string(rune('a' + i)), Status: status,
		})
		require.NoError(t, err)
	}
	_, err := store.CreateSession(&models.ChatSession{
		OrganizationID: "org-2", CustomerID: "z", Status: models.SessionStatusActive,
	})
	require.NoError(t, err)

	stats, err := store.GetSessionStats("org-1")
	require.NoError(t, err)
	assert.Equal(t, &models.SessionStats{
		Total: 5, Active: 2, Completed: 1, Transferred: 1, Dropped: 1,
	}, stats)
}
