package jobs

import (
	"log"
	"time"

	"github.com/chatdesk-app/chatdesk-backend/internal/flow"
	"github.com/chatdesk-app/chatdesk-backend/internal/models"
	"github.com/chatdesk-app/chatdesk-backend/internal/services"
	"github.com/chatdesk-app/chatdesk-backend/internal/storage"
)

// How often delayed sessions are polled for wake-up
const wakeInterval = 1 * time.Second

// How often stalled sessions are swept, and how long a session may sit
// idle in "active" before analytics counts it as dropped
const (
	cleanupInterval = 10 * time.Minute
	staleAfter      = 24 * time.Hour
)

// SessionJob runs the flow engine's background loops: waking delayed
// sessions and sweeping abandoned ones.
type SessionJob struct {
	store      storage.Store
	router     *flow.Router
	dispatcher services.Dispatcher
	isRunning  bool
}

// NewSessionJob creates the session background job. Resumption goes through
// the router so it runs under the same per-customer lock as inbound
// messages.
func NewSessionJob(store storage.Store, router *flow.Router, dispatcher services.Dispatcher) *SessionJob {
	return &SessionJob{
		store:      store,
		router:     router,
		dispatcher: dispatcher,
	}
}

// Start begins the wake-up and cleanup loops
func (j *SessionJob) Start() {
	if j.isRunning {
		log.Println("Session jobs already running")
		return
	}
	j.isRunning = true
	log.Println("Starting session jobs...")

	go j.wakeLoop()
	go j.cleanupLoop()
}

// Stop halts the loops after their current tick
func (j *SessionJob) Stop() {
	j.isRunning = false
	log.Println("Stopping session jobs...")
}

func (j *SessionJob) wakeLoop() {
	ticker := time.NewTicker(wakeInterval)
	defer ticker.Stop()

	for range ticker.C {
		if !j.isRunning {
			return
		}
		j.WakeDueSessions()
	}
}

// WakeDueSessions resumes every delayed session whose wake time passed.
// Exported so tests can drive it without the ticker.
func (j *SessionJob) WakeDueSessions() {
	due, err := j.store.GetDueDelayedSessions(time.Now())
	if err != nil {
		log.Printf("❌ Failed to load delayed sessions: %v", err)
		return
	}

	for _, session := range due {
		j.resume(session)
	}
}

// resume continues one delayed session at its parked node
func (j *SessionJob) resume(session *models.ChatSession) {
	result, err := j.router.Resume(session)
	if err != nil {
		// Left delayed; the next tick retries
		log.Printf("❌ Failed to resume session %s: %v", session.ID, err)
		return
	}
	if len(result.Actions) > 0 && j.dispatcher != nil {
		if err := j.dispatcher.Dispatch(session.Phone, result.Actions); err != nil {
			log.Printf("❌ Failed to dispatch resumed actions for %s: %v", session.ID, err)
		}
	}
}

func (j *SessionJob) cleanupLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for range ticker.C {
		if !j.isRunning {
			return
		}
		j.DropStaleSessions()
	}
}

// DropStaleSessions marks long-idle active sessions as dropped. Only this
// sweep produces the "dropped" status; the interpreter never does.
func (j *SessionJob) DropStaleSessions() {
	stale, err := j.store.GetStaleActiveSessions(time.Now().Add(-staleAfter))
	if err != nil {
		log.Printf("❌ Failed to load stale sessions: %v", err)
		return
	}

	for _, session := range stale {
		now := time.Now()
		session.Status = models.SessionStatusDropped
		session.EndedAt = &now
		if err := j.store.UpdateSession(session); err != nil {
			log.Printf("❌ Failed to drop session %s: %v", session.ID, err)
			continue
		}
		log.Printf("Dropped stale session %s (idle since %s)", session.ID, session.LastActiveAt.Format(time.RFC3339))
	}
}
