package policy

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrApprovalRequired signals that a tool call needs a client decision
// before it may proceed.
var ErrApprovalRequired = errors.New("policy: approval required")

// ErrApprovalDenied is returned when a pending request is denied, either
// by the client or by a timeout (Deny-by-default per §4.4).
var ErrApprovalDenied = errors.New("policy: approval denied")

// ErrApprovalExpired is returned by Wait when ctx is done
// before a decision arrives.
var ErrApprovalExpired = errors.New("policy: approval expired")

// ApprovalStatus is the lifecycle state of an ApprovalRequest.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalDenied   ApprovalStatus = "denied"
)

// ApprovalRequest tracks one AskUser suspension (§4.4 step 4a).
type ApprovalRequest struct {
	ID          string
	SessionID   string
	ToolName    string
	Reason      string
	RequestedAt time.Time
	ExpiresAt   time.Time
	Status      ApprovalStatus
	DecidedAt   time.Time
	DenialMsg   string
}

// ApprovalManager tracks outstanding AskUser requests for the
// orchestrator: one Create per tool call, one Decide per client
// response, and a polling Wait for the orchestrator's suspension point.
type ApprovalManager struct {
	mu       sync.Mutex
	requests map[string]*ApprovalRequest
}

func NewApprovalManager() *ApprovalManager {
	return &ApprovalManager{requests: map[string]*ApprovalRequest{}}
}

// Create registers a new pending approval request and returns it.
func (m *ApprovalManager) Create(sessionID, toolName, reason string, timeout time.Duration) *ApprovalRequest {
	now := time.Now()
	req := &ApprovalRequest{
		ID:          uuid.NewString(),
		SessionID:   sessionID,
		ToolName:    toolName,
		Reason:      reason,
		RequestedAt: now,
		ExpiresAt:   now.Add(timeout),
		Status:      ApprovalPending,
	}
	m.mu.Lock()
	m.requests[req.ID] = req
	m.mu.Unlock()
	return req
}

// Decide records the client's response to a pending request.
func (m *ApprovalManager) Decide(id string, approved bool, denialMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	req, ok := m.requests[id]
	if !ok {
		return errors.New("policy: unknown approval request")
	}
	if req.Status != ApprovalPending {
		return nil
	}
	req.DecidedAt = time.Now()
	if approved {
		req.Status = ApprovalApproved
	} else {
		req.Status = ApprovalDenied
		req.DenialMsg = denialMsg
	}
	return nil
}

// pollInterval is how often Wait re-checks a pending request's status.
const pollInterval = 100 * time.Millisecond

// Wait blocks until req is decided, its expiry passes (Deny-by-default),
// or ctx is cancelled. It is the orchestrator's suspension point for
// AskUser (§5: "approval request (suspends for as long as it takes the
// client to respond, bounded by a per-tool timeout)").
func (m *ApprovalManager) Wait(ctx context.Context, req *ApprovalRequest) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		m.mu.Lock()
		status := req.Status
		expired := time.Now().After(req.ExpiresAt)
		m.mu.Unlock()

		switch status {
		case ApprovalApproved:
			return nil
		case ApprovalDenied:
			return ErrApprovalDenied
		}
		if expired {
			m.mu.Lock()
			req.Status = ApprovalDenied
			req.DenialMsg = "approval timed out"
			m.mu.Unlock()
			return ErrApprovalDenied
		}

		select {
		case <-ctx.Done():
			return ErrApprovalExpired
		case <-ticker.C:
		}
	}
}

// Get returns a request by id.
func (m *ApprovalManager) Get(id string) (*ApprovalRequest, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[id]
	return req, ok
}

// CleanupExpired drops terminal requests older than retain, keeping the
// map from growing unbounded across a long-lived daemon process.
func (m *ApprovalManager) CleanupExpired(retain time.Duration) {
	cutoff := time.Now().Add(-retain)
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, req := range m.requests {
		if req.Status != ApprovalPending && req.DecidedAt.Before(cutoff) {
			delete(m.requests, id)
		}
	}
}
