// Package lifecycle drives account deactivation and deletion requests: local
// precondition checks, submission, e-mail notices, review status tracking
// and the forced sign-out that follows an approval.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/client-core-go/internal/api"
	"github.com/ovaphlow/pitchfork/client-core-go/internal/lifecycle/entity"
	notifyentity "github.com/ovaphlow/pitchfork/client-core-go/internal/notify/entity"
	sessionentity "github.com/ovaphlow/pitchfork/client-core-go/internal/session/entity"
)

// Session is the part of the session manager the workflow needs.
type Session interface {
	CurrentUser() (sessionentity.User, bool)
	Logout(ctx context.Context) error
}

// RequestMarker keeps the id of a user's open request across restarts. The
// session manager implements it by storing the id with the durable session.
type RequestMarker interface {
	ActiveRequest(userID string) string
	SetActiveRequest(ctx context.Context, userID, requestID string)
}

// RequestAPI files and reads lifecycle requests.
type RequestAPI interface {
	CreateAccountRequest(ctx context.Context, sub entity.Submission) (entity.Request, error)
	GetAccountRequest(ctx context.Context, id string) (entity.Request, error)
}

// Verifier checks the re-entered password.
type Verifier interface {
	VerifyPassword(ctx context.Context, email, password string) error
}

// Notifier receives user-facing status entries.
type Notifier interface {
	Push(e notifyentity.Entry) notifyentity.Entry
}

// Navigator moves the client to its anonymous entry point.
type Navigator interface {
	ToEntry()
}

// NavigatorFunc adapts a plain function to Navigator.
type NavigatorFunc func()

func (f NavigatorFunc) ToEntry() { f() }

// Deps are the collaborators of a Workflow. Notifier, Navigator and Clock
// are optional.
type Deps struct {
	Session   Session
	Requests  RequestAPI
	Verifier  Verifier
	Mailer    Mailer
	Notifier  Notifier
	Navigator Navigator
	Clock     clockwork.Clock
}

type Config struct {
	TeamEmail        string
	ReviewWindow     time.Duration
	LogoutCountdown  time.Duration
	SubmitTimeout    time.Duration
	PollInterval     time.Duration
	DeletePhrase     string
	DeliveryAttempts uint
}

// Input is what the user provides to start a request.
type Input struct {
	Type         entity.Type
	Password     string
	Confirmation string
	Reason       string
}

// tracker is the workflow state of one user.
type tracker struct {
	state     entity.State
	request   *entity.Request
	countdown *Countdown
}

// Workflow holds at most one live request per user.
type Workflow struct {
	deps       Deps
	cfg        Config
	dispatcher *Dispatcher
	marker     RequestMarker
	logger     *zap.SugaredLogger

	mu       sync.Mutex
	trackers map[string]*tracker
	byID     map[string]string
	archive  []entity.Request
}

func NewWorkflow(deps Deps, cfg Config, logger *zap.SugaredLogger) *Workflow {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Navigator == nil {
		deps.Navigator = NavigatorFunc(func() {})
	}
	if cfg.DeletePhrase == "" {
		cfg.DeletePhrase = "SUPPRIMER"
	}
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = 30 * time.Second
	}
	if cfg.LogoutCountdown <= 0 {
		cfg.LogoutCountdown = 5 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	w := &Workflow{
		deps:       deps,
		cfg:        cfg,
		dispatcher: NewDispatcher(deps.Mailer, cfg.DeliveryAttempts, logger),
		logger:     logger,
		trackers:   map[string]*tracker{},
		byID:       map[string]string{},
	}
	if m, ok := deps.Session.(RequestMarker); ok {
		w.marker = m
	}
	return w
}

// State returns the workflow state for userID.
func (w *Workflow) State(userID string) entity.State {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.trackers[userID]; ok {
		return t.state
	}
	return entity.StateNone
}

// Request returns a copy of the tracked request for userID.
func (w *Workflow) Request(userID string) (entity.Request, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	t, ok := w.trackers[userID]
	if !ok || t.request == nil {
		return entity.Request{}, false
	}
	return *t.request, true
}

// Archived returns the requests acknowledged so far.
func (w *Workflow) Archived() []entity.Request {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]entity.Request(nil), w.archive...)
}

// Submit validates in, files the request and sends the team and user
// notices. Local failures return *ValidationError or
// *DuplicateRequestError without any network call. A request recorded by
// an earlier process is looked up first and still counts as open while it
// is pending or under review. Any failure leaves the user at NONE.
func (w *Workflow) Submit(ctx context.Context, in Input) (entity.Request, error) {
	user, ok := w.deps.Session.CurrentUser()
	if !ok {
		return entity.Request{}, ErrNotAuthenticated
	}
	if err := w.validate(in); err != nil {
		return entity.Request{}, err
	}
	if err := w.restore(ctx, user.ID); err != nil {
		return entity.Request{}, err
	}

	w.mu.Lock()
	t := w.trackers[user.ID]
	if t != nil && !isIdle(t.state) {
		dup := &DuplicateRequestError{UserID: user.ID, State: t.state}
		if t.request != nil {
			dup.RequestID = t.request.ID
		}
		w.mu.Unlock()
		w.logger.Infow("duplicate lifecycle request rejected", "user_id", user.ID, "state", t.state)
		return entity.Request{}, dup
	}
	if t != nil && t.request != nil {
		w.archiveLocked(user.ID, t)
	}
	t = &tracker{state: entity.StateSubmitting}
	w.trackers[user.ID] = t
	w.mu.Unlock()

	req, err := w.file(ctx, user, in)
	if err != nil {
		w.mu.Lock()
		delete(w.trackers, user.ID)
		w.mu.Unlock()
		w.logger.Warnw("lifecycle request aborted", "user_id", user.ID, "type", in.Type, "err", err)
		return entity.Request{}, err
	}

	w.mu.Lock()
	t.state = entity.StatePending
	t.request = &req
	w.byID[req.ID] = user.ID
	w.mu.Unlock()
	w.mark(ctx, user.ID, req.ID)
	w.logger.Infow("lifecycle request submitted", "user_id", user.ID, "request_id", req.ID, "type", req.RequestType)

	w.notifySubmitted(ctx, req)
	return req, nil
}

// restore tracks the open request recorded for userID by an earlier
// process. Terminal or vanished requests clear the record.
func (w *Workflow) restore(ctx context.Context, userID string) error {
	if w.marker == nil {
		return nil
	}
	id := w.marker.ActiveRequest(userID)
	if id == "" {
		return nil
	}
	w.mu.Lock()
	_, tracked := w.byID[id]
	w.mu.Unlock()
	if tracked {
		return nil
	}

	req, err := w.deps.Requests.GetAccountRequest(ctx, id)
	if err != nil {
		if api.IsNotFound(err) {
			w.logger.Infow("recorded lifecycle request no longer exists", "user_id", userID, "request_id", id)
			w.mark(ctx, userID, "")
			return nil
		}
		return fmt.Errorf("check open request %s: %w", id, err)
	}
	if req.ID == "" {
		req.ID = id
	}
	if req.UserID == "" {
		req.UserID = userID
	}
	if req.UserID != userID || req.Status.Terminal() || entity.StateFor(req.Status) == entity.StateNone {
		w.mark(ctx, userID, "")
		return nil
	}
	var dup *DuplicateRequestError
	if err := w.Resume(req); err != nil && !errors.As(err, &dup) {
		return err
	}
	return nil
}

// mark records requestID as userID's open request; "" clears it.
func (w *Workflow) mark(ctx context.Context, userID, requestID string) {
	if w.marker != nil {
		w.marker.SetActiveRequest(context.WithoutCancel(ctx), userID, requestID)
	}
}

func (w *Workflow) validate(in Input) error {
	if !in.Type.Valid() {
		return &ValidationError{Field: "type", Message: fmt.Sprintf("unknown request type %q", in.Type)}
	}
	if in.Password == "" {
		return &ValidationError{Field: "password", Message: "password is required"}
	}
	if in.Type == entity.TypeDeletion && in.Confirmation != w.cfg.DeletePhrase {
		return &ValidationError{Field: "confirmation", Message: fmt.Sprintf("type %s to confirm", w.cfg.DeletePhrase)}
	}
	return nil
}

// file verifies the password and creates the request under SubmitTimeout.
func (w *Workflow) file(ctx context.Context, user sessionentity.User, in Input) (entity.Request, error) {
	ctx, cancel := context.WithTimeout(ctx, w.cfg.SubmitTimeout)
	defer cancel()

	if err := w.deps.Verifier.VerifyPassword(ctx, user.Email, in.Password); err != nil {
		return entity.Request{}, fmt.Errorf("verify password: %w", err)
	}
	req, err := w.deps.Requests.CreateAccountRequest(ctx, entity.Submission{
		UserID:      user.ID,
		Email:       user.Email,
		RequestType: in.Type,
		Reason:      strings.TrimSpace(in.Reason),
	})
	if err != nil {
		return entity.Request{}, fmt.Errorf("create request: %w", err)
	}
	if req.ID == "" {
		return entity.Request{}, errors.New("create request: response has no id")
	}
	if req.Status == "" {
		req.Status = entity.StatusPending
	}
	if req.UserID == "" {
		req.UserID = user.ID
	}
	if req.Email == "" {
		req.Email = user.Email
	}
	if req.RequestType == "" {
		req.RequestType = in.Type
	}
	if req.SubmittedAt.IsZero() {
		req.SubmittedAt = w.deps.Clock.Now().UTC()
	}
	return req, nil
}

// notifySubmitted sends both e-mails and the in-app entry. Delivery
// failures are logged only.
func (w *Workflow) notifySubmitted(ctx context.Context, req entity.Request) {
	var msgs []entity.Message
	if w.cfg.TeamEmail != "" {
		if m, err := teamMessage(req, w.cfg.TeamEmail); err == nil {
			msgs = append(msgs, m)
		} else {
			w.logger.Errorw("render team message", "err", err)
		}
	}
	if m, err := userMessage(req, w.cfg.ReviewWindow); err == nil {
		msgs = append(msgs, m)
	} else {
		w.logger.Errorw("render user message", "err", err)
	}
	if w.deps.Mailer != nil {
		if err := w.dispatcher.Deliver(context.WithoutCancel(ctx), msgs...); err != nil {
			w.logger.Warnw("lifecycle notices not fully delivered", "request_id", req.ID, "err", err)
		}
	}
	w.push(notifyentity.Entry{
		Type:    notifyentity.TypeSuccess,
		Title:   "Request submitted",
		Message: fmt.Sprintf("Your %s request was sent to our team for review.", req.RequestType),
	})
}

// Resume tracks a request filed by an earlier process and applies its
// current status, running the entry actions of every state it has reached.
func (w *Workflow) Resume(req entity.Request) error {
	if req.ID == "" || req.UserID == "" {
		return &ValidationError{Field: "request", Message: "id and user id are required"}
	}
	w.mu.Lock()
	if t := w.trackers[req.UserID]; t != nil {
		if !isIdle(t.state) {
			dup := &DuplicateRequestError{UserID: req.UserID, State: t.state}
			if t.request != nil {
				dup.RequestID = t.request.ID
			}
			w.mu.Unlock()
			return dup
		}
		w.archiveLocked(req.UserID, t)
	}
	base := req
	base.Status = entity.StatusPending
	w.trackers[req.UserID] = &tracker{state: entity.StatePending, request: &base}
	w.byID[req.ID] = req.UserID
	w.mu.Unlock()

	w.mark(context.Background(), req.UserID, req.ID)
	return w.Advance(entity.EventFrom(req))
}

// Advance applies an observed review status. Repeated events are no-ops,
// statuses ahead of the next legal state are reached by walking the
// intermediate states, and reversals are rejected.
func (w *Workflow) Advance(ev entity.StatusEvent) error {
	target := entity.StateFor(ev.Status)
	if target == entity.StateNone {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, ev.Status)
	}

	w.mu.Lock()
	userID, ok := w.byID[ev.RequestID]
	t := w.trackers[userID]
	if !ok || t == nil || t.request == nil || t.request.ID != ev.RequestID {
		w.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownRequest, ev.RequestID)
	}
	path, err := reviewPath(t.state, target)
	if err != nil {
		w.mu.Unlock()
		return err
	}
	if len(path) == 0 {
		w.mu.Unlock()
		return nil
	}
	t.request.Status = ev.Status
	if ev.ReviewedAt != nil {
		t.request.ReviewedAt = ev.ReviewedAt
	}
	if ev.ReviewedBy != nil {
		t.request.ReviewedBy = ev.ReviewedBy
	}
	if ev.Notes != nil {
		t.request.Notes = ev.Notes
	}
	req := *t.request
	var entries []notifyentity.Entry
	for _, s := range path {
		t.state = s
		entries = append(entries, w.enter(t, s, req)...)
	}
	w.mu.Unlock()

	w.logger.Infow("lifecycle request advanced", "user_id", userID, "request_id", req.ID, "state", target, "steps", len(path))
	if isTerminal(target) {
		w.mark(context.Background(), userID, "")
	}
	for _, e := range entries {
		w.push(e)
	}
	return nil
}

// enter runs the entry action of s and returns the notification entries to
// push once the lock is released.
func (w *Workflow) enter(t *tracker, s entity.State, req entity.Request) []notifyentity.Entry {
	switch s {
	case entity.StateReviewing:
		return []notifyentity.Entry{{
			Type:    notifyentity.TypeInfo,
			Title:   "Request under review",
			Message: fmt.Sprintf("Our team is reviewing your %s request.", req.RequestType),
		}}
	case entity.StateRejected:
		msg := fmt.Sprintf("Your %s request was not approved.", req.RequestType)
		if req.Notes != nil && *req.Notes != "" {
			msg += " " + *req.Notes
		}
		return []notifyentity.Entry{{Type: notifyentity.TypeWarning, Title: "Request rejected", Message: msg}}
	case entity.StateApproved:
		if t.countdown == nil {
			t.countdown = startCountdown(w.deps.Clock, w.cfg.LogoutCountdown, w.terminate)
		}
		return []notifyentity.Entry{{
			Type:    notifyentity.TypeWarning,
			Title:   "Request approved",
			Message: fmt.Sprintf("Your %s request was approved. You will be signed out in %s.", req.RequestType, w.cfg.LogoutCountdown),
		}}
	}
	return nil
}

// terminate is the exit action of APPROVED.
func (w *Workflow) terminate() {
	if err := w.deps.Session.Logout(context.Background()); err != nil {
		w.logger.Warnw("forced logout returned an error", "err", err)
	}
	w.deps.Navigator.ToEntry()
	w.logger.Infow("session terminated after approved lifecycle request")
}

// Countdown returns the running sign-out countdown for userID.
func (w *Workflow) Countdown(userID string) (*Countdown, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	t, ok := w.trackers[userID]
	if !ok || t.countdown == nil {
		return nil, false
	}
	return t.countdown, true
}

// Dismiss signs the user out now instead of waiting for the countdown.
func (w *Workflow) Dismiss(userID string) error {
	c, ok := w.Countdown(userID)
	if !ok {
		return ErrNoCountdown
	}
	c.Dismiss()
	return nil
}

// Refresh polls the request once and applies its status.
func (w *Workflow) Refresh(ctx context.Context, requestID string) (entity.State, error) {
	req, err := w.deps.Requests.GetAccountRequest(ctx, requestID)
	if err != nil {
		return "", fmt.Errorf("get request %s: %w", requestID, err)
	}
	if req.ID == "" {
		req.ID = requestID
	}
	if err := w.Advance(entity.EventFrom(req)); err != nil {
		return "", err
	}
	return entity.StateFor(req.Status), nil
}

// Watch polls requestID every PollInterval until it reaches a terminal
// state or ctx ends. Poll failures are logged and retried on the next tick.
func (w *Workflow) Watch(ctx context.Context, requestID string) (entity.State, error) {
	ticker := w.deps.Clock.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()
	for {
		state, err := w.Refresh(ctx, requestID)
		switch {
		case err == nil && (state == entity.StateApproved || state == entity.StateRejected):
			return state, nil
		case errors.Is(err, ErrUnknownRequest), errors.Is(err, ErrInvalidTransition):
			return "", err
		case err != nil:
			w.logger.Warnw("status poll failed", "request_id", requestID, "err", err)
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.Chan():
		}
	}
}

// Acknowledge archives a terminal request and returns the user to NONE.
func (w *Workflow) Acknowledge(userID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	t, ok := w.trackers[userID]
	if !ok || !isTerminal(t.state) {
		return ErrNotTerminal
	}
	w.archiveLocked(userID, t)
	return nil
}

func (w *Workflow) archiveLocked(userID string, t *tracker) {
	if t.request != nil {
		w.archive = append(w.archive, *t.request)
		delete(w.byID, t.request.ID)
	}
	delete(w.trackers, userID)
}

func (w *Workflow) push(e notifyentity.Entry) {
	if w.deps.Notifier != nil {
		w.deps.Notifier.Push(e)
	}
}

func isTerminal(s entity.State) bool {
	return s == entity.StateApproved || s == entity.StateRejected
}

// isIdle reports whether a new submission may start from s.
func isIdle(s entity.State) bool {
	return s == entity.StateNone || isTerminal(s)
}
