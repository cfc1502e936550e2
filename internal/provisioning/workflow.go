// Package provisioning creates, changes and revokes subscriber credentials.
// Each write is one store transaction; the audit journal and session
// disconnects are best effort and never undo a committed write.
package provisioning

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/mohit83k/hotspot-console/internal/coa"
	"github.com/mohit83k/hotspot-console/internal/errs"
	"github.com/mohit83k/hotspot-console/internal/logger"
	"github.com/mohit83k/hotspot-console/internal/model"
)

const maxUsernameLength = 64

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9._@-]+$`)

// Store is the subset of the accounting store the workflow writes through.
type Store interface {
	CreateCredential(ctx context.Context, username, password, group string) (model.Credential, error)
	UpdateCredential(ctx context.Context, username string, upd model.CredentialUpdate) error
	DeleteCredential(ctx context.Context, username string) error
	GetUserByUsername(ctx context.Context, username string) (model.Credential, error)
	Users(ctx context.Context) ([]model.Credential, error)
	DistinctGroups(ctx context.Context) ([]string, error)
	ActiveSessions(ctx context.Context) ([]model.AccountingRecord, error)
}

// AuditStore journals committed writes.
type AuditStore interface {
	Save(ctx context.Context, ev model.AuditEvent) error
}

// Disconnector terminates a live session on its NAS.
type Disconnector interface {
	Disconnect(ctx context.Context, nasAddr string, target coa.Target) error
}

// CreateRequest is the input of Create.
type CreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Group    string `json:"groupname"`
	Actor    string `json:"actor,omitempty"`
}

// UpdateRequest is the input of Update. Nil fields are left unchanged.
type UpdateRequest struct {
	Username string  `json:"username"`
	Password *string `json:"password,omitempty"`
	Group    *string `json:"groupname,omitempty"`
	Actor    string  `json:"actor,omitempty"`
}

// DeleteRequest is the input of Delete.
type DeleteRequest struct {
	Username string `json:"username"`
	// Disconnect kicks the user's open sessions before revoking.
	Disconnect bool   `json:"disconnect"`
	Actor      string `json:"actor,omitempty"`
}

// DeleteResult reports how many open sessions were asked to disconnect.
// DisconnectError is set when the open sessions could not be listed, in which
// case the counts say nothing about the user's sessions.
type DeleteResult struct {
	Username        string `json:"username"`
	Disconnected    int    `json:"disconnected"`
	Failed          int    `json:"disconnect_failed"`
	DisconnectError string `json:"disconnect_error,omitempty"`
}

// Workflow validates provisioning requests and applies them to the store.
type Workflow struct {
	store        Store
	audit        AuditStore
	disconnector Disconnector
	log          logger.Logger
	now          func() time.Time
}

// Option configures a Workflow.
type Option func(*Workflow)

// WithAudit journals every committed write to a.
func WithAudit(a AuditStore) Option {
	return func(w *Workflow) { w.audit = a }
}

// WithDisconnector enables DeleteRequest.Disconnect.
func WithDisconnector(d Disconnector) Option {
	return func(w *Workflow) { w.disconnector = d }
}

// NewWorkflow returns a Workflow writing through store.
func NewWorkflow(store Store, log logger.Logger, opts ...Option) *Workflow {
	w := &Workflow{
		store: store,
		log:   log,
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Create provisions a new credential. The group defaults to "users".
func (w *Workflow) Create(ctx context.Context, req CreateRequest) (model.Credential, error) {
	const op = "provisioning.Create"

	if err := validateUsername(op, req.Username); err != nil {
		return model.Credential{}, err
	}
	if req.Password == "" {
		return model.Credential{}, errs.E(errs.KindValidation, op, "password is required", nil)
	}
	if req.Group == "" {
		req.Group = model.DefaultGroup
	}

	cred, err := w.store.CreateCredential(ctx, req.Username, req.Password, req.Group)
	if err != nil {
		return model.Credential{}, err
	}

	w.log.WithFields(map[string]any{"username": req.Username, "groupname": req.Group}).Info("Credential created")
	w.journal(ctx, model.AuditCreate, req.Username, req.Group, req.Actor)
	return cred, nil
}

// Update changes the password and/or group of an existing credential.
func (w *Workflow) Update(ctx context.Context, req UpdateRequest) (model.Credential, error) {
	const op = "provisioning.Update"

	if err := validateUsername(op, req.Username); err != nil {
		return model.Credential{}, err
	}
	if req.Password == nil && req.Group == nil {
		return model.Credential{}, errs.E(errs.KindValidation, op, "nothing to update", nil)
	}
	if req.Password != nil && *req.Password == "" {
		return model.Credential{}, errs.E(errs.KindValidation, op, "password must not be empty", nil)
	}
	if req.Group != nil && *req.Group == "" {
		return model.Credential{}, errs.E(errs.KindValidation, op, "group must not be empty", nil)
	}

	upd := model.CredentialUpdate{Password: req.Password, Group: req.Group}
	if err := w.store.UpdateCredential(ctx, req.Username, upd); err != nil {
		return model.Credential{}, err
	}

	group := ""
	if req.Group != nil {
		group = *req.Group
	}
	w.log.WithFields(map[string]any{
		"username":         req.Username,
		"password_changed": req.Password != nil,
		"group_changed":    req.Group != nil,
	}).Info("Credential updated")
	w.journal(ctx, model.AuditUpdate, req.Username, group, req.Actor)

	cred, err := w.store.GetUserByUsername(ctx, req.Username)
	if err != nil {
		w.log.Error(fmt.Errorf("credential %s updated but could not be reloaded: %w", req.Username, err))
		return model.Credential{Username: req.Username, Group: group}, nil
	}
	return cred, nil
}

// Delete revokes a credential and removes its accounting history. With
// Disconnect set, the user's open sessions are kicked first; failures there
// are logged and do not stop the revoke.
func (w *Workflow) Delete(ctx context.Context, req DeleteRequest) (DeleteResult, error) {
	const op = "provisioning.Delete"

	if err := validateUsername(op, req.Username); err != nil {
		return DeleteResult{}, err
	}

	res := DeleteResult{Username: req.Username}
	if req.Disconnect {
		if w.disconnector == nil {
			return DeleteResult{}, errs.E(errs.KindValidation, op, "session disconnect is not configured", nil)
		}
		if _, err := w.store.GetUserByUsername(ctx, req.Username); err != nil {
			return DeleteResult{}, err
		}
		if err := w.disconnectAll(ctx, req.Username, &res); err != nil {
			res.DisconnectError = err.Error()
		}
	}

	if err := w.store.DeleteCredential(ctx, req.Username); err != nil {
		return DeleteResult{}, err
	}

	w.log.WithFields(map[string]any{
		"username":     req.Username,
		"disconnected": res.Disconnected,
	}).Info("Credential revoked")
	w.journal(ctx, model.AuditDelete, req.Username, "", req.Actor)
	return res, nil
}

// disconnectAll counts outcomes into res. It fails only when the open
// sessions cannot be listed.
func (w *Workflow) disconnectAll(ctx context.Context, username string, res *DeleteResult) error {
	sessions, err := w.store.ActiveSessions(ctx)
	if err != nil {
		err = fmt.Errorf("failed to list sessions to disconnect %s: %w", username, err)
		w.log.Error(err)
		return err
	}
	for _, s := range sessions {
		if s.Username != username {
			continue
		}
		err := w.disconnector.Disconnect(ctx, s.NASIPAddress, coa.Target{
			Username:        s.Username,
			SessionID:       s.SessionID,
			FramedIPAddress: s.FramedIPAddress,
		})
		if err != nil {
			res.Failed++
			w.log.WithFields(map[string]any{
				"username":   username,
				"nas":        s.NASIPAddress,
				"session_id": s.SessionID,
			}).Warn("Failed to disconnect session: " + err.Error())
			continue
		}
		res.Disconnected++
	}
	return nil
}

// Get returns one credential.
func (w *Workflow) Get(ctx context.Context, username string) (model.Credential, error) {
	if err := validateUsername("provisioning.Get", username); err != nil {
		return model.Credential{}, err
	}
	return w.store.GetUserByUsername(ctx, username)
}

// List returns every credential.
func (w *Workflow) List(ctx context.Context) ([]model.Credential, error) {
	return w.store.Users(ctx)
}

// Groups returns the group names in use.
func (w *Workflow) Groups(ctx context.Context) ([]string, error) {
	return w.store.DistinctGroups(ctx)
}

func (w *Workflow) journal(ctx context.Context, action, username, group, actor string) {
	if w.audit == nil {
		return
	}
	ev := model.AuditEvent{
		ID:        uuid.NewString(),
		Action:    action,
		Username:  username,
		Group:     group,
		Actor:     actor,
		Timestamp: w.now(),
	}
	if err := w.audit.Save(ctx, ev); err != nil {
		w.log.Error(fmt.Errorf("failed to journal %s of %s: %w", action, username, err))
	}
}

func validateUsername(op, username string) error {
	switch {
	case username == "":
		return errs.E(errs.KindValidation, op, "username is required", nil)
	case len(username) > maxUsernameLength:
		return errs.E(errs.KindValidation, op, fmt.Sprintf("username longer than %d characters", maxUsernameLength), nil)
	case !usernamePattern.MatchString(username):
		return errs.E(errs.KindValidation, op, "username may only contain letters, digits and . _ @ -", nil)
	}
	return nil
}
