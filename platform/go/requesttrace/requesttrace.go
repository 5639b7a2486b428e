// Package requesttrace carries the caller identity of a request: who started an application,
// who reviewed or approved it, and which request id the change belongs to.
package requesttrace

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	platformauth "github.com/zenGate-Global/rentflow/platform/go/auth"
)

type ctxKey struct{}

// actorNamespace derives stable actor ids for identity providers whose subjects are not UUIDs.
var actorNamespace = uuid.MustParse("6f1c3a52-0f6e-4f0b-9a55-2f4b8b0d7c11")

var ErrNoSubject = errors.New("credentials carry no subject")

type ActorKind string

const (
	ActorKindUser      ActorKind = "user"
	ActorKindAnonymous ActorKind = "anonymous"
	ActorKindSystem    ActorKind = "system"
)

// AuditInfo is the caller of one request. UserID and ActorID are set only for ActorKindUser.
type AuditInfo struct {
	ActorKind ActorKind
	UserID    *string
	ActorID   *uuid.UUID
	Email     string
	Manager   bool
	RequestID string
}

// Actor returns the uuid stamped on reviewer, approver and lead user columns.
func (a AuditInfo) Actor() (uuid.UUID, bool) {
	if a.ActorID == nil {
		return uuid.Nil, false
	}
	return *a.ActorID, true
}

// LogFields describes the caller for request-scoped loggers.
func (a AuditInfo) LogFields() []zap.Field {
	fields := []zap.Field{zap.String("actor_kind", string(a.ActorKind))}
	if id, ok := a.Actor(); ok {
		fields = append(fields, zap.Stringer("actor_id", id))
	}
	if a.Manager {
		fields = append(fields, zap.Bool("manager", true))
	}
	return fields
}

func IntoContext(ctx context.Context, audit AuditInfo) context.Context {
	return context.WithValue(ctx, ctxKey{}, audit)
}

func FromContext(ctx context.Context) (AuditInfo, bool) {
	if ctx == nil {
		return AuditInfo{}, false
	}
	audit, ok := ctx.Value(ctxKey{}).(AuditInfo)
	return audit, ok
}

// FromContextOrAnonymous never fails; code paths outside the HTTP stack see an anonymous caller.
func FromContextOrAnonymous(ctx context.Context) AuditInfo {
	if audit, ok := FromContext(ctx); ok {
		return audit
	}
	return Anonymous("")
}

func FromCredentials(creds *platformauth.UserCredentials, requestID string) (AuditInfo, error) {
	if creds == nil || creds.Id == "" {
		return AuditInfo{}, ErrNoSubject
	}

	subject := creds.Id
	actor := ActorUUID(subject)
	return AuditInfo{
		ActorKind: ActorKindUser,
		UserID:    &subject,
		ActorID:   &actor,
		Email:     creds.Email,
		Manager:   creds.HasRole(platformauth.RoleManager),
		RequestID: requestID,
	}, nil
}

// ActorUUID maps an identity-provider subject to a uuid. UUID subjects are kept; anything else
// gets a name-based v5 id so the same subject always lands on the same row.
func ActorUUID(subject string) uuid.UUID {
	if id, err := uuid.Parse(subject); err == nil {
		return id
	}
	return uuid.NewSHA1(actorNamespace, []byte(subject))
}

func Anonymous(requestID string) AuditInfo {
	return AuditInfo{ActorKind: ActorKindAnonymous, RequestID: requestID}
}

// System is the caller for CLI operations.
func System(requestID string) AuditInfo {
	return AuditInfo{ActorKind: ActorKindSystem, RequestID: requestID}
}
