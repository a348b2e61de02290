package auth

import (
	"context"
	"errors"

	"soapbox/internal/access"
)

type ctxKey int

const (
	ctxUserID ctxKey = iota
	ctxSubject
)

var ErrNoIdentity = errors.New("auth: no identity in context")

func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxUserID, userID)
}

func UserID(ctx context.Context) (string, error) {
	if s, ok := ctx.Value(ctxUserID).(string); ok && s != "" {
		return s, nil
	}
	return "", ErrNoIdentity
}

// WithSubject stores the request's access subject.
func WithSubject(ctx context.Context, s access.Subject) context.Context {
	return context.WithValue(ctx, ctxSubject, s)
}

// SubjectFrom returns the request's subject, or the anonymous subject when none was set.
func SubjectFrom(ctx context.Context) access.Subject {
	if s, ok := ctx.Value(ctxSubject).(access.Subject); ok {
		return s
	}
	return access.Anonymous()
}
