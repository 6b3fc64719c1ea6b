package store

import (
	"context"

	"github.com/iliyamo/pos-waiter/internal/model"
)

// Local is the typed view of the persisted keys.
type Local struct {
	S Store
}

func (l Local) str(ctx context.Context, key string) (string, error) {
	var s string
	_, err := l.S.Get(ctx, key, &s)
	return s, err
}

// Address returns the persisted server address or "".
func (l Local) Address(ctx context.Context) (string, error) { return l.str(ctx, KeyServerAddress) }

func (l Local) SetAddress(ctx context.Context, addr string) error {
	return l.S.Set(ctx, KeyServerAddress, addr)
}

func (l Local) ClearAddress(ctx context.Context) error { return l.S.Delete(ctx, KeyServerAddress) }

// Token returns the persisted bearer token or "".
func (l Local) Token(ctx context.Context) (string, error) { return l.str(ctx, KeyAuthToken) }

func (l Local) SetToken(ctx context.Context, tok string) error {
	return l.S.Set(ctx, KeyAuthToken, tok)
}

func (l Local) ClearToken(ctx context.Context) error { return l.S.Delete(ctx, KeyAuthToken) }

// Session returns the persisted waiter session or nil.
func (l Local) Session(ctx context.Context) (*model.WaiterSession, error) {
	var s model.WaiterSession
	found, err := l.S.Get(ctx, KeyWaiterSession, &s)
	if err != nil || !found || s.AccessToken == "" {
		return nil, err
	}
	return &s, nil
}

func (l Local) SetSession(ctx context.Context, s model.WaiterSession) error {
	return l.S.Set(ctx, KeyWaiterSession, s)
}

func (l Local) ClearSession(ctx context.Context) error { return l.S.Delete(ctx, KeyWaiterSession) }

// Theme returns the persisted UI theme or "".
func (l Local) Theme(ctx context.Context) (string, error) { return l.str(ctx, KeyTheme) }

func (l Local) SetTheme(ctx context.Context, theme string) error {
	return l.S.Set(ctx, KeyTheme, theme)
}

func (l Local) HandshakeToken(ctx context.Context) (string, error) {
	return l.str(ctx, KeyHandshakeToken)
}

func (l Local) SetHandshakeToken(ctx context.Context, tok string) error {
	return l.S.Set(ctx, KeyHandshakeToken, tok)
}

func (l Local) ClearHandshakeToken(ctx context.Context) error {
	return l.S.Delete(ctx, KeyHandshakeToken)
}
