package browser

import (
	"context"
	"errors"
	"sync"
)

// Authenticator performs the site specific login, it should return
// ErrIncorrectPassword when the site rejects the credentials.
type Authenticator interface {
	DoLogin(ctx context.Context) error
}

// LoginBrowser is a Browser that knows how to log itself in.
type LoginBrowser struct {
	*Browser
	auth  Authenticator
	login sync.Mutex
}

func NewLoginBrowser(b *Browser, auth Authenticator) *LoginBrowser {
	return &LoginBrowser{Browser: b, auth: auth}
}

// Login runs the authenticator unless another caller already logged the
// session in while this one was waiting.
func (b *LoginBrowser) Login(ctx context.Context) error {
	b.login.Lock()
	defer b.login.Unlock()
	if b.Logged() {
		return nil
	}

	b.tel.ReportDebug("login")
	err := b.auth.DoLogin(ctx)
	if err != nil {
		b.SetLogged(false)
		return err
	}
	b.SetLogged(true)
	return nil
}

// NeedLogin makes sure the session is logged in before running fn. If fn
// finds out that the session expired, the browser logs in again and fn is
// retried once.
func (b *LoginBrowser) NeedLogin(ctx context.Context, fn func() error) error {
	if !b.Logged() {
		err := b.Login(ctx)
		if err != nil {
			return err
		}
	}

	err := fn()
	if !errors.Is(err, ErrLoggedOut) {
		return err
	}

	b.tel.ReportDebug("session expired, logging in again")
	b.SetLogged(false)
	err = b.Login(ctx)
	if err != nil {
		return err
	}
	return fn()
}
