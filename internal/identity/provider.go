// Package identity connects the storefront to the hosted authentication service.
//
// Provider implements session.IdentityProvider on top of a session store, the OAuth2
// client and the Hub event bus. Every sign-in and sign-out made through it is published
// on the Hub so that a session.Gate can follow it.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lojinha-app/storefront/internal/browser"
	"github.com/lojinha-app/storefront/internal/store"
	"github.com/lojinha-app/storefront/sdk/session"
	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

// DefaultBrowserTimeout bounds how long SignInWithBrowser waits for the redirect.
const DefaultBrowserTimeout = 5 * time.Minute

var _ session.IdentityProvider = (*Provider)(nil)

// Provider is the identity provider of the storefront.
type Provider struct {
	client *Client
	store  store.SessionStore
	hub    *Hub

	now         func() time.Time
	openBrowser func(string) error

	// refreshMu serialises token refreshes.
	refreshMu sync.Mutex
}

// NewProvider creates a provider. client may be nil when authentication is not
// configured; CurrentSession then still reports sessions stored by other processes.
func NewProvider(client *Client, sessionStore store.SessionStore, hub *Hub) *Provider {
	if hub == nil {
		hub = NewHub()
	}
	return &Provider{
		client:      client,
		store:       sessionStore,
		hub:         hub,
		now:         time.Now,
		openBrowser: browser.OpenURL,
	}
}

// Hub returns the event bus the provider publishes on.
func (p *Provider) Hub() *Hub { return p.hub }

// Store returns the session store.
func (p *Provider) Store() store.SessionStore { return p.store }

// Subscribe implements session.IdentityProvider.
func (p *Provider) Subscribe(handler func(session.AuthEvent)) func() {
	return p.hub.Subscribe(handler)
}

// CurrentSession implements session.IdentityProvider. It reports ErrNoSession when
// nothing is stored and ErrSessionExpired when the stored session cannot be refreshed.
func (p *Provider) CurrentSession(ctx context.Context) (session.Identity, error) {
	record, err := p.validRecord(ctx)
	if err != nil {
		return session.Identity{}, err
	}
	identity := recordIdentity(record)
	if identity == nil {
		return session.Identity{}, nil
	}
	return *identity, nil
}

// AccessToken returns a valid access token, refreshing it when needed.
func (p *Provider) AccessToken(ctx context.Context) (string, error) {
	record, err := p.validRecord(ctx)
	if err != nil {
		return "", err
	}
	return record.AccessToken, nil
}

// Attributes returns the signed-in user's attributes. They are fetched from the
// user-info endpoint when the stored session carries none.
func (p *Provider) Attributes(ctx context.Context) (map[string]string, error) {
	record, err := p.validRecord(ctx)
	if err != nil {
		return nil, err
	}
	identity := recordIdentity(record)
	if len(identity.Attributes) > 0 || p.client == nil || p.client.cfg.UserInfoURL == "" {
		return identity.Attributes, nil
	}
	info, err := p.client.UserInfo(ctx, record.AccessToken)
	if err != nil {
		return nil, err
	}
	return info.Attributes, nil
}

func (p *Provider) validRecord(ctx context.Context) (*store.Record, error) {
	if p.store == nil {
		return nil, ErrNoSession
	}
	record, err := p.store.Load(ctx)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNoSession
		}
		return nil, fmt.Errorf("identity: load session: %w", err)
	}
	if !record.Expired(p.now()) {
		return record, nil
	}
	return p.refresh(ctx, record)
}

func (p *Provider) refresh(ctx context.Context, record *store.Record) (*store.Record, error) {
	if p.client == nil || record.RefreshToken == "" {
		return nil, ErrSessionExpired
	}
	p.refreshMu.Lock()
	defer p.refreshMu.Unlock()

	// Another caller may have refreshed while we waited.
	if current, err := p.store.Load(ctx); err == nil && !current.Expired(p.now()) {
		return current, nil
	}

	token, err := p.client.Refresh(ctx, record.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionExpired, err)
	}
	refreshed := *record
	applyToken(&refreshed, token)
	refreshed.SavedAt = p.now().UTC()
	if _, err = p.store.Save(ctx, &refreshed); err != nil {
		log.WithError(err).Warn("identity: failed to persist refreshed session")
	}
	log.WithField("user", recordIdentity(&refreshed).ID()).Debug("session refreshed")
	return &refreshed, nil
}

// SignIn signs in with a username (or e-mail) and password, stores the session and
// publishes signedIn.
func (p *Provider) SignIn(ctx context.Context, username, password string) (*session.Identity, error) {
	if p.client == nil {
		return nil, ErrNotConfigured
	}
	token, err := p.client.PasswordSignIn(ctx, username, password)
	if err != nil {
		return nil, err
	}
	return p.completeSignIn(ctx, token, username)
}

// SignInWithBrowser runs the hosted-UI authorization code flow with PKCE.
func (p *Provider) SignInWithBrowser(ctx context.Context, timeout time.Duration) (*session.Identity, error) {
	if p.client == nil {
		return nil, ErrNotConfigured
	}
	if timeout <= 0 {
		timeout = DefaultBrowserTimeout
	}
	server := NewCallbackServer(p.client.cfg.CallbackPort)
	if err := server.Start(); err != nil {
		return nil, fmt.Errorf("identity: start callback server: %w", err)
	}
	defer func() {
		if errStop := server.Stop(context.Background()); errStop != nil {
			log.Warnf("identity: stop callback server: %v", errStop)
		}
	}()

	verifier := oauth2.GenerateVerifier()
	state := uuid.NewString()
	authURL, err := p.client.AuthCodeURL(state, verifier)
	if err != nil {
		return nil, err
	}
	if errOpen := p.openBrowser(authURL); errOpen != nil {
		log.Warnf("could not open the browser, visit this URL to sign in: %s", authURL)
	}

	result, err := server.WaitForCallback(ctx, timeout)
	if err != nil {
		return nil, err
	}
	if result.Error != "" {
		return nil, &Error{Code: result.Error, Message: "hosted sign-in failed"}
	}
	if result.State != state {
		return nil, &Error{Code: "invalid_state", Message: "state parameter mismatch"}
	}
	token, err := p.client.ExchangeCode(ctx, result.Code, verifier)
	if err != nil {
		return nil, err
	}
	return p.completeSignIn(ctx, token, "")
}

func (p *Provider) completeSignIn(ctx context.Context, token *oauth2.Token, username string) (*session.Identity, error) {
	record := &store.Record{Username: strings.TrimSpace(username)}
	applyToken(record, token)

	if record.IDToken != "" {
		if claims, err := IdentityFromIDToken(record.IDToken); err == nil {
			mergeIdentity(record, claims)
		} else {
			log.WithError(err).Debug("identity: id token claims unavailable")
		}
	}
	if len(record.Attributes) == 0 && p.client.cfg.UserInfoURL != "" {
		if info, err := p.client.UserInfo(ctx, record.AccessToken); err == nil {
			mergeIdentity(record, info)
		} else {
			log.WithError(err).Warn("identity: failed to fetch user attributes")
		}
	}
	record.SavedAt = p.now().UTC()

	if p.store != nil {
		if _, err := p.store.Save(ctx, record); err != nil {
			return nil, fmt.Errorf("identity: save session: %w", err)
		}
	}
	identity := recordIdentity(record)
	seq := p.hub.Publish(session.EventSignedIn, identity)
	log.WithFields(log.Fields{"event": session.EventSignedIn, "seq": seq, "user": identity.ID()}).Info("signed in")
	return identity, nil
}

// SignUp registers a user. The account may still need confirmation before sign-in.
func (p *Provider) SignUp(ctx context.Context, input SignUpInput) (*SignUpResult, error) {
	if p.client == nil {
		return nil, ErrNotConfigured
	}
	result, err := p.client.SignUp(ctx, input)
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{"user": strings.TrimSpace(input.Email), "status": confirmedStatus(result.Confirmed)}).Info("user registered")
	return result, nil
}

// SignOut revokes the refresh token (best effort), removes the stored session and
// publishes signedOut.
func (p *Provider) SignOut(ctx context.Context) error {
	if p.store == nil {
		return ErrNoSession
	}
	record, err := p.store.Load(ctx)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("identity: load session: %w", err)
	}
	if record != nil && p.client != nil {
		if errRevoke := p.client.Revoke(ctx, record.RefreshToken); errRevoke != nil {
			log.WithError(errRevoke).Warn("identity: failed to revoke refresh token")
		}
	}
	if err = p.store.Delete(ctx); err != nil {
		return fmt.Errorf("identity: delete session: %w", err)
	}
	seq := p.hub.Publish(session.EventSignedOut, nil)
	log.WithFields(log.Fields{"event": session.EventSignedOut, "seq": seq}).Info("signed out")
	return nil
}

func applyToken(record *store.Record, token *oauth2.Token) {
	if token == nil {
		return
	}
	record.AccessToken = token.AccessToken
	if token.RefreshToken != "" {
		record.RefreshToken = token.RefreshToken
	}
	record.TokenType = token.Type()
	record.Expiry = token.Expiry
	if idToken, ok := token.Extra("id_token").(string); ok && idToken != "" {
		record.IDToken = idToken
	}
}

func mergeIdentity(record *store.Record, identity *session.Identity) {
	if identity == nil {
		return
	}
	if identity.Subject != "" {
		record.Subject = identity.Subject
	}
	if identity.Username != "" {
		record.Username = identity.Username
	}
	for key, value := range identity.Attributes {
		if record.Attributes == nil {
			record.Attributes = make(map[string]string, len(identity.Attributes))
		}
		record.Attributes[key] = value
	}
}

// recordIdentity returns the identity of a record, decoding the ID token when the
// record carries no user fields.
func recordIdentity(record *store.Record) *session.Identity {
	identity := record.Identity()
	if identity.ID() == "" && record.IDToken != "" {
		if claims, err := IdentityFromIDToken(record.IDToken); err == nil {
			return claims
		}
	}
	return identity
}

func confirmedStatus(confirmed bool) string {
	if confirmed {
		return "confirmed"
	}
	return "unconfirmed"
}
