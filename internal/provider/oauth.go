package provider

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// OAuthBroker drives the authorization-code flow the hosted service brokers
// for social providers. The service's /authorize endpoint redirects to the
// upstream IdP and its /token endpoint exchanges the returned code.
type OAuthBroker struct {
	client *HTTPClient
	config *oauth2.Config
}

func NewOAuthBroker(client *HTTPClient, clientID, clientSecret, redirectURL string) *OAuthBroker {
	return &OAuthBroker{
		client: client,
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       []string{"email", "profile"},
			Endpoint: oauth2.Endpoint{
				AuthURL:  client.baseURL + "/auth/v1/authorize",
				TokenURL: client.baseURL + "/auth/v1/token",
			},
		},
	}
}

// LoginURL returns the URL to send the browser to, plus the state value the
// callback must echo back.
func (b *OAuthBroker) LoginURL(providerName string) (url, state string) {
	state = uuid.NewString()
	url = b.config.AuthCodeURL(state,
		oauth2.SetAuthURLParam("provider", providerName),
		oauth2.AccessTypeOffline,
	)
	return url, state
}

// Exchange trades the callback code for provider tokens and resolves the
// authenticated user behind them.
func (b *OAuthBroker) Exchange(ctx context.Context, code string) (*Session, error) {
	token, err := b.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("code exchange: %w", err)
	}
	user, err := b.client.GetUser(ctx, token.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("resolve oauth user: %w", err)
	}
	refresh, _ := token.Extra("refresh_token").(string)
	if refresh == "" {
		refresh = token.RefreshToken
	}
	session := &Session{
		AccessToken:  token.AccessToken,
		RefreshToken: refresh,
		TokenType:    token.TokenType,
		ExpiresAt:    token.Expiry,
		User:         *user,
	}
	b.client.emit(EventSignedIn, session)
	return session, nil
}
