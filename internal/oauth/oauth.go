// Package oauth wraps the external identity provider's code exchange.
// The HTTP layer only sees the Exchanger interface; the OIDC
// implementation is wired in at startup when a provider is configured.
package oauth

import (
	"context"
	"errors"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

var ErrExchangeFailed = errors.New("oauth: code exchange failed")

// Identity is the provider-asserted identity of a signed-in subject.
type Identity struct {
	SubjectID string
	Email     string
	FullName  string
	AvatarURL string
}

// Exchanger turns a short-lived authorization code into an identity.
// A single attempt, no retry; failure is terminal for the sign-in.
type Exchanger interface {
	Exchange(ctx context.Context, code string) (Identity, error)
	AuthCodeURL(state string) string
}

type OIDCExchanger struct {
	config   oauth2.Config
	verifier *oidc.IDTokenVerifier
}

func NewOIDCExchanger(ctx context.Context, issuer, clientID, clientSecret, redirectURL string) (*OIDCExchanger, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, err
	}
	return &OIDCExchanger{
		config: oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     provider.Endpoint(),
			RedirectURL:  redirectURL,
			Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
		},
		verifier: provider.Verifier(&oidc.Config{ClientID: clientID}),
	}, nil
}

func (e *OIDCExchanger) AuthCodeURL(state string) string {
	return e.config.AuthCodeURL(state)
}

func (e *OIDCExchanger) Exchange(ctx context.Context, code string) (Identity, error) {
	token, err := e.config.Exchange(ctx, code)
	if err != nil {
		return Identity{}, errors.Join(ErrExchangeFailed, err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		return Identity{}, errors.Join(ErrExchangeFailed, errors.New("no id_token in response"))
	}

	idToken, err := e.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return Identity{}, errors.Join(ErrExchangeFailed, err)
	}

	var claims struct {
		Sub     string `json:"sub"`
		Email   string `json:"email"`
		Name    string `json:"name"`
		Picture string `json:"picture"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return Identity{}, errors.Join(ErrExchangeFailed, err)
	}
	if claims.Sub == "" {
		return Identity{}, errors.Join(ErrExchangeFailed, errors.New("empty subject"))
	}

	return Identity{
		SubjectID: claims.Sub,
		Email:     claims.Email,
		FullName:  claims.Name,
		AvatarURL: claims.Picture,
	}, nil
}
