package shopkit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/harborlane/shopkit/pkg/session"
)

// Token-exchange URNs (RFC 8693 plus the platform's token types).
const (
	grantTypeTokenExchange = "urn:ietf:params:oauth:grant-type:token-exchange"
	subjectTypeIDToken     = "urn:ietf:params:oauth:token-type:id_token"
	tokenTypeOffline       = "urn:harbor:params:oauth:token-type:offline-access-token"
	tokenTypeOnline        = "urn:harbor:params:oauth:token-type:online-access-token"
)

// accessTokenResponse is the platform's access token endpoint body. The
// associated_user block is present for online tokens only.
type accessTokenResponse struct {
	AccessToken string `json:"access_token"`
	Scope       string `json:"scope"`

	ExpiresIn           int             `json:"expires_in,omitempty"`
	AssociatedUser      *associatedUser `json:"associated_user,omitempty"`
	AssociatedUserScope string          `json:"associated_user_scope,omitempty"`
}

type associatedUser struct {
	ID            int64  `json:"id"`
	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	AccountOwner  bool   `json:"account_owner"`
	Locale        string `json:"locale"`
	Collaborator  bool   `json:"collaborator"`
}

// exchangeCode redeems an authorization code at the shop's access token
// endpoint.
func (a *App) exchangeCode(ctx context.Context, shop, code string) (*accessTokenResponse, error) {
	form := url.Values{
		"client_id":     {a.cfg.APIKey},
		"client_secret": {a.cfg.APISecret},
		"code":          {code},
	}
	return a.requestAccessToken(ctx, shop, form)
}

// ExchangeSessionToken trades a verified session token for an access
// token (RFC 8693 token exchange), persists the resulting session and
// returns it. This is the embedded fast path: no redirects, no cookies.
func (a *App) ExchangeSessionToken(ctx context.Context, sessionToken string) (*session.Session, error) {
	claims, err := a.verifier.Verify(sessionToken)
	if err != nil {
		return nil, err
	}

	requested := tokenTypeOffline
	if a.cfg.UseOnlineTokens {
		requested = tokenTypeOnline
	}

	form := url.Values{
		"client_id":            {a.cfg.APIKey},
		"client_secret":        {a.cfg.APISecret},
		"grant_type":           {grantTypeTokenExchange},
		"subject_token":        {sessionToken},
		"subject_token_type":   {subjectTypeIDToken},
		"requested_token_type": {requested},
	}

	shop := claims.Shop()
	resp, err := a.requestAccessToken(ctx, shop, form)
	if err != nil {
		return nil, err
	}

	sess := buildSession(shop, resp)
	if err := a.cfg.Storage.Store(ctx, sess); err != nil {
		return nil, fmt.Errorf("shopkit: store session %q: %w", sess.ID, err)
	}

	a.log.Debug("token exchange complete", "shop", shop, "session_id", sess.ID, "online", sess.IsOnline)
	return sess, nil
}

// requestAccessToken POSTs a form to https://{shop}/admin/oauth/access_token
// and decodes the response, mapping platform error bodies to *OAuthError.
func (a *App) requestAccessToken(ctx context.Context, shop string, form url.Values) (*accessTokenResponse, error) {
	endpoint := "https://" + shop + "/admin/oauth/access_token"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("shopkit: create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("shopkit: token request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("shopkit: read token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, parseOAuthError(resp.StatusCode, body)
	}

	var tok accessTokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return nil, fmt.Errorf("shopkit: decode token response: %w", err)
	}
	if tok.AccessToken == "" {
		return nil, &OAuthError{StatusCode: resp.StatusCode, Code: "invalid_response", Description: "token response missing access_token"}
	}

	return &tok, nil
}

// parseOAuthError turns a non-200 token response into a typed error,
// falling back to a generic code when the body is not the standard shape.
func parseOAuthError(status int, body []byte) error {
	var oe OAuthError
	if err := json.Unmarshal(body, &oe); err == nil && oe.Code != "" {
		oe.StatusCode = status
		return &oe
	}

	return &OAuthError{
		StatusCode:  status,
		Code:        "server_error",
		Description: fmt.Sprintf("HTTP %d: %s", status, http.StatusText(status)),
	}
}

// buildSession maps a token response onto a session record.
func buildSession(shop string, tok *accessTokenResponse) *session.Session {
	if tok.AssociatedUser == nil {
		return session.NewOffline(shop, tok.AccessToken, tok.Scope)
	}

	u := tok.AssociatedUser
	user := session.OnlineUser{
		ID:            u.ID,
		FirstName:     u.FirstName,
		LastName:      u.LastName,
		Email:         u.Email,
		EmailVerified: u.EmailVerified,
		AccountOwner:  u.AccountOwner,
		Locale:        u.Locale,
		Collaborator:  u.Collaborator,
		Scope:         tok.AssociatedUserScope,
	}

	ttl := time.Duration(tok.ExpiresIn) * time.Second
	return session.NewOnline(shop, tok.AccessToken, tok.Scope, user, ttl)
}
