package identity

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lojinha-app/storefront/internal/buildinfo"
	"github.com/lojinha-app/storefront/internal/config"
	"github.com/lojinha-app/storefront/internal/util"
	"github.com/lojinha-app/storefront/sdk/session"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"golang.org/x/oauth2"
)

const (
	requestTimeout = 30 * time.Second
	signUpTarget   = "AWSCognitoIdentityProviderService.SignUp"
)

// SignUpInput holds the registration form.
type SignUpInput struct {
	Name     string
	Email    string
	Password string
	Address  string
	Phone    string
}

// SignUpResult is the platform's answer to a registration.
type SignUpResult struct {
	UserSub   string
	Confirmed bool
	// Destination is where the confirmation code was sent, when confirmation is required.
	Destination string
}

// Client talks to the hosted authentication service.
type Client struct {
	cfg        config.AuthConfig
	oauth      *oauth2.Config
	httpClient *http.Client
}

// NewClient builds a client from the auth section of cfg.
func NewClient(cfg *config.Config) (*Client, error) {
	if !cfg.AuthConfigured() {
		return nil, ErrNotConfigured
	}
	auth := cfg.Auth
	return &Client{
		cfg: auth,
		oauth: &oauth2.Config{
			ClientID:     auth.ClientID,
			ClientSecret: auth.ClientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:   auth.AuthURL,
				TokenURL:  auth.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
			RedirectURL: fmt.Sprintf("http://localhost:%d/callback", auth.CallbackPort),
			Scopes:      auth.Scopes,
		},
		httpClient: util.NewHTTPClient(cfg, requestTimeout),
	}, nil
}

func (c *Client) oauthContext(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

// PasswordSignIn exchanges a username (or e-mail) and password for tokens.
func (c *Client) PasswordSignIn(ctx context.Context, username, password string) (*oauth2.Token, error) {
	token, err := c.oauth.PasswordCredentialsToken(c.oauthContext(ctx), strings.TrimSpace(username), password)
	if err != nil {
		return nil, mapTokenError(err)
	}
	return token, nil
}

// Refresh obtains a fresh access token from a refresh token.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return nil, ErrSessionExpired
	}
	source := c.oauth.TokenSource(c.oauthContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	token, err := source.Token()
	if err != nil {
		return nil, mapTokenError(err)
	}
	return token, nil
}

// AuthCodeURL returns the hosted sign-in page URL for the PKCE flow.
func (c *Client) AuthCodeURL(state, verifier string) (string, error) {
	if c.cfg.AuthURL == "" {
		return "", fmt.Errorf("%w: auth-url is empty", ErrNotConfigured)
	}
	return c.oauth.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier)), nil
}

// ExchangeCode completes the PKCE flow.
func (c *Client) ExchangeCode(ctx context.Context, code, verifier string) (*oauth2.Token, error) {
	token, err := c.oauth.Exchange(c.oauthContext(ctx), code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, mapTokenError(err)
	}
	return token, nil
}

// SignUp registers a new user. The e-mail is used as the username.
func (c *Client) SignUp(ctx context.Context, input SignUpInput) (*SignUpResult, error) {
	if c.cfg.SignUpURL == "" {
		return nil, fmt.Errorf("%w: sign-up-url is empty", ErrNotConfigured)
	}
	body, err := buildSignUpBody(c.cfg.ClientID, input)
	if err != nil {
		return nil, fmt.Errorf("identity: build sign-up request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.SignUpURL, strings.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-amz-json-1.1")
	req.Header.Set("X-Amz-Target", signUpTarget)
	req.Header.Set("User-Agent", buildinfo.UserAgent())

	respBody, err := c.do(req)
	if err != nil {
		return nil, err
	}
	parsed := gjson.ParseBytes(respBody)
	return &SignUpResult{
		UserSub:     parsed.Get("UserSub").String(),
		Confirmed:   parsed.Get("UserConfirmed").Bool(),
		Destination: parsed.Get("CodeDeliveryDetails.Destination").String(),
	}, nil
}

func buildSignUpBody(clientID string, input SignUpInput) (string, error) {
	email := strings.TrimSpace(input.Email)
	if email == "" || input.Password == "" {
		return "", fmt.Errorf("email and password are required")
	}
	body := `{}`
	var err error
	fields := []struct {
		path  string
		value string
	}{
		{"ClientId", clientID},
		{"Username", email},
		{"Password", input.Password},
	}
	for _, f := range fields {
		if body, err = sjson.Set(body, f.path, f.value); err != nil {
			return "", err
		}
	}
	attributes := []struct {
		name  string
		value string
	}{
		{"email", email},
		{"name", strings.TrimSpace(input.Name)},
		{"custom:endereco", strings.TrimSpace(input.Address)},
		{"custom:telefone", strings.TrimSpace(input.Phone)},
	}
	for _, attr := range attributes {
		if attr.value == "" {
			continue
		}
		if body, err = sjson.Set(body, "UserAttributes.-1", map[string]string{"Name": attr.name, "Value": attr.value}); err != nil {
			return "", err
		}
	}
	return body, nil
}

// Revoke invalidates a refresh token. A missing revoke-url makes it a no-op.
func (c *Client) Revoke(ctx context.Context, refreshToken string) error {
	if c.cfg.RevokeURL == "" || strings.TrimSpace(refreshToken) == "" {
		return nil
	}
	form := url.Values{}
	form.Set("token", refreshToken)
	form.Set("client_id", c.cfg.ClientID)
	if c.cfg.ClientSecret != "" {
		form.Set("client_secret", c.cfg.ClientSecret)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.RevokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", buildinfo.UserAgent())
	_, err = c.do(req)
	return err
}

// UserInfo fetches the user's attributes with the access token.
func (c *Client) UserInfo(ctx context.Context, accessToken string) (*session.Identity, error) {
	if c.cfg.UserInfoURL == "" {
		return nil, fmt.Errorf("%w: user-info-url is empty", ErrNotConfigured)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.UserInfoURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", buildinfo.UserAgent())
	body, err := c.do(req)
	if err != nil {
		return nil, err
	}
	return parseUserInfo(body), nil
}

// parseUserInfo accepts the attribute list form ([{Name, Value}] either bare or under
// UserAttributes) and the flat object form of the user-info endpoint.
func parseUserInfo(body []byte) *session.Identity {
	parsed := gjson.ParseBytes(body)
	identity := &session.Identity{Attributes: map[string]string{}}
	raw := map[string]string{}

	list := parsed
	if attrs := parsed.Get("UserAttributes"); attrs.IsArray() {
		list = attrs
	}
	if list.IsArray() {
		list.ForEach(func(_, item gjson.Result) bool {
			if name := item.Get("Name").String(); name != "" {
				raw[name] = item.Get("Value").String()
			}
			return true
		})
	} else {
		parsed.ForEach(func(key, value gjson.Result) bool {
			if value.Type == gjson.String {
				raw[key.String()] = value.String()
			}
			return true
		})
	}

	for key, value := range raw {
		if value == "" {
			continue
		}
		if name := normalizeAttributeName(key); name != "" {
			identity.Attributes[name] = value
		}
	}
	identity.Subject = raw["sub"]
	for _, key := range []string{"cognito:username", "username", "preferred_username"} {
		if v := raw[key]; v != "" {
			identity.Username = v
			break
		}
	}
	if identity.Username == "" {
		identity.Username = parsed.Get("Username").String()
	}
	if len(identity.Attributes) == 0 {
		identity.Attributes = nil
	}
	return identity
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("identity: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer func() {
		if errClose := resp.Body.Close(); errClose != nil {
			log.Errorf("identity: close response body: %v", errClose)
		}
	}()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("identity: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, parseErrorBody(resp.StatusCode, body)
	}
	return body, nil
}

// mapTokenError converts an oauth2 token endpoint failure into an Error.
func mapTokenError(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if !errors.As(err, &retrieveErr) {
		return fmt.Errorf("identity: token request: %w", err)
	}
	status := 0
	if retrieveErr.Response != nil {
		status = retrieveErr.Response.StatusCode
	}
	out := parseErrorBody(status, retrieveErr.Body)
	if out.Code == "" {
		out.Code = retrieveErr.ErrorCode
	}
	if retrieveErr.ErrorDescription != "" && (out.Message == "" || out.Message == http.StatusText(status)) {
		out.Message = retrieveErr.ErrorDescription
	}
	return out
}
