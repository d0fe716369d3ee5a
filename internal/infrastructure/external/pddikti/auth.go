package pddikti

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// AUTHENTICATION PIPELINE
// A strict five-step handshake. Each step's output (cookie state or an
// extracted identifier) is required input to the next; failure at any step
// aborts the whole pipeline and no partial session is ever returned.
// ══════════════════════════════════════════════════════════════════════════════

// AuthConfig contains configuration for the authentication pipeline.
type AuthConfig struct {
	// PortalURL is the browser-facing portal (serves the sign-in page).
	PortalURL string

	// APIURL is the portal's API host (login, roles, setlogin).
	APIURL string

	// Username and Password are the registry operator credentials. They are
	// required runtime configuration and are never logged in cleartext.
	Username string
	Password string

	// RoleID is the role activated in step 5.
	RoleID string

	// Logger for structured logging.
	Logger *slog.Logger
}

// DefaultAuthConfig returns sensible defaults for the production portal.
func DefaultAuthConfig(username, password string) AuthConfig {
	return AuthConfig{
		PortalURL: "https://pddikti-admin.kemdikbud.go.id",
		APIURL:    "https://api-pddikti-admin.kemdikbud.go.id",
		Username:  username,
		Password:  password,
		RoleID:    "3",
	}
}

// Authenticator executes the login handshake against the registry.
type Authenticator struct {
	config  AuthConfig
	session *Session
	logger  *slog.Logger
}

// NewAuthenticator creates an Authenticator bound to one HTTP session.
func NewAuthenticator(config AuthConfig, session *Session) (*Authenticator, error) {
	if config.Username == "" || config.Password == "" {
		return nil, errors.New("pddikti: username and password are required")
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.RoleID == "" {
		config.RoleID = "3"
	}

	return &Authenticator{
		config:  config,
		session: session,
		logger:  config.Logger,
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// STEP REQUEST BUILDERS
// One tagged builder per step with explicit required fields, so a missing
// identifier is caught at construction instead of producing a malformed
// request on the wire.
// ══════════════════════════════════════════════════════════════════════════════

// loginStep is step 2: credentials POST. The portal expects both values
// base64-encoded inside the form.
type loginStep struct {
	apiURL   string
	username string
	password string
}

func (s loginStep) url() string {
	return s.apiURL + "/login/login"
}

func (s loginStep) form() url.Values {
	return url.Values{
		"data[username]": {base64.StdEncoding.EncodeToString([]byte(s.username))},
		"data[password]": {base64.StdEncoding.EncodeToString([]byte(s.password))},
		"data[issso]":    {"false"},
	}
}

// verifyStep is step 3: verification-status probe keyed by user id.
type verifyStep struct {
	apiURL string
	userID string
}

func (s verifyStep) build() (string, error) {
	if s.userID == "" {
		return "", errors.New("pddikti: verify step requires a user id")
	}
	return s.apiURL + "/isverified/" + url.PathEscape(s.userID), nil
}

// roleSelectStep is step 4: role selection keyed by user id.
type roleSelectStep struct {
	apiURL string
	userID string
}

func (s roleSelectStep) build() (string, url.Values, error) {
	if s.userID == "" {
		return "", nil, errors.New("pddikti: role selection requires a user id")
	}
	return s.apiURL + "/login/roles/1?login=adm", url.Values{"data[i_iduser]": {s.userID}}, nil
}

// roleActivateStep is step 5: role activation keyed by user id and org id,
// with credentials repeated in cleartext form as the portal requires.
type roleActivateStep struct {
	apiURL   string
	roleID   string
	userID   string
	orgID    string
	username string
	password string
}

func (s roleActivateStep) build() (string, url.Values, error) {
	if s.userID == "" || s.orgID == "" {
		return "", nil, errors.New("pddikti: role activation requires user id and org id")
	}
	u := fmt.Sprintf("%s/login/setlogin/%s/%s?id_pengguna=%s&id_unit=%s&id_role=%s",
		s.apiURL, s.roleID, url.PathEscape(s.orgID),
		url.QueryEscape(s.userID), url.QueryEscape(s.orgID), url.QueryEscape(s.roleID))
	form := url.Values{
		"data[i_username]": {s.username},
		"data[i_iduser]":   {s.userID},
		"data[password]":   {s.password},
		"data[is_manual]":  {"true"},
	}
	return u, form, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// PIPELINE
// ══════════════════════════════════════════════════════════════════════════════

// Login runs the full handshake and returns the composed session.
// The pipeline never retries internally; retry policy belongs to the caller.
func (a *Authenticator) Login(ctx context.Context) (*AuthSession, error) {
	a.logger.Info("starting pddikti login handshake")

	// Step 1: establish cookie state. No payload is extracted.
	status, _, err := a.session.Get(ctx, a.config.PortalURL+"/signin")
	if err != nil {
		return nil, &NetworkError{Step: "signin", Err: err}
	}
	a.logger.Debug("signin page fetched", "status", status)

	// Step 2: credentials.
	login := loginStep{apiURL: a.config.APIURL, username: a.config.Username, password: a.config.Password}
	status, body, err := a.session.PostForm(ctx, login.url(), login.form())
	if err != nil {
		return nil, &NetworkError{Step: "login", Err: err}
	}
	if status != 200 {
		a.logger.Warn("login rejected", "status", status)
		return nil, fmt.Errorf("%w: status %d", ErrLoginRejected, status)
	}

	var loginResp sessionEnvelopeDTO
	if err := json.Unmarshal(body, &loginResp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoginRejected, err)
	}
	userID := string(loginResp.Result.SessionData.UserID)
	orgID := string(loginResp.Result.SessionData.UnitID)
	if userID == "" || orgID == "" {
		return nil, fmt.Errorf("%w: session data incomplete", ErrLoginRejected)
	}
	a.logger.Info("login accepted", "user_id", userID, "org_id", orgID)

	// Step 3: verification probe. Content unused, but a failure here means the
	// account cannot proceed to role selection.
	verifyURL, err := verifyStep{apiURL: a.config.APIURL, userID: userID}.build()
	if err != nil {
		return nil, err
	}
	status, _, err = a.session.Get(ctx, verifyURL)
	if err != nil {
		return nil, &NetworkError{Step: "isverified", Err: err}
	}
	if status != 200 {
		return nil, &StepError{Step: "isverified", Status: status}
	}

	// Step 4: role selection.
	rolesURL, rolesForm, err := roleSelectStep{apiURL: a.config.APIURL, userID: userID}.build()
	if err != nil {
		return nil, err
	}
	status, _, err = a.session.PostForm(ctx, rolesURL, rolesForm)
	if err != nil {
		return nil, &NetworkError{Step: "roles", Err: err}
	}
	if status != 200 {
		return nil, &StepError{Step: "roles", Status: status}
	}

	// Step 5: role activation yields the pm token.
	activate := roleActivateStep{
		apiURL:   a.config.APIURL,
		roleID:   a.config.RoleID,
		userID:   userID,
		orgID:    orgID,
		username: a.config.Username,
		password: a.config.Password,
	}
	activateURL, activateForm, err := activate.build()
	if err != nil {
		return nil, err
	}
	status, body, err = a.session.PostForm(ctx, activateURL, activateForm)
	if err != nil {
		return nil, &NetworkError{Step: "setlogin", Err: err}
	}
	if status != 200 {
		return nil, &StepError{Step: "setlogin", Status: status}
	}

	var activateResp sessionEnvelopeDTO
	if err := json.Unmarshal(body, &activateResp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenMissing, err)
	}
	token := activateResp.Result.SessionData.Token
	if token == "" {
		return nil, ErrTokenMissing
	}

	a.logger.Info("pddikti login handshake completed")

	return &AuthSession{
		UserID:    userID,
		OrgID:     orgID,
		Token:     token,
		CreatedAt: time.Now(),
	}, nil
}
