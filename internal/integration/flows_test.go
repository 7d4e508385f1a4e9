package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/ziplyhq/ziply/internal/app"
	"github.com/ziplyhq/ziply/internal/business"
	"github.com/ziplyhq/ziply/internal/config"
	"github.com/ziplyhq/ziply/internal/mailer"
)

// testMailbox satisfies mailer.Sender and records delivered messages so the
// flow tests can pull tokens out of the emails the way a real recipient would.
type testMailbox struct {
	mu       sync.Mutex
	messages []testMail
}

type testMail struct {
	To      string
	Subject string
	Text    string
}

func (mb *testMailbox) Send(to, subject, htmlBody, textBody string) error {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.messages = append(mb.messages, testMail{To: to, Subject: subject, Text: textBody})
	return nil
}

// waitFor polls for a message to the given recipient. Delivery runs on the
// mail worker goroutine, so the test has to wait for it.
func (mb *testMailbox) waitFor(t *testing.T, to string) testMail {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		mb.mu.Lock()
		for _, msg := range mb.messages {
			if msg.To == to {
				mb.mu.Unlock()
				return msg
			}
		}
		mb.mu.Unlock()
		time.Sleep(10 * time.Millisecond)
	}

	t.Fatalf("no email delivered to %s", to)
	return testMail{}
}

func (mb *testMailbox) clear() {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.messages = nil
}

var tokenPattern = regexp.MustCompile(`token=(\S+)`)

func extractToken(t *testing.T, mailText string) string {
	t.Helper()

	m := tokenPattern.FindStringSubmatch(mailText)
	require.NotNil(t, m, "no token link in email body: %s", mailText)

	token, err := url.QueryUnescape(m[1])
	require.NoError(t, err)
	return token
}

func newTestServer(t *testing.T, pool *pgxpool.Pool) (*httptest.Server, *testMailbox) {
	t.Helper()

	cfg := &config.Config{
		Env:                   "dev",
		HTTPAddr:              ":0",
		FrontendURL:           "http://localhost:3000",
		DBDSN:                 "unused",
		JWTSecret:             "test-jwt-secret",
		SigningSecret:         "test-signing-secret",
		LogLevel:              "error",
		AccessTokenTTLMinutes: 30,
		RefreshTokenTTLDays:   7,
		MailQueueSize:         16,
	}

	mailbox := &testMailbox{}
	mail := mailer.New(mailbox, cfg.FrontendURL, cfg.MailQueueSize)
	t.Cleanup(mail.Close)

	srv := httptest.NewServer(app.NewRouter(pool, cfg, mail))
	t.Cleanup(srv.Close)

	return srv, mailbox
}

func TestE2E_RegistrationLoginInviteFlow(t *testing.T) {
	pool, cleanup := newTestDB(t)
	t.Cleanup(cleanup)

	srv, mailbox := newTestServer(t, pool)
	client := srv.Client()

	ownerEmail := "owner@example.com"
	staffEmail := "staff@example.com"
	password := "password123"

	// Step one of registration: request the confirmation email.
	body := postJSON(t, client, srv.URL+"/accounts/email-start/", "", http.StatusOK, map[string]any{
		"email": ownerEmail,
	})
	require.Equal(t, "Confirmation email sent.", jsonField(t, body, "message"))

	regToken := extractToken(t, mailbox.waitFor(t, ownerEmail).Text)
	mailbox.clear()

	// The token is bound to the address it was requested for.
	fields := postJSONFields(t, client, srv.URL+"/accounts/register/", http.StatusBadRequest, map[string]any{
		"email":         "someone-else@example.com",
		"name":          "Mallory",
		"business_name": "Mallory Inc",
		"password":      password,
		"token":         regToken,
	})
	require.Contains(t, fields["email"], "Email does not match the token.")

	// Step two: create the user and their business with the emailed token.
	body = postJSON(t, client, srv.URL+"/accounts/register/", "", http.StatusCreated, map[string]any{
		"email":         ownerEmail,
		"name":          "Alice",
		"business_name": "Alice's Bakery",
		"password":      password,
		"token":         regToken,
	})
	require.Equal(t, "User and Business created.", jsonField(t, body, "message"))
	ownerAccess := jsonField(t, body, "access")
	require.NotEmpty(t, ownerAccess)
	require.NotEmpty(t, jsonField(t, body, "refresh"))

	// A used registration token is rejected: the email is now taken.
	fields = postJSONFields(t, client, srv.URL+"/accounts/register/", http.StatusBadRequest, map[string]any{
		"email":         ownerEmail,
		"name":          "Alice",
		"business_name": "Another Bakery",
		"password":      password,
		"token":         regToken,
	})
	require.Contains(t, fields["email"], "User with this email already exists.")

	// The profile endpoint reflects the new account.
	body = getJSON(t, client, srv.URL+"/accounts/me/", ownerAccess, "", http.StatusOK)
	require.Equal(t, ownerEmail, jsonField(t, body, "email"))
	require.Equal(t, "Alice", jsonField(t, body, "name"))

	// Credential login issues a fresh pair.
	body = postJSON(t, client, srv.URL+"/accounts/api/token/", "", http.StatusOK, map[string]any{
		"email":    ownerEmail,
		"password": password,
	})
	refresh := jsonField(t, body, "refresh")
	require.NotEmpty(t, refresh)

	body = postJSON(t, client, srv.URL+"/accounts/api/token/refresh/", "", http.StatusOK, map[string]any{
		"refresh": refresh,
	})
	require.NotEmpty(t, jsonField(t, body, "access"))

	// Wrong password is a 401 and never distinguishes the cause.
	postJSONError(t, client, srv.URL+"/accounts/api/token/", http.StatusUnauthorized, map[string]any{
		"email":    ownerEmail,
		"password": "wrong-password",
	})

	var slug string
	require.NoError(t, pool.QueryRow(context.Background(),
		`SELECT slug FROM businesses WHERE name = $1`, "Alice's Bakery").Scan(&slug))
	require.True(t, strings.HasPrefix(slug, "alice-s-bakery-"), "slug: %s", slug)

	// Member listing requires the business header and membership.
	members := listMembers(t, client, srv.URL, ownerAccess, slug, http.StatusOK)
	require.Len(t, members, 1)
	require.Equal(t, business.RoleOwner, members[0].Role)
	require.Equal(t, ownerEmail, members[0].Email)

	errEnv := getJSONError(t, client, srv.URL+"/members/", ownerAccess, "", http.StatusForbidden)
	require.Equal(t, "No business selected.", errEnv.Error.Message)

	errEnv = getJSONError(t, client, srv.URL+"/members/", ownerAccess, "no-such-business", http.StatusForbidden)
	require.Equal(t, "Business not found.", errEnv.Error.Message)

	// Invite a staff member.
	body = postJSON(t, client, srv.URL+"/members/invite/", ownerAccess, http.StatusCreated, map[string]any{
		"email": staffEmail,
		"role":  "Staff",
	}, slug)
	require.Equal(t, "Invitation sent successfully.", jsonField(t, body, "message"))

	inviteToken := extractToken(t, mailbox.waitFor(t, staffEmail).Text)
	mailbox.clear()

	// A second invite for the same email is rejected while one is pending.
	fields = postJSONFields(t, client, srv.URL+"/members/invite/", http.StatusBadRequest, map[string]any{
		"email": staffEmail,
		"role":  "Manager",
	}, ownerAccess, slug)
	require.Contains(t, fields["email"], "An invite with this email is already pending.")

	// Quoted local parts can hide the token payload separator; such
	// addresses never get an invite row.
	fields = postJSONFields(t, client, srv.URL+"/members/invite/", http.StatusBadRequest, map[string]any{
		"email": `"a:b"@example.com`,
		"role":  "Staff",
	}, ownerAccess, slug)
	require.Contains(t, fields["email"], "invalid email address")

	// The Owner role can never be granted by invitation.
	fields = postJSONFields(t, client, srv.URL+"/members/invite/", http.StatusBadRequest, map[string]any{
		"email": "second-owner@example.com",
		"role":  "Owner",
	}, ownerAccess, slug)
	require.Contains(t, fields["role"], "Invalid role specified.")

	// The landing page validates the token without consuming it.
	body = postJSON(t, client, srv.URL+"/members/invite-confirm/", "", http.StatusOK, map[string]any{
		"token": inviteToken,
	})
	require.Equal(t, staffEmail, jsonField(t, body, "email"))
	require.Equal(t, "Staff", jsonField(t, body, "role"))
	require.Equal(t, "Alice's Bakery", jsonField(t, body, "business_name"))

	// Accepting creates the account and membership.
	body = postJSON(t, client, srv.URL+"/members/invite-accept/", "", http.StatusOK, map[string]any{
		"token":    inviteToken,
		"password": password,
	})
	require.Equal(t, "Invitation accepted. Account created.", jsonField(t, body, "message"))

	// The token is consumed. A second accept finds no pending invite.
	fields = postJSONFields(t, client, srv.URL+"/members/invite-accept/", http.StatusBadRequest, map[string]any{
		"token":    inviteToken,
		"password": password,
	})
	require.Contains(t, fields["token"], "No valid invite found for this token.")

	// The invitee can log in with the password set on acceptance.
	body = postJSON(t, client, srv.URL+"/accounts/api/token/", "", http.StatusOK, map[string]any{
		"email":    staffEmail,
		"password": password,
	})
	staffAccess := jsonField(t, body, "access")
	require.NotEmpty(t, staffAccess)

	// Staff sits below the Manager threshold on the member listing.
	errEnv = getJSONError(t, client, srv.URL+"/members/", staffAccess, slug, http.StatusForbidden)
	require.Equal(t, "Insufficient permissions.", errEnv.Error.Message)

	members = listMembers(t, client, srv.URL, ownerAccess, slug, http.StatusOK)
	require.Len(t, members, 2)

	// Audit trail covers the whole journey.
	actions := auditActions(t, pool)
	require.Contains(t, actions, "account.email_confirmation_sent")
	require.Contains(t, actions, "account.registered")
	require.Contains(t, actions, "business.invite_created")
	require.Contains(t, actions, "business.invite_accepted")
}

func TestE2E_ConcurrentInviteAccept_ExactlyOneWinner(t *testing.T) {
	pool, cleanup := newTestDB(t)
	t.Cleanup(cleanup)

	srv, mailbox := newTestServer(t, pool)
	client := srv.Client()

	staffEmail := "staff@example.com"
	slug := registerOwner(t, client, srv.URL, mailbox, "owner@example.com", "Alice", "Alice Co", pool)

	body := postJSON(t, client, srv.URL+"/accounts/api/token/", "", http.StatusOK, map[string]any{
		"email":    "owner@example.com",
		"password": "password123",
	})
	ownerAccess := jsonField(t, body, "access")

	postJSON(t, client, srv.URL+"/members/invite/", ownerAccess, http.StatusCreated, map[string]any{
		"email": staffEmail,
		"role":  "Staff",
	}, slug)
	inviteToken := extractToken(t, mailbox.waitFor(t, staffEmail).Text)

	payload, err := json.Marshal(map[string]any{
		"token":    inviteToken,
		"password": "password123",
	})
	require.NoError(t, err)

	// Two simultaneous acceptances of the same invite. Exactly one may win.
	type acceptResult struct {
		status int
		body   []byte
	}
	results := make(chan acceptResult, 2)
	start := make(chan struct{})
	for i := 0; i < 2; i++ {
		go func() {
			<-start
			resp, err := client.Post(srv.URL+"/members/invite-accept/", "application/json", bytes.NewReader(payload))
			if err != nil {
				results <- acceptResult{status: 0, body: []byte(err.Error())}
				return
			}
			defer resp.Body.Close()
			b, _ := io.ReadAll(resp.Body)
			results <- acceptResult{status: resp.StatusCode, body: b}
		}()
	}
	close(start)

	statuses := make(map[int]int)
	var loserBody []byte
	for i := 0; i < 2; i++ {
		res := <-results
		statuses[res.status]++
		if res.status == http.StatusBadRequest {
			loserBody = res.body
		}
	}
	require.Equal(t, 1, statuses[http.StatusOK], "statuses: %v", statuses)
	require.Equal(t, 1, statuses[http.StatusBadRequest], "statuses: %v", statuses)

	// The loser learns the invite is gone, whichever write it lost on.
	var fields map[string][]string
	require.NoError(t, json.Unmarshal(loserBody, &fields))
	require.Contains(t, fields["token"], "No valid invite found for this token.")

	// Exactly one account and one membership came out of the race.
	ctx := context.Background()
	var userCount int
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM users WHERE email = $1`, staffEmail).Scan(&userCount))
	require.Equal(t, 1, userCount)

	var memberCount int
	require.NoError(t, pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM business_members m
		INNER JOIN users u ON u.id = m.user_id
		WHERE u.email = $1
	`, staffEmail).Scan(&memberCount))
	require.Equal(t, 1, memberCount)

	var accepted bool
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT is_accepted FROM business_invites WHERE email = $1`, staffEmail).Scan(&accepted))
	require.True(t, accepted)
}

func TestE2E_TenantIsolation_NonMemberRejected(t *testing.T) {
	pool, cleanup := newTestDB(t)
	t.Cleanup(cleanup)

	srv, mailbox := newTestServer(t, pool)
	client := srv.Client()

	aliceSlug := registerOwner(t, client, srv.URL, mailbox, "alice@example.com", "Alice", "Alice Co", pool)
	_ = registerOwner(t, client, srv.URL, mailbox, "bob@example.com", "Bob", "Bob Co", pool)

	body := postJSON(t, client, srv.URL+"/accounts/api/token/", "", http.StatusOK, map[string]any{
		"email":    "bob@example.com",
		"password": "password123",
	})
	bobAccess := jsonField(t, body, "access")

	// Bob resolves Alice's slug but holds no membership there.
	errEnv := getJSONError(t, client, srv.URL+"/members/", bobAccess, aliceSlug, http.StatusForbidden)
	require.Equal(t, "You are not a member of this business.", errEnv.Error.Message)
}

func registerOwner(t *testing.T, client *http.Client, baseURL string, mailbox *testMailbox, email, name, businessName string, pool *pgxpool.Pool) string {
	t.Helper()

	postJSON(t, client, baseURL+"/accounts/email-start/", "", http.StatusOK, map[string]any{
		"email": email,
	})
	token := extractToken(t, mailbox.waitFor(t, email).Text)
	mailbox.clear()

	postJSON(t, client, baseURL+"/accounts/register/", "", http.StatusCreated, map[string]any{
		"email":         email,
		"name":          name,
		"business_name": businessName,
		"password":      "password123",
		"token":         token,
	})

	var slug string
	require.NoError(t, pool.QueryRow(context.Background(),
		`SELECT slug FROM businesses WHERE name = $1`, businessName).Scan(&slug))
	return slug
}

type errorEnvelope struct {
	Error struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		RequestID string `json:"request_id"`
	} `json:"error"`
}

// postJSON posts a payload and decodes the bare JSON object response. An
// optional trailing argument supplies the business slug header.
func postJSON(t *testing.T, client *http.Client, urlStr, accessToken string, wantStatus int, payload any, slug ...string) map[string]json.RawMessage {
	t.Helper()

	body := doRequest(t, client, http.MethodPost, urlStr, accessToken, headerSlug(slug), wantStatus, payload)

	var parsed map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(body, &parsed))
	return parsed
}

// postJSONFields posts a payload expected to fail validation and decodes the
// per-field error map. Trailing arguments are access token then slug.
func postJSONFields(t *testing.T, client *http.Client, urlStr string, wantStatus int, payload any, tokenAndSlug ...string) map[string][]string {
	t.Helper()

	accessToken := ""
	slug := ""
	if len(tokenAndSlug) > 0 {
		accessToken = tokenAndSlug[0]
	}
	if len(tokenAndSlug) > 1 {
		slug = tokenAndSlug[1]
	}

	body := doRequest(t, client, http.MethodPost, urlStr, accessToken, slug, wantStatus, payload)

	var fields map[string][]string
	require.NoError(t, json.Unmarshal(body, &fields))
	return fields
}

func postJSONError(t *testing.T, client *http.Client, urlStr string, wantStatus int, payload any) errorEnvelope {
	t.Helper()

	body := doRequest(t, client, http.MethodPost, urlStr, "", "", wantStatus, payload)

	var env errorEnvelope
	require.NoError(t, json.Unmarshal(body, &env))
	require.NotEmpty(t, env.Error.RequestID)
	return env
}

func getJSON(t *testing.T, client *http.Client, urlStr, accessToken, slug string, wantStatus int) map[string]json.RawMessage {
	t.Helper()

	body := doRequest(t, client, http.MethodGet, urlStr, accessToken, slug, wantStatus, nil)

	var parsed map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(body, &parsed))
	return parsed
}

func getJSONError(t *testing.T, client *http.Client, urlStr, accessToken, slug string, wantStatus int) errorEnvelope {
	t.Helper()

	body := doRequest(t, client, http.MethodGet, urlStr, accessToken, slug, wantStatus, nil)

	var env errorEnvelope
	require.NoError(t, json.Unmarshal(body, &env))
	require.NotEmpty(t, env.Error.RequestID)
	return env
}

func listMembers(t *testing.T, client *http.Client, baseURL, accessToken, slug string, wantStatus int) []business.MemberInfo {
	t.Helper()

	body := doRequest(t, client, http.MethodGet, baseURL+"/members/", accessToken, slug, wantStatus, nil)

	var members []business.MemberInfo
	require.NoError(t, json.Unmarshal(body, &members))
	return members
}

func doRequest(t *testing.T, client *http.Client, method, urlStr, accessToken, slug string, wantStatus int, payload any) []byte {
	t.Helper()

	var bodyReader io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		require.NoError(t, err)
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, urlStr, bodyReader)
	require.NoError(t, err)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}
	if slug != "" {
		req.Header.Set("X-Business-Slug", slug)
	}

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, wantStatus, resp.StatusCode, "body: %s", string(body))

	return body
}

func jsonField(t *testing.T, parsed map[string]json.RawMessage, key string) string {
	t.Helper()

	raw, ok := parsed[key]
	require.True(t, ok, "missing field %q in %v", key, parsed)

	var value string
	require.NoError(t, json.Unmarshal(raw, &value))
	return value
}

func headerSlug(slug []string) string {
	if len(slug) > 0 {
		return slug[0]
	}
	return ""
}

func auditActions(t *testing.T, pool *pgxpool.Pool) map[string]bool {
	t.Helper()

	rows, err := pool.Query(context.Background(), `SELECT action FROM audit_log`)
	require.NoError(t, err)
	defer rows.Close()

	actions := make(map[string]bool)
	for rows.Next() {
		var action string
		require.NoError(t, rows.Scan(&action))
		actions[action] = true
	}
	require.NoError(t, rows.Err())
	return actions
}
