package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type identity struct {
	UserID   string `json:"user_id"`
	FullName string `json:"full_name"`
}

// supervisors act with the supervisor role; everyone else is an officer.
var supervisors = map[string]bool{"dana": true}

// TestContext talks to a running server as the users of the seeded directory.
type TestContext struct {
	baseURL    string
	signingKey []byte
	issuer     string
	client     *http.Client
	users      map[string]string

	refs     map[string]string
	status   int
	envelope map[string]any
}

func NewTestContext(baseURL, signingKey, issuer, seedFile string) (*TestContext, error) {
	raw, err := os.ReadFile(seedFile)
	if err != nil {
		return nil, err
	}
	var seed []identity
	if err := json.Unmarshal(raw, &seed); err != nil {
		return nil, err
	}
	users := make(map[string]string, len(seed))
	for _, u := range seed {
		users[strings.ToLower(u.FullName)] = u.UserID
	}
	return &TestContext{
		baseURL:    strings.TrimRight(baseURL, "/"),
		signingKey: []byte(signingKey),
		issuer:     issuer,
		client:     &http.Client{Timeout: 10 * time.Second},
		users:      users,
	}, nil
}

// Reset clears per-scenario state.
func (c *TestContext) Reset() {
	c.refs = map[string]string{}
	c.status = 0
	c.envelope = nil
}

func (c *TestContext) UserID(name string) (string, error) {
	uid, ok := c.users[name]
	if !ok {
		return "", fmt.Errorf("unknown user %q", name)
	}
	return uid, nil
}

func (c *TestContext) token(name string) (string, error) {
	uid, err := c.UserID(name)
	if err != nil {
		return "", err
	}
	role := "officer"
	if supervisors[name] {
		role = "supervisor"
	}
	now := time.Now()
	return jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": uid,
		"role":    role,
		"iss":     c.issuer,
		"iat":     now.Unix(),
		"exp":     now.Add(5 * time.Minute).Unix(),
		"jti":     fmt.Sprintf("e2e-%d", now.UnixNano()),
	}).SignedString(c.signingKey)
}

// Do sends body as JSON on behalf of user and keeps the decoded envelope.
func (c *TestContext) Do(user, method, path string, body any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	token, err := c.token(user)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	c.status = resp.StatusCode
	c.envelope = nil
	return json.NewDecoder(resp.Body).Decode(&c.envelope)
}

func (c *TestContext) Status() int { return c.status }

// ErrorCode is the error field of the last envelope.
func (c *TestContext) ErrorCode() string {
	code, _ := c.envelope["error"].(string)
	return code
}

// Data is the data field of the last envelope.
func (c *TestContext) Data() any { return c.envelope["data"] }

func (c *TestContext) RememberRef(name, refID string) { c.refs[name] = refID }

func (c *TestContext) Ref(name string) (string, error) {
	refID, ok := c.refs[name]
	if !ok {
		return "", fmt.Errorf("reference %q was not created in this scenario", name)
	}
	return refID, nil
}
