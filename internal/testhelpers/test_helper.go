package testhelpers

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/TOOL2U/Application---Property-Management--sub002/internal/models"
)

// TestHelper carries the signing key used to mint staff tokens in HTTP tests.
type TestHelper struct {
	T          *testing.T
	PrivateKey *rsa.PrivateKey
}

func NewTestHelper(t *testing.T) *TestHelper {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err, "Failed to generate RSA key")
	return &TestHelper{T: t, PrivateKey: key}
}

func (h *TestHelper) PublicKey() *rsa.PublicKey {
	return &h.PrivateKey.PublicKey
}

// CreateStaffJWT signs an access token for staffID carrying roles.
func (h *TestHelper) CreateStaffJWT(staffID string, roles ...models.RoleTag) string {
	return h.sign(staffID, time.Now().Add(15*time.Minute), roles)
}

func (h *TestHelper) CreateExpiredJWT(staffID string, roles ...models.RoleTag) string {
	return h.sign(staffID, time.Now().Add(-time.Minute), roles)
}

func (h *TestHelper) sign(staffID string, exp time.Time, roles []models.RoleTag) string {
	rs := make([]string, 0, len(roles))
	for _, r := range roles {
		rs = append(rs, string(r))
	}
	claims := jwt.MapClaims{
		"iss":   "villa-ops",
		"sub":   staffID,
		"iat":   time.Now().Unix(),
		"exp":   exp.Unix(),
		"roles": rs,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(h.PrivateKey)
	require.NoError(h.T, err, "Failed to sign test staff JWT")
	return signed
}

// BuildAuthRequest returns a request with the bearer token set when jwtString is not empty.
func (h *TestHelper) BuildAuthRequest(method, reqURL, jwtString string, body []byte) *http.Request {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req := httptest.NewRequest(method, reqURL, rdr)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if jwtString != "" {
		req.Header.Set("Authorization", "Bearer "+jwtString)
	}
	return req
}
