package oauth

import (
	"testing"

	"playhub/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestServer(t *testing.T) (*Server, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.OAuthClient{}, &models.APIProduct{},
		&models.ClientProductGrant{}, &models.ClientScopeGrant{},
	))
	return NewServer(db, nil), db
}

func TestResolveGrantedScopes_IncludesStandaloneGrant(t *testing.T) {
	s, db := newTestServer(t)
	client := &models.OAuthClient{ClientID: "client-1"}
	require.NoError(t, db.Create(client).Error)
	require.NoError(t, db.Create(&models.ClientScopeGrant{ClientID: client.ID, ScopeName: "galleries.read"}).Error)

	granted, err := s.resolveGrantedScopes(client, []string{"galleries.read", "galleries.write"})
	require.NoError(t, err)
	assert.Equal(t, []string{"galleries.read"}, granted)
}

func TestResolveGrantedScopes_ExpandsProductGrant(t *testing.T) {
	s, db := newTestServer(t)
	client := &models.OAuthClient{ClientID: "client-2"}
	require.NoError(t, db.Create(client).Error)
	require.NoError(t, db.Create(&models.APIProduct{Key: "galleries", Scopes: encodeStrings([]string{"galleries.read", "galleries.write"})}).Error)
	require.NoError(t, db.Create(&models.ClientProductGrant{ClientID: client.ID, APIProductKey: "galleries"}).Error)

	granted, err := s.resolveGrantedScopes(client, []string{"galleries.read", "galleries.write", "galleries.delete"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"galleries.read", "galleries.write"}, granted)
}

func TestResolveGrantedScopes_IgnoresUngrantedRequest(t *testing.T) {
	s, db := newTestServer(t)
	client := &models.OAuthClient{ClientID: "client-3"}
	require.NoError(t, db.Create(client).Error)

	granted, err := s.resolveGrantedScopes(client, []string{"galleries.delete"})
	require.NoError(t, err)
	assert.Empty(t, granted)
}

func TestAuthCodeTTL_DefaultsToOneMinute(t *testing.T) {
	s := &Server{cfg: nil}
	assert.Equal(t, 60, int(s.authCodeTTL().Seconds()))
}

func TestRefreshTokenLength_FallsBackBelowMinimum(t *testing.T) {
	s := &Server{cfg: nil}
	assert.Equal(t, 48, s.refreshTokenLength())
}

func TestRandomToken_ProducesURLSafeUniqueValues(t *testing.T) {
	a, err := randomToken(32)
	require.NoError(t, err)
	b, err := randomToken(32)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.NotEmpty(t, a)
}

func TestHashToken_IsDeterministicAndDistinct(t *testing.T) {
	assert.Equal(t, hashToken("token-a"), hashToken("token-a"))
	assert.NotEqual(t, hashToken("token-a"), hashToken("token-b"))
}
