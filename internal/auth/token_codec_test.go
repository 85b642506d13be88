package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestNewTokenCodecRequiresSecret(t *testing.T) {
	_, err := NewTokenCodec(TokenCodecConfig{})
	require.EqualError(t, err, "token codec: secret must be provided")
}

func TestMintAndVerifyAccess(t *testing.T) {
	clock := newTestClock()
	codec := newTestCodec(t, clock)

	roles := []string{"user", "moderator"}
	token, ttl, err := codec.MintAccess("user-1", "user@example.com", roles, false)
	require.NoError(t, err)
	require.Equal(t, 900, ttl)

	roles[0] = "admin"

	claims, err := codec.VerifyAccess(token)
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.UserID)
	require.Equal(t, "user@example.com", claims.Email)
	require.Equal(t, []string{"user", "moderator"}, claims.Roles)
	require.Equal(t, TokenAccess, claims.Type)
	require.Equal(t, "authcore", claims.Issuer)
	require.NotEmpty(t, claims.ID)
	require.True(t, claims.IssuedAt.Time.Equal(clock.Now()))
	require.True(t, claims.ExpiresAt.Time.Equal(clock.Now().Add(15*time.Minute)))
}

func TestAccessTokenExpires(t *testing.T) {
	clock := newTestClock()
	codec := newTestCodec(t, clock)

	token, _, err := codec.MintAccess("user-1", "", nil, false)
	require.NoError(t, err)

	clock.Advance(899 * time.Second)
	_, err = codec.VerifyAccess(token)
	require.NoError(t, err)

	clock.Advance(2 * time.Second)
	_, err = codec.VerifyAccess(token)
	require.ErrorIs(t, err, ErrExpired)
	require.NotErrorIs(t, err, ErrInvalidSignature)
}

func TestRefreshTTLDependsOnGuest(t *testing.T) {
	clock := newTestClock()
	codec := newTestCodec(t, clock)

	_, ttl, err := codec.MintRefresh("user-1", "sid", "fid", false)
	require.NoError(t, err)
	require.Equal(t, 45*24*3600, ttl)

	token, ttl, err := codec.MintRefresh("guest-1", "sid", "fid", true)
	require.NoError(t, err)
	require.Equal(t, 7*24*3600, ttl)

	claims, err := codec.VerifyRefresh(token)
	require.NoError(t, err)
	require.True(t, claims.Guest)
	require.Equal(t, "sid", claims.SessionID)
	require.Equal(t, "fid", claims.FamilyID)
}

func TestGuestAccessTTLIsConfigurable(t *testing.T) {
	codec, err := NewTokenCodec(TokenCodecConfig{Secret: testSecret, GuestAccessTTL: 5 * time.Minute})
	require.NoError(t, err)

	_, ttl, err := codec.MintAccess("guest", "", nil, true)
	require.NoError(t, err)
	require.Equal(t, 300, ttl)

	_, ttl, err = codec.MintAccess("user", "", nil, false)
	require.NoError(t, err)
	require.Equal(t, 900, ttl)
}

func TestVerifyRejectsWrongType(t *testing.T) {
	codec := newTestCodec(t, newTestClock())

	access, _, err := codec.MintAccess("user-1", "", nil, false)
	require.NoError(t, err)
	refresh, _, err := codec.MintRefresh("user-1", "sid", "fid", false)
	require.NoError(t, err)

	_, err = codec.VerifyRefresh(access)
	require.ErrorIs(t, err, ErrTypeMismatch)

	_, err = codec.VerifyAccess(refresh)
	require.ErrorIs(t, err, ErrTypeMismatch)

	claims, err := codec.Verify(refresh, TokenRefresh)
	require.NoError(t, err)
	require.Equal(t, TokenRefresh, claims.TokenType())
	require.Equal(t, "user-1", claims.SubjectID())

	claims, err = codec.Verify(refresh, TokenAccess)
	require.ErrorIs(t, err, ErrTypeMismatch)
	require.Nil(t, claims)
}

func TestVerifyRejectsForeignSecret(t *testing.T) {
	clock := newTestClock()
	issuer, err := NewTokenCodec(TokenCodecConfig{Secret: "another-secret", Issuer: "authcore", Clock: clock.Now})
	require.NoError(t, err)

	token, _, err := issuer.MintAccess("user-1", "", nil, false)
	require.NoError(t, err)

	_, err = newTestCodec(t, clock).VerifyAccess(token)
	require.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerifyRejectsExpiredForeignTokenAsInvalid(t *testing.T) {
	clock := newTestClock()
	issuer, err := NewTokenCodec(TokenCodecConfig{Secret: "another-secret", Issuer: "authcore", Clock: clock.Now})
	require.NoError(t, err)

	token, _, err := issuer.MintAccess("user-1", "", nil, false)
	require.NoError(t, err)
	clock.Advance(time.Hour)

	_, err = newTestCodec(t, clock).VerifyAccess(token)
	require.ErrorIs(t, err, ErrInvalidSignature)
	require.NotErrorIs(t, err, ErrExpired)
}

func TestVerifyRejectsOtherAlgorithms(t *testing.T) {
	clock := newTestClock()
	codec := newTestCodec(t, clock)

	claims := jwt.MapClaims{
		"uid":  "user-1",
		"type": "access",
		"iss":  "authcore",
		"exp":  clock.Now().Add(time.Minute).Unix(),
	}

	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	_, err = codec.VerifyAccess(hs512)
	require.ErrorIs(t, err, ErrInvalidSignature)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = codec.VerifyAccess(none)
	require.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerifyRejectsTamperedPayload(t *testing.T) {
	codec := newTestCodec(t, newTestClock())

	userToken, _, err := codec.MintAccess("user-1", "", []string{"user"}, false)
	require.NoError(t, err)
	adminToken, _, err := codec.MintAccess("user-1", "", []string{"super_admin"}, false)
	require.NoError(t, err)

	userParts := strings.Split(userToken, ".")
	adminParts := strings.Split(adminToken, ".")
	forged := strings.Join([]string{userParts[0], adminParts[1], userParts[2]}, ".")

	_, err = codec.VerifyAccess(forged)
	require.ErrorIs(t, err, ErrInvalidSignature)

	_, err = codec.VerifyAccess("not-a-jwt")
	require.ErrorIs(t, err, ErrInvalidSignature)

	_, err = codec.VerifyAccess("")
	require.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerifyIgnoresUnknownClaims(t *testing.T) {
	clock := newTestClock()
	codec := newTestCodec(t, clock)

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"uid":     "user-1",
		"type":    "access",
		"roles":   []string{"user"},
		"iss":     "authcore",
		"exp":     clock.Now().Add(time.Minute).Unix(),
		"tenant":  "acme",
		"feature": map[string]any{"beta": true},
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	claims, err := codec.VerifyAccess(token)
	require.NoError(t, err)
	require.Equal(t, []string{"user"}, claims.Roles)
}

func TestVerifyRequiresExpiryAndIssuer(t *testing.T) {
	clock := newTestClock()
	codec := newTestCodec(t, clock)

	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"uid":  "user-1",
		"type": "access",
		"iss":  "authcore",
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	_, err = codec.VerifyAccess(noExp)
	require.ErrorIs(t, err, ErrInvalidSignature)

	wrongIssuer, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"uid":  "user-1",
		"type": "access",
		"iss":  "someone-else",
		"exp":  clock.Now().Add(time.Minute).Unix(),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	_, err = codec.VerifyAccess(wrongIssuer)
	require.ErrorIs(t, err, ErrInvalidSignature)
}

func TestMintRefreshRequiresBinding(t *testing.T) {
	codec := newTestCodec(t, newTestClock())

	_, _, err := codec.MintRefresh("user-1", "", "fid", false)
	require.Error(t, err)

	_, _, err = codec.MintAccess(" ", "", nil, false)
	require.Error(t, err)
}
