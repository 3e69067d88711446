package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/suite"
)

type AuthServiceTestSuite struct {
	suite.Suite
	authService *AuthService
	testSecret  string
}

func (suite *AuthServiceTestSuite) SetupTest() {
	suite.testSecret = "test-jwt-secret-key-for-testing"
	suite.authService = NewAuthService(suite.testSecret)
}

func TestAuthServiceTestSuite(t *testing.T) {
	suite.Run(t, new(AuthServiceTestSuite))
}

func (suite *AuthServiceTestSuite) TestGenerateToken() {
	token, err := suite.authService.GenerateToken("perf-runner", "V1", time.Hour)
	suite.NoError(err)
	suite.NotEmpty(token)

	parsedToken, err := jwt.ParseWithClaims(token, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(suite.testSecret), nil
	})
	suite.NoError(err)
	suite.True(parsedToken.Valid)

	claims, ok := parsedToken.Claims.(*Claims)
	suite.True(ok)
	suite.Equal("perf-runner", claims.Subject)
	suite.Equal("V1", claims.AppVersion)
	suite.Equal(Issuer, claims.Issuer)
	suite.NotEmpty(claims.ID)
	suite.WithinDuration(time.Now().Add(time.Hour), claims.ExpiresAt.Time, 5*time.Second)
}

func (suite *AuthServiceTestSuite) TestGenerateTokenDefaults() {
	token, err := suite.authService.GenerateToken("", "", 0)
	suite.Require().NoError(err)

	claims, err := suite.authService.ValidateToken(token)
	suite.Require().NoError(err)
	suite.Equal(DefaultSubject, claims.Subject)
	suite.WithinDuration(time.Now().Add(DefaultTTL), claims.ExpiresAt.Time, 5*time.Second)
}

func (suite *AuthServiceTestSuite) TestValidateTokenWrongSecret() {
	token, err := NewAuthService("other-secret").GenerateToken("perf-runner", "V2", time.Hour)
	suite.Require().NoError(err)

	_, err = suite.authService.ValidateToken(token)
	suite.Error(err)
}

func (suite *AuthServiceTestSuite) TestValidateTokenExpired() {
	now := time.Now()
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(now.Add(-time.Minute)),
		IssuedAt:  jwt.NewNumericDate(now.Add(-time.Hour)),
		Issuer:    Issuer,
	}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(suite.testSecret))
	suite.Require().NoError(err)

	_, err = suite.authService.ValidateToken(token)
	suite.ErrorIs(err, jwt.ErrTokenExpired)
}

func (suite *AuthServiceTestSuite) TestValidateTokenWrongIssuer() {
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		Issuer:    "someone-else",
	}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(suite.testSecret))
	suite.Require().NoError(err)

	_, err = suite.authService.ValidateToken(token)
	suite.ErrorIs(err, jwt.ErrTokenInvalidIssuer)
}

func (suite *AuthServiceTestSuite) TestValidateTokenRejectsNoneAlgorithm() {
	token := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{RegisteredClaims: jwt.RegisteredClaims{Issuer: Issuer}})
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	suite.Require().NoError(err)

	_, err = suite.authService.ValidateToken(signed)
	suite.Error(err)
}

func (suite *AuthServiceTestSuite) TestValidateTokenGarbage() {
	_, err := suite.authService.ValidateToken("not-a-jwt")
	suite.Error(err)
}
