package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/booking/pkg/booking"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const (
	actorContextKey     = "booking_actor"
	authorizationHeader = "Authorization"
	bearerPrefix        = "Bearer "
	defaultTokenTTL     = 24 * time.Hour
)

var (
	errMissingToken = errors.New("missing bearer token")
	errInvalidToken = errors.New("invalid bearer token")
)

// AccessClaims identifies the caller. Roles live in the user store, not in the token.
type AccessClaims struct {
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// TokenAuthority signs and verifies HS256 access tokens.
type TokenAuthority struct {
	signingKey []byte
	issuer     string
}

// NewTokenAuthority builds a TokenAuthority from the API configuration.
func NewTokenAuthority(signingKey string, issuer string) (*TokenAuthority, error) {
	if len(signingKey) == 0 {
		return nil, fmt.Errorf("jwt signing key is required")
	}
	if strings.TrimSpace(issuer) == "" {
		return nil, fmt.Errorf("jwt issuer is required")
	}
	return &TokenAuthority{signingKey: []byte(signingKey), issuer: issuer}, nil
}

// Issue mints a token for userID. A non-positive ttl uses the default lifetime.
func (authority *TokenAuthority) Issue(userID string, displayName string, now time.Time, ttl time.Duration) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", fmt.Errorf("token subject is required")
	}
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	claims := AccessClaims{
		Name: displayName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    authority.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(authority.signingKey)
}

// Verify parses token and returns its claims.
func (authority *TokenAuthority) Verify(token string) (*AccessClaims, error) {
	parsed, err := jwt.ParseWithClaims(token, &AccessClaims{}, func(parsedToken *jwt.Token) (any, error) {
		return authority.signingKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(authority.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidToken, err)
	}
	claims, ok := parsed.Claims.(*AccessClaims)
	if !ok || !parsed.Valid || strings.TrimSpace(claims.Subject) == "" {
		return nil, errInvalidToken
	}
	return claims, nil
}

// GinMiddleware authenticates the bearer token and provisions the caller's account.
func (authority *TokenAuthority) GinMiddleware(service *booking.Service, logger *zap.Logger) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		header := ctx.GetHeader(authorizationHeader)
		if !strings.HasPrefix(header, bearerPrefix) {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse("unauthorized", errMissingToken.Error()))
			return
		}
		claims, err := authority.Verify(strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix)))
		if err != nil {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse("unauthorized", errInvalidToken.Error()))
			return
		}
		userID, err := booking.NewUserID(claims.Subject)
		if err != nil {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse("unauthorized", errInvalidToken.Error()))
			return
		}
		actor, err := service.EnsureUser(ctx.Request.Context(), userID, claims.Name)
		if err != nil {
			logger.Error("actor provisioning failed", zap.String("user_id", userID.String()), zap.Error(err))
			status, body := errorStatus(err)
			ctx.AbortWithStatusJSON(status, body)
			return
		}
		ctx.Set(actorContextKey, actor)
		ctx.Next()
	}
}

func actorFrom(ctx *gin.Context) (booking.User, bool) {
	value, ok := ctx.Get(actorContextKey)
	if !ok {
		return booking.User{}, false
	}
	actor, ok := value.(booking.User)
	return actor, ok
}
