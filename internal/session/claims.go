package session

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// errNotJWT marks an opaque token; the caller falls back to the session store.
var errNotJWT = errors.New("token is not a JWT")

// Claims are the fields the gateway reads from a token. The signature is not
// checked, so a user id taken from here is only a hint for a token the backend
// has just issued at login.
type Claims struct {
	UserID    string
	ExpiresAt time.Time
}

// Expired reports whether the token carries an expiry that has passed.
func (c *Claims) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

// parseClaims decodes the payload of a JWT without verifying it. The user id is
// read from sub, id or userId, in that order.
func parseClaims(token string) (*Claims, error) {
	if strings.Count(token, ".") != 2 {
		return nil, errNotJWT
	}

	mc := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, mc); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidToken, err.Error())
	}

	c := &Claims{}
	for _, key := range []string{"sub", "id", "userId"} {
		if id := claimString(mc[key]); id != "" {
			c.UserID = id
			break
		}
	}

	exp, err := mc.GetExpirationTime()
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidToken, err.Error())
	}
	if exp != nil {
		c.ExpiresAt = exp.Time
	}

	return c, nil
}

func claimString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}
