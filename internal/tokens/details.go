// internal/tokens/details.go
package tokens

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/xkilldash9x/promptprobe/api/schemas"
)

// parserUnverified reads header and claims without checking the signature.
var parserUnverified = jwt.NewParser(jwt.WithoutClaimsValidation())

// Decode reads the header and claims of a JWT-shaped token without verifying
// it. ok is false when the token does not parse.
func Decode(token string, now time.Time) (schemas.TokenDetail, bool) {
	if !IsJWTShaped(token) {
		return schemas.TokenDetail{}, false
	}
	parsed, _, err := parserUnverified.ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return schemas.TokenDetail{}, false
	}

	detail := schemas.TokenDetail{}
	detail.Algorithm, _ = parsed.Header["alg"].(string)
	detail.Type, _ = parsed.Header["typ"].(string)

	if claims, ok := parsed.Claims.(jwt.MapClaims); ok {
		detail.Claims = map[string]interface{}(claims)
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			t := exp.Time.UTC()
			detail.ExpiresAt = &t
			detail.Expired = now.After(t)
		}
	}
	return detail, true
}

// DecodeAll decodes every JWT-shaped value in tokens. It returns nil when none decode.
func DecodeAll(tokens map[string]string, now time.Time) map[string]schemas.TokenDetail {
	var out map[string]schemas.TokenDetail
	for key, value := range tokens {
		detail, ok := Decode(value, now)
		if !ok {
			continue
		}
		if out == nil {
			out = make(map[string]schemas.TokenDetail)
		}
		out[key] = detail
	}
	return out
}
