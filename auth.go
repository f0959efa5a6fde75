package registry

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt"
	"github.com/twitchtv/twirp"
	"github.com/yiplee/go-cache"
	"golang.org/x/sync/singleflight"
)

// IdentityVerifier resolves a bearer token to an authenticated caller
// principal. Cryptographic verification happens upstream; the engine only
// ever sees resolved principals.
type IdentityVerifier func(ctx context.Context, token string) (string, error)

// SubjectVerifier trusts the token subject claim. Suitable when a
// gateway in front of the service has already verified signatures.
func SubjectVerifier(ctx context.Context, token string) (string, error) {
	var claim jwt.StandardClaims
	_, _ = jwt.ParseWithClaims(token, &claim, nil)

	if !isPrincipal(claim.Subject) {
		return "", errors.New("token subject is not a principal")
	}

	return claim.Subject, nil
}

func extractBearerToken(r *http.Request) string {
	token := r.Header.Get("Authorization")
	return strings.TrimPrefix(token, "Bearer ")
}

func handleAuth(issuer string, verify IdentityVerifier) func(next http.Handler) http.Handler {
	var (
		principals = cache.New[string, string]()
		sf         singleflight.Group
	)

	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token := extractBearerToken(r)

			var claim jwt.StandardClaims
			_, _ = jwt.ParseWithClaims(token, &claim, nil)

			if err := claim.Valid(); err != nil {
				_ = twirp.WriteError(w, twirp.Unauthenticated.Error(err.Error()))
				return
			}

			if issuer != "" && claim.Issuer != issuer {
				_ = twirp.WriteError(w, twirp.NewError(twirp.Unauthenticated, "auth required"))
				return
			}

			principal, err, _ := sf.Do(token, func() (interface{}, error) {
				if p, ok := principals.Get(token); ok {
					return p, nil
				}

				p, err := verify(ctx, token)
				if err != nil {
					return "", err
				}

				principals.Set(token, p)
				return p, nil
			})

			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(ctx, principal.(string))))
		}

		return http.HandlerFunc(fn)
	}
}
