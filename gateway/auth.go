// Copyright 2025 The blobwagon Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package gateway

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the token claims the gateway understands
type Claims struct {
	Repositories []string `json:"repositories,omitempty"`
	Write        bool     `json:"write,omitempty"`
	jwt.RegisteredClaims
}

// Allows reports whether the claims grant access to repository id
func (c *Claims) Allows(id string) bool {
	for _, r := range c.Repositories {
		if r == "*" || r == id {
			return true
		}
	}
	return false
}

type claimsKey struct{}

func claimsFrom(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(claimsKey{}).(*Claims)
	return c, ok
}

// IssueToken signs claims with secret. Used by the CLI and tests.
func IssueToken(secret []byte, subject string, repositories []string, write bool, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		Repositories: repositories,
		Write:        write,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func parseToken(secret []byte, tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("invalid token: %v", err)
	}
	return claims, nil
}

// authenticate checks the bearer token when the server has a secret
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(s.jwtSecret) == 0 {
			next.ServeHTTP(w, r)
			return
		}

		header := r.Header.Get("Authorization")
		tokenString, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || tokenString == "" {
			s.sendError(w, r, "missing bearer token", http.StatusUnauthorized)
			return
		}
		claims, err := parseToken(s.jwtSecret, tokenString)
		if err != nil {
			s.sendError(w, r, err.Error(), http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey{}, claims)))
	})
}

// authorize checks the claims of the request against repository id
func (s *Server) authorize(r *http.Request, id string, write bool) (int, string) {
	if len(s.jwtSecret) == 0 {
		return 0, ""
	}
	claims, ok := claimsFrom(r.Context())
	if !ok {
		return http.StatusUnauthorized, "missing bearer token"
	}
	if !claims.Allows(id) {
		return http.StatusForbidden, fmt.Sprintf("token does not grant access to repository '%s'", id)
	}
	if write && !claims.Write {
		return http.StatusForbidden, "token does not allow uploads"
	}
	return 0, ""
}
