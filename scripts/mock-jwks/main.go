// mock-jwks - RS256 token issuer for exercising the tracker action endpoints locally
//
// Usage:
//
//	go run ./scripts/mock-jwks
//
// Point auth.jwks_url at http://localhost:8088/.well-known/jwks.json and request a token for a
// wallet address with POST /token {"address": "0x..."}. Keys are generated on start, so tokens
// do not survive a restart.
package main

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/big"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/chainsafe/bridge-tracker/pkg/auth"
)

const (
	keyID    = "local-dev"
	tokenTTL = 24 * time.Hour
)

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

func main() {
	port := flag.Int("port", 8088, "Listen port")
	issuer := flag.String("issuer", "http://localhost:8088", "Issuer claim of the tokens")
	flag.Parse()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		log.Fatalf("failed to generate key: %v", err)
	}

	jwks := auth.JWKS{Keys: []auth.JWK{{
		Kid: keyID,
		Kty: "RSA",
		Alg: "RS256",
		Use: "sig",
		N:   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
	}}}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /.well-known/jwks.json", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(jwks)
	})
	mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Address string `json:"address"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || !auth.ValidateEVMAddress(body.Address) {
			http.Error(w, "body must be {\"address\": \"0x...\"}", http.StatusBadRequest)
			return
		}

		now := time.Now()
		tok := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
			"iss":     *issuer,
			"sub":     body.Address,
			"address": body.Address,
			"iat":     now.Unix(),
			"exp":     now.Add(tokenTTL).Unix(),
		})
		tok.Header["kid"] = keyID
		signed, err := tok.SignedString(key)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(tokenResponse{
			AccessToken: signed,
			TokenType:   "Bearer",
			ExpiresIn:   int(tokenTTL.Seconds()),
		})
		log.Printf("Issued token for %s", body.Address)
	})

	addr := fmt.Sprintf(":%d", *port)
	log.Printf("Mock JWKS issuer listening on http://localhost%s", addr)
	log.Fatal(http.ListenAndServe(addr, mux))
}
