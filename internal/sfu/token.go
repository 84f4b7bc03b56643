package sfu

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// defaultTokenTTL is how long a join token stays valid when the caller does
// not override it. Long enough for a full meeting, short enough that a
// leaked token goes stale the same day.
const defaultTokenTTL = 6 * time.Hour

// VideoGrant enumerates the capabilities encoded into a token, mirroring
// the media server's access-token format. Pointer fields distinguish "not
// set" from an explicit false so defaults stay server-side.
type VideoGrant struct {
	Room         string `json:"room,omitempty"`
	RoomJoin     bool   `json:"roomJoin,omitempty"`
	RoomAdmin    bool   `json:"roomAdmin,omitempty"`
	RoomList     bool   `json:"roomList,omitempty"`
	CanPublish   *bool  `json:"canPublish,omitempty"`
	CanSubscribe *bool  `json:"canSubscribe,omitempty"`
}

// tokenClaims is the JWT claim set the media server expects: registered
// claims plus the grant under the "video" key.
type tokenClaims struct {
	jwt.RegisteredClaims
	Video VideoGrant `json:"video"`
}

// AccessToken builds tokens in the media server's format: an HS256 JWT
// issued by the API key, subject set to the participant identity, carrying
// a video grant. Construction is chained:
//
//	token, err := sfu.NewAccessToken(key, secret).
//		SetIdentity("alice-dev1").
//		SetVideoGrant(sfu.VideoGrant{Room: "standup", RoomJoin: true}).
//		ToJWT()
type AccessToken struct {
	apiKey    string
	apiSecret string
	identity  string
	grant     VideoGrant
	ttl       time.Duration
}

// NewAccessToken creates a token builder for the given key pair.
func NewAccessToken(apiKey, apiSecret string) *AccessToken {
	return &AccessToken{
		apiKey:    apiKey,
		apiSecret: apiSecret,
		ttl:       defaultTokenTTL,
	}
}

// SetIdentity sets the participant identity encoded as the JWT subject.
func (t *AccessToken) SetIdentity(identity string) *AccessToken {
	t.identity = identity
	return t
}

// SetVideoGrant sets the capability grant carried by the token.
func (t *AccessToken) SetVideoGrant(grant VideoGrant) *AccessToken {
	t.grant = grant
	return t
}

// SetValidFor overrides the token lifetime.
func (t *AccessToken) SetValidFor(ttl time.Duration) *AccessToken {
	t.ttl = ttl
	return t
}

// ToJWT signs and serializes the token.
func (t *AccessToken) ToJWT() (string, error) {
	if t.apiKey == "" || t.apiSecret == "" {
		return "", errors.New("access token requires an api key and secret")
	}
	if t.identity == "" {
		return "", errors.New("access token requires an identity")
	}

	now := time.Now()
	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.apiKey,
			Subject:   t.identity,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
		Video: t.grant,
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(t.apiSecret))
}
