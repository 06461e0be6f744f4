package agora

import (
	"errors"
	"time"

	"github.com/AgoraIO-Community/go-tokenbuilder/rtctokenbuilder"
)

var ErrMissingCertificate = errors.New("app certificate is required to mint join tokens")

// TokenIssuer mints short-lived publisher tokens for a channel.
type TokenIssuer struct {
	appID       string
	certificate string
	ttl         time.Duration
	now         func() time.Time
}

// NewTokenIssuer creates a token issuer signing with the app certificate.
func NewTokenIssuer(appID, certificate string, ttl time.Duration) (*TokenIssuer, error) {
	if certificate == "" {
		return nil, ErrMissingCertificate
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &TokenIssuer{
		appID:       appID,
		certificate: certificate,
		ttl:         ttl,
		now:         time.Now,
	}, nil
}

// Issue builds an RTC token letting uid join and publish on channel until the
// returned expiry.
func (t *TokenIssuer) Issue(channel string, uid uint32) (string, time.Time, error) {
	exp := t.now().Add(t.ttl).Truncate(time.Second)

	token, err := rtctokenbuilder.BuildTokenWithUID(t.appID, t.certificate, channel, uid, rtctokenbuilder.RolePublisher, uint32(exp.Unix()))
	if err != nil {
		return "", time.Time{}, err
	}
	return token, exp, nil
}
