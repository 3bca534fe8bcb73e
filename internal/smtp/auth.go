// Package smtp implements the SMTP front end: one Session per connection that
// authenticates by resolving credentials to a webhook endpoint and forwards
// every accepted message to a Deliverer.
package smtp

import (
	"errors"

	"github.com/emersion/go-sasl"
)

// mechLogin is the legacy LOGIN mechanism still used by many alerting tools.
const mechLogin = "LOGIN"

// Base64 is applied by go-smtp; these are the raw challenges.
var (
	loginUsernameChallenge = []byte("Username:")
	loginPasswordChallenge = []byte("Password:")
)

var errUnexpectedLoginResponse = errors.New("unexpected client response")

// loginServer implements the server side of AUTH LOGIN
// (draft-murchison-sasl-login). The username may arrive as an initial
// response; otherwise it is requested with a challenge.
type loginServer struct {
	step         int
	username     string
	authenticate func(username, password string) error
}

func newLoginServer(authenticate func(username, password string) error) sasl.Server {
	return &loginServer{authenticate: authenticate}
}

// Next implements sasl.Server.
func (a *loginServer) Next(response []byte) (challenge []byte, done bool, err error) {
	switch a.step {
	case 0:
		a.step++
		if response == nil {
			return loginUsernameChallenge, false, nil
		}
		a.username = string(response)
		a.step++
		return loginPasswordChallenge, false, nil
	case 1:
		a.username = string(response)
		a.step++
		return loginPasswordChallenge, false, nil
	case 2:
		a.step++
		return nil, true, a.authenticate(a.username, string(response))
	default:
		return nil, true, errUnexpectedLoginResponse
	}
}
