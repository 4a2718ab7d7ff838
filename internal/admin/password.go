package admin

import (
	"crypto/subtle"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// ErrNoCredentials is returned when neither a password nor a hash is configured.
var ErrNoCredentials = errors.New("admin password or password hash is required")

// Credentials checks the operator's username and password. A bcrypt hash is
// preferred; a plain password is accepted for local setups.
type Credentials struct {
	username string
	password string
	hash     []byte
}

func NewCredentials(username, password, passwordHash string) (*Credentials, error) {
	if password == "" && passwordHash == "" {
		return nil, ErrNoCredentials
	}
	if username == "" {
		username = "admin"
	}
	c := &Credentials{username: username, password: password}
	if passwordHash != "" {
		if _, err := bcrypt.Cost([]byte(passwordHash)); err != nil {
			return nil, err
		}
		c.hash = []byte(passwordHash)
	}
	return c, nil
}

// Check reports whether username and password match.
func (c *Credentials) Check(username, password string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(strings.TrimSpace(username)), []byte(c.username)) == 1
	var passOK bool
	if c.hash != nil {
		passOK = bcrypt.CompareHashAndPassword(c.hash, []byte(password)) == nil
	} else {
		passOK = subtle.ConstantTimeCompare([]byte(password), []byte(c.password)) == 1
	}
	return userOK && passOK
}
