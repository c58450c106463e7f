// Package auth contains utilities to authenticate requests against a RTSP server.
package auth

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/nvrcore/camrtsp/pkg/base"
	"github.com/nvrcore/camrtsp/pkg/headers"
)

func md5Hex(in string) string {
	h := md5.Sum([]byte(in))
	return hex.EncodeToString(h[:])
}

func sha256Hex(in string) string {
	h := sha256.Sum256([]byte(in))
	return hex.EncodeToString(h[:])
}

// Sender allows to send credentials.
// It requires a WWW-Authenticate header (provided by the server)
// and a set of credentials.
type Sender struct {
	WWWAuth base.HeaderValue
	User    string
	Pass    string

	authHeader *headers.Authenticate
}

// Initialize initializes a Sender.
// When the server offers several challenges, Digest SHA-256 is preferred
// over Digest MD5, which is preferred over Basic.
func (se *Sender) Initialize() error {
	for _, v := range se.WWWAuth {
		var auth headers.Authenticate
		err := auth.Unmarshal(base.HeaderValue{v})
		if err != nil {
			continue // ignore unrecognized headers
		}

		if se.authHeader == nil || auth.Method > se.authHeader.Method {
			se.authHeader = &auth
		}
	}

	if se.authHeader == nil {
		return fmt.Errorf("no authentication methods available")
	}

	return nil
}

// Method returns the selected authentication method.
func (se *Sender) Method() headers.AuthMethod {
	return se.authHeader.Method
}

// Response computes the digest response for the given method and URI.
func (se *Sender) Response(method base.Method, uri string) string {
	hash := md5Hex
	if se.authHeader.Method == headers.AuthDigestSHA256 {
		hash = sha256Hex
	}

	ha1 := hash(se.User + ":" + se.authHeader.Realm + ":" + se.Pass)
	ha2 := hash(string(method) + ":" + uri)

	return hash(ha1 + ":" + se.authHeader.Nonce + ":" + ha2)
}

// AddAuthorization adds the Authorization header to a Request.
func (se *Sender) AddAuthorization(req *base.Request) {
	h := headers.Authorization{
		Method: se.authHeader.Method,
	}

	if se.authHeader.Method == headers.AuthBasic {
		h.BasicUser = se.User
		h.BasicPass = se.Pass
	} else {
		uri := "*"
		if req.URL != nil {
			uri = req.URL.CloneWithoutCredentials().String()
		}

		h.Username = se.User
		h.Realm = se.authHeader.Realm
		h.Nonce = se.authHeader.Nonce
		h.URI = uri
		h.Response = se.Response(req.Method, uri)
		h.Opaque = se.authHeader.Opaque
	}

	if req.Header == nil {
		req.Header = make(base.Header)
	}

	req.Header["Authorization"] = h.Marshal()
}
