package headers

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/nvrcore/camrtsp/pkg/base"
)

// Authorization is an Authorization header.
type Authorization struct {
	// authentication method
	Method AuthMethod

	// user (basic only)
	BasicUser string

	// password (basic only)
	BasicPass string

	// digest fields
	Username string
	Realm    string
	Nonce    string
	URI      string
	Response string
	Opaque   *string
}

// Unmarshal decodes an Authorization header.
func (h *Authorization) Unmarshal(v base.HeaderValue) error {
	if len(v) == 0 {
		return fmt.Errorf("value not provided")
	}

	if len(v) > 1 {
		return fmt.Errorf("value provided multiple times (%v)", v)
	}

	v0 := v[0]

	i := strings.IndexByte(v0, ' ')
	if i < 0 {
		return fmt.Errorf("unable to split between method and keys (%v)", v0)
	}
	method, v0 := v0[:i], v0[i+1:]

	switch method {
	case "Basic":
		h.Method = AuthBasic

		tmp, err := base64.StdEncoding.DecodeString(v0)
		if err != nil {
			return fmt.Errorf("invalid value")
		}

		user, pass, ok := strings.Cut(string(tmp), ":")
		if !ok {
			return fmt.Errorf("invalid value")
		}
		h.BasicUser, h.BasicPass = user, pass
		return nil

	case "Digest":

	default:
		return fmt.Errorf("invalid method (%s)", method)
	}

	kvs, err := keyValParse(v0, ',')
	if err != nil {
		return err
	}

	for _, field := range []struct {
		key string
		dst *string
	}{
		{"username", &h.Username},
		{"realm", &h.Realm},
		{"nonce", &h.Nonce},
		{"uri", &h.URI},
		{"response", &h.Response},
	} {
		v, ok := kvs[field.key]
		if !ok {
			return fmt.Errorf("%s is missing", field.key)
		}
		*field.dst = v
	}

	if v, ok := kvs["opaque"]; ok {
		h.Opaque = &v
	}

	var algorithm *string
	if v, ok := kvs["algorithm"]; ok {
		algorithm = &v
	}

	h.Method, err = algorithmToMethod(algorithm)
	return err
}

// Marshal encodes an Authorization header.
func (h Authorization) Marshal() base.HeaderValue {
	if h.Method == AuthBasic {
		return base.HeaderValue{"Basic " +
			base64.StdEncoding.EncodeToString([]byte(h.BasicUser+":"+h.BasicPass))}
	}

	ret := "Digest username=\"" + h.Username + "\", realm=\"" + h.Realm + "\", " +
		"nonce=\"" + h.Nonce + "\", uri=\"" + h.URI + "\", response=\"" + h.Response + "\""

	if h.Opaque != nil {
		ret += ", opaque=\"" + *h.Opaque + "\""
	}

	if h.Method == AuthDigestSHA256 {
		ret += ", algorithm=\"SHA-256\""
	} else {
		ret += ", algorithm=\"MD5\""
	}

	return base.HeaderValue{ret}
}
