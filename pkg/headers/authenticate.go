// Package headers contains the RTSP headers used by the client.
package headers

import (
	"fmt"
	"strings"

	"github.com/nvrcore/camrtsp/pkg/base"
)

// AuthMethod is an authentication method.
type AuthMethod int

// authentication methods.
const (
	AuthBasic AuthMethod = iota
	AuthDigestMD5
	AuthDigestSHA256
)

// String implements fmt.Stringer.
func (m AuthMethod) String() string {
	switch m {
	case AuthBasic:
		return "Basic"
	case AuthDigestMD5:
		return "Digest MD5"
	case AuthDigestSHA256:
		return "Digest SHA-256"
	}
	return "unknown"
}

func algorithmToMethod(v *string) (AuthMethod, error) {
	switch {
	case v == nil, strings.EqualFold(*v, "md5"):
		return AuthDigestMD5, nil

	case strings.EqualFold(*v, "sha-256"):
		return AuthDigestSHA256, nil

	default:
		return 0, fmt.Errorf("unrecognized algorithm: %v", *v)
	}
}

// Authenticate is a WWW-Authenticate header.
type Authenticate struct {
	// authentication method
	Method AuthMethod

	// realm
	Realm string

	// nonce (digest only)
	Nonce string

	// opaque (digest only)
	Opaque *string

	// stale (digest only)
	Stale *string
}

// Unmarshal decodes a WWW-Authenticate header.
func (h *Authenticate) Unmarshal(v base.HeaderValue) error {
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

	kvs, err := keyValParse(v0, ',')
	if err != nil {
		return err
	}

	realm, ok := kvs["realm"]
	if !ok {
		return fmt.Errorf("realm is missing")
	}
	h.Realm = realm

	switch method {
	case "Basic":
		h.Method = AuthBasic
		return nil

	case "Digest":

	default:
		return fmt.Errorf("invalid method (%s)", method)
	}

	nonce, ok := kvs["nonce"]
	if !ok {
		return fmt.Errorf("nonce is missing")
	}
	h.Nonce = nonce

	if v, ok := kvs["opaque"]; ok {
		h.Opaque = &v
	}

	if v, ok := kvs["stale"]; ok {
		h.Stale = &v
	}

	var algorithm *string
	if v, ok := kvs["algorithm"]; ok {
		algorithm = &v
	}

	h.Method, err = algorithmToMethod(algorithm)
	return err
}

// Marshal encodes a WWW-Authenticate header.
func (h Authenticate) Marshal() base.HeaderValue {
	if h.Method == AuthBasic {
		return base.HeaderValue{"Basic realm=\"" + h.Realm + "\""}
	}

	ret := "Digest realm=\"" + h.Realm + "\", nonce=\"" + h.Nonce + "\""

	if h.Opaque != nil {
		ret += ", opaque=\"" + *h.Opaque + "\""
	}

	if h.Stale != nil {
		ret += ", stale=\"" + *h.Stale + "\""
	}

	if h.Method == AuthDigestSHA256 {
		ret += ", algorithm=\"SHA-256\""
	}

	return base.HeaderValue{ret}
}
