package augment

import (
	"fmt"
	"strings"
)

// Kind identifies the family a Transform was drawn from.
type Kind int

const (
	KindIdentity Kind = iota
	KindAffine
	KindPerspective
	KindFixed // caller-supplied matrix
)

func (k Kind) String() string {
	switch k {
	case KindIdentity:
		return "identity"
	case KindAffine:
		return "affine"
	case KindPerspective:
		return "perspective"
	case KindFixed:
		return "fixed"
	default:
		return "unknown"
	}
}

// ParseKind parses the names produced by Kind.String.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "identity":
		return KindIdentity, nil
	case "affine":
		return KindAffine, nil
	case "perspective":
		return KindPerspective, nil
	case "fixed":
		return KindFixed, nil
	}
	return 0, fmt.Errorf("unknown transform kind %q", s)
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
