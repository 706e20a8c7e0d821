package okto

import (
	"fmt"
	"math/big"
	"strings"
)

const NamespaceEIP155 = "eip155"

// CAIP2 is a parsed CAIP-2 chain identifier such as "eip155:137".
type CAIP2 struct {
	Namespace string
	Reference string
}

func (c CAIP2) String() string {
	return c.Namespace + ":" + c.Reference
}

// ParseCAIP2 splits a CAIP-2 identifier into namespace and reference.
func ParseCAIP2(id string) (CAIP2, error) {
	namespace, reference, ok := strings.Cut(strings.TrimSpace(id), ":")
	if !ok || namespace == "" || reference == "" || strings.Contains(reference, ":") {
		return CAIP2{}, fmt.Errorf("%w: %q", ErrInvalidChainID, id)
	}
	return CAIP2{Namespace: strings.ToLower(namespace), Reference: reference}, nil
}

// ExtractChainID retrieves the numeric EVM chain ID from an eip155 CAIP-2
// identifier.
func ExtractChainID(caip2ID string) (*big.Int, error) {
	id, err := ParseCAIP2(caip2ID)
	if err != nil {
		return nil, err
	}
	if id.Namespace != NamespaceEIP155 {
		return nil, ErrUnsupportedNamespace
	}
	chainID, ok := new(big.Int).SetString(id.Reference, 10)
	if !ok || chainID.Sign() <= 0 {
		return nil, ErrInvalidChainID
	}
	return chainID, nil
}

// IsEVM reports whether caip2ID names an eip155 chain.
func IsEVM(caip2ID string) bool {
	id, err := ParseCAIP2(caip2ID)
	return err == nil && id.Namespace == NamespaceEIP155
}
