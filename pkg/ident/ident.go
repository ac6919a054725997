// Package ident generates the short public identifiers exposed by the API.
package ident

import (
	"encoding/hex"

	"github.com/google/uuid"
)

// PublicID returns prefix + 12 hex chars of a random UUID, e.g. "prod_1f9a2b3c4d5e".
func PublicID(prefix string) string {
	u := uuid.New()
	return prefix + hex.EncodeToString(u[:])[:12]
}
