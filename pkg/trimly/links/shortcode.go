package links

import (
	"errors"
	"math/rand"
	"regexp"
	"strings"

	"github.com/trimly/trimly/pkg/trimly/models"
	"gorm.io/gorm"
)

// codeAlphabet is the 62-symbol alphanumeric alphabet short codes draw from.
const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// codeLength of 6 gives 62^6 (~5.7e10) possible codes, so the collision
// retry loop in createUniqueCode terminates almost immediately in practice.
const codeLength = 6

var aliasRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// reservedAliases are path segments under /links that are routes, not codes.
var reservedAliases = []string{"shorten", "search", "cleanup"}

// generateCode returns a uniformly random code of the given length.
func generateCode(length int) string {
	b := make([]byte, length)
	for i := range b {
		b[i] = codeAlphabet[rand.Intn(len(codeAlphabet))]
	}
	return string(b)
}

// createUniqueCode generates codes until one is unused in the store.
func createUniqueCode(db *gorm.DB) (string, error) {
	for {
		code := generateCode(codeLength)
		var existing models.Link
		err := db.Where("short_code = ?", code).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return code, nil
		}
		if err != nil {
			return "", err
		}
		// Collision, generate another.
	}
}

// validateAlias checks the format of a user-chosen alias. Availability is
// checked separately against the store.
func validateAlias(alias string) error {
	if !aliasRegex.MatchString(alias) || len(alias) > 50 {
		return ErrInvalidAlias
	}
	for _, r := range reservedAliases {
		if strings.EqualFold(alias, r) {
			return ErrInvalidAlias
		}
	}
	return nil
}
