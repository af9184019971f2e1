package store

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestEmailPrefixFilter(t *testing.T) {
	re := emailPrefixFilter("bob")["email"].(primitive.Regex)
	require.Equal(t, "^bob", re.Pattern)
	require.Equal(t, "i", re.Options)

	// metacharacters in user input match literally
	re = emailPrefixFilter("bob+test.")["email"].(primitive.Regex)
	require.Equal(t, `^bob\+test\.`, re.Pattern)
}
