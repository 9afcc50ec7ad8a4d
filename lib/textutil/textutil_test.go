package textutil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeName(t *testing.T) {
	require.Equal(t, "ece2056", NormalizeName(" ECE 2056\n"))
	require.Equal(t, "datacommunications", NormalizeName("Data\tCommunications"))
	require.Equal(t, "", NormalizeName("  "))
}
