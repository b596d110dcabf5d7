package idx_test

import (
	"testing"
	"time"

	"github.com/cairnhealth/cairn/pkg/idx"
	"github.com/stretchr/testify/require"
)

func TestNewAndParse(t *testing.T) {
	id := idx.New()
	require.NotEmpty(t, id.String())

	parsed, err := idx.Parse(id.String())
	require.NoError(t, err)
	require.Equal(t, id, parsed)
	require.False(t, id.IsZero())
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := idx.Parse("")
	require.ErrorIs(t, err, idx.ErrInvalid)

	_, err = idx.Parse("not-a-ulid")
	require.ErrorIs(t, err, idx.ErrInvalid)
}

func TestTimeExtraction(t *testing.T) {
	tm := time.Unix(1700000000, 0).UTC()
	id := idx.NewAt(tm)

	require.WithinDuration(t, tm, id.Time(), time.Millisecond)
}

func TestMustParse(t *testing.T) {
	id := idx.MustParse("01HQ7T3Z1MZ0JQ3M6MZQ1FQ3ZV") // any valid ULID
	require.False(t, id.IsZero())
}
