package db

import (
	"database/sql"
	"database/sql/driver"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTextArg(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   driver.Value
		want sql.NullString
	}{
		{in: nil, want: sql.NullString{}},
		{in: "abc", want: sql.NullString{String: "abc", Valid: true}},
		{in: []byte("xyz"), want: sql.NullString{String: "xyz", Valid: true}},
		{in: int64(-12), want: sql.NullString{String: "-12", Valid: true}},
		{in: 1.5, want: sql.NullString{String: "1.5", Valid: true}},
		{in: true, want: sql.NullString{String: "1", Valid: true}},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, textArg(tt.in))
	}
}
