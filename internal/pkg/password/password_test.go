package password

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsStrong(t *testing.T) {
	tests := []struct {
		name  string
		plain string
		want  bool
	}{
		{name: "too short", plain: "Ab1!", want: false},
		{name: "no upper", plain: "abcdef1!", want: false},
		{name: "no lower", plain: "ABCDEF1!", want: false},
		{name: "no digit", plain: "Abcdefg!", want: false},
		{name: "no special", plain: "Abcdefg1", want: false},
		{name: "ok", plain: "Abcdef1!", want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, IsStrong(tt.plain))
		})
	}
}

func TestHashCompare(t *testing.T) {
	hash, err := Hash("Secret1!")
	require.NoError(t, err)
	require.NoError(t, Compare(hash, "Secret1!"))
	require.Error(t, Compare(hash, "secret"))
}

func TestUnusable(t *testing.T) {
	a, err := Unusable()
	require.NoError(t, err)
	b, err := Unusable()
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}
