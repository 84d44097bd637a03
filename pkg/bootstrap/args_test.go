package bootstrap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArgs_TokensOrder(t *testing.T) {
	a := Args{
		Setup:         "setup.sh",
		CopyToLocal:   []Copy{{Src: "/hdfs/a/in.txt", Dst: "in.txt"}},
		CopyFromLocal: []Copy{{Src: "out.txt", Dst: "/hdfs/a/out.txt"}},
		Exe:           "run.sh",
		Args:          []string{"-i", "in.txt"},
	}

	assert.Equal(t,
		"--setup setup.sh --copyToLocal /hdfs/a/in.txt in.txt --copyFromLocal out.txt /hdfs/a/out.txt --exe run.sh --args -i in.txt",
		a.String())
}

func TestArgs_ArgsMarkerAlwaysLast(t *testing.T) {
	a := Args{Exe: "awk"}
	tokens := a.Tokens()
	require.NotEmpty(t, tokens)
	assert.Equal(t, FlagArgs, tokens[len(tokens)-1])
}

func TestParse(t *testing.T) {
	t.Run("greedy args", func(t *testing.T) {
		got, err := ParseString("--exe run.sh --args --exe not-a-flag --copyToLocal x y")
		require.NoError(t, err)
		assert.Equal(t, "run.sh", got.Exe)
		assert.Equal(t, []string{"--exe", "not-a-flag", "--copyToLocal", "x", "y"}, got.Args)
	})

	t.Run("repeatable copies", func(t *testing.T) {
		got, err := ParseString("--copyToLocal a b --copyToLocal c d --exe e --args")
		require.NoError(t, err)
		assert.Equal(t, []Copy{{"a", "b"}, {"c", "d"}}, got.CopyToLocal)
		assert.Empty(t, got.Args)
	})

	t.Run("missing pair value", func(t *testing.T) {
		_, err := ParseString("--copyFromLocal only")
		require.ErrorIs(t, err, ErrMalformed)
	})

	t.Run("unknown token", func(t *testing.T) {
		_, err := ParseString("--bogus --exe e --args")
		require.ErrorIs(t, err, ErrMalformed)
	})
}

func TestParse_RoundTrip(t *testing.T) {
	a := Args{
		Setup:       "env.sh",
		CopyToLocal: []Copy{{Src: "/hdfs/u/j/exe", Dst: "exe"}},
		Exe:         "exe",
		Args:        []string{"1", "2"},
	}
	got, err := Parse(a.Tokens())
	require.NoError(t, err)
	assert.Equal(t, a, *got)
}

func TestSplitArgs(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"  -n 5\t--name  x ", []string{"-n", "5", "--name", "x"}},
		{"--sep | --in data.txt", []string{"--sep", "|", "--in", "data.txt"}},
		{`a\d+ 'q r'`, []string{`a\d+`, "'q", "r'"}},
		{"a;b > c", []string{"a;b", ">", "c"}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := SplitArgs(tt.in)
			if tt.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}
