package beancount

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_SplitCommand_ShouldSplitLikeShell(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"foo$baz", []string{"foo$baz"}},
		{"foo baz", []string{"foo", "baz"}},
		{`foo"bar"baz`, []string{"foobarbaz"}},
		{`foo "bar"baz`, []string{"foo", "barbaz"}},
		{`'baz\$b'`, []string{`baz\$b`}},
		{"foo #bar", []string{"foo", "#bar"}},
		{"foo#bar", []string{"foo#bar"}},
		{`'\n'`, []string{`\n`}},
		{`'\\n'`, []string{`\\n`}},
		{"foo #bar  baz", []string{"foo", "#bar", "baz"}},
		{`\`, []string{`\`}},
		{`"def\\\"abc" \`, []string{`def\"abc`, `\`}},
		{"", []string{}},
		{" \t ", []string{}},
	}

	for _, c := range cases {
		got, err := SplitCommand(c.in)
		require.NoError(t, err, c.in)
		assert.Equal(t, c.want, got, c.in)
	}
}

func Test_SplitCommand_ShouldRejectBrokenInput(t *testing.T) {
	cases := []struct {
		in  string
		msg string
	}{
		{"   foo \nbar", "newline within argument"},
		{"foo\\\nbar", "newline within argument"},
		{"foo \"b\nar\"", "newline within double quote"},
		{"foo '\nba'r", "newline within single quote"},
		{`foo"#bar`, "unmatched double quote"},
		{`'baz\''`, "unmatched single quote"},
		{`"\`, "unmatched double quote"},
		{`'\`, "unmatched single quote"},
		{`"`, "unmatched double quote"},
		{`'`, "unmatched single quote"},
	}

	for _, c := range cases {
		_, err := SplitCommand(c.in)
		assert.EqualError(t, err, c.msg, c.in)
	}
}

func Test_SplitCommand_ShouldKeepTransactionArguments(t *testing.T) {
	got, err := SplitCommand(">公司\t#trip  '10 CNY' \tali \"food out\"  \t 'the rest'  ")
	require.NoError(t, err)
	assert.Equal(t, []string{">公司", "#trip", "10 CNY", "ali", "food out", "the rest"}, got)

	got, err = SplitCommand(`  >公司 '10 CNY' ali "food \"out"  'narr the rest'`)
	require.NoError(t, err)
	assert.Equal(t, []string{">公司", "10 CNY", "ali", `food "out`, "narr the rest"}, got)
}
