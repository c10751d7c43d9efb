package msgroute

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsPattern(t *testing.T) {
	assert.False(t, IsPattern("/orders/new"))
	assert.False(t, IsPattern(""))
	assert.True(t, IsPattern("/orders/{id}"))
	assert.True(t, IsPattern("/orders/*"))
	assert.True(t, IsPattern("/orders/ord-?"))
}

func TestPathPatternMatch(t *testing.T) {
	tests := map[string]struct {
		pattern string
		dest    string
		ok      bool
		vars    DestinationVars
	}{
		"literal":                 {"/ping", "/ping", true, DestinationVars{}},
		"literal mismatch":        {"/ping", "/pong", false, nil},
		"variable":                {"/echo/{id}", "/echo/5", true, DestinationVars{"id": "5"}},
		"two variables":           {"/rooms/{room}/users/{user}", "/rooms/r1/users/u2", true, DestinationVars{"room": "r1", "user": "u2"}},
		"empty variable":          {"/echo/{id}", "/echo/", false, nil},
		"variable extra segment":  {"/echo/{id}", "/echo/5/6", false, nil},
		"star":                    {"/orders/*", "/orders/1", true, DestinationVars{}},
		"star is one segment":     {"/orders/*", "/orders/1/2", false, nil},
		"glob suffix":             {"/files/*.json", "/files/a.json", true, DestinationVars{}},
		"glob suffix mismatch":    {"/files/*.json", "/files/a.xml", false, nil},
		"question mark":           {"/orders/ord-?", "/orders/ord-7", true, DestinationVars{}},
		"double star zero":        {"/orders/**", "/orders", true, DestinationVars{}},
		"double star many":        {"/orders/**", "/orders/1/items/2", true, DestinationVars{}},
		"double star in middle":   {"/a/**/{leaf}", "/a/b/c/d", true, DestinationVars{"leaf": "d"}},
		"double star no leaf":     {"/a/**/{leaf}", "/a", false, nil},
		"catch all":               {"/**", "/anything/at/all", true, DestinationVars{}},
		"bare double star":        {"**", "x/y", true, DestinationVars{}},
		"relative destination":    {"{id}", "7", true, DestinationVars{"id": "7"}},
		"absolute vs relative":    {"/{id}", "7", false, nil},
		"braces inside a segment": {"/x{id}", "/x{id}", true, DestinationVars{}},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			vars, ok := compilePattern(tt.pattern, "/").match(tt.dest)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.vars, vars)
		})
	}
}

func TestPathPatternSeparator(t *testing.T) {
	p := compilePattern("orders.{id}.*", ".")

	vars, ok := p.match("orders.7.created")
	assert.True(t, ok)
	assert.Equal(t, DestinationVars{"id": "7"}, vars)

	_, ok = p.match("orders/7/created")
	assert.False(t, ok)
}

func TestComparePatterns(t *testing.T) {
	sorted := func(dest string, patterns ...string) []string {
		compiled := make([]*pathPattern, len(patterns))
		for i, p := range patterns {
			compiled[i] = compilePattern(p, "/")
		}
		slices.SortStableFunc(compiled, func(a, b *pathPattern) int {
			return comparePatterns(a, b, dest)
		})
		out := make([]string, len(compiled))
		for i, p := range compiled {
			out[i] = p.raw
		}
		return out
	}

	t.Run("exact match first", func(t *testing.T) {
		got := sorted("/orders/7", "/orders/**", "/orders/{id}", "/orders/7")
		assert.Equal(t, []string{"/orders/7", "/orders/{id}", "/orders/**"}, got)
	})

	t.Run("catch all last", func(t *testing.T) {
		got := sorted("/a/b/c", "/**", "/a/**/{x}", "/a/**")
		assert.Equal(t, "/**", got[2])
	})

	t.Run("fewer wildcards and variables first", func(t *testing.T) {
		got := sorted("/rooms/r1/users/u2", "/rooms/{room}/users/{user}", "/rooms/r1/users/{user}")
		assert.Equal(t, []string{"/rooms/r1/users/{user}", "/rooms/{room}/users/{user}"}, got)
	})

	t.Run("longer pattern first", func(t *testing.T) {
		got := sorted("/a/b/c", "/a/**", "/a/b/**")
		assert.Equal(t, []string{"/a/b/**", "/a/**"}, got)
	})

	t.Run("variable before glob of same length", func(t *testing.T) {
		got := sorted("/orders/1", "/orders/*", "/orders/{id}")
		assert.Equal(t, []string{"/orders/{id}", "/orders/*"}, got)
	})

	t.Run("equally specific", func(t *testing.T) {
		a, b := compilePattern("/echo/{id}", "/"), compilePattern("/echo/{n}", "/")
		assert.Zero(t, comparePatterns(a, b, "/echo/5"))
	})
}
