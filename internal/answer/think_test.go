package answer

import (
	"strings"
	"testing"
)

func runFilter(fragments ...string) string {
	var filter thinkFilter
	var out strings.Builder
	for _, fragment := range fragments {
		out.WriteString(filter.Write(fragment))
	}
	out.WriteString(filter.Flush())
	return out.String()
}

func TestThinkFilter(t *testing.T) {
	cases := []struct {
		name      string
		fragments []string
		want      string
	}{
		{name: "whole markers", fragments: []string{"<think>", "ignore me", "</think>", "Hello", " world."}, want: "Hello world."},
		{name: "inline span", fragments: []string{"A<think>hidden</think>B"}, want: "AB"},
		{name: "split open marker", fragments: []string{"Hi <th", "ink>secret</th", "ink> there"}, want: "Hi  there"},
		{name: "split across many", fragments: []string{"<", "t", "hink", ">x<", "/think", ">ok"}, want: "ok"},
		{name: "partial marker that is text", fragments: []string{"a <thi", "s is fine"}, want: "a <this is fine"},
		{name: "trailing partial at end", fragments: []string{"price < 5000 <thi"}, want: "price < 5000 <thi"},
		{name: "unterminated span", fragments: []string{"ok<think>never closed"}, want: "ok"},
		{name: "two spans", fragments: []string{"<think>a</think>x<think>b</think>y"}, want: "xy"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := runFilter(tc.fragments...); got != tc.want {
				t.Fatalf("filter = %q, want %q", got, tc.want)
			}
		})
	}
}
