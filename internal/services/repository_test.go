package services

import "testing"

func TestNormalizeListOptions(t *testing.T) {
	tests := []struct {
		name      string
		in        ListOptions
		want      ListOptions
		wantOrder string
	}{
		{"defaults", ListOptions{}, ListOptions{Limit: DefaultListLimit, SortOrder: "desc"}, "DESC"},
		{"negative", ListOptions{Limit: -3, Offset: -1, SortOrder: "bogus"}, ListOptions{Limit: DefaultListLimit, SortOrder: "desc"}, "DESC"},
		{"capped", ListOptions{Limit: 5000, Offset: 10, SortOrder: "asc"}, ListOptions{Limit: MaxListLimit, Offset: 10, SortOrder: "asc"}, "ASC"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := normalizeListOptions(tt.in)
			if got != tt.want {
				t.Errorf("normalizeListOptions(%+v) = %+v, want %+v", tt.in, got, tt.want)
			}
			if order := got.orderClause(); order != tt.wantOrder {
				t.Errorf("orderClause = %q, want %q", order, tt.wantOrder)
			}
		})
	}
}
