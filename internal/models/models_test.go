package models

import "testing"

func TestNormalizeCategory(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"food", "food"},
		{"  Transport ", "transport"},
		{"ENTERTAINMENT", "entertainment"},
		{"", CategoryOther},
		{"gadgets", CategoryOther},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			if got := NormalizeCategory(tt.raw); got != tt.want {
				t.Errorf("NormalizeCategory(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}

	if got := CategoryLabel("HOME"); got != "Home" {
		t.Errorf("CategoryLabel(HOME) = %q, want Home", got)
	}
}

func TestExpenseValid(t *testing.T) {
	tests := []struct {
		name string
		e    Expense
		want bool
	}{
		{"valid", Expense{AmountCents: 1, PaidByUID: "A"}, true},
		{"zero amount", Expense{AmountCents: 0, PaidByUID: "A"}, false},
		{"negative amount", Expense{AmountCents: -5, PaidByUID: "A"}, false},
		{"blank payer", Expense{AmountCents: 100, PaidByUID: " "}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.e.Valid(); got != tt.want {
				t.Errorf("Valid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestUserLabel(t *testing.T) {
	tests := []struct {
		user *User
		want string
	}{
		{&User{DisplayName: "Dana", Email: "dana@example.com"}, "Dana"},
		{&User{Email: "omer@example.com"}, "omer"},
		{&User{}, ""},
		{nil, ""},
	}
	for _, tt := range tests {
		if got := tt.user.Label(); got != tt.want {
			t.Errorf("Label() = %q, want %q", got, tt.want)
		}
	}
}

func TestMemberPreview(t *testing.T) {
	tests := []struct {
		name    string
		members []Member
		want    string
	}{
		{"no names single", []Member{{ID: "a"}}, "1 member"},
		{"no names", []Member{{ID: "a"}, {ID: "b", Name: "  "}}, "2 members"},
		{"three names", []Member{{ID: "a", Name: "Ann"}, {ID: "b", Name: "Bob"}, {ID: "c", Name: "Cy"}}, "Ann, Bob, Cy"},
		{"skips blanks and repeats", []Member{{ID: "a", Name: "Ann"}, {ID: "b"}, {ID: "c", Name: "Ann"}}, "Ann"},
		{
			"more than three",
			[]Member{{ID: "a", Name: "Ann"}, {ID: "b", Name: "Bob"}, {ID: "c", Name: "Cy"}, {ID: "d", Name: "Di"}, {ID: "e", Name: "Ed"}},
			"Ann, Bob, Cy +2",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MemberPreview(tt.members); got != tt.want {
				t.Errorf("MemberPreview() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSortSplitRows(t *testing.T) {
	rows := []SplitRow{
		{UID: "c", AmountCents: 300},
		{UID: "a", AmountCents: 500},
		{UID: "b", AmountCents: 300},
	}
	SortSplitRows(rows)

	want := []string{"a", "b", "c"}
	for i, uid := range want {
		if rows[i].UID != uid {
			t.Fatalf("rows = %+v, want order %v", rows, want)
		}
	}
}
