package calculator

import (
	"reflect"
	"testing"

	"github.com/mmynk/groupsplit/internal/models"
)

func expense(id, payer string, amount int64, splits map[string]int64) models.Expense {
	return models.Expense{
		ID:          id,
		GroupID:     "grp_test",
		AmountCents: amount,
		Currency:    models.DefaultCurrency,
		PaidByUID:   payer,
		Splits:      splits,
	}
}

func members(ids ...string) []models.Member {
	out := make([]models.Member, len(ids))
	for i, id := range ids {
		out[i] = models.Member{ID: id, Name: "name-" + id}
	}
	return out
}

// exampleThree is two expenses in one group: A pays 900 split three ways and
// B pays 300 split three ways.
func exampleThree() []models.Expense {
	return []models.Expense{
		expense("e1", "A", 900, map[string]int64{"A": 300, "B": 300, "C": 300}),
		expense("e2", "B", 300, map[string]int64{"A": 100, "B": 100, "C": 100}),
	}
}

func TestCalculateBalances(t *testing.T) {
	tests := []struct {
		name     string
		expenses []models.Expense
		members  []models.Member
		want     []models.MemberBalance
	}{
		{
			name:     "two members equal split",
			expenses: []models.Expense{expense("e1", "A", 1000, map[string]int64{"A": 500, "B": 500})},
			members:  members("A", "B"),
			want: []models.MemberBalance{
				{UID: "A", Name: "name-A", BalanceCents: 500},
				{UID: "B", Name: "name-B", BalanceCents: -500},
			},
		},
		{
			name:     "two expenses three members",
			expenses: exampleThree(),
			members:  members("A", "B", "C"),
			want: []models.MemberBalance{
				// A: +900 -300 -100, B: -300 +300 -100, C: -300 -100
				{UID: "A", Name: "name-A", BalanceCents: 500},
				{UID: "B", Name: "name-B", BalanceCents: -100},
				{UID: "C", Name: "name-C", BalanceCents: -400},
			},
		},
		{
			name:     "zero-balance members still appear",
			expenses: []models.Expense{expense("e1", "A", 1000, map[string]int64{"A": 500, "B": 500})},
			members:  members("A", "B", "Z"),
			want: []models.MemberBalance{
				{UID: "A", Name: "name-A", BalanceCents: 500},
				{UID: "Z", Name: "name-Z", BalanceCents: 0},
				{UID: "B", Name: "name-B", BalanceCents: -500},
			},
		},
		{
			name: "invalid expenses are excluded",
			expenses: []models.Expense{
				expense("e1", "A", 0, map[string]int64{"B": 0}),
				expense("e2", "", 500, map[string]int64{"B": 500}),
				expense("e3", "  ", 500, map[string]int64{"B": 500}),
				expense("e4", "A", -100, map[string]int64{"B": -100}),
			},
			members: members("A", "B"),
			want: []models.MemberBalance{
				{UID: "A", Name: "name-A", BalanceCents: 0},
				{UID: "B", Name: "name-B", BalanceCents: 0},
			},
		},
		{
			name:     "participant outside membership is kept",
			expenses: []models.Expense{expense("e1", "A", 600, map[string]int64{"A": 300, "X": 300})},
			members:  members("A"),
			want: []models.MemberBalance{
				{UID: "A", Name: "name-A", BalanceCents: 300},
				{UID: "X", Name: "", BalanceCents: -300},
			},
		},
		{
			name:     "no expenses",
			expenses: nil,
			members:  members("B", "A"),
			want: []models.MemberBalance{
				{UID: "A", Name: "name-A", BalanceCents: 0},
				{UID: "B", Name: "name-B", BalanceCents: 0},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CalculateBalances(tt.expenses, tt.members)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("CalculateBalances() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestCalculateBalances_MoneyIsConserved(t *testing.T) {
	ids := []string{"ana", "ben", "cy", "dee", "eli"}
	var expenses []models.Expense
	for i, amount := range []int64{1, 7, 100, 1001, 3333, 98765, 42} {
		participants := ids[:1+i%len(ids)]
		splits, err := SplitEqually(amount, participants)
		if err != nil {
			t.Fatalf("SplitEqually failed: %v", err)
		}
		expenses = append(expenses, expense("e", ids[(i*3)%len(ids)], amount, splits))
	}

	var sum int64
	for _, b := range CalculateBalances(expenses, members(ids...)) {
		sum += b.BalanceCents
	}
	if sum != 0 {
		t.Errorf("sum of balances = %d, want 0", sum)
	}
}

func TestNetBalanceFor(t *testing.T) {
	expenses := exampleThree()
	tests := []struct {
		uid  string
		want int64
	}{
		{"A", 500},
		{"B", -100},
		{"C", -400},
		{"nobody", 0},
	}
	for _, tt := range tests {
		t.Run(tt.uid, func(t *testing.T) {
			if got := NetBalanceFor(expenses, tt.uid); got != tt.want {
				t.Errorf("NetBalanceFor(%q) = %d, want %d", tt.uid, got, tt.want)
			}
		})
	}
}
