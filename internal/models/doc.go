// Package models defines the core domain models for groupsplit.
//
// # Stored Models
//
// The following models are persisted by the storage layer:
//   - Group: A shared group whose members split expenses
//   - Expense: One payment made by a member on behalf of others
//   - ActivityItem: Timeline entry recorded alongside writes
//   - User: Directory record used to resolve display names
//
// # Derived Models
//
// The following models are recomputed from snapshots and never stored:
//   - MemberBalance: Net position of one member within a group
//   - Settlement: Recommended transfer between two members
//   - ProfileTotals: Cross-group totals for one observer
//   - BalanceView, SettlementView, ProfileView: Outputs of the coordinators
//
// # Money
//
// Every amount is an int64 count of the currency's minor unit (cents).
// Floating point never appears in a model, including its JSON form.
package models
