// Package commands defines the splitctl CLI, a thin client for a running
// splitledger server.
//
// Commands
//
//   - health            Wait until the server answers its health check
//   - seed              Create sample users, groups and expenses
//   - balances group    Print every member's balance in a group
//   - balances user     Print a user's balance in each of their groups
//   - settle            Record a settlement between two group members
package commands
