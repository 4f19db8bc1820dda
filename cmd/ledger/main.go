// Command ledger is the operator CLI for the stock ledger.
package main

import "github.com/warp/stock-ledger/cmd/ledger/cli"

func main() {
	cli.Execute()
}
