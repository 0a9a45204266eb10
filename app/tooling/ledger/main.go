// This program mines, inspects and prunes a local hash chained ledger.
package main

import "github.com/ardanlabs/hashledger/app/tooling/ledger/cmd"

func main() {
	cmd.Execute()
}
