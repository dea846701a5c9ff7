// Command stagegen generates dbt Data Vault staging models from CSV extracts.
package main

import (
	"os"

	"github.com/koustreak/stagegen/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
