// Command ema-sense runs the sensing and reasoning loop, or a terminal
// console attached to a running instance.
package main

import (
	"fmt"
	"os"

	"github.com/koscakluka/ema-sense/cmd/ema-sense/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
