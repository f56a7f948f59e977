package main

import "github.com/entrepeneur4lyf/paycopilot/cmd/paycopilot/cmd"

func main() {
	cmd.Execute()
}
