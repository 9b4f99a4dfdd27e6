package main

import "github.com/leaks-collector/cmd/leaks-collector/cmd"

func main() {
	cmd.Execute()
}
