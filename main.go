package main

import "github.com/orgctl/orgctl/cmd"

func main() {
	cmd.Execute()
}
