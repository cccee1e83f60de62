package main

import "medauth/cmd/medauth-cli/cmd"

func main() {
	cmd.Execute()
}
