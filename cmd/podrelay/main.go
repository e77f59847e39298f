package main

import "github.com/DragonSecurity/podrelay/cmd"

func main() {
	cmd.Execute()
}
