package main

import "github.com/tierpeak/apollo-middleman/cmd"

func main() {
	cmd.Execute()
}
