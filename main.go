package main

import "github.com/variantdev/reml/cmd"

func main() {
	cmd.Execute()
}
