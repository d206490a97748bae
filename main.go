package main

import "github.com/Alijeyrad/simorq_billing/cmd"

func main() {
	cmd.Execute()
}
