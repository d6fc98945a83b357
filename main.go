package main

import "github.com/kodisha/payments/cmd"

func main() {
	cmd.Execute()
}
