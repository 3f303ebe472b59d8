package main

import "github.com/Layr-Labs/agentpay/cmd"

func main() {
	cmd.Execute()
}
