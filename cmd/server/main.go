package main

import "github.com/OpenChargingCloud/WWCP-OCPI-sub060/cmd/server/cmd"

func main() {
	cmd.Execute()
}
