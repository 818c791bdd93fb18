package config

import (
	"flag"
	"os"

	"github.com/futuravault/futuravault/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line
// flags. The JSON overlay covers everything; flags cover the values that
// change between local runs.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-d string   PostgreSQL DSN
//	-s string   JWT HMAC secret key
//	-g string   ICP gateway endpoint
//	-n string   canister id
func parseFlags(config *Config) {
	// Filter args to include only the flags handled here.
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-d", "-s", "-g", "-n"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")
	fs.StringVar(&config.ICPGatewayEndpoint, "g", config.ICPGatewayEndpoint, "ICP gateway endpoint")
	fs.StringVar(&config.CanisterID, "n", config.CanisterID, "canister id")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}
}
