// Package config provides configuration management for the quiz solver.
//
// Configuration is loaded from environment variables using the env package,
// after an optional .env file has been merged in with godotenv. Variables
// already present in the environment take precedence over the file.
//
// Example usage:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	fmt.Printf("HTTP server will listen on %s\n", cfg.GetHTTPAddr())
package config
